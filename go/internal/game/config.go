package game

import (
	"time"
)

// LobbyRoom is the room every connection belongs to; presence and room lists
// are broadcast there.
const LobbyRoom = "lobby"

// Config holds the tunables of one game room.
type Config struct {
	// Room is the name of the trivia room this engine drives.
	Room string
	// Rooms is the enumerable room directory. Must include Room and LobbyRoom.
	Rooms []string
	// MinPlayers is the participant threshold for starting a round.
	MinPlayers int
	// WaitPeriod is the countdown between rounds.
	WaitPeriod time.Duration
	// QuestionPeriod is the answer window after a question broadcast.
	QuestionPeriod time.Duration
	// ResolveDelay is the grace window after the first correct answer during
	// which near-simultaneous submissions are still captured.
	ResolveDelay time.Duration
	// GracePeriod defers removal after a disconnect to tolerate reconnects.
	GracePeriod time.Duration
	// ForcedWinners, if non-empty, switches winner selection to the
	// forced-winner override policy. See ForcedWinnerPolicy.
	ForcedWinners []string
}

// DefaultConfig returns the stock room settings.
func DefaultConfig() Config {
	return Config{
		Room:           "trivia",
		Rooms:          []string{LobbyRoom, "trivia"},
		MinPlayers:     2,
		WaitPeriod:     30 * time.Second,
		QuestionPeriod: 30 * time.Second,
		ResolveDelay:   15 * time.Second,
		GracePeriod:    10 * time.Second,
	}
}
