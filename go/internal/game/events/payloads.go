package events

// Event payload types shared between the game engine and the gateway.

// Type identifies an outbound event.
type Type string

const (
	TypePresenceList    Type = "presence_list"
	TypeRoomList        Type = "room_list"
	TypeWaitingStarted  Type = "waiting_started"
	TypeQuestionStarted Type = "question_started"
	TypeRoundWon        Type = "round_won"
	TypeRoundOutcome    Type = "round_outcome"
	TypeRoundStopped    Type = "round_stopped"
	TypeBalanceUpdate   Type = "balance_update"
	TypeError           Type = "error"
)

// PresenceEntry is one participant in a presence list broadcast.
type PresenceEntry struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Experience  int    `json:"experience"`
	Bot         bool   `json:"bot"`
}

// PresenceListPayload is the full presence list, rebroadcast on every
// mutation.
type PresenceListPayload struct {
	Participants []PresenceEntry `json:"participants"`
}

// RoomInfo is one room in a room list broadcast.
type RoomInfo struct {
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// RoomListPayload enumerates the configured rooms with live counts.
type RoomListPayload struct {
	Rooms []RoomInfo `json:"rooms"`
}

// WaitingStartedPayload is the payload for a waiting_started event.
type WaitingStartedPayload struct {
	TimeLeftSec int `json:"time_left_sec"`
}

// QuestionStartedPayload is the payload for a question_started event. The
// canonical answer is never included.
type QuestionStartedPayload struct {
	Round       int64  `json:"round"`
	QuestionID  string `json:"question_id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
	Reward      int    `json:"reward"`
	TimeLeftSec int    `json:"time_left_sec"`
}

// RoundWonPayload is the room-wide announcement of a round winner.
type RoundWonPayload struct {
	Winner        string `json:"winner"`
	WinnerName    string `json:"winner_name"`
	Round         int64  `json:"round"`
	CorrectAnswer string `json:"correct_answer"`
	Reward        int    `json:"reward"`
	Experience    int    `json:"experience"`
	NextWaitSec   int    `json:"next_wait_sec"`
}

// RoundOutcomePayload is the personalized per-participant outcome.
type RoundOutcomePayload struct {
	Round         int64  `json:"round"`
	CorrectAnswer string `json:"correct_answer"`
	NextWaitSec   int    `json:"next_wait_sec"`
	Message       string `json:"message"`
	Winner        bool   `json:"winner"`
}

// RoundStoppedPayload is emitted when the game pauses.
type RoundStoppedPayload struct {
	Reason string `json:"reason"`
}

// BalanceUpdatePayload is sent to a participant right after a token
// deduction.
type BalanceUpdatePayload struct {
	Tokens     int `json:"tokens"`
	Balance    int `json:"balance"`
	Experience int `json:"experience"`
}

// ErrorPayload carries a participant-facing error message.
type ErrorPayload struct {
	Message string `json:"message"`
}
