package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
)

// ServerMessage is the frame written to clients.
type ServerMessage struct {
	Type      events.Type     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ClientMessage is the frame read from clients.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound message types.
const (
	ClientTypeJoin         = "join"
	ClientTypeRoomJoin     = "room_join"
	ClientTypeRoomLeave    = "room_leave"
	ClientTypeSubmitAnswer = "submit_answer"
)

// JoinPayload is the payload for a join message.
type JoinPayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
}

// RoomJoinPayload is the payload for a room_join message.
type RoomJoinPayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Room        string `json:"room"`
}

// RoomLeavePayload is the payload for a room_leave message.
type RoomLeavePayload struct {
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

// SubmitAnswerPayload is the payload for a submit_answer message.
type SubmitAnswerPayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Round       int64  `json:"round"`
	Answer      string `json:"answer"`
}
