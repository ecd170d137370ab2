package gateway

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
)

// handleClientMessage parses and routes one inbound frame. Malformed frames
// are rejected with an error message and never reach the engine.
func (c *Connection) handleClientMessage(message []byte) {
	var frame ClientMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		c.rejectMessage("malformed message")
		return
	}

	switch frame.Type {
	case ClientTypeJoin:
		var payload JoinPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Identity == "" {
			c.rejectMessage("malformed join payload")
			return
		}
		if payload.Identity != c.Identity {
			c.rejectMessage("identity mismatch")
			return
		}
		c.Manager.game.Join(payload.Identity, payload.DisplayName, c.ID)

	case ClientTypeRoomJoin:
		var payload RoomJoinPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Identity == "" || payload.Room == "" {
			c.rejectMessage("malformed room_join payload")
			return
		}
		if payload.Identity != c.Identity {
			c.rejectMessage("identity mismatch")
			return
		}
		c.Manager.JoinRoom(c, payload.Room)
		c.Manager.game.JoinRoom(payload.Identity, payload.DisplayName, payload.Room, c.ID)

	case ClientTypeRoomLeave:
		var payload RoomLeavePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Identity == "" || payload.Room == "" {
			c.rejectMessage("malformed room_leave payload")
			return
		}
		if payload.Identity != c.Identity {
			c.rejectMessage("identity mismatch")
			return
		}
		c.Manager.LeaveRoom(c, payload.Room)
		c.Manager.game.LeaveRoom(payload.Identity, payload.Room)

	case ClientTypeSubmitAnswer:
		var payload SubmitAnswerPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Identity == "" {
			c.rejectMessage("malformed submit_answer payload")
			return
		}
		if payload.Identity != c.Identity {
			c.rejectMessage("identity mismatch")
			return
		}
		c.Manager.game.SubmitAnswer(payload.Identity, payload.DisplayName, payload.Round, payload.Answer)

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("type", frame.Type).
			Msg("unknown client message type - ignoring")
	}
}

func (c *Connection) rejectMessage(reason string) {
	data, _ := json.Marshal(events.ErrorPayload{Message: reason})
	c.sendDirect(&ServerMessage{
		Type:      events.TypeError,
		Timestamp: time.Now(),
		Data:      data,
	})
}
