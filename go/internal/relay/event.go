package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
)

// Event is the envelope published on the event stream. An empty UserID means
// the event is for every connection in the room; otherwise the gateway
// delivers it only to that participant's connections.
type Event struct {
	ID        string          `json:"event_id"`
	Room      string          `json:"room"`
	Type      events.Type     `json:"event_type"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher delivers engine events to the gateway fan-out.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
