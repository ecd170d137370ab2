package models

import (
	"time"
)

// Participant is a connected player tracked by the presence registry.
// Experience is a cached copy of the ledger value, refreshed on join and
// after each reward.
type Participant struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	Experience  int       `json:"experience"`
	Bot         bool      `json:"bot"`
	ConnID      string    `json:"-"`
	JoinedAt    time.Time `json:"joined_at"`
}
