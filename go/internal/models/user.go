package models

import (
	"time"
)

// User represents an account in the system. Tokens, balance, and experience
// are owned by the ledger; everything else is profile data.
type User struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Tokens      int       `json:"tokens"`
	Balance     int       `json:"balance"`
	Experience  int       `json:"experience"`
	Bot         bool      `json:"bot"`
	CreatedAt   time.Time `json:"created_at"`
}
