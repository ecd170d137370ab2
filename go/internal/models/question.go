package models

import (
	"github.com/google/uuid"
)

// Question is one trivia question from the pool. Used is flipped exactly once
// when the question is reserved for a round; AnsweredBy is set when a winner
// is credited.
type Question struct {
	ID         uuid.UUID `json:"id"`
	Prompt     string    `json:"prompt"`
	Answer     string    `json:"answer"`
	Category   string    `json:"category"`
	Difficulty string    `json:"difficulty"`
	Reward     int       `json:"reward"`
	Used       bool      `json:"used"`
	AnsweredBy string    `json:"answered_by,omitempty"`
}
