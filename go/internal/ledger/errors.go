package ledger

import "errors"

// Sentinel errors surfaced to participants as error events. The engine matches
// on these with errors.Is, so repository methods must wrap rather than replace
// them.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientTokens  = errors.New("insufficient tokens")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrQuestionNotFound    = errors.New("question not found")
	ErrNoQuestions         = errors.New("no eligible questions left")
)
