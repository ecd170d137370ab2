package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcurtis22/triviarena/go/internal/models"
)

// LedgerRepository defines what the app layer needs from the repository
type LedgerRepository interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	DeductToken(ctx context.Context, username string) (*models.User, error)
	CreditBalance(ctx context.Context, username string, amount int) (*models.User, error)
	DebitBalance(ctx context.Context, username string, amount int) (*models.User, error)
	IncrementExperience(ctx context.Context, username string) (int, error)
	ReserveQuestion(ctx context.Context) (*models.Question, error)
	MarkQuestionAnswered(ctx context.Context, id uuid.UUID, username string) error
}

// App is the ledger surface handed to the game engine and the accounts
// service. It delegates to the repository; every call is individually atomic.
type App struct {
	repo LedgerRepository
}

// NewApp creates a new ledger App
func NewApp(repo LedgerRepository) *App {
	return &App{repo: repo}
}

func (a *App) GetUser(ctx context.Context, username string) (*models.User, error) {
	return a.repo.GetUser(ctx, username)
}

func (a *App) DeductToken(ctx context.Context, username string) (*models.User, error) {
	return a.repo.DeductToken(ctx, username)
}

func (a *App) CreditBalance(ctx context.Context, username string, amount int) (*models.User, error) {
	user, err := a.repo.CreditBalance(ctx, username, amount)
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", username).Int("amount", amount).Int("balance", user.Balance).Msg("balance credited")
	return user, nil
}

func (a *App) DebitBalance(ctx context.Context, username string, amount int) (*models.User, error) {
	user, err := a.repo.DebitBalance(ctx, username, amount)
	if err != nil {
		return nil, err
	}
	log.Info().Str("username", username).Int("amount", amount).Int("balance", user.Balance).Msg("balance debited")
	return user, nil
}

func (a *App) IncrementExperience(ctx context.Context, username string) (int, error) {
	return a.repo.IncrementExperience(ctx, username)
}

func (a *App) ReserveQuestion(ctx context.Context) (*models.Question, error) {
	q, err := a.repo.ReserveQuestion(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Str("question_id", q.ID.String()).Str("category", q.Category).Msg("question reserved")
	return q, nil
}

func (a *App) MarkQuestionAnswered(ctx context.Context, id uuid.UUID, username string) error {
	return a.repo.MarkQuestionAnswered(ctx, id, username)
}
