package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcurtis22/triviarena/go/internal/models"
	"github.com/mcurtis22/triviarena/go/internal/sqlutil"
)

// Repository implements the ledger's atomic operations against Postgres.
// Each method is a single statement (or a single transaction); there is no
// cross-call transaction by design.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `username, display_name, tokens, balance, experience, bot, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.Username, &u.DisplayName, &u.Tokens, &u.Balance, &u.Experience, &u.Bot, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser fetches a user by username.
func (r *Repository) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// DeductToken atomically reserves and decrements one token. The decrement is
// conditioned on sufficient tokens at the database layer, so concurrent
// submissions cannot overdraw.
func (r *Repository) DeductToken(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET tokens = tokens - 1
		 WHERE username = $1 AND tokens >= 1
		 RETURNING `+userColumns, username))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to deduct token: %w", err)
	}
	// No row updated: either the user does not exist or they are out of tokens.
	if _, getErr := r.GetUser(ctx, username); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s", ErrInsufficientTokens, username)
}

// CreditBalance adds amount to the user's balance.
func (r *Repository) CreditBalance(ctx context.Context, username string, amount int) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET balance = balance + $2
		 WHERE username = $1
		 RETURNING `+userColumns, username, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	return user, nil
}

// DebitBalance subtracts amount from the user's balance, rejecting overdrafts.
func (r *Repository) DebitBalance(ctx context.Context, username string, amount int) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET balance = balance - $2
		 WHERE username = $1 AND balance >= $2
		 RETURNING `+userColumns, username, amount))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	if _, getErr := r.GetUser(ctx, username); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s", ErrInsufficientBalance, username)
}

// IncrementExperience bumps the user's experience by one and returns the new
// value.
func (r *Repository) IncrementExperience(ctx context.Context, username string) (int, error) {
	var experience int
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET experience = experience + 1
		 WHERE username = $1
		 RETURNING experience`, username).Scan(&experience)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return 0, fmt.Errorf("failed to increment experience: %w", err)
	}
	return experience, nil
}

// ReserveQuestion picks one eligible question uniformly at random and flags it
// used, in a single transaction. A question is eligible if it has never been
// used, or was used but never answered (this lets an exhausted pool be
// replayed). SKIP LOCKED keeps two concurrent rooms from reserving the same
// row.
func (r *Repository) ReserveQuestion(ctx context.Context) (*models.Question, error) {
	var q models.Question
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var answeredBy *string
		err := tx.QueryRow(ctx,
			`SELECT id, prompt, answer, category, difficulty, reward, used, answered_by
			 FROM questions
			 WHERE used = FALSE OR answered_by IS NULL
			 ORDER BY random()
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`).
			Scan(&q.ID, &q.Prompt, &q.Answer, &q.Category, &q.Difficulty, &q.Reward, &q.Used, &answeredBy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoQuestions
			}
			return fmt.Errorf("failed to select question: %w", err)
		}
		if answeredBy != nil {
			q.AnsweredBy = *answeredBy
		}
		if _, err := tx.Exec(ctx, `UPDATE questions SET used = TRUE WHERE id = $1`, q.ID); err != nil {
			return fmt.Errorf("failed to flag question used: %w", err)
		}
		q.Used = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// MarkQuestionAnswered records which user answered the question.
func (r *Repository) MarkQuestionAnswered(ctx context.Context, id uuid.UUID, username string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE questions SET answered_by = $2 WHERE id = $1`, id, username)
	if err != nil {
		return fmt.Errorf("failed to mark question answered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
	}
	return nil
}
