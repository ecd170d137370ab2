package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcurtis22/triviarena/go/internal/ledger"
	"github.com/mcurtis22/triviarena/go/internal/models"
)

// Starting grants for new accounts. Economic balancing is out of scope here;
// these are just usable defaults.
const (
	startingTokens  = 10
	startingBalance = 0
)

// Repository implements account data access operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new accounts repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateUser creates a new account with the starting grants.
func (r *Repository) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, display_name, tokens, balance, experience, bot)
		 VALUES ($1, $2, $3, $4, 0, $5)
		 RETURNING username, display_name, tokens, balance, experience, bot, created_at`,
		req.Username, req.DisplayName, startingTokens, startingBalance, req.Bot).
		Scan(&u.Username, &u.DisplayName, &u.Tokens, &u.Balance, &u.Experience, &u.Bot, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &u, nil
}

// GetUser retrieves an account by username
func (r *Repository) GetUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx,
		`SELECT username, display_name, tokens, balance, experience, bot, created_at
		 FROM users WHERE username = $1`, username).
		Scan(&u.Username, &u.DisplayName, &u.Tokens, &u.Balance, &u.Experience, &u.Bot, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// DeleteUser deletes an account by username
func (r *Repository) DeleteUser(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrUserNotFound, username)
	}
	return nil
}
