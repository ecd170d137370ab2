package accounts

import (
	"context"
	"fmt"
	"log"

	"github.com/mcurtis22/triviarena/go/internal/models"
)

// AccountsRepository defines what the app layer needs from the repository
type AccountsRepository interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	DeleteUser(ctx context.Context, username string) error
}

// BalanceLedger defines what the app layer needs from the ledger for
// withdrawals.
type BalanceLedger interface {
	DebitBalance(ctx context.Context, username string, amount int) (*models.User, error)
}

// App handles accounts business logic
type App struct {
	repo   AccountsRepository
	ledger BalanceLedger
}

// NewApp creates a new accounts App
func NewApp(repo AccountsRepository, ledger BalanceLedger) *App {
	return &App{
		repo:   repo,
		ledger: ledger,
	}
}

// CreateUser creates a new account with validation
func (a *App) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := a.validateCreateUserRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Check if an account with the same username already exists
	existingUser, err := a.repo.GetUser(ctx, req.Username)
	if err == nil && existingUser != nil {
		return nil, fmt.Errorf("user with username %s already exists", req.Username)
	}

	user, err := a.repo.CreateUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("Created user: %s (%s)", user.Username, user.DisplayName)
	return user, nil
}

// GetUser retrieves an account by username
func (a *App) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := a.repo.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Withdraw debits an amount from the account's balance via the ledger.
func (a *App) Withdraw(ctx context.Context, username string, amount int) (*models.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("validation failed: amount must be positive")
	}
	user, err := a.ledger.DebitBalance(ctx, username, amount)
	if err != nil {
		return nil, err
	}
	log.Printf("Withdrew %d from user %s", amount, username)
	return user, nil
}

// DeleteUser deletes an account by username
func (a *App) DeleteUser(ctx context.Context, username string) error {
	if err := a.repo.DeleteUser(ctx, username); err != nil {
		return err
	}
	log.Printf("Deleted user: %s", username)
	return nil
}

// validateCreateUserRequest validates create user request
func (a *App) validateCreateUserRequest(req CreateUserRequest) error {
	if req.Username == "" {
		return fmt.Errorf("username is required")
	}
	if req.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}
	return nil
}
