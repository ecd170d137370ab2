package accounts

// CreateUserRequest represents the data needed to create a new account
type CreateUserRequest struct {
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
	Bot         bool   `json:"bot"`
}

// WithdrawRequest represents a balance withdrawal
type WithdrawRequest struct {
	Amount int `json:"amount" validate:"required,gt=0"`
}
