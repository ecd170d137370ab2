package accounts

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcurtis22/triviarena/go/internal/ledger"
)

// Service exposes account management over REST.
type Service struct {
	app *App
}

// NewService creates a new accounts Service
func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the account routes with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{username}", s.handleGetUser)
	mux.HandleFunc("DELETE /api/users/{username}", s.handleDeleteUser)
	mux.HandleFunc("POST /api/users/{username}/withdraw", s.handleWithdraw)
}

func (s *Service) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.app.CreateUser(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Service) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.GetUser(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteUser(r.Context(), r.PathValue("username")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.app.Withdraw(r.Context(), r.PathValue("username"), req.Amount)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
