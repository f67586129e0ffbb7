package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/identity/internal/auth"
	"github.com/jjudge-oj/identity/types"
	"go.uber.org/zap"
)

// ProfileResponse is the public view of an account.
type ProfileResponse struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	IsActive     bool       `json:"is_active"`
	IsVerified   bool       `json:"is_verified"`
	RegisteredAt time.Time  `json:"registered_at"`
	VerifiedAt   *time.Time `json:"verified_at"`
}

func newProfileResponse(account types.Account) ProfileResponse {
	return ProfileResponse{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		IsActive:     account.IsActive,
		IsVerified:   account.IsVerified,
		RegisteredAt: account.RegisteredAt,
		VerifiedAt:   account.VerifiedAt,
	}
}

// UserHandler serves /users and /guest.
type UserHandler struct {
	service IdentityService
	logger  *zap.Logger
}

func NewUserHandler(service IdentityService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{service: service, logger: logger.Named("users")}
}

// UserRouter registers /users routes.
func UserRouter(r chi.Router, service IdentityService, logger *zap.Logger) {
	handler := NewUserHandler(service, logger)
	r.With(RequireAuth(service)).Get("/me", handler.Me)
}

// GuestRouter registers /guest routes.
func GuestRouter(r chi.Router, service IdentityService, logger *zap.Logger) {
	handler := NewUserHandler(service, logger)
	r.Post("/", handler.CreateGuest)
}

// Me returns the profile of the authenticated caller.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		writeServiceError(w, auth.ErrInvalidToken)
		return
	}

	account, err := h.service.Profile(r.Context(), accountID)
	if err != nil {
		if !isRejection(err) {
			h.logger.Error("load profile failed", zap.Error(err))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(account))
}

// CreateGuest creates an unverified account without sending a code.
func (h *UserHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if _, err := h.service.CreateGuest(r.Context(), req.Username, req.Email, req.Password); err != nil {
		if !isRejection(err) {
			h.logger.Error("create guest failed", zap.Error(err))
		}
		writeServiceError(w, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Guest account has been successfully created.")
}
