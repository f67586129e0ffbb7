package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/identity/internal/auth"
	"github.com/jjudge-oj/identity/types"
	"go.uber.org/zap"
)

// IdentityService is the account lifecycle the HTTP layer drives.
type IdentityService interface {
	Register(ctx context.Context, username, email, password string) (types.Account, error)
	CreateGuest(ctx context.Context, username, email, password string) (types.Account, error)
	Verify(ctx context.Context, email, code string) error
	Login(ctx context.Context, identifier, password string) (types.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (types.TokenPair, error)
	Authenticate(ctx context.Context, token string) (types.Account, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword, confirmPassword string) error
	ChangePassword(ctx context.Context, accountID int64, currentPassword, newPassword, confirmPassword string) error
	Profile(ctx context.Context, accountID int64) (types.Account, error)
}

const refreshTokenHeader = "refresh-token"

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	service IdentityService
	logger  *zap.Logger
}

func NewAuthHandler(service IdentityService, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{service: service, logger: logger.Named("auth")}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, service IdentityService, logger *zap.Logger) {
	handler := NewAuthHandler(service, logger)

	r.Post("/register", handler.Register)
	r.Post("/verify", handler.Verify)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/reset-password", handler.ResetPassword)
	r.With(RequireAuth(service)).Put("/change-password", handler.ChangePassword)
}

// Register creates an account and emails its verification code.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	account, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.Verify(r.Context(), req.Email, req.Code); err != nil {
		h.fail(w, "verify", err)
		return
	}
	writeMessage(w, http.StatusOK, "Account verified successfully.")
}

// Login accepts either a JSON body or an OAuth2 password form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isForm(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		if !validateRequest(w, &req) {
			return
		}
	} else if !decodeRequest(w, r, &req) {
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrUnknownIdentity) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: auth.ErrUnknownIdentity.Message, Kind: string(auth.KindUnknownIdentity)})
		return
	}
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Refresh reads the refresh token from the refresh-token header.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(refreshTokenHeader))
	if token == "" {
		writeServiceError(w, auth.ErrInvalidToken)
		return
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, "forgot password", err)
		return
	}
	writeMessage(w, http.StatusOK, "A password reset code has been sent to your email.")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword, req.ConfirmPassword); err != nil {
		h.fail(w, "reset password", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset successfully.")
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		writeServiceError(w, auth.ErrInvalidToken)
		return
	}

	var req ChangePasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.service.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.fail(w, "change password", err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully.")
}

// fail logs unexpected errors before rendering them. Rejections are part
// of normal operation and are not logged.
func (h *AuthHandler) fail(w http.ResponseWriter, op string, err error) {
	if !isRejection(err) {
		h.logger.Error(op+" failed", zap.Error(err))
	}
	writeServiceError(w, err)
}

func isForm(r *http.Request) bool {
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data")
}
