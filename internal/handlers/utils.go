package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jjudge-oj/identity/internal/auth"
)

type contextKey string

const contextAccountKey contextKey = "account_id"

// ErrorResponse is the body of every rejected request. Kind is a stable
// machine-readable category and is empty for transport-level failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// MessageResponse acknowledges an operation that returns no resource.
type MessageResponse struct {
	Message string `json:"message"`
}

func withAccountID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, contextAccountKey, id)
}

// AccountIDFromContext returns the authenticated account id, if any.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextAccountKey).(int64)
	if !ok || id < 1 {
		return 0, false
	}
	return id, true
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// statusFor maps a rejection kind to its HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindDuplicateIdentity, auth.KindStoreIntegrityError:
		return http.StatusUnprocessableEntity
	case auth.KindUnknownIdentity:
		return http.StatusNotFound
	case auth.KindAccountInactive, auth.KindAccountUnverified:
		return http.StatusForbidden
	case auth.KindInvalidToken:
		return http.StatusUnauthorized
	case auth.KindBadCredential, auth.KindInvalidCredential, auth.KindAlreadyVerified,
		auth.KindCodeMismatch, auth.KindCodeExpired, auth.KindPasswordMismatch:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err. Rejections keep their message and kind;
// anything else becomes an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var rejection *auth.Error
	if !errors.As(err, &rejection) {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	status := statusFor(rejection.Kind)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, ErrorResponse{Error: rejection.Message, Kind: string(rejection.Kind)})
}

func isRejection(err error) bool {
	var rejection *auth.Error
	return errors.As(err, &rejection)
}
