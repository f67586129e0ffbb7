package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jjudge-oj/identity/internal/auth"
	"github.com/jjudge-oj/identity/types"
)

// Authenticator resolves a bearer token to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Account, error)
}

// RequireAuth rejects requests without a valid bearer access token and
// stores the caller's account id in the request context. A caller already
// resolved by Identify is not authenticated again.
func RequireAuth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := AccountIDFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				writeServiceError(w, auth.ErrInvalidToken)
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				writeServiceError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withAccountID(r.Context(), account.ID)))
		})
	}
}

// Identify resolves an optional bearer token. Callers without a usable
// token continue anonymously; this middleware never rejects.
func Identify(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccountID(r.Context(), account.ID)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
