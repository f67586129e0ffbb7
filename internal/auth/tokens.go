package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/ksuid"
)

// Claims is the typed payload carried by access and refresh tokens.
// Refresh tokens have no ExpiresAt.
type Claims struct {
	SubjectID int64
	ExpiresAt *time.Time
}

// tokenClaims is the wire form: {"id": <account id>, "exp": <unix>, "jti": ...}.
type tokenClaims struct {
	AccountID int64 `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HMAC tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	clock  Clock
}

// NewTokenIssuer returns an issuer for one of HS256, HS384 or HS512.
func NewTokenIssuer(secret, algorithm string, clock Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenIssuer{
		secret: []byte(secret),
		method: method,
		clock:  clock,
	}, nil
}

// IssueAccess signs claims with exp = now+ttl.
func (t *TokenIssuer) IssueAccess(claims Claims, ttl time.Duration) (string, error) {
	exp := t.clock.Now().Add(ttl)
	claims.ExpiresAt = &exp
	return t.sign(claims)
}

// IssueRefresh signs claims without an expiry.
func (t *TokenIssuer) IssueRefresh(claims Claims) (string, error) {
	claims.ExpiresAt = nil
	return t.sign(claims)
}

func (t *TokenIssuer) sign(claims Claims) (string, error) {
	wire := tokenClaims{
		AccountID: claims.SubjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: ksuid.New().String(),
		},
	}
	if claims.ExpiresAt != nil {
		wire.ExpiresAt = jwt.NewNumericDate(*claims.ExpiresAt)
	}
	token := jwt.NewWithClaims(t.method, wire)
	return token.SignedString(t.secret)
}

// Decode verifies the signature, algorithm and, when present, expiry of
// tokenString. Every failure is reported as ErrInvalidToken.
func (t *TokenIssuer) Decode(tokenString string) (Claims, error) {
	wire := tokenClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		&wire,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{SubjectID: wire.AccountID}
	if wire.ExpiresAt != nil {
		exp := wire.ExpiresAt.Time.UTC()
		claims.ExpiresAt = &exp
	}
	return claims, nil
}
