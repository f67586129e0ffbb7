package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: testNow}
}

func TestHasher_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)
	first, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if first == "pw1" {
		t.Fatalf("hash must not equal plaintext")
	}
	if first == second {
		t.Fatalf("expected distinct salted hashes")
	}
	if !h.Verify("pw1", first) || !h.Verify("pw1", second) {
		t.Fatalf("expected both hashes to verify")
	}
	if h.Verify("pw2", first) {
		t.Fatalf("wrong password verified")
	}
}

func TestHasher_VerifyMalformedHash(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)
	for _, hash := range []string{"", "not-a-hash", "$2a$10$short"} {
		if h.Verify("pw", hash) {
			t.Fatalf("malformed hash %q verified", hash)
		}
	}
}

func TestNewHasher_ClampsCost(t *testing.T) {
	t.Parallel()

	if got := NewHasher(0).cost; got != bcrypt.DefaultCost {
		t.Fatalf("zero cost: got %d", got)
	}
	if got := NewHasher(1).cost; got != bcrypt.MinCost {
		t.Fatalf("low cost: got %d", got)
	}
	if got := NewHasher(99).cost; got != bcrypt.MaxCost {
		t.Fatalf("high cost: got %d", got)
	}
}

func TestCodeGenerator_DigitsAndExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := NewCodeGenerator(6, 15*time.Minute, clock)

	for i := 0; i < 50; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("unexpected code length: %q", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("non-digit code: %q", code)
		}
	}

	if got := g.Expiration(); !got.Equal(testNow.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiration: %v", got)
	}
}

func TestCodeGenerator_DefaultLength(t *testing.T) {
	t.Parallel()

	code, err := NewCodeGenerator(0, time.Minute, nil).Generate()
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(code) != defaultCodeLength {
		t.Fatalf("unexpected default length: %q", code)
	}
}

func TestGenerateCode_SourceError(t *testing.T) {
	t.Parallel()

	if _, err := GenerateCode(strings.NewReader(""), 6); err == nil {
		t.Fatalf("expected error from exhausted source")
	}
}

func newTestIssuer(t *testing.T, clock Clock) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("super-secret", "HS256", clock)
	if err != nil {
		t.Fatalf("NewTokenIssuer error: %v", err)
	}
	return issuer
}

func TestTokenIssuer_AccessRoundTrip(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)

	token, err := issuer.IssueAccess(Claims{SubjectID: 42}, time.Hour)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	claims, err := issuer.Decode(token)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if claims.SubjectID != 42 {
		t.Fatalf("subject mismatch: got %d", claims.SubjectID)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", claims.ExpiresAt)
	}

	clock.Advance(59 * time.Minute)
	if _, err := issuer.Decode(token); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := issuer.Decode(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestTokenIssuer_RefreshHasNoExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)

	token, err := issuer.IssueRefresh(Claims{SubjectID: 7})
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	clock.Advance(10 * 365 * 24 * time.Hour)
	claims, err := issuer.Decode(token)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if claims.SubjectID != 7 || claims.ExpiresAt != nil {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_TokensAreDistinct(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, newFakeClock())
	a, _ := issuer.IssueAccess(Claims{SubjectID: 1}, time.Hour)
	b, _ := issuer.IssueAccess(Claims{SubjectID: 1}, time.Hour)
	if a == b {
		t.Fatalf("expected distinct tokens for identical claims")
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	issuer := newTestIssuer(t, clock)
	good, _ := issuer.IssueAccess(Claims{SubjectID: 1}, time.Hour)
	otherSubject, _ := issuer.IssueAccess(Claims{SubjectID: 2}, time.Hour)
	goodParts := strings.Split(good, ".")
	otherParts := strings.Split(otherSubject, ".")
	tampered := goodParts[0] + "." + otherParts[1] + "." + goodParts[2]

	other, err := NewTokenIssuer("other-secret", "HS256", clock)
	if err != nil {
		t.Fatalf("NewTokenIssuer error: %v", err)
	}
	wrongSecret, _ := other.IssueAccess(Claims{SubjectID: 1}, time.Hour)

	hs512, err := NewTokenIssuer("super-secret", "HS512", clock)
	if err != nil {
		t.Fatalf("NewTokenIssuer error: %v", err)
	}
	wrongAlg, _ := hs512.IssueAccess(Claims{SubjectID: 1}, time.Hour)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": 1}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	badID, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "abc"}).
		SignedString([]byte("super-secret"))

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"tampered":     tampered,
		"wrong secret": wrongSecret,
		"wrong alg":    wrongAlg,
		"none alg":     none,
		"bad id type":  badID,
	}
	for name, token := range tests {
		if _, err := issuer.Decode(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenIssuer("", "HS256", nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewTokenIssuer("s", "RS256", nil); err == nil {
		t.Fatalf("expected error for non-HMAC algorithm")
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	wrapped := errors.Join(errors.New("context"), ErrCodeExpired)
	if !errors.Is(wrapped, ErrCodeExpired) {
		t.Fatalf("expected wrapped error to match kind")
	}
	if errors.Is(ErrCodeExpired, ErrCodeMismatch) {
		t.Fatalf("different kinds must not match")
	}
	var target *Error
	if !errors.As(wrapped, &target) || target.Kind != KindCodeExpired {
		t.Fatalf("expected errors.As to find kind, got %+v", target)
	}
}
