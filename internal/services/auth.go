package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jjudge-oj/identity/config"
	"github.com/jjudge-oj/identity/internal/auth"
	"github.com/jjudge-oj/identity/internal/store"
	"github.com/jjudge-oj/identity/types"
	"go.uber.org/zap"
)

// AccountRepository defines persistence operations for accounts.
// Implementations enforce username and email uniqueness and report
// violations as store.ErrConflict.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (types.Account, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, account types.Account) (types.Account, error)
}

// Notifier delivers one-time codes. Calls return immediately; delivery
// failures never reach the caller.
type Notifier interface {
	SendVerification(ctx context.Context, email, username, code string)
	SendReset(ctx context.Context, email, username, code string)
}

// AuthService implements registration, verification, login, token refresh
// and password recovery on top of the account state machine.
type AuthService struct {
	repo      AccountRepository
	notifier  Notifier
	hasher    *auth.Hasher
	machine   *auth.StateMachine
	tokens    *auth.TokenIssuer
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService builds the hasher, code generator, token issuer and state
// machine from cfg and composes them.
func NewAuthService(repo AccountRepository, notifier Notifier, cfg config.Config, clock auth.Clock, logger *zap.Logger) (*AuthService, error) {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Algorithm, clock)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewHasher(cfg.PasswordHashCost)
	codes := auth.NewCodeGenerator(cfg.Codes.Length, cfg.Codes.TTL, clock)

	return &AuthService{
		repo:      repo,
		notifier:  notifier,
		hasher:    hasher,
		machine:   auth.NewStateMachine(hasher, codes, clock),
		tokens:    tokens,
		accessTTL: cfg.JWT.AccessTokenTTL(),
		logger:    logger.Named("auth"),
	}, nil
}

// Register creates an Unverified account and schedules delivery of its
// verification code.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (types.Account, error) {
	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return types.Account{}, err
	}

	account, code, err := s.machine.Register(username, email, password)
	if err != nil {
		return types.Account{}, fmt.Errorf("build account: %w", err)
	}

	created, err := s.create(ctx, account)
	if err != nil {
		return types.Account{}, err
	}

	s.notifier.SendVerification(ctx, created.Email, created.Username, code)
	s.logger.Info("account registered", zap.Int64("account_id", created.ID))
	return created, nil
}

// CreateGuest creates an Unverified account without issuing a code.
func (s *AuthService) CreateGuest(ctx context.Context, username, email, password string) (types.Account, error) {
	if err := s.ensureAvailable(ctx, username, email); err != nil {
		return types.Account{}, err
	}

	account, err := s.machine.NewGuest(username, email, password)
	if err != nil {
		return types.Account{}, fmt.Errorf("build account: %w", err)
	}
	return s.create(ctx, account)
}

// Verify confirms the verification code sent to email.
func (s *AuthService) Verify(ctx context.Context, email, code string) error {
	account, err := lookupBy(ctx, s.repo.GetByEmail, email)
	if err != nil {
		return err
	}
	if err := s.machine.Verify(&account, code); err != nil {
		return err
	}
	if err := s.update(ctx, account); err != nil {
		return err
	}
	s.logger.Info("account verified", zap.Int64("account_id", account.ID))
	return nil
}

// Login authenticates by username or email and issues a fresh token pair.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (types.TokenPair, error) {
	account, err := lookupBy(ctx, s.repo.GetByUsernameOrEmail, identifier)
	if err != nil {
		return types.TokenPair{}, err
	}
	if !s.hasher.Verify(password, account.PasswordHash) {
		return types.TokenPair{}, auth.ErrBadCredential
	}
	if err := auth.CheckAccess(&account); err != nil {
		return types.TokenPair{}, err
	}
	return s.issuePair(account.ID, "")
}

// Refresh mints a new access token for the holder of refreshToken. The
// refresh token itself is returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (types.TokenPair, error) {
	account, err := s.Authenticate(ctx, refreshToken)
	if err != nil {
		return types.TokenPair{}, err
	}
	return s.issuePair(account.ID, refreshToken)
}

// Authenticate resolves the account a token was issued to. A bad token, a
// token without an id, and an id with no account are all ErrInvalidToken.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.Account, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return types.Account{}, auth.ErrInvalidToken
	}
	if claims.SubjectID < 1 {
		return types.Account{}, auth.ErrInvalidToken
	}

	account, err := s.repo.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, auth.ErrInvalidToken
		}
		return types.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// ForgotPassword issues a reset code for the account registered to email.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := lookupBy(ctx, s.repo.GetByEmail, email)
	if err != nil {
		return err
	}

	code, err := s.machine.RequestPasswordReset(&account)
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}
	if err := s.update(ctx, account); err != nil {
		return err
	}

	s.notifier.SendReset(ctx, account.Email, account.Username, code)
	return nil
}

// ResetPassword sets a new password using a reset code. Mismatched
// passwords are rejected before the account is looked up.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return auth.ErrPasswordMismatch
	}

	account, err := lookupBy(ctx, s.repo.GetByEmail, email)
	if err != nil {
		return err
	}
	if err := s.machine.ResetPassword(&account, code, newPassword, confirmPassword); err != nil {
		return err
	}
	return s.update(ctx, account)
}

// ChangePassword replaces the password of an authenticated account.
func (s *AuthService) ChangePassword(ctx context.Context, accountID int64, currentPassword, newPassword, confirmPassword string) error {
	account, err := lookupBy(ctx, s.repo.GetByID, accountID)
	if err != nil {
		return err
	}
	if err := s.machine.ChangePassword(&account, currentPassword, newPassword, confirmPassword); err != nil {
		return err
	}
	return s.update(ctx, account)
}

// Profile returns the account with the given id.
func (s *AuthService) Profile(ctx context.Context, accountID int64) (types.Account, error) {
	return lookupBy(ctx, s.repo.GetByID, accountID)
}

func (s *AuthService) issuePair(accountID int64, refreshToken string) (types.TokenPair, error) {
	claims := auth.Claims{SubjectID: accountID}

	access, err := s.tokens.IssueAccess(claims, s.accessTTL)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	if refreshToken == "" {
		refreshToken, err = s.tokens.IssueRefresh(claims)
		if err != nil {
			return types.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
		}
	}

	return types.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    types.TokenTypeBearer,
		ExpiresIn:    s.accessTTL.Seconds(),
	}, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	taken, err := s.repo.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return fmt.Errorf("check identity: %w", err)
	}
	if taken {
		return auth.ErrDuplicateIdentity
	}
	return nil
}

func (s *AuthService) create(ctx context.Context, account types.Account) (types.Account, error) {
	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Account{}, auth.ErrDuplicateIdentity
		}
		return types.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

func (s *AuthService) update(ctx context.Context, account types.Account) error {
	if _, err := s.repo.Update(ctx, account); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return auth.ErrStoreIntegrityError
		case errors.Is(err, store.ErrNotFound):
			return auth.ErrUnknownIdentity
		}
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func lookupBy[K any](ctx context.Context, get func(context.Context, K) (types.Account, error), key K) (types.Account, error) {
	account, err := get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, auth.ErrUnknownIdentity
		}
		return types.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}
