package auth

import (
	"crypto/subtle"
	"time"

	"github.com/jjudge-oj/identity/types"
)

// State is the lifecycle position of an account.
type State string

const (
	StateUnverified State = "unverified"
	StateActive     State = "active"
	// StateInactive is a verified account with IsActive unset. No transition
	// produces it.
	StateInactive State = "inactive"
)

// StateOf derives the lifecycle state from the account flags.
func StateOf(account *types.Account) State {
	switch {
	case !account.IsVerified:
		return StateUnverified
	case account.IsActive:
		return StateActive
	default:
		return StateInactive
	}
}

// StateMachine applies lifecycle transitions to accounts in memory. Callers
// persist the result. A failed transition leaves the account untouched.
type StateMachine struct {
	hasher *Hasher
	codes  *CodeGenerator
	clock  Clock
}

func NewStateMachine(hasher *Hasher, codes *CodeGenerator, clock Clock) *StateMachine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &StateMachine{hasher: hasher, codes: codes, clock: clock}
}

// Register builds a new Unverified, inactive account with a live
// verification code. The code is returned for delivery.
func (m *StateMachine) Register(username, email, password string) (types.Account, string, error) {
	account, err := m.newAccount(username, email, password)
	if err != nil {
		return types.Account{}, "", err
	}

	code, err := m.codes.Generate()
	if err != nil {
		return types.Account{}, "", err
	}
	expires := m.codes.Expiration()
	account.VerificationCode = &code
	account.VerificationCodeExpiration = &expires
	return account, code, nil
}

// NewGuest builds an Unverified, inactive account without any code.
func (m *StateMachine) NewGuest(username, email, password string) (types.Account, error) {
	return m.newAccount(username, email, password)
}

func (m *StateMachine) newAccount(username, email, password string) (types.Account, error) {
	hashed, err := m.hasher.Hash(password)
	if err != nil {
		return types.Account{}, err
	}
	now := m.clock.Now()
	return types.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		IsActive:     false,
		IsVerified:   false,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Verify moves an Unverified account to Active when code matches the stored
// verification code and has not expired.
func (m *StateMachine) Verify(account *types.Account, code string) error {
	if account.IsVerified {
		return ErrAlreadyVerified
	}
	now := m.clock.Now()
	if err := checkCode(account.VerificationCode, account.VerificationCodeExpiration, code, now); err != nil {
		return err
	}

	account.IsVerified = true
	account.IsActive = true
	account.VerificationCode = nil
	account.VerificationCodeExpiration = nil
	account.VerifiedAt = &now
	account.UpdatedAt = now
	return nil
}

// RequestPasswordReset stores a fresh reset code, voiding any earlier one.
func (m *StateMachine) RequestPasswordReset(account *types.Account) (string, error) {
	code, err := m.codes.Generate()
	if err != nil {
		return "", err
	}
	expires := m.codes.Expiration()

	account.ResetPasswordCode = &code
	account.ResetPasswordCodeExpiration = &expires
	account.UpdatedAt = m.clock.Now()
	return code, nil
}

// ResetPassword replaces the password using a live reset code.
func (m *StateMachine) ResetPassword(account *types.Account, code, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	now := m.clock.Now()
	if err := checkCode(account.ResetPasswordCode, account.ResetPasswordCodeExpiration, code, now); err != nil {
		return err
	}
	hashed, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	account.PasswordHash = hashed
	account.ResetPasswordCode = nil
	account.ResetPasswordCodeExpiration = nil
	account.UpdatedAt = now
	return nil
}

// ChangePassword replaces the password of an authenticated caller.
func (m *StateMachine) ChangePassword(account *types.Account, currentPassword, newPassword, confirmPassword string) error {
	if !m.hasher.Verify(currentPassword, account.PasswordHash) {
		return ErrInvalidCredential
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	hashed, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	account.PasswordHash = hashed
	account.UpdatedAt = m.clock.Now()
	return nil
}

// CheckAccess rejects accounts that may not log in. The active flag is
// checked first, so a freshly registered account is reported as inactive.
func CheckAccess(account *types.Account) error {
	if !account.IsActive {
		return ErrAccountInactive
	}
	if !account.IsVerified {
		return ErrAccountUnverified
	}
	return nil
}

func checkCode(stored *string, expires *time.Time, given string, now time.Time) error {
	if stored == nil || subtle.ConstantTimeCompare([]byte(*stored), []byte(given)) != 1 {
		return ErrCodeMismatch
	}
	if expires == nil || !now.Before(*expires) {
		return ErrCodeExpired
	}
	return nil
}
