package types

import "time"

// Account represents a registered identity.
// It carries credentials, lifecycle flags, pending one-time codes and audit
// timestamps. All timestamps are UTC.
type Account struct {
	// ID is the unique identifier of the account.
	ID int64 `json:"id" db:"id"`

	// Username is the unique login name chosen at registration.
	Username string `json:"username" db:"username"`

	// Email is the unique address codes are delivered to.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// IsActive is set once the account has been verified.
	IsActive bool `json:"is_active" db:"is_active"`

	// IsVerified reports whether the email verification code was confirmed.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// VerificationCode is the pending email verification code, if any.
	VerificationCode *string `json:"-" db:"verification_code"`

	// VerificationCodeExpiration is when VerificationCode stops being accepted.
	VerificationCodeExpiration *time.Time `json:"-" db:"verification_code_expiration"`

	// ResetPasswordCode is the pending password reset code, if any.
	ResetPasswordCode *string `json:"-" db:"reset_password_code"`

	// ResetPasswordCodeExpiration is when ResetPasswordCode stops being accepted.
	ResetPasswordCodeExpiration *time.Time `json:"-" db:"reset_password_code_expiration"`

	// RegisteredAt is the time the account was registered.
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`

	// VerifiedAt is the time the verification code was accepted.
	VerifiedAt *time.Time `json:"verified_at" db:"verified_at"`

	// CreatedAt is the timestamp when the row was inserted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent mutation.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
