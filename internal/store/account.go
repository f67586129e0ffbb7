package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jjudge-oj/identity/types"
)

const accountColumns = `id, username, email, password, is_active, is_verified,
		verification_code, verification_code_expiration,
		reset_password_code, reset_password_code_expiration,
		registered_at, verified_at, created_at, updated_at`

// AccountRepository handles persistence for accounts.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// GetByUsernameOrEmail resolves a login identifier. A username match wins
// over an email match.
func (r *AccountRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (types.Account, error) {
	const query = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE username = $1 OR email = $1
		ORDER BY (username = $1) DESC
		LIMIT 1`
	return r.getOne(ctx, query, identifier)
}

// ExistsByUsernameOrEmail reports whether either identity is taken.
func (r *AccountRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1 OR email = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}
	if account.RegisteredAt.IsZero() {
		account.RegisteredAt = now
	}

	const query = `
		INSERT INTO accounts (
			username, email, password, is_active, is_verified,
			verification_code, verification_code_expiration,
			reset_password_code, reset_password_code_expiration,
			registered_at, verified_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.IsActive,
		account.IsVerified,
		account.VerificationCode,
		account.VerificationCodeExpiration,
		account.ResetPasswordCode,
		account.ResetPasswordCodeExpiration,
		account.RegisteredAt,
		account.VerifiedAt,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID); err != nil {
		return types.Account{}, normalizeWriteError(err)
	}
	return account, nil
}

// Update writes every mutable column of account in one statement, so a
// state change and its updated_at stamp commit together.
func (r *AccountRepository) Update(ctx context.Context, account types.Account) (types.Account, error) {
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = time.Now().UTC()
	}

	const query = `
		UPDATE accounts
		SET username = $1,
			email = $2,
			password = $3,
			is_active = $4,
			is_verified = $5,
			verification_code = $6,
			verification_code_expiration = $7,
			reset_password_code = $8,
			reset_password_code_expiration = $9,
			verified_at = $10,
			updated_at = $11
		WHERE id = $12`
	result, err := r.db.ExecContext(
		ctx,
		query,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.IsActive,
		account.IsVerified,
		account.VerificationCode,
		account.VerificationCodeExpiration,
		account.ResetPasswordCode,
		account.ResetPasswordCodeExpiration,
		account.VerifiedAt,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return types.Account{}, normalizeWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Account{}, err
	}
	if affected == 0 {
		return types.Account{}, ErrNotFound
	}
	return account, nil
}

func (r *AccountRepository) getOne(ctx context.Context, query string, args ...any) (types.Account, error) {
	var account types.Account
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.IsActive,
		&account.IsVerified,
		&account.VerificationCode,
		&account.VerificationCodeExpiration,
		&account.ResetPasswordCode,
		&account.ResetPasswordCodeExpiration,
		&account.RegisteredAt,
		&account.VerifiedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	utc(&account)
	return account, nil
}

// utc normalizes driver-returned timestamps, which carry the session zone.
func utc(account *types.Account) {
	account.RegisteredAt = account.RegisteredAt.UTC()
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	for _, ts := range []*time.Time{
		account.VerificationCodeExpiration,
		account.ResetPasswordCodeExpiration,
		account.VerifiedAt,
	} {
		if ts != nil {
			*ts = ts.UTC()
		}
	}
}
