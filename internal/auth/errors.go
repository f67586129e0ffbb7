package auth

// Kind is a stable, machine-readable rejection category.
type Kind string

const (
	KindDuplicateIdentity   Kind = "duplicate_identity"
	KindUnknownIdentity     Kind = "unknown_identity"
	KindBadCredential       Kind = "bad_credential"
	KindInvalidCredential   Kind = "invalid_credential"
	KindAccountInactive     Kind = "account_inactive"
	KindAccountUnverified   Kind = "account_unverified"
	KindAlreadyVerified     Kind = "already_verified"
	KindCodeMismatch        Kind = "code_mismatch"
	KindCodeExpired         Kind = "code_expired"
	KindPasswordMismatch    Kind = "password_mismatch"
	KindInvalidToken        Kind = "invalid_token"
	KindStoreIntegrityError Kind = "store_integrity_error"
)

// Error is a user-visible rejection. Two Errors match under errors.Is when
// their kinds are equal, so callers may compare against the sentinels below.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrDuplicateIdentity   = &Error{Kind: KindDuplicateIdentity, Message: "Username or email is already registered with us."}
	ErrUnknownIdentity     = &Error{Kind: KindUnknownIdentity, Message: "Username or email is not registered with us."}
	ErrBadCredential       = &Error{Kind: KindBadCredential, Message: "Invalid login credentials."}
	ErrInvalidCredential   = &Error{Kind: KindInvalidCredential, Message: "Current password is incorrect."}
	ErrAccountInactive     = &Error{Kind: KindAccountInactive, Message: "Your account is inactive. Please contact support."}
	ErrAccountUnverified   = &Error{Kind: KindAccountUnverified, Message: "Your account is unverified. Please verify your email."}
	ErrAlreadyVerified     = &Error{Kind: KindAlreadyVerified, Message: "User is already verified."}
	ErrCodeMismatch        = &Error{Kind: KindCodeMismatch, Message: "Invalid code."}
	ErrCodeExpired         = &Error{Kind: KindCodeExpired, Message: "Code has expired."}
	ErrPasswordMismatch    = &Error{Kind: KindPasswordMismatch, Message: "Passwords do not match."}
	ErrInvalidToken        = &Error{Kind: KindInvalidToken, Message: "Could not validate credentials."}
	ErrStoreIntegrityError = &Error{Kind: KindStoreIntegrityError, Message: "Username or email is already registered with us."}
)
