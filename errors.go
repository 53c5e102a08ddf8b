package session

import (
	"github.com/goliatone/go-errors"
)

// Error taxonomy for the token lifecycle. Crypto and parse errors never
// escape the issuer raw; they are translated into one of these.
var (
	// ErrTokenMalformed covers unsigned, tampered, or structurally invalid tokens.
	ErrTokenMalformed = errors.New("token is malformed or has an invalid signature", errors.CategoryAuth).
				WithTextCode("TOKEN_MALFORMED").
				WithCode(errors.CodeUnauthorized)

	// ErrTokenExpired covers well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
			WithTextCode("TOKEN_EXPIRED").
			WithCode(errors.CodeUnauthorized)

	// ErrTokenRevoked is returned when a refresh token id is absent from the
	// revocation store: already rotated, logged out, or forged.
	ErrTokenRevoked = errors.New("refresh token is revoked or already used", errors.CategoryAuth).
			WithTextCode("TOKEN_REVOKED").
			WithCode(errors.CodeUnauthorized)

	// ErrUnauthorized is the generic decoded-but-not-allowed failure.
	ErrUnauthorized = errors.New("unauthorized", errors.CategoryAuth).
			WithTextCode("UNAUTHORIZED").
			WithCode(errors.CodeUnauthorized)

	// ErrImpersonationDenied is returned when the actor lacks the
	// impersonation capability.
	ErrImpersonationDenied = errors.New("actor may not impersonate other accounts", errors.CategoryAuthz).
				WithTextCode("IMPERSONATION_DENIED").
				WithCode(errors.CodeForbidden)

	// ErrAuditRequired aborts impersonation when the audit record cannot be
	// written. Impersonation must never be silently unlogged.
	ErrAuditRequired = errors.New("audit record could not be written", errors.CategoryInternal).
				WithTextCode("AUDIT_REQUIRED").
				WithCode(errors.CodeInternal)

	// ErrIdentityNotFound is returned when the backing user record is absent.
	ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
				WithTextCode("IDENTITY_NOT_FOUND").
				WithCode(errors.CodeNotFound)

	// ErrIdentityConflict is reserved for duplicate identity creation.
	ErrIdentityConflict = errors.New("identity already exists", errors.CategoryConflict).
				WithTextCode("IDENTITY_CONFLICT").
				WithCode(errors.CodeConflict)

	// ErrRefreshTokenMissing is returned before any decode is attempted when
	// the refresh credential is absent.
	ErrRefreshTokenMissing = errors.New("refresh token missing", errors.CategoryAuth).
				WithTextCode("REFRESH_TOKEN_MISSING").
				WithCode(errors.CodeUnauthorized)

	// ErrMismatchedHashAndPassword is the credential failure surfaced by the
	// local identity provider.
	ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
					WithTextCode("INVALID_CREDENTIALS").
					WithCode(errors.CodeUnauthorized)

	// ErrTooManyLoginAttempts is surfaced while a cool down window is active.
	ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
				WithTextCode("TOO_MANY_ATTEMPTS").
				WithCode(errors.CodeUnauthorized)

	// ErrNoEmptyString rejects empty secrets.
	ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput).
			WithTextCode("EMPTY_VALUE").
			WithCode(errors.CodeBadRequest)
)

// IsTokenExpiredError reports whether err represents an expired token.
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired) || hasTextCode(err, "TOKEN_EXPIRED")
}

// IsTokenMalformedError reports whether err represents a malformed token.
func IsTokenMalformedError(err error) bool {
	return errors.Is(err, ErrTokenMalformed) || hasTextCode(err, "TOKEN_MALFORMED")
}

func hasTextCode(err error, code string) bool {
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsUnauthorizedError reports whether err maps to an unauthorized response,
// covering revoked, forged, and generic authorization failures.
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrMismatchedHashAndPassword) ||
		errors.Is(err, ErrTooManyLoginAttempts)
}

// IsIdentityNotFound reports whether err means the backing record is gone.
func IsIdentityNotFound(err error) bool {
	return errors.Is(err, ErrIdentityNotFound) || errors.IsNotFound(err)
}
