// Package auth issues and validates bearer tokens and decides whether the
// claims of a request satisfy the requirement declared by a route.
package auth

import "errors"

var (
	// ErrTokenInvalid covers malformed tokens and failed claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenSignature is returned when the signature does not verify.
	ErrTokenSignature = errors.New("malformed token signature")

	// ErrInvalidGrant is the single credential failure of token issuance. It
	// does not tell an unknown user apart from a wrong password or an
	// inactive account.
	ErrInvalidGrant = errors.New("invalid_grant")

	// ErrInvalidScope is returned when none of the requested scopes can be
	// granted.
	ErrInvalidScope = errors.New("invalid_scope")

	// ErrUnauthorized means the request carries no usable credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the credentials are valid but insufficient.
	ErrForbidden = errors.New("forbidden")

	// ErrConcealed replaces ErrForbidden on routes that must not reveal
	// whether the target exists.
	ErrConcealed = errors.New("not found")
)
