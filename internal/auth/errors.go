package auth

import (
	"errors"
	"fmt"
)

// Kind classifies why an auth operation was rejected.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindExpiredToken
	KindInvalidToken
	KindRevokedToken
	KindForbidden
	KindPasswordMismatch
	KindNotFound
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindExpiredToken:
		return "expired_token"
	case KindInvalidToken:
		return "invalid_token"
	case KindRevokedToken:
		return "revoked_token"
	case KindForbidden:
		return "forbidden"
	case KindPasswordMismatch:
		return "password_mismatch"
	case KindNotFound:
		return "not_found"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Unauthorized reports whether the kind surfaces to clients as a 401.
func (k Kind) Unauthorized() bool {
	switch k {
	case KindInvalidCredentials, KindExpiredToken, KindInvalidToken, KindRevokedToken:
		return true
	}
	return false
}

// sentinel errors, one per kind, for use with errors.Is
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrExpiredToken       = &Error{Kind: KindExpiredToken}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken}
	ErrRevokedToken       = &Error{Kind: KindRevokedToken}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrPasswordMismatch   = &Error{Kind: KindPasswordMismatch}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
)

// Error is a rejected auth operation. Op names the operation and Err carries
// the underlying cause, which is never shown to clients.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error of the given kind.
func E(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRevokedToken) works
// regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
