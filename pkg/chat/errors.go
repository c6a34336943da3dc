package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrEmptyInput = errors.New("message is empty")
	ErrNoSession  = errors.New("no active session")
)

type AuthReason string

const (
	AuthInvalidCredential AuthReason = "invalid_credential"
	AuthDuplicateAccount  AuthReason = "duplicate_account"
	AuthInvalidInput      AuthReason = "invalid_input"
	AuthUnavailable       AuthReason = "unavailable"
)

// AuthError is a recoverable sign-up/sign-in/sign-out failure. It never changes the session.
type AuthError struct {
	Op     string // "signup", "signin", "signout"
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth error [%s]: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("auth error [%s]: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func NewAuthError(op string, reason AuthReason, err error) *AuthError {
	return &AuthError{Op: op, Reason: reason, Err: err}
}

// IsAuthReason reports whether err is an AuthError with the given reason.
func IsAuthReason(err error, reason AuthReason) bool {
	var ae *AuthError
	if !errors.As(err, &ae) || ae == nil {
		return false
	}
	return ae.Reason == reason
}

// StoreWriteError means an append to the log failed.
type StoreWriteError struct {
	Path string
	Err  error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write error %s: %v", e.Path, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// DispatchError means the reply request failed, was rejected or timed out.
type DispatchError struct {
	Status  int
	Timeout bool
	Err     error
}

func (e *DispatchError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("dispatch error: timed out: %v", e.Err)
	case e.Status > 0:
		return fmt.Sprintf("dispatch error: status %d: %v", e.Status, e.Err)
	default:
		return fmt.Sprintf("dispatch error: %v", e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }
