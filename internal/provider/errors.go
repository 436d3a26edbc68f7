package provider

import (
	"errors"
	"fmt"
)

// TransportError indicates a network failure, timeout, or provider 5xx.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// AuthExpiredError indicates a 401 or expired token. For token-auth
// providers the caller retries once after a token refresh before
// surfacing it.
type AuthExpiredError struct {
	Mailbox string
	Message string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("authentication expired for %s: %s", e.Mailbox, e.Message)
}

// NotFoundError indicates an invalid message or folder reference.
type NotFoundError struct {
	Kind string
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Ref)
}

// InvalidIdentifierError indicates that no durable identity could be
// resolved for the target of a mutation. The mutation is blocked
// before any network call is made.
type InvalidIdentifierError struct {
	DisplayKey string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("message %s has no durable identifier and cannot be acted on", e.DisplayKey)
}

// IsTransport reports whether err (or its chain) is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAuthExpired reports whether err (or its chain) is an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var ae *AuthExpiredError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err (or its chain) is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsInvalidIdentifier reports whether err (or its chain) is an
// InvalidIdentifierError.
func IsInvalidIdentifier(err error) bool {
	var ie *InvalidIdentifierError
	return errors.As(err, &ie)
}
