package clients

import (
	"context"
	"errors"
	"fmt"
)

// Artifact is the opaque remember-me credential the backend issues on a
// successful invitation exchange. The identity subsystem stores and presents
// it verbatim; it never inspects the contents.
type Artifact string

// ErrorCode identifies the closed set of failure reasons a Backend may
// report. Callers translate these into the autherr taxonomy at the
// exchanger/authenticator boundary; the codes themselves never cross it.
type ErrorCode string

const (
	CodeTokenNotFound   ErrorCode = "token-not-found"
	CodeTokenConsumed   ErrorCode = "token-consumed"
	CodeRecordNotFound  ErrorCode = "record-not-found"
	CodeAccountDisabled ErrorCode = "account-disabled"
	CodeInvalidArtifact ErrorCode = "invalid-artifact"
	CodeUnavailable     ErrorCode = "unavailable"
)

// BackendError carries a backend failure reason across the collaborator
// interface in a typed form.
type BackendError struct {
	Code    ErrorCode
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBackendError constructs a BackendError for the given code.
func NewBackendError(code ErrorCode, message string) *BackendError {
	return &BackendError{Code: code, Message: message}
}

// Code extracts the ErrorCode from err if it is (or wraps) a BackendError.
// Any other error is reported as CodeUnavailable: an unclassifiable backend
// failure is treated as transient rather than terminal.
func Code(err error) ErrorCode {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnavailable
}

// Backend is the remote record-store collaborator. Implementations own the
// wire protocol; the identity subsystem only depends on this interface.
type Backend interface {
	// ExchangeInvitationToken redeems a one-time invitation token. On
	// success it returns the client record the token was issued for and a
	// fresh remember-me artifact. A token that was already redeemed fails
	// with CodeTokenConsumed so callers can distinguish it from an unknown
	// token.
	ExchangeInvitationToken(ctx context.Context, token string) (*Client, Artifact, error)

	// SignInWithArtifact re-establishes an authenticated connection from a
	// previously issued artifact and returns the client ID it is bound to.
	SignInWithArtifact(ctx context.Context, artifact Artifact) (string, error)

	// GetClientRecord fetches the current record for a client.
	GetClientRecord(ctx context.Context, clientID string) (*Client, error)

	// DeleteClientRecord removes the client record and revokes any
	// artifacts issued for it.
	DeleteClientRecord(ctx context.Context, clientID string) error
}
