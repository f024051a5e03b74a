// Package autherr defines the closed error taxonomy for the identity
// subsystem. Backend and storage failures are translated into these values at
// the invitation/pinauth boundary; nothing above that boundary inspects
// transport-specific error shapes.
package autherr

import "errors"

var (
	// TokenInvalidFormatErr is returned by local validation before any
	// backend call is made.
	TokenInvalidFormatErr = errors.New("invitation token format invalid")

	// TokenNotFoundErr means the backend does not recognise the token.
	TokenNotFoundErr = errors.New("invitation token not found")

	// TokenAlreadyUsedErr means the token was consumed by an earlier
	// exchange. The path is dead; a fresh invitation link is required.
	TokenAlreadyUsedErr = errors.New("invitation token already used")

	// PINInvalidFormatErr is returned by local validation; the vault is
	// never consulted.
	PINInvalidFormatErr = errors.New("pin must be exactly 4 digits")

	WrongPINErr    = errors.New("wrong pin")
	NoActivePINErr = errors.New("no pin configured on this device")

	AccountDisabledErr = errors.New("account disabled")
	NetworkErr         = errors.New("network error")
	NoActiveSessionErr = errors.New("no active session")
)

// RetryPolicy classifies how the UI may let the user react to a failure.
type RetryPolicy int

const (
	// RetryInPlace - show the error and let the user correct the input on
	// the same screen (bad formats, wrong PIN).
	RetryInPlace RetryPolicy = iota

	// RetrySameOperation - transient failure; offer an explicit retry of
	// the same operation, not a state reset.
	RetrySameOperation

	// NoRetry - the path is dead; route back to a neutral entry screen.
	NoRetry
)

// Policy returns the retry classification for a taxonomy error.
func Policy(err error) RetryPolicy {
	switch {
	case errors.Is(err, NetworkErr):
		return RetrySameOperation
	case errors.Is(err, TokenInvalidFormatErr),
		errors.Is(err, PINInvalidFormatErr),
		errors.Is(err, WrongPINErr):
		return RetryInPlace
	default:
		return NoRetry
	}
}

// Reason maps a taxonomy error to the human-facing string the session store
// publishes alongside a failed operation.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, TokenInvalidFormatErr):
		return "That invitation link looks invalid. Check the link and try again."
	case errors.Is(err, TokenNotFoundErr):
		return "This invitation link is not recognised."
	case errors.Is(err, TokenAlreadyUsedErr):
		return "This invitation link has already been used."
	case errors.Is(err, PINInvalidFormatErr):
		return "Enter your 4-digit PIN."
	case errors.Is(err, WrongPINErr):
		return "Wrong PIN. Try again."
	case errors.Is(err, NoActivePINErr):
		return "No PIN is set up on this device."
	case errors.Is(err, AccountDisabledErr):
		return "Your account has been disabled. Contact your project manager."
	case errors.Is(err, NetworkErr):
		return "Connection problem. Check your network and retry."
	case errors.Is(err, NoActiveSessionErr):
		return "You are not signed in."
	default:
		return "Something went wrong. Please try again."
	}
}
