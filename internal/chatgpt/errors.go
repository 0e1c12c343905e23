// ABOUTME: Error types for the ChatGPT backend client
// ABOUTME: Distinguishes login failures from per-turn transport failures

package chatgpt

import (
	"errors"
	"fmt"
)

// ErrInvalidCredentials indicates the backend rejected the username/password pair.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrTurnInFlight indicates the user already has a turn being streamed.
var ErrTurnInFlight = errors.New("previous turn still in flight")

// DeniedError indicates the login authorization chain was denied.
// Reason carries the error code from the redirect target, e.g. "access_denied".
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}
