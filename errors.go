package walletauth

import (
	"errors"
	"fmt"

	"github.com/layer-3/walletauth/core"
)

// ErrUnexpectedResponse is returned when the server answers outside the
// response envelope
var ErrUnexpectedResponse = errors.New("walletauth: unexpected response")

// APIError is a failure reported by the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("walletauth: %s (status %d)", e.Message, e.Status)
}

// Unwrap exposes the domain error behind the server message, so callers can
// test for e.g. core.ErrInvalidSignature with errors.Is
func (e *APIError) Unwrap() error {
	return messageErrors[e.Message]
}

var messageErrors = map[string]error{
	"Invalid public address":    core.ErrInvalidAddress,
	"No active challenge found": core.ErrNoActiveChallenge,
	"Invalid challenge":         core.ErrInvalidChallenge,
	"Invalid signature":         core.ErrInvalidSignature,
	"Invalid token":             core.ErrInvalidToken,
	"Session expired":           core.ErrSessionExpired,
	"Database error":            core.ErrDatabase,
}
