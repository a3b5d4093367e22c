// Package walletauth is the Go client of the wallet authentication HTTP API.
package walletauth

import (
	"context"
	"time"
)

// Client represents the public interface for interacting with the session service
type Client interface {
	// Challenge returns the message the wallet of address has to sign
	Challenge(ctx context.Context, address string) (string, error)

	// Login submits the signed challenge and returns the new session
	Login(ctx context.Context, address, challenge, signature string) (*Login, error)

	// Me resolves a session token or access token to its session
	Me(ctx context.Context, bearer string) (*Me, error)
}

// Login is the outcome of a successful sign-in
type Login struct {
	PublicAddress string `json:"public_address"`
	SessionToken  string `json:"session_token"`
	ExpiresAt     int64  `json:"expires_at"` // unix seconds
	AccessToken   string `json:"access_token,omitempty"`
}

// Expiry returns ExpiresAt as a time
func (l *Login) Expiry() time.Time {
	return time.Unix(l.ExpiresAt, 0)
}

// Me describes the session behind a bearer credential
type Me struct {
	PublicAddress string `json:"public_address"`
	SessionID     string `json:"session_id,omitempty"`
	ExpiresAt     int64  `json:"expires_at"` // unix seconds
}
