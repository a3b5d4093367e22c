package core

import (
	"fmt"
	"time"
)

// Challenge represents a pending authentication attempt for an account
type Challenge struct {
	Address  Address   `json:"address"`   // Account the challenge was issued to
	Message  string    `json:"message"`   // Text the wallet has to sign
	IssuedAt time.Time `json:"issued_at"` // When the challenge was created
}

// Session represents an authenticated period for an account
type Session struct {
	ID        string    `json:"id"`         // Unique session identifier
	Address   Address   `json:"address"`    // Account the session belongs to
	Token     string    `json:"token"`      // Opaque bearer credential
	IssuedAt  time.Time `json:"issued_at"`  // When the session was created
	ExpiresAt time.Time `json:"expires_at"` // When the session stops being valid
}

// ChallengeMessage builds the text a wallet signs to log in to serviceName.
// The result only depends on its inputs, at a resolution of one second.
func ChallengeMessage(serviceName string, address Address, issuedAt time.Time) string {
	return fmt.Sprintf("Signing in to %s as %s at %d", serviceName, address.Lower(), issuedAt.Unix())
}

// ExpiredAt reports whether the challenge is older than ttl at now.
// A zero ttl means the challenge never expires.
func (c Challenge) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(c.IssuedAt) > ttl
}

// ExpiredAt reports whether the session is no longer valid at now
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
