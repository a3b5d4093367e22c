package service

import (
	"errors"
	"fmt"
	"time"
)

// ConflictPolicy decides what issuing a challenge does when the account
// already has one pending
type ConflictPolicy string

const (
	// PolicyReplace overwrites the pending challenge
	PolicyReplace ConflictPolicy = "replace"
	// PolicyReject keeps the pending challenge and fails the new one
	PolicyReject ConflictPolicy = "reject"
)

var ErrInvalidConfig = errors.New("service: invalid config")

// Config is the service identity and authentication policy, fixed at startup
type Config struct {
	ServiceName    string
	SessionTTLDays int
	ChallengeTTL   time.Duration // zero disables challenge expiry
	ConflictPolicy ConflictPolicy
}

// Validate reports the first unusable setting
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service name is empty", ErrInvalidConfig)
	}
	if c.SessionTTLDays < 1 {
		return fmt.Errorf("%w: session ttl must be at least one day, got %d", ErrInvalidConfig, c.SessionTTLDays)
	}
	if c.ChallengeTTL < 0 {
		return fmt.Errorf("%w: negative challenge ttl %s", ErrInvalidConfig, c.ChallengeTTL)
	}
	switch c.ConflictPolicy {
	case PolicyReplace, PolicyReject:
	default:
		return fmt.Errorf("%w: unknown conflict policy %q", ErrInvalidConfig, c.ConflictPolicy)
	}
	return nil
}
