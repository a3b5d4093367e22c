package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// ChallengeManager creates, finds and consumes the per-account pending
// challenge
type ChallengeManager struct {
	store       ports.ChallengeStore
	serviceName string
	ttl         time.Duration
	policy      ConflictPolicy
	now         func() time.Time
}

// NewChallengeManager creates a challenge manager for serviceName
func NewChallengeManager(store ports.ChallengeStore, serviceName string, ttl time.Duration, policy ConflictPolicy) *ChallengeManager {
	return &ChallengeManager{
		store:       store,
		serviceName: serviceName,
		ttl:         ttl,
		policy:      policy,
		now:         time.Now,
	}
}

// Issue creates and persists a fresh challenge for address
func (m *ChallengeManager) Issue(ctx context.Context, address core.Address) (core.Challenge, error) {
	issuedAt := m.now().Truncate(time.Second)
	c := core.Challenge{
		Address:  address,
		Message:  core.ChallengeMessage(m.serviceName, address, issuedAt),
		IssuedAt: issuedAt,
	}

	var err error
	if m.policy == PolicyReject {
		err = m.insert(ctx, c)
	} else {
		err = m.store.UpsertChallenge(ctx, c)
	}
	if err != nil {
		return core.Challenge{}, fmt.Errorf("%w: store challenge: %w", core.ErrDatabase, err)
	}

	return c, nil
}

// insert stores c unless a live challenge is pending. An expired one is
// removed with compare-and-delete and the insert is retried once, so a
// concurrent issuer still wins or loses atomically.
func (m *ChallengeManager) insert(ctx context.Context, c core.Challenge) error {
	err := m.store.InsertChallenge(ctx, c)
	if !errors.Is(err, ports.ErrConflict) || m.ttl <= 0 {
		return err
	}

	old, lookupErr := m.store.LookupChallenge(ctx, c.Address)
	switch {
	case errors.Is(lookupErr, ports.ErrNotFound):
	case lookupErr != nil:
		return lookupErr
	case !old.ExpiredAt(m.now(), m.ttl):
		return err
	default:
		if consumeErr := m.store.ConsumeChallenge(ctx, c.Address, old.Message); consumeErr != nil && !errors.Is(consumeErr, ports.ErrNotFound) {
			return consumeErr
		}
	}

	return m.store.InsertChallenge(ctx, c)
}

// Lookup returns the pending challenge of address. Missing and expired
// challenges are both reported as core.ErrNoActiveChallenge.
func (m *ChallengeManager) Lookup(ctx context.Context, address core.Address) (core.Challenge, error) {
	c, err := m.store.LookupChallenge(ctx, address)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return core.Challenge{}, core.ErrNoActiveChallenge
		}
		return core.Challenge{}, fmt.Errorf("%w: lookup challenge: %w", core.ErrDatabase, err)
	}

	if c.ExpiredAt(m.now(), m.ttl) {
		return core.Challenge{}, fmt.Errorf("%w: challenge issued at %s expired", core.ErrNoActiveChallenge, c.IssuedAt.Format(time.RFC3339))
	}

	return c, nil
}

// Consume removes the pending challenge of address if it still carries
// message. A challenge replaced or consumed in the meantime is reported as
// core.ErrNoActiveChallenge.
func (m *ChallengeManager) Consume(ctx context.Context, address core.Address, message string) error {
	if err := m.store.ConsumeChallenge(ctx, address, message); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return core.ErrNoActiveChallenge
		}
		return fmt.Errorf("%w: consume challenge: %w", core.ErrDatabase, err)
	}
	return nil
}
