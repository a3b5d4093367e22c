package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const sessionTokenBytes = 32

// SessionIssuer mints and persists session credentials
type SessionIssuer struct {
	store ports.SessionStore
	now   func() time.Time
}

// NewSessionIssuer creates a session issuer on top of store
func NewSessionIssuer(store ports.SessionStore) *SessionIssuer {
	return &SessionIssuer{
		store: store,
		now:   time.Now,
	}
}

// Issue creates and persists a session for address valid for ttlDays days.
// Only store failures are core.ErrDatabase; a bad ttl (ErrInvalidConfig) or a
// failing random source classify as internal errors.
func (i *SessionIssuer) Issue(ctx context.Context, address core.Address, ttlDays int) (core.Session, error) {
	if ttlDays < 1 {
		return core.Session{}, fmt.Errorf("%w: session ttl must be at least one day, got %d", ErrInvalidConfig, ttlDays)
	}

	token, err := newSessionToken()
	if err != nil {
		return core.Session{}, err
	}

	issuedAt := i.now().Truncate(time.Second)
	session := core.Session{
		ID:        uuid.New().String(),
		Address:   address,
		Token:     token,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(time.Duration(ttlDays) * 24 * time.Hour),
	}

	if err := i.store.StoreSession(ctx, session); err != nil {
		return core.Session{}, fmt.Errorf("%w: store session: %w", core.ErrDatabase, err)
	}

	return session, nil
}

// Lookup returns the live session owning token
func (i *SessionIssuer) Lookup(ctx context.Context, token string) (core.Session, error) {
	session, err := i.store.LookupSession(ctx, token)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return core.Session{}, core.ErrInvalidToken
		}
		return core.Session{}, fmt.Errorf("%w: lookup session: %w", core.ErrDatabase, err)
	}

	if session.ExpiredAt(i.now()) {
		return core.Session{}, core.ErrSessionExpired
	}

	return session, nil
}

func newSessionToken() (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
