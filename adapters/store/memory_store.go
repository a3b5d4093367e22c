package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It does not survive restarts and does not scale past one instance.
type MemoryStore struct {
	challenges map[string]core.Challenge
	sessions   map[string]core.Session
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]core.Challenge),
		sessions:   make(map[string]core.Session),
	}
}

// InsertChallenge stores a challenge unless the account already has one
func (s *MemoryStore) InsertChallenge(ctx context.Context, c core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Address.Lower()
	if _, exists := s.challenges[key]; exists {
		return ports.ErrConflict
	}
	s.challenges[key] = c

	return nil
}

// UpsertChallenge stores a challenge, replacing the pending one
func (s *MemoryStore) UpsertChallenge(ctx context.Context, c core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[c.Address.Lower()] = c

	return nil
}

// LookupChallenge returns the pending challenge of an account
func (s *MemoryStore) LookupChallenge(ctx context.Context, address core.Address) (core.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[address.Lower()]
	if !ok {
		return core.Challenge{}, ports.ErrNotFound
	}

	return c, nil
}

// ConsumeChallenge removes the pending challenge if it still carries message
func (s *MemoryStore) ConsumeChallenge(ctx context.Context, address core.Address, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := address.Lower()
	c, ok := s.challenges[key]
	if !ok || c.Message != message {
		return ports.ErrNotFound
	}
	delete(s.challenges, key)

	return nil
}

// StoreSession stores a session keyed by its token
func (s *MemoryStore) StoreSession(ctx context.Context, session core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Token]; exists {
		return ports.ErrConflict
	}
	s.sessions[session.Token] = session

	return nil
}

// LookupSession returns the session owning token
func (s *MemoryStore) LookupSession(ctx context.Context, token string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return core.Session{}, ports.ErrNotFound
	}

	return session, nil
}

// Cleanup deletes sessions that expired before now
func (s *MemoryStore) Cleanup(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, session := range s.sessions {
		if session.ExpiredAt(now) {
			delete(s.sessions, token)
		}
	}

	return nil
}

// Close drops all data
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges = make(map[string]core.Challenge)
	s.sessions = make(map[string]core.Session)

	return nil
}
