package ports

import (
	"context"
	"errors"
	"io"

	"github.com/layer-3/walletauth/core"
)

var (
	// ErrNotFound is returned when a store has no record for the given key
	ErrNotFound = errors.New("store: record not found")

	// ErrConflict is returned when an insert collides with an existing record
	ErrConflict = errors.New("store: record already exists")
)

// ChallengeStore persists at most one pending challenge per account
type ChallengeStore interface {
	// InsertChallenge stores c, failing with ErrConflict if the account already has one
	InsertChallenge(ctx context.Context, c core.Challenge) error

	// UpsertChallenge stores c, replacing any pending challenge of the account
	UpsertChallenge(ctx context.Context, c core.Challenge) error

	// LookupChallenge returns the pending challenge of an account or ErrNotFound
	LookupChallenge(ctx context.Context, address core.Address) (core.Challenge, error)

	// ConsumeChallenge deletes the pending challenge of an account if its
	// message equals message, and returns ErrNotFound otherwise
	ConsumeChallenge(ctx context.Context, address core.Address, message string) error
}

// SessionStore persists issued sessions keyed by token
type SessionStore interface {
	// StoreSession stores s, failing with ErrConflict on a token collision
	StoreSession(ctx context.Context, s core.Session) error

	// LookupSession returns the session owning token or ErrNotFound
	LookupSession(ctx context.Context, token string) (core.Session, error)
}

// Store is the persistence handle shared by all requests
type Store interface {
	ChallengeStore
	SessionStore
	io.Closer
}
