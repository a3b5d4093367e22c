package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"go.etcd.io/bbolt"
)

var (
	challengesBucket = []byte("challenges")
	sessionsBucket   = []byte("sessions")
)

// BoltStore implements the Store interface on a local bbolt file.
//
// Challenges are JSON values in the "challenges" bucket keyed by lowercase
// address; sessions are JSON values in the "sessions" bucket keyed by token.
// Every write runs in its own read-write transaction, which bbolt serializes,
// so insert-if-absent and compare-and-delete are atomic.
//
// bbolt holds an exclusive file lock, so it only fits single-instance
// deployments.
type BoltStore struct {
	bdb *bbolt.DB
}

// NewBoltStore opens (or creates) the database file at path
func NewBoltStore(path string) (*BoltStore, error) {
	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt database %s: %w", path, err)
	}

	if err := bdb.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{challengesBucket, sessionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		bdb.Close()
		return nil, err
	}

	return &BoltStore{bdb: bdb}, nil
}

func (s *BoltStore) InsertChallenge(ctx context.Context, c core.Challenge) error {
	return s.putChallenge(c, false)
}

func (s *BoltStore) UpsertChallenge(ctx context.Context, c core.Challenge) error {
	return s.putChallenge(c, true)
}

func (s *BoltStore) putChallenge(c core.Challenge, replace bool) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(challengesBucket)
		key := []byte(c.Address.Lower())

		if !replace && bkt.Get(key) != nil {
			return ports.ErrConflict
		}

		return bkt.Put(key, data)
	})
}

func (s *BoltStore) LookupChallenge(ctx context.Context, address core.Address) (core.Challenge, error) {
	var c core.Challenge

	err := s.bdb.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(challengesBucket).Get([]byte(address.Lower()))
		if data == nil {
			return ports.ErrNotFound
		}
		// data is only valid inside the transaction; Unmarshal copies it
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return core.Challenge{}, err
	}

	return c, nil
}

func (s *BoltStore) ConsumeChallenge(ctx context.Context, address core.Address, message string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(challengesBucket)
		key := []byte(address.Lower())

		data := bkt.Get(key)
		if data == nil {
			return ports.ErrNotFound
		}

		var c core.Challenge
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to decode challenge: %w", err)
		}
		if c.Message != message {
			return ports.ErrNotFound
		}

		return bkt.Delete(key)
	})
}

func (s *BoltStore) StoreSession(ctx context.Context, session core.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionsBucket)
		key := []byte(session.Token)

		if bkt.Get(key) != nil {
			return ports.ErrConflict
		}

		return bkt.Put(key, data)
	})
}

func (s *BoltStore) LookupSession(ctx context.Context, token string) (core.Session, error) {
	var session core.Session

	err := s.bdb.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(token))
		if data == nil {
			return ports.ErrNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return core.Session{}, err
	}

	return session, nil
}

// Cleanup deletes sessions that expired before now
func (s *BoltStore) Cleanup(ctx context.Context, now time.Time) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(sessionsBucket)

		var expired [][]byte
		if err := bkt.ForEach(func(k, v []byte) error {
			var session core.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to decode session %q: %w", k, err)
			}
			if session.ExpiredAt(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range expired {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}
