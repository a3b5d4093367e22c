// Package storetest holds the behavior every ports.Store backend must share.
package storetest

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// RandomAddress returns a fresh random account address
func RandomAddress(t *testing.T) core.Address {
	t.Helper()

	raw := make([]byte, common.AddressLength)
	if _, err := rand.Read(raw); err != nil {
		t.Fatal(err)
	}
	return core.AddressFromCommon(common.BytesToAddress(raw))
}

// RandomToken returns a fresh random session token
func RandomToken(t *testing.T) string {
	t.Helper()

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(raw)
}

func challengeFor(t *testing.T, addr core.Address, at time.Time) core.Challenge {
	return core.Challenge{
		Address:  addr,
		Message:  core.ChallengeMessage(t.Name(), addr, at),
		IssuedAt: at,
	}
}

type cleaner interface {
	Cleanup(ctx context.Context, now time.Time) error
}

// Common runs the shared conformance suite against s.
func Common(t *testing.T, s ports.Store) {
	now := time.Now().Truncate(time.Second)

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s ports.Store) error
	}{
		{
			name: "insert lookup conflict",
			doer: func(t *testing.T, s ports.Store) error {
				addr := RandomAddress(t)

				if _, err := s.LookupChallenge(t.Context(), addr); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted no challenge for %s, got: %v", addr.Lower(), err)
				}

				c := challengeFor(t, addr, now)
				if err := s.InsertChallenge(t.Context(), c); err != nil {
					return err
				}

				got, err := s.LookupChallenge(t.Context(), addr)
				if err != nil {
					return err
				}
				if got.Message != c.Message || !got.Address.Equal(addr) || !got.IssuedAt.Equal(now) {
					t.Logf("want: %+v", c)
					t.Logf("got:  %+v", got)
					t.Error("wrong challenge returned")
				}

				second := challengeFor(t, addr, now.Add(time.Second))
				if err := s.InsertChallenge(t.Context(), second); !errors.Is(err, ports.ErrConflict) {
					t.Errorf("wanted ErrConflict on second insert, got: %v", err)
				}

				got, err = s.LookupChallenge(t.Context(), addr)
				if err != nil {
					return err
				}
				if got.Message != c.Message {
					t.Error("rejected insert replaced the pending challenge")
				}

				return nil
			},
		},
		{
			name: "upsert replaces",
			doer: func(t *testing.T, s ports.Store) error {
				addr := RandomAddress(t)

				if err := s.UpsertChallenge(t.Context(), challengeFor(t, addr, now)); err != nil {
					return err
				}

				second := challengeFor(t, addr, now.Add(time.Minute))
				if err := s.UpsertChallenge(t.Context(), second); err != nil {
					return err
				}

				got, err := s.LookupChallenge(t.Context(), addr)
				if err != nil {
					return err
				}
				if got.Message != second.Message || !got.IssuedAt.Equal(second.IssuedAt) {
					t.Logf("want: %+v", second)
					t.Logf("got:  %+v", got)
					t.Error("upsert did not replace the pending challenge")
				}

				return nil
			},
		},
		{
			name: "consume once",
			doer: func(t *testing.T, s ports.Store) error {
				addr := RandomAddress(t)
				c := challengeFor(t, addr, now)

				if err := s.ConsumeChallenge(t.Context(), addr, c.Message); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted ErrNotFound consuming a missing challenge, got: %v", err)
				}

				if err := s.InsertChallenge(t.Context(), c); err != nil {
					return err
				}

				if err := s.ConsumeChallenge(t.Context(), addr, c.Message+"x"); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted ErrNotFound consuming with another message, got: %v", err)
				}
				if _, err := s.LookupChallenge(t.Context(), addr); err != nil {
					t.Errorf("mismatched consume removed the challenge: %v", err)
				}

				if err := s.ConsumeChallenge(t.Context(), addr, c.Message); err != nil {
					return err
				}
				if _, err := s.LookupChallenge(t.Context(), addr); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted challenge to be gone after consume, got: %v", err)
				}
				if err := s.ConsumeChallenge(t.Context(), addr, c.Message); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted second consume to fail, got: %v", err)
				}

				return s.InsertChallenge(t.Context(), c)
			},
		},
		{
			name: "concurrent insert has one winner",
			doer: func(t *testing.T, s ports.Store) error {
				addr := RandomAddress(t)

				const workers = 8
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					winners   int
					conflicts int
					failures  []error
				)
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						err := s.InsertChallenge(t.Context(), challengeFor(t, addr, now.Add(time.Duration(i)*time.Second)))

						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							winners++
						case errors.Is(err, ports.ErrConflict):
							conflicts++
						default:
							failures = append(failures, err)
						}
					}(i)
				}
				wg.Wait()

				if len(failures) != 0 {
					return errors.Join(failures...)
				}
				if winners != 1 || conflicts != workers-1 {
					t.Errorf("wanted 1 winner and %d conflicts, got %d and %d", workers-1, winners, conflicts)
				}

				return nil
			},
		},
		{
			name: "sessions",
			doer: func(t *testing.T, s ports.Store) error {
				session := core.Session{
					ID:        "3f0d7f6e-4b0a-4c55-9a59-2f3e4f6d1a01",
					Address:   RandomAddress(t),
					Token:     RandomToken(t),
					IssuedAt:  now,
					ExpiresAt: now.Add(24 * time.Hour),
				}

				if _, err := s.LookupSession(t.Context(), session.Token); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted no session, got: %v", err)
				}

				if err := s.StoreSession(t.Context(), session); err != nil {
					return err
				}

				got, err := s.LookupSession(t.Context(), session.Token)
				if err != nil {
					return err
				}
				if got.ID != session.ID || got.Token != session.Token || !got.Address.Equal(session.Address) ||
					!got.IssuedAt.Equal(session.IssuedAt) || !got.ExpiresAt.Equal(session.ExpiresAt) {
					t.Logf("want: %+v", session)
					t.Logf("got:  %+v", got)
					t.Error("wrong session returned")
				}

				if err := s.StoreSession(t.Context(), session); !errors.Is(err, ports.ErrConflict) {
					t.Errorf("wanted ErrConflict on duplicate token, got: %v", err)
				}

				// many sessions per account
				another := session
				another.Token = RandomToken(t)
				return s.StoreSession(t.Context(), another)
			},
		},
		{
			name: "session issued on another clock",
			doer: func(t *testing.T, s ports.Store) error {
				issuedAt := time.Unix(1740165511, 0)
				session := core.Session{
					ID:        "9c1e4a7b-2d3f-4e5a-8b6c-7d8e9f0a1b2c",
					Address:   RandomAddress(t),
					Token:     RandomToken(t),
					IssuedAt:  issuedAt,
					ExpiresAt: issuedAt.Add(24 * time.Hour),
				}

				if err := s.StoreSession(t.Context(), session); err != nil {
					return err
				}

				got, err := s.LookupSession(t.Context(), session.Token)
				if err != nil {
					return err
				}
				if !got.ExpiresAt.Equal(session.ExpiresAt) {
					t.Errorf("wanted expiry %s, got %s", session.ExpiresAt, got.ExpiresAt)
				}

				return nil
			},
		},
		{
			name: "cleanup",
			doer: func(t *testing.T, s ports.Store) error {
				c, ok := s.(cleaner)
				if !ok {
					t.Skip("backend expires sessions natively")
				}

				// the cutoff predates every session the other subtests store
				cutoff := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
				expired := core.Session{
					ID:        "expired",
					Address:   RandomAddress(t),
					Token:     RandomToken(t),
					IssuedAt:  cutoff.Add(-48 * time.Hour),
					ExpiresAt: cutoff.Add(-24 * time.Hour),
				}
				live := core.Session{
					ID:        "live",
					Address:   RandomAddress(t),
					Token:     RandomToken(t),
					IssuedAt:  now,
					ExpiresAt: now.Add(24 * time.Hour),
				}

				for _, session := range []core.Session{expired, live} {
					if err := s.StoreSession(t.Context(), session); err != nil {
						return err
					}
				}

				if err := c.Cleanup(t.Context(), cutoff); err != nil {
					return err
				}

				if _, err := s.LookupSession(t.Context(), expired.Token); !errors.Is(err, ports.ErrNotFound) {
					t.Errorf("wanted expired session to be removed, got: %v", err)
				}
				if _, err := s.LookupSession(t.Context(), live.Token); err != nil {
					t.Errorf("live session was removed: %v", err)
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.doer(t, s); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
