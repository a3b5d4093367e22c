package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// consumeScript deletes a challenge key only while it holds the given message.
var consumeScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
	return 0
end
local challenge = cjson.decode(raw)
if challenge.message ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// RedisStore is a Redis implementation of the Store interface.
// Challenges live under one key per account, sessions under one key per
// token expiring together with the session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "walletauth:",
	}
}

// DialRedisStore parses a redis:// URL, connects and pings the server
func DialRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisStore(client), nil
}

func (s *RedisStore) challengeKey(address core.Address) string {
	return s.prefix + "challenge:" + address.Lower()
}

func (s *RedisStore) sessionKey(token string) string {
	return s.prefix + "session:" + token
}

// InsertChallenge stores a challenge with SETNX
func (s *RedisStore) InsertChallenge(ctx context.Context, c core.Challenge) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.challengeKey(c.Address), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert challenge: %w", err)
	}
	if !ok {
		return ports.ErrConflict
	}

	return nil
}

// UpsertChallenge stores a challenge, overwriting the pending one
func (s *RedisStore) UpsertChallenge(ctx context.Context, c core.Challenge) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	if err := s.client.Set(ctx, s.challengeKey(c.Address), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

// LookupChallenge reads the pending challenge of an account
func (s *RedisStore) LookupChallenge(ctx context.Context, address core.Address) (core.Challenge, error) {
	raw, err := s.client.Get(ctx, s.challengeKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Challenge{}, ports.ErrNotFound
		}
		return core.Challenge{}, fmt.Errorf("failed to fetch challenge: %w", err)
	}

	var c core.Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return c, nil
}

// ConsumeChallenge atomically deletes the challenge if it carries message
func (s *RedisStore) ConsumeChallenge(ctx context.Context, address core.Address, message string) error {
	n, err := consumeScript.Run(ctx, s.client, []string{s.challengeKey(address)}, message).Int64()
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// StoreSession stores a session that expires with the session itself
func (s *RedisStore) StoreSession(ctx context.Context, session core.Session) error {
	// lifetime relative to the issuer's clock, not this host's
	ttl := session.ExpiresAt.Sub(session.IssuedAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s expires before it is issued", session.ID)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(session.Token), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return ports.ErrConflict
	}

	return nil
}

// LookupSession reads the session owning token
func (s *RedisStore) LookupSession(ctx context.Context, token string) (core.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Session{}, ports.ErrNotFound
		}
		return core.Session{}, fmt.Errorf("failed to fetch session: %w", err)
	}

	var session core.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return core.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}

	return session, nil
}

// Client returns the Redis client so it can be shared with the event publisher
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
