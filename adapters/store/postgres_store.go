package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// PostgresStore keeps challenges and sessions in the challenge_tokens and
// user_sessions tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, pings it and creates the schema
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS challenge_tokens (
			id SERIAL PRIMARY KEY,
			public_address VARCHAR(255) NOT NULL UNIQUE,
			challenge TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS user_sessions (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			public_address VARCHAR(255) NOT NULL,
			session_token VARCHAR(255) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		)
		`,
		`CREATE INDEX IF NOT EXISTS user_sessions_public_address_idx ON user_sessions(public_address)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) InsertChallenge(ctx context.Context, c core.Challenge) error {
	query := `
		INSERT INTO challenge_tokens (public_address, challenge, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.pool.Exec(ctx, query, c.Address.Lower(), c.Message, c.IssuedAt); err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("failed to insert challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertChallenge(ctx context.Context, c core.Challenge) error {
	query := `
		INSERT INTO challenge_tokens (public_address, challenge, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (public_address)
		DO UPDATE SET challenge = EXCLUDED.challenge, created_at = EXCLUDED.created_at
	`
	if _, err := s.pool.Exec(ctx, query, c.Address.Lower(), c.Message, c.IssuedAt); err != nil {
		return fmt.Errorf("failed to upsert challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupChallenge(ctx context.Context, address core.Address) (core.Challenge, error) {
	query := `
		SELECT challenge, created_at
		FROM challenge_tokens
		WHERE public_address = $1
	`
	c := core.Challenge{Address: address}
	err := s.pool.QueryRow(ctx, query, address.Lower()).Scan(&c.Message, &c.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Challenge{}, ports.ErrNotFound
		}
		return core.Challenge{}, fmt.Errorf("failed to fetch challenge: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ConsumeChallenge(ctx context.Context, address core.Address, message string) error {
	query := `
		DELETE FROM challenge_tokens
		WHERE public_address = $1 AND challenge = $2
	`
	tag, err := s.pool.Exec(ctx, query, address.Lower(), message)
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) StoreSession(ctx context.Context, session core.Session) error {
	query := `
		INSERT INTO user_sessions (session_id, public_address, session_token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.Address.Lower(),
		session.Token,
		session.IssuedAt,
		session.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrConflict
		}
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, token string) (core.Session, error) {
	query := `
		SELECT session_id, public_address, session_token, created_at, expires_at
		FROM user_sessions
		WHERE session_token = $1
	`
	var (
		session core.Session
		address string
	)
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&session.ID,
		&address,
		&session.Token,
		&session.IssuedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Session{}, ports.ErrNotFound
		}
		return core.Session{}, fmt.Errorf("failed to fetch session: %w", err)
	}

	session.Address, err = core.ParseAddress(address)
	if err != nil {
		return core.Session{}, fmt.Errorf("stored session has bad address %q: %w", address, err)
	}
	return session, nil
}

// Cleanup deletes sessions that expired before now
func (s *PostgresStore) Cleanup(ctx context.Context, now time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
