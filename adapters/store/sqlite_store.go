package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore mirrors PostgresStore on a single SQLite file. Timestamps are
// kept as unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at storagePath and creates the schema
func NewSQLiteStore(ctx context.Context, storagePath string) (*SQLiteStore, error) {
	const op = "store.sqlite.New"

	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// one connection: sqlite serializes writers anyway and :memory: databases
	// are per connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS challenge_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_address TEXT NOT NULL UNIQUE,
			challenge TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			public_address TEXT NOT NULL,
			session_token TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS user_sessions_public_address_idx ON user_sessions(public_address)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) InsertChallenge(ctx context.Context, c core.Challenge) error {
	const op = "store.sqlite.InsertChallenge"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenge_tokens (public_address, challenge, created_at) VALUES (?, ?, ?)`,
		c.Address.Lower(), c.Message, c.IssuedAt.UnixNano(),
	)
	if err != nil {
		if isConstraintUnique(err) {
			return fmt.Errorf("%s: %w", op, ports.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertChallenge(ctx context.Context, c core.Challenge) error {
	const op = "store.sqlite.UpsertChallenge"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_tokens (public_address, challenge, created_at) VALUES (?, ?, ?)
		ON CONFLICT (public_address) DO UPDATE SET challenge = excluded.challenge, created_at = excluded.created_at
	`, c.Address.Lower(), c.Message, c.IssuedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) LookupChallenge(ctx context.Context, address core.Address) (core.Challenge, error) {
	const op = "store.sqlite.LookupChallenge"

	var (
		message   string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT challenge, created_at FROM challenge_tokens WHERE public_address = ?`,
		address.Lower(),
	).Scan(&message, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Challenge{}, fmt.Errorf("%s: %w", op, ports.ErrNotFound)
		}
		return core.Challenge{}, fmt.Errorf("%s: %w", op, err)
	}

	return core.Challenge{
		Address:  address,
		Message:  message,
		IssuedAt: time.Unix(0, createdAt),
	}, nil
}

func (s *SQLiteStore) ConsumeChallenge(ctx context.Context, address core.Address, message string) error {
	const op = "store.sqlite.ConsumeChallenge"

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM challenge_tokens WHERE public_address = ? AND challenge = ?`,
		address.Lower(), message,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ports.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) StoreSession(ctx context.Context, session core.Session) error {
	const op = "store.sqlite.StoreSession"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (session_id, public_address, session_token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.Address.Lower(), session.Token, session.IssuedAt.UnixNano(), session.ExpiresAt.UnixNano())
	if err != nil {
		if isConstraintUnique(err) {
			return fmt.Errorf("%s: %w", op, ports.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) LookupSession(ctx context.Context, token string) (core.Session, error) {
	const op = "store.sqlite.LookupSession"

	var (
		session              core.Session
		address              string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, public_address, session_token, created_at, expires_at
		FROM user_sessions WHERE session_token = ?
	`, token).Scan(&session.ID, &address, &session.Token, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Session{}, fmt.Errorf("%s: %w", op, ports.ErrNotFound)
		}
		return core.Session{}, fmt.Errorf("%s: %w", op, err)
	}

	session.Address, err = core.ParseAddress(address)
	if err != nil {
		return core.Session{}, fmt.Errorf("%s: %w", op, err)
	}
	session.IssuedAt = time.Unix(0, createdAt)
	session.ExpiresAt = time.Unix(0, expiresAt)

	return session, nil
}

// Cleanup deletes sessions that expired before now
func (s *SQLiteStore) Cleanup(ctx context.Context, now time.Time) error {
	const op = "store.sqlite.Cleanup"

	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at <= ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraintUnique(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
