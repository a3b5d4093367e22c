package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/ports"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bbolt"
)

var (
	ErrUnknownDriver = errors.New("store: unknown driver")
	ErrMissingURL    = errors.New("store: driver needs a connection URL")
	ErrMissingPath   = errors.New("store: driver needs a file path")
)

// Config selects and configures a storage backend
type Config struct {
	Driver string
	URL    string
	Path   string
}

// Valid checks that the driver is known and has what it needs to connect
func (c Config) Valid() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverRedis, DriverPostgres:
		if c.URL == "" {
			return fmt.Errorf("%w: %s", ErrMissingURL, c.Driver)
		}
		return nil
	case DriverSQLite, DriverBolt:
		if c.Path == "" {
			return fmt.Errorf("%w: %s", ErrMissingPath, c.Driver)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
}

// Cleaner is implemented by backends that can't expire sessions natively
type Cleaner interface {
	Cleanup(ctx context.Context, now time.Time) error
}

// Open builds the backend named by cfg.Driver. Every backend implementing
// Cleaner gets a background session cleanup bound to ctx; redis expires
// session keys itself.
func Open(ctx context.Context, cfg Config) (ports.Store, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}

	var (
		s   ports.Store
		err error
	)

	switch cfg.Driver {
	case DriverMemory:
		s = NewMemoryStore()
	case DriverRedis:
		s, err = DialRedisStore(ctx, cfg.URL)
	case DriverPostgres:
		s, err = NewPostgresStore(ctx, cfg.URL)
	case DriverSQLite:
		s, err = NewSQLiteStore(ctx, cfg.Path)
	case DriverBolt:
		s, err = NewBoltStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if c, ok := s.(Cleaner); ok {
		go cleanupThread(ctx, cfg.Driver, c)
	}

	return s, nil
}

func cleanupThread(ctx context.Context, driver string, c Cleaner) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := c.Cleanup(ctx, now); err != nil {
				slog.Error("error during session cleanup", "driver", driver, "err", err)
			}
		}
	}
}
