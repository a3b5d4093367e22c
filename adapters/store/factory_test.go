package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		cfg  Config
		err  error
	}{
		{name: "memory", cfg: Config{Driver: DriverMemory}},
		{name: "redis", cfg: Config{Driver: DriverRedis, URL: "redis://localhost:6379/0"}},
		{name: "redis without url", cfg: Config{Driver: DriverRedis}, err: ErrMissingURL},
		{name: "postgres", cfg: Config{Driver: DriverPostgres, URL: "postgres://localhost/walletauth"}},
		{name: "postgres without url", cfg: Config{Driver: DriverPostgres}, err: ErrMissingURL},
		{name: "sqlite", cfg: Config{Driver: DriverSQLite, Path: "walletauth.db"}},
		{name: "sqlite without path", cfg: Config{Driver: DriverSQLite}, err: ErrMissingPath},
		{name: "bbolt without path", cfg: Config{Driver: DriverBolt}, err: ErrMissingPath},
		{name: "unknown", cfg: Config{Driver: "mongodb"}, err: ErrUnknownDriver},
		{name: "empty", cfg: Config{}, err: ErrUnknownDriver},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Valid()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(t.Context(), Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(t.Context(), Config{Driver: DriverBolt, Path: filepath.Join(t.TempDir(), "walletauth.bdb")})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(t.Context(), Config{Driver: DriverRedis})
	assert.ErrorIs(t, err, ErrMissingURL)
}
