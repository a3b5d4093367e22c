package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/layer-3/walletauth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSigningKey(t *testing.T) {
	key, err := loadSigningKey("")
	require.NoError(t, err)
	assert.Equal(t, elliptic.P256(), key.Curve)

	want, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(want)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "access.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600))

	got, err := loadSigningKey(path)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))
	_, err = loadSigningKey(garbage)
	assert.Error(t, err)

	_, err = loadSigningKey(filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)
}

func TestNewEventPublisherBadURL(t *testing.T) {
	_, _, err := newEventPublisher(config.EventsConfig{RedisURL: "not a url"}, false)
	assert.Error(t, err)
}
