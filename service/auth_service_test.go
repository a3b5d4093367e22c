package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1740165511, 0)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address core.Address
}

func newWallet(t *testing.T) wallet {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return wallet{
		key:     key,
		address: core.AddressFromCommon(crypto.PubkeyToAddress(key.PublicKey)),
	}
}

func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()

	sig, err := eth.SignText(w.key, message)
	require.NoError(t, err)
	return sig
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []core.Session
	err      error
}

func (p *recordingPublisher) PublishLogin(_ context.Context, session core.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, session)
	return p.err
}

// brokenStore fails every call like a database that went away
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) InsertChallenge(context.Context, core.Challenge) error { return errBroken }
func (brokenStore) UpsertChallenge(context.Context, core.Challenge) error { return errBroken }
func (brokenStore) LookupChallenge(context.Context, core.Address) (core.Challenge, error) {
	return core.Challenge{}, errBroken
}
func (brokenStore) ConsumeChallenge(context.Context, core.Address, string) error { return errBroken }
func (brokenStore) StoreSession(context.Context, core.Session) error             { return errBroken }
func (brokenStore) LookupSession(context.Context, string) (core.Session, error) {
	return core.Session{}, errBroken
}
func (brokenStore) Close() error { return nil }

func testConfig() Config {
	return Config{
		ServiceName:    "inkreel",
		SessionTTLDays: 1,
		ConflictPolicy: PolicyReplace,
	}
}

func newService(t *testing.T, cfg Config, s ports.Store, opts ...Option) *AuthService {
	t.Helper()

	svc, err := NewAuthService(nil, cfg, s, opts...)
	require.NoError(t, err)
	return svc
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	require.NoError(t, valid.Validate())

	for _, tt := range []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty service name", mutate: func(c *Config) { c.ServiceName = "" }},
		{name: "zero session ttl", mutate: func(c *Config) { c.SessionTTLDays = 0 }},
		{name: "negative challenge ttl", mutate: func(c *Config) { c.ChallengeTTL = -time.Second }},
		{name: "unknown policy", mutate: func(c *Config) { c.ConflictPolicy = "ignore" }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := NewAuthService(nil, cfg, store.NewMemoryStore())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestIssueChallenge(t *testing.T) {
	clk := newClock()
	cfg := testConfig()
	cfg.ServiceName = gofakeit.AppName()
	svc := newService(t, cfg, store.NewMemoryStore(), WithClock(clk.Now))

	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), strings.ToUpper(w.address.Lower()[2:]))
	require.NoError(t, err)
	assert.Equal(t, core.ChallengeMessage(cfg.ServiceName, w.address, clk.Now()), message)
	assert.Contains(t, message, w.address.Lower())

	again, err := svc.IssueChallenge(t.Context(), w.address.Display())
	require.NoError(t, err)
	assert.Equal(t, message, again, "same account and second must give the same challenge")
}

func TestIssueChallengeInvalidAddress(t *testing.T) {
	svc := newService(t, testConfig(), store.NewMemoryStore())

	for _, raw := range []string{"", "0x", "0x1234", gofakeit.LetterN(40), "0x" + strings.Repeat("g", 40)} {
		_, err := svc.IssueChallenge(t.Context(), raw)
		assert.ErrorIs(t, err, core.ErrInvalidAddress, raw)
		assert.Equal(t, core.KindInvalidAddress, core.KindOf(err))
	}
}

func TestIssueChallengeDatabaseError(t *testing.T) {
	svc := newService(t, testConfig(), brokenStore{})

	_, err := svc.IssueChallenge(t.Context(), newWallet(t).address.Lower())
	assert.ErrorIs(t, err, core.ErrDatabase)
	assert.ErrorIs(t, err, errBroken)
}

func TestLoginEndToEnd(t *testing.T) {
	clk := newClock()
	pub := &recordingPublisher{}
	svc := newService(t, testConfig(), store.NewMemoryStore(), WithClock(clk.Now), WithEventPublisher(pub))

	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	res, err := svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	require.NoError(t, err)

	assert.Equal(t, w.address.Display(), res.Address)
	assert.Len(t, res.SessionToken, 64)
	_, err = hex.DecodeString(res.SessionToken)
	assert.NoError(t, err)
	assert.Equal(t, clk.Now().Unix()+86400, res.ExpiresAt.Unix())
	assert.Empty(t, res.AccessToken)

	require.Len(t, pub.sessions, 1)
	assert.Equal(t, res.SessionToken, pub.sessions[0].Token)
	assert.True(t, pub.sessions[0].Address.Equal(w.address))

	session, err := svc.Authenticate(t.Context(), res.SessionToken)
	require.NoError(t, err)
	assert.True(t, session.Address.Equal(w.address))
	assert.True(t, res.ExpiresAt.Equal(session.ExpiresAt))

	// the challenge is single-use
	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	assert.ErrorIs(t, err, core.ErrNoActiveChallenge)
}

func TestLoginSessionTTLDays(t *testing.T) {
	clk := newClock()
	cfg := testConfig()
	cfg.SessionTTLDays = 7
	svc := newService(t, cfg, store.NewMemoryStore(), WithClock(clk.Now))

	w := newWallet(t)
	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	res, err := svc.ValidateAndLogin(t.Context(), w.address.Display(), message, w.sign(t, message))
	require.NoError(t, err)
	assert.True(t, clk.Now().Add(7*24*time.Hour).Equal(res.ExpiresAt))
}

func TestLoginFailures(t *testing.T) {
	svc := newService(t, testConfig(), store.NewMemoryStore())

	w := newWallet(t)
	other := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)
	good := w.sign(t, message)

	tampered, err := hex.DecodeString(good[2:])
	require.NoError(t, err)
	tampered[10] ^= 0xff

	for _, tt := range []struct {
		name      string
		address   string
		message   string
		signature string
		err       error
	}{
		{
			name:      "invalid address",
			address:   "0xnope",
			message:   message,
			signature: good,
			err:       core.ErrInvalidAddress,
		},
		{
			name:      "unknown account",
			address:   other.address.Lower(),
			message:   message,
			signature: other.sign(t, message),
			err:       core.ErrNoActiveChallenge,
		},
		{
			name:      "wrong message with garbage signature",
			address:   w.address.Lower(),
			message:   message + " ",
			signature: "0xdeadbeef",
			err:       core.ErrInvalidChallenge,
		},
		{
			name:      "wrong message with valid signature over it",
			address:   w.address.Lower(),
			message:   "Signing in to inkreel as " + w.address.Lower() + " at 1",
			signature: w.sign(t, "Signing in to inkreel as "+w.address.Lower()+" at 1"),
			err:       core.ErrInvalidChallenge,
		},
		{
			name:      "malformed signature",
			address:   w.address.Lower(),
			message:   message,
			signature: "0x" + gofakeit.LetterN(130),
			err:       core.ErrInvalidSignature,
		},
		{
			name:      "tampered signature",
			address:   w.address.Lower(),
			message:   message,
			signature: "0x" + hex.EncodeToString(tampered),
			err:       core.ErrInvalidSignature,
		},
		{
			name:      "signed by another account",
			address:   w.address.Lower(),
			message:   message,
			signature: other.sign(t, message),
			err:       core.ErrInvalidSignature,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAndLogin(t.Context(), tt.address, tt.message, tt.signature)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	// failed attempts leave the challenge in place
	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, good)
	assert.NoError(t, err)
}

func TestReplacePolicy(t *testing.T) {
	clk := newClock()
	svc := newService(t, testConfig(), store.NewMemoryStore(), WithClock(clk.Now))
	w := newWallet(t)

	first, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	clk.Advance(time.Second)
	second, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), first, w.sign(t, first))
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), second, w.sign(t, second))
	assert.NoError(t, err)
}

func TestRejectPolicy(t *testing.T) {
	clk := newClock()
	cfg := testConfig()
	cfg.ConflictPolicy = PolicyReject
	svc := newService(t, cfg, store.NewMemoryStore(), WithClock(clk.Now))
	w := newWallet(t)

	first, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = svc.IssueChallenge(t.Context(), w.address.Lower())
	assert.ErrorIs(t, err, core.ErrDatabase)
	assert.ErrorIs(t, err, ports.ErrConflict)

	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), first, w.sign(t, first))
	require.NoError(t, err)

	// a consumed challenge frees the slot
	_, err = svc.IssueChallenge(t.Context(), w.address.Lower())
	assert.NoError(t, err)
}

func TestRejectPolicyReplacesExpiredChallenge(t *testing.T) {
	clk := newClock()
	cfg := testConfig()
	cfg.ConflictPolicy = PolicyReject
	cfg.ChallengeTTL = 5 * time.Minute
	svc := newService(t, cfg, store.NewMemoryStore(), WithClock(clk.Now))
	w := newWallet(t)

	first, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = svc.IssueChallenge(t.Context(), w.address.Lower())
	assert.ErrorIs(t, err, ports.ErrConflict, "a live challenge still blocks")

	clk.Advance(9 * time.Minute)
	second, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	clk.Advance(365 * 24 * time.Hour)
	third, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), second, w.sign(t, second))
	assert.ErrorIs(t, err, core.ErrInvalidChallenge)

	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), third, w.sign(t, third))
	assert.NoError(t, err)
}

func TestChallengeTTL(t *testing.T) {
	clk := newClock()
	cfg := testConfig()
	cfg.ChallengeTTL = 5 * time.Minute
	svc := newService(t, cfg, store.NewMemoryStore(), WithClock(clk.Now))
	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	clk.Advance(5*time.Minute + time.Second)
	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	assert.ErrorIs(t, err, core.ErrNoActiveChallenge)
}

func TestChallengeWithoutTTLNeverExpires(t *testing.T) {
	clk := newClock()
	svc := newService(t, testConfig(), store.NewMemoryStore(), WithClock(clk.Now))
	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	clk.Advance(365 * 24 * time.Hour)
	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	assert.NoError(t, err)
}

func TestConcurrentLoginSingleWinner(t *testing.T) {
	svc := newService(t, testConfig(), store.NewMemoryStore())
	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)
	signature := w.sign(t, message)

	const workers = 8
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, signature)
		}()
	}
	wg.Wait()

	var winners int
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, core.ErrNoActiveChallenge)
	}
	assert.Equal(t, 1, winners)
}

func TestLoginDatabaseError(t *testing.T) {
	svc := newService(t, testConfig(), brokenStore{})

	_, err := svc.ValidateAndLogin(t.Context(), newWallet(t).address.Lower(), "anything", "0x00")
	assert.ErrorIs(t, err, core.ErrDatabase)
	assert.Equal(t, core.KindDatabase, core.KindOf(err))
}

func TestLoginPublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, testConfig(), store.NewMemoryStore(), WithEventPublisher(pub))
	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	_, err = svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	assert.NoError(t, err)
	assert.Len(t, pub.sessions, 1)
}

func TestAccessToken(t *testing.T) {
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tok := tokenizer.NewJWTTokenizer(signKey, "inkreel", 5*time.Minute)
	svc := newService(t, testConfig(), store.NewMemoryStore(), WithTokenizer(tok))
	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)

	res, err := svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)

	session, err := svc.Authenticate(t.Context(), res.AccessToken)
	require.NoError(t, err)
	assert.True(t, session.Address.Equal(w.address))
	assert.Empty(t, session.Token)

	session, err = svc.Authenticate(t.Context(), res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, res.SessionToken, session.Token)

	_, err = svc.Authenticate(t.Context(), res.AccessToken+"x")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAuthenticate(t *testing.T) {
	clk := newClock()
	svc := newService(t, testConfig(), store.NewMemoryStore(), WithClock(clk.Now))
	w := newWallet(t)

	message, err := svc.IssueChallenge(t.Context(), w.address.Lower())
	require.NoError(t, err)
	res, err := svc.ValidateAndLogin(t.Context(), w.address.Lower(), message, w.sign(t, message))
	require.NoError(t, err)

	_, err = svc.Authenticate(t.Context(), "")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = svc.Authenticate(t.Context(), strings.Repeat("0", 64))
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	// without a tokenizer a jwt-shaped bearer is just an unknown session token
	_, err = svc.Authenticate(t.Context(), "a.b.c")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	clk.Advance(24 * time.Hour)
	_, err = svc.Authenticate(t.Context(), res.SessionToken)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
}

func TestSessionIssuerRejectsShortTTL(t *testing.T) {
	issuer := NewSessionIssuer(store.NewMemoryStore())

	_, err := issuer.Issue(t.Context(), newWallet(t).address, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, core.KindInternal, core.KindOf(err))

	session, err := issuer.Issue(t.Context(), newWallet(t).address, 2)
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, session.ExpiresAt.Sub(session.IssuedAt))
}

func TestAuthenticateDatabaseError(t *testing.T) {
	svc := newService(t, testConfig(), brokenStore{})

	_, err := svc.Authenticate(t.Context(), strings.Repeat("0", 64))
	assert.ErrorIs(t, err, core.ErrDatabase)
}
