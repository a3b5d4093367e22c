package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/internal/logger"
	"github.com/layer-3/walletauth/ports"
)

// LoginResult is what a client gets back after proving account ownership
type LoginResult struct {
	Address      string    // checksum-cased account address
	SessionToken string    // opaque bearer credential
	ExpiresAt    time.Time // session expiry
	AccessToken  string    // short-lived JWT, empty without a tokenizer
}

// AuthService handles authentication business logic
type AuthService struct {
	log       *slog.Logger
	cfg       Config
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher

	challenges *ChallengeManager
	sessions   *SessionIssuer
}

// Option customizes an AuthService
type Option func(*AuthService)

// WithTokenizer makes logins also return a JWT access token, and lets
// Authenticate accept those tokens
func WithTokenizer(tokenizer ports.Tokenizer) Option {
	return func(s *AuthService) {
		s.tokenizer = tokenizer
	}
}

// WithEventPublisher announces every successful login through eventPub
func WithEventPublisher(eventPub ports.EventPublisher) Option {
	return func(s *AuthService) {
		s.eventPub = eventPub
	}
}

// WithClock replaces the wall clock used for issuing and expiring
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.challenges.now = now
		s.sessions.now = now
	}
}

// NewAuthService creates a new authentication service
func NewAuthService(log *slog.Logger, cfg Config, store ports.Store, opts ...Option) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &AuthService{
		log:        log,
		cfg:        cfg,
		eventPub:   nopPublisher{},
		challenges: NewChallengeManager(store, cfg.ServiceName, cfg.ChallengeTTL, cfg.ConflictPolicy),
		sessions:   NewSessionIssuer(store),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// IssueChallenge creates a challenge for rawAddress and returns the message
// the wallet has to sign
func (s *AuthService) IssueChallenge(ctx context.Context, rawAddress string) (string, error) {
	const op = "AuthService.IssueChallenge"

	address, err := core.ParseAddress(rawAddress)
	if err != nil {
		s.log.Debug("rejected challenge request", slog.String("op", op), logger.Err(err))
		return "", err
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("address", address.Lower()),
	)

	c, err := s.challenges.Issue(ctx, address)
	if err != nil {
		log.Error("failed to issue challenge", logger.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	challengesIssued.WithLabelValues(string(s.cfg.ConflictPolicy)).Inc()
	log.Info("challenge issued")

	return c.Message, nil
}

// ValidateAndLogin checks that signatureHex is rawAddress' signature over
// its pending challenge, consumes the challenge and opens a session.
//
// The checks run in a fixed order so that a wrong message is always
// reported as core.ErrInvalidChallenge and never reaches signature recovery.
func (s *AuthService) ValidateAndLogin(ctx context.Context, rawAddress, claimedMessage, signatureHex string) (*LoginResult, error) {
	res, err := s.validateAndLogin(ctx, rawAddress, claimedMessage, signatureHex)
	if err != nil {
		loginAttempts.WithLabelValues(string(core.KindOf(err))).Inc()
		return nil, err
	}

	loginAttempts.WithLabelValues(resultOK).Inc()
	return res, nil
}

func (s *AuthService) validateAndLogin(ctx context.Context, rawAddress, claimedMessage, signatureHex string) (*LoginResult, error) {
	const op = "AuthService.ValidateAndLogin"

	address, err := core.ParseAddress(rawAddress)
	if err != nil {
		s.log.Debug("rejected login", slog.String("op", op), logger.Err(err))
		return nil, err
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("address", address.Lower()),
	)

	log.Info("attempting to login account")

	stored, err := s.challenges.Lookup(ctx, address)
	if err != nil {
		if errors.Is(err, core.ErrNoActiveChallenge) {
			log.Warn("no active challenge", logger.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Error("failed to look up challenge", logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if stored.Message != claimedMessage {
		log.Warn("challenge mismatch")
		return nil, fmt.Errorf("%s: %w", op, core.ErrInvalidChallenge)
	}

	signer, err := eth.RecoverAddress(claimedMessage, signatureHex)
	if err != nil {
		log.Warn("signature recovery failed", logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !core.AddressFromCommon(signer).Equal(address) {
		log.Warn("signature from another account", slog.String("signer", core.AddressFromCommon(signer).Lower()))
		return nil, fmt.Errorf("%s: %w", op, core.ErrInvalidSignature)
	}

	if err := s.challenges.Consume(ctx, address, stored.Message); err != nil {
		if errors.Is(err, core.ErrNoActiveChallenge) {
			log.Warn("challenge consumed concurrently", logger.Err(err))
		} else {
			log.Error("failed to consume challenge", logger.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.sessions.Issue(ctx, address, s.cfg.SessionTTLDays)
	if err != nil {
		log.Error("failed to issue session", logger.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &LoginResult{
		Address:      address.Display(),
		SessionToken: session.Token,
		ExpiresAt:    session.ExpiresAt,
	}

	if s.tokenizer != nil {
		res.AccessToken, err = s.tokenizer.SessionToAccessToken(&session)
		if err != nil {
			log.Error("failed to create access token", logger.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.eventPub.PublishLogin(ctx, session); err != nil {
		log.Warn("failed to publish login event", logger.Err(err))
	}

	log.Info("account logged in", slog.String("session_id", session.ID))

	return res, nil
}

// Authenticate resolves a bearer credential to its session. JWTs are
// verified by the tokenizer alone; anything else is looked up as a session
// token.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (*core.Session, error) {
	const op = "AuthService.Authenticate"

	method := "session_token"
	if s.tokenizer != nil && looksLikeJWT(bearer) {
		method = "access_token"
	}

	session, err := s.authenticate(ctx, method, bearer)
	if err != nil {
		authentications.WithLabelValues(method, string(core.KindOf(err))).Inc()
		if errors.Is(err, core.ErrDatabase) {
			s.log.Error("failed to authenticate", slog.String("op", op), logger.Err(err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	authentications.WithLabelValues(method, resultOK).Inc()
	return session, nil
}

func (s *AuthService) authenticate(ctx context.Context, method, bearer string) (*core.Session, error) {
	if bearer == "" {
		return nil, core.ErrInvalidToken
	}

	if method == "access_token" {
		return s.tokenizer.AccessTokenToSession(bearer)
	}

	session, err := s.sessions.Lookup(ctx, bearer)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishLogin(context.Context, core.Session) error {
	return nil
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
