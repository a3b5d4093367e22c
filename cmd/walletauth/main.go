package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/internal/logger"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env)

	log.Info("starting walletauth", slog.String("env", cfg.Env), slog.String("service", cfg.ServiceName))

	if cfg.Env == logger.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("walletauth stopped", logger.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("closing store", logger.Err(err))
		}
	}()

	signKey, err := loadSigningKey(cfg.Auth.AccessTokenKeyFile)
	if err != nil {
		return err
	}
	if cfg.Auth.AccessTokenKeyFile == "" {
		log.Warn("ACCESS_TOKEN_KEY_FILE not set, access tokens are signed with an ephemeral key")
	}

	opts := []service.Option{
		service.WithTokenizer(tokenizer.NewJWTTokenizer(signKey, cfg.ServiceName, cfg.Auth.AccessTokenTTL)),
	}

	if cfg.Events.RedisURL != "" {
		eventPub, closeEvents, err := newEventPublisher(cfg.Events, cfg.Env != logger.EnvProd)
		if err != nil {
			return err
		}
		defer closeEvents()
		opts = append(opts, service.WithEventPublisher(eventPub))
	}

	authService, err := service.NewAuthService(log, cfg.ServiceConfig(), st, opts...)
	if err != nil {
		return err
	}

	router := transport.SetupRouter(authService, transport.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("received shutdown signal, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	log.Info("server shut down gracefully")
	return nil
}

// loadSigningKey reads a PEM encoded EC private key, or generates a P-256 key
// when path is empty
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token key: %w", err)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token key %s: %w", path, err)
	}

	return key, nil
}

func newEventPublisher(cfg config.EventsConfig, debug bool) (ports.EventPublisher, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse events redis url: %w", err)
	}

	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(debug, false),
	)
	if err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}

	closeFn := func() {
		publisher.Close()
		redisClient.Close()
	}

	return events.NewWatermillPublisher(publisher, cfg.Topic), closeFn, nil
}
