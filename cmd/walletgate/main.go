package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datamesh-labs/walletgate/adapters/audit"
	"github.com/datamesh-labs/walletgate/adapters/identity"
	"github.com/datamesh-labs/walletgate/adapters/provider"
	"github.com/datamesh-labs/walletgate/adapters/store"
	"github.com/datamesh-labs/walletgate/config"
	"github.com/datamesh-labs/walletgate/ports"
	"github.com/datamesh-labs/walletgate/service"
	transport "github.com/datamesh-labs/walletgate/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("configuration failed")
	}

	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Persistence and audit sink: Redis-backed when configured, local
	// otherwise.
	var persist ports.Store
	var sink ports.AuditSink
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to parse Redis URL")
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to reach Redis")
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create audit publisher")
		}

		persist = store.NewRedisStore(redisClient, "walletgate")
		sink = audit.NewWatermillSink(publisher, cfg.AuditTopic)
	} else {
		logger.Warn().Msg("no Redis configured, using in-memory persistence and log audit sink")
		persist = store.NewMemoryStore()
		sink = audit.NewLogSink(logger)
	}

	// Wallet provider: absence is a valid, typed configuration.
	var walletProvider ports.WalletProvider
	if cfg.ProviderRPCURL != "" {
		p, err := provider.Dial(ctx, cfg.ProviderRPCURL, logger,
			provider.WithPollInterval(cfg.PollInterval))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to reach wallet provider")
		}
		walletProvider = p
	} else {
		logger.Warn().Msg("no wallet provider configured, connect will report it unavailable")
	}

	backend := identity.NewClient(cfg.IdentityURL, logger)

	emitter := service.NewAuditEmitter(sink, logger)
	sessions := service.NewSessionStore()
	auth := service.NewAuthenticator(sessions, persist, backend, emitter, logger)
	manager := service.NewManager(walletProvider, persist, auth, emitter, logger,
		service.WithConnectTimeout(cfg.ConnectTimeout))
	auth.BindAddressSource(manager.CurrentAddress)

	if err := manager.Initialize(ctx); err != nil {
		logger.Fatal().Err(err).Msg("wallet reconciliation failed")
	}
	logger.Info().Str("state", manager.State().String()).Msg("wallet state reconciled")

	router := transport.SetupRouter(manager, auth, logger)

	go func() {
		if err := router.Run(cfg.ListenAddr); err != nil {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.ListenAddr).Msg("gateway listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	if err := manager.Close(); err != nil {
		logger.Warn().Err(err).Msg("manager close failed")
	}
	emitter.Close()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "walletgate").Logger()
}
