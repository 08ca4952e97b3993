package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	authsvc "campustrade/internal/app/services/auth"
	chatsvc "campustrade/internal/app/services/chat"
	profilesvc "campustrade/internal/app/services/profile"
	domainactivity "campustrade/internal/domain/activity"
	domainchat "campustrade/internal/domain/chat"
	domainlisting "campustrade/internal/domain/listing"
	domainprofile "campustrade/internal/domain/profile"
	"campustrade/internal/infra/broker/kafka"
	"campustrade/internal/infra/config"
	mongodb "campustrade/internal/infra/db/mongo"
	ginserver "campustrade/internal/infra/http/gin"
	"campustrade/internal/infra/obs"
	"campustrade/internal/infra/realtime"
	"campustrade/internal/infra/security"
	"campustrade/internal/infra/storage/memory"
	"campustrade/internal/infra/storage/s3"
	"campustrade/internal/infra/storage/scylla"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()
	logger := obs.NewLogger(getenv("APP_ENV", "dev"))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn(".env not loaded", "error", envErr)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	runErr := app.run(ctx, cfg, logger)
	app.close(logger)
	if runErr != nil {
		logger.Error("server stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	server   *http.Server
	gateway  *realtime.Gateway
	sweeper  *realtime.Sweeper
	consumer *kafka.Consumer
	closers  []func(context.Context) error
}

type backends struct {
	chats    domainchat.Repository
	profiles domainprofile.Repository
	activity domainactivity.Store
	listings domainlisting.Directory
	presence realtime.PresenceStore
	avatars  profilesvc.AvatarStorage
	checks   map[string]obs.Check
	closers  []func(context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &application{closers: b.closers}

	codec, err := security.NewJWTCodec(cfg.JWTSecret)
	if err != nil {
		app.close(logger)
		return nil, err
	}

	profiles := &profilesvc.Service{
		Profiles: b.profiles,
		Activity: b.activity,
		Avatars:  b.avatars,
		Logger:   logger,
	}
	auth := &authsvc.Service{
		Tokens:     codec,
		Names:      profiles,
		SessionTTL: cfg.SessionTTL,
		DevLogin:   cfg.DevLogin,
		Logger:     logger,
	}
	chat := &chatsvc.Service{
		Repo:     b.chats,
		Listings: b.listings,
		Logger:   logger,
	}

	app.gateway = realtime.NewGateway(realtime.GatewayConfig{
		Presence:   b.presence,
		Authorizer: chat,
		Logger:     logger,
	})

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			app.close(logger)
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
		chat.Publisher = kafka.InsertPublisher{Producer: producer, Topic: cfg.KafkaInsertsTopic}

		group := cfg.ConsumerGroup()
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, group, nil, kafka.InsertHandler{Deliverer: app.gateway}, logger)
		if err != nil {
			app.close(logger)
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.consumer = consumer
		logger.Info("inserts fan out through kafka", "topic", cfg.KafkaInsertsTopic, "group", group)
	} else {
		chat.Publisher = app.gateway
	}

	app.sweeper = realtime.NewSweeper(app.gateway, cfg.PresenceTTL, logger)
	if err := app.sweeper.Register(cfg.PresenceSweep); err != nil {
		app.close(logger)
		return nil, fmt.Errorf("presence sweep schedule %q: %w", cfg.PresenceSweep, err)
	}

	app.server = ginserver.NewServer(ginserver.ServerConfig{
		Env:         cfg.Env,
		Addr:        cfg.HTTPAddr,
		CORSOrigins: cfg.CORSOrigins,
	}, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: b.checks}, ginserver.Handlers{
		Chat:           ginserver.ChatHandler{Chat: chat, Logger: logger},
		User:           ginserver.UserHandler{Profiles: profiles, Logger: logger},
		Auth:           ginserver.AuthHandler{Service: auth, Logger: logger},
		Realtime:       ginserver.RealtimeHandler{Tokens: auth, Gateway: app.gateway, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Tokens: auth, Logger: logger}.Handle,
	})
	return app, nil
}

// openBackends connects every configured store and falls back to in-memory
// implementations for the ones left unconfigured.
func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]obs.Check)}
	fail := func(err error) (*backends, error) {
		for i := len(b.closers) - 1; i >= 0; i-- {
			_ = b.closers[i](context.Background())
		}
		return nil, err
	}

	if len(cfg.ScyllaHosts) > 0 {
		session, err := scylla.NewSession(ctx, scylla.SessionConfig{
			Hosts:             cfg.ScyllaHosts,
			Keyspace:          cfg.ScyllaKeyspace,
			Username:          cfg.ScyllaUsername,
			Password:          cfg.ScyllaPassword,
			Consistency:       cfg.ScyllaConsistency,
			Timeout:           cfg.ScyllaTimeout,
			ReplicationFactor: cfg.ScyllaReplicationFactor,
		}, logger)
		if err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, func(context.Context) error { session.Close(); return nil })
		b.chats = scylla.NewChatStore(session, logger)
		b.checks["scylla"] = func(ctx context.Context) error {
			return session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
		}
	} else {
		logger.Warn("SCYLLA_HOSTS not set, conversations are kept in memory")
		b.chats = memory.NewChatRepository()
	}

	if cfg.MongoURI != "" {
		client, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, client.Close)
		profiles := mongodb.NewProfileRepository(client.DB)
		listings := mongodb.NewListingDirectory(client.DB)
		for _, l := range cfg.SeedListings {
			if err := listings.Upsert(ctx, l); err != nil {
				return fail(fmt.Errorf("seed listing %s: %w", l.ID, err))
			}
		}
		b.profiles, b.activity, b.listings = profiles, profiles, listings
		b.checks["mongo"] = client.Ping
	} else {
		logger.Warn("MONGO_URI not set, profiles and listings are kept in memory")
		profiles := memory.NewProfileRepository()
		b.profiles, b.activity = profiles, profiles
		b.listings = memory.NewListingDirectory(cfg.SeedListings...)
	}

	if cfg.RedisAddr != "" {
		rdb, err := realtime.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, func(context.Context) error { return rdb.Close() })
		b.presence = realtime.NewRedisPresence(rdb, cfg.PresenceTTL)
		b.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		b.presence = realtime.NewMemoryPresence()
	}

	if cfg.S3Endpoint != "" {
		avatars, err := s3.NewAvatarStore(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return fail(err)
		}
		b.avatars = avatars
	} else {
		logger.Info("S3_ENDPOINT not set, avatar uploads disabled")
	}
	return b, nil
}

// run serves HTTP, the realtime fan-out and the optional Kafka consumer until
// ctx ends or one of them fails.
func (a *application) run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	a.sweeper.Start()
	defer a.sweeper.Stop()

	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.gateway.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("realtime gateway: %w", err)
		}
		return nil
	})
	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Run(gctx, []string{cfg.KafkaInsertsTopic}); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			logger.Warn("kafka consumer close failed", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("backend close failed", "error", err)
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
