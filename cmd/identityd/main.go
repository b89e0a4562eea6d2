// Command identityd hosts the identity engine with its Postgres store, Redis
// ledgers and Kafka notification publisher, and serves ops endpoints.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	identity "github.com/allocar/identity"
	promexport "github.com/allocar/identity/metrics/export/prometheus"
	"github.com/allocar/identity/notify/kafka"
	"github.com/allocar/identity/settings"
	"github.com/allocar/identity/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := settings.Load("")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("identityd failed", zap.Error(err))
	}
}

func newLogger(cfg *settings.Settings) *zap.Logger {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.Level())
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("service", "identityd"))
}

func run(cfg *settings.Settings, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	sender, closeSender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	engine, err := identity.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithCredentialStore(postgres.New(pool)).
		WithNotificationSender(sender).
		WithAuditSink(newAuditSink(cfg, logger, os.Stdout)).
		WithLogger(logger.Named("engine")).
		Build()
	if err != nil {
		return err
	}
	// Close drains queued notifications, so it must run before the sender closes.
	defer engine.Close()

	router := newRouter(logger, promexport.Handler(promexport.NewCollector(engine)),
		dependency{name: "postgres", ping: pool.Ping},
		dependency{name: "redis", ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// newAuditSink picks the audit encoding named by AUDIT_FORMAT.
func newAuditSink(cfg *settings.Settings, logger *zap.Logger, out io.Writer) identity.AuditSink {
	if cfg.AuditFormat == "json" {
		return identity.NewJSONWriterSink(out)
	}
	return identity.NewZapSink(logger.Named("audit"))
}

// newSender publishes to Kafka when brokers are configured and otherwise
// logs each notification without its code.
func newSender(cfg *settings.Settings, logger *zap.Logger) (identity.NotificationSender, func(), error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set; notifications are logged only")
		log := logger.Named("notify")
		return identity.NotificationSenderFunc(func(_ context.Context, n identity.Notification) error {
			log.Info("notification", zap.String("kind", string(n.Kind)), zap.String("account_id", n.AccountID))
			return nil
		}), func() {}, nil
	}

	publisher, err := kafka.Dial(brokers, cfg.NotificationTopic, logger.Named("kafka"))
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka producer close failed", zap.Error(err))
		}
	}, nil
}
