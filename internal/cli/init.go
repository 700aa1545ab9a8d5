// Package cli provides the initialization steps shared by cmd/fintrack,
// cmd/fintrack-worker and cmd/fintrackctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/blob"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := cfg.Logger(component)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
// It logs through a bootstrap logger since the real one depends on cfg.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		applog.New(applog.DefaultConfig()).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the repository, applying migrations, or exits.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// ReportCaches bundles the summary and dashboard caches with their cleanup manager.
type ReportCaches struct {
	Summaries  *cache.LRUCache[core.Summary]
	Dashboards *cache.LRUCache[core.Dashboard]
	Manager    *cache.Manager
}

// NewReportCaches sizes both caches from cfg and starts periodic expiry.
func NewReportCaches(cfg *config.Config) *ReportCaches {
	rc := &ReportCaches{
		Summaries:  cache.NewLRUCache[core.Summary](cfg.CacheSize, cfg.CacheTTL),
		Dashboards: cache.NewLRUCache[core.Dashboard](cfg.CacheSize, cfg.CacheTTL),
		Manager:    cache.NewManager(),
	}
	rc.Manager.Register(rc.Summaries)
	rc.Manager.Register(rc.Dashboards)
	rc.Manager.StartCleanup(cfg.CacheTTL)
	return rc
}

// NewReportService wires a report service over repo with fresh caches.
func NewReportService(cfg *config.Config, repo *storage.SQLiteRepository) (*services.ReportService, *ReportCaches) {
	rc := NewReportCaches(cfg)
	return services.NewReportService(repo, repo, rc.Summaries, rc.Dashboards, cfg.HighExpenseThreshold), rc
}

// OpenPictureStore returns the configured profile picture backend. The
// returned directory is non-empty only for the local backend, which the API
// serves itself.
func OpenPictureStore(ctx context.Context, cfg *config.Config) (blob.Store, string, error) {
	switch cfg.BlobBackend {
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:     cfg.S3Bucket,
			Region:     cfg.S3Region,
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	case "local":
		store, err := blob.NewLocalStore(cfg.UploadDir, "/uploads")
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	}
	return nil, "", fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
}

// OpenAMQP dials the broker when AMQP_URL is set. With no URL it returns a
// nil client and event publishing stays off.
func OpenAMQP(logger *applog.Logger, cfg *config.Config) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, err
	}
	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// Publisher adapts an optional client to services.EventPublisher, keeping a
// nil client a nil interface.
func Publisher(client *amqp.Client) services.EventPublisher {
	if client == nil {
		return nil
	}
	return client
}

// GracefulShutdown cancels the returned context on SIGINT or SIGTERM, then
// runs cleanup bounded by timeout. done closes once cleanup has finished.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
