package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"fintrack/internal/auth"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	pictures, uploadDir, err := cli.OpenPictureStore(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize picture storage", "error", err, "backend", cfg.BlobBackend)
		os.Exit(1)
	}

	// Publishing is best effort; the API runs without a broker.
	amqpClient, err := cli.OpenAMQP(logger, cfg)
	if err != nil {
		logger.Warn("AMQP unavailable, ledger events will not be published", "error", err)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	reports, caches := cli.NewReportService(cfg, repo)
	publisher := cli.Publisher(amqpClient)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Users:   services.NewUserService(repo, tokens, pictures),
		Ledger:  services.NewLedgerService(repo, publisher, reports),
		Budgets: services.NewBudgetService(repo, publisher, reports),
		Reports: reports,
		Tokens:  tokens,
		DB:      repo,
		Logger:  logger,
		Caches: map[string]apphttp.StatsSource{
			"summaries":  caches.Summaries,
			"dashboards": caches.Dashboards,
		},
		UploadDir:          uploadDir,
		UploadMaxBytes:     cfg.UploadMaxBytes,
		AuthRequired:       cfg.AuthRequired,
		CORSOrigins:        cfg.CORSOrigins,
		TrustedProxies:     cfg.TrustedProxies,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Manager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"auth_required", cfg.AuthRequired,
		"blob_backend", cfg.BlobBackend,
		"amqp_enabled", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
