package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/worker"
)

const digestTimeout = 10 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting fintrack-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := cli.OpenAMQP(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	if amqpClient == nil {
		logger.Error("The worker needs a broker: set AMQP_URL")
		os.Exit(1)
	}
	defer amqpClient.Close()

	// The worker reads fresh data on every event, so reports are not cached here.
	reports := services.NewReportService(repo, repo, nil, nil, cfg.HighExpenseThreshold)

	var mirror sheets.LedgerWriter
	if cfg.SheetsEnabled() {
		client, err := newSheetsClient(cfg.GoogleSpreadsheetID, cfg.GoogleSheetName,
			cfg.GoogleOAuthClientJSON, cfg.GoogleOAuthClientFile,
			cfg.GoogleOAuthTokenJSON, cfg.GoogleOAuthTokenFile)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	ledgerWorker := worker.NewLedgerWorker(reports, amqpClient, mirror)
	scheduler, err := worker.NewScheduler(cfg.DigestSchedule, worker.NewDigestJob(repo, reports, amqpClient), digestTimeout)
	if err != nil {
		logger.Error("Failed to create digest scheduler", "error", err, "schedule", cfg.DigestSchedule)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("Digest scheduler stop error", "error", err)
		}
	})

	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start digest scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("Digest scheduler started", "schedule", cfg.DigestSchedule)

	err = amqpClient.ConsumeLedgerEvents(ctx, ledgerWorker.HandleLedgerEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		_ = scheduler.Stop(context.Background())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

func newSheetsClient(spreadsheetID, sheetName, clientJSON, clientFile, tokenJSON, tokenFile string) (*gsheet.Client, error) {
	clientCred, err := gsheet.LoadCredential(clientJSON, clientFile)
	if err != nil {
		return nil, err
	}
	tokenCred, err := gsheet.LoadCredential(tokenJSON, tokenFile)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return gsheet.New(ctx, gsheet.Config{
		SpreadsheetID: spreadsheetID,
		SheetName:     sheetName,
		ClientJSON:    clientCred,
		TokenJSON:     tokenCred,
	})
}
