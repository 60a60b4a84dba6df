package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneymate/internal/backend"
	"moneymate/internal/cli"
	"moneymate/internal/config"
	"moneymate/internal/log"
	"moneymate/internal/session"
	"moneymate/internal/sheets"
	gsheet "moneymate/internal/sheets/google"
	"moneymate/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentExport, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.StoreBackend == config.BackendMemory {
		logger.Error("The sync worker needs a shared store; the memory backend is process-local", log.FieldBackend, cfg.StoreBackend)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldBackend, cfg.StoreBackend, log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).
		CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldBackend, cfg.StoreBackend, log.FieldError, err)
		os.Exit(1)
	}

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize exporter", log.FieldError, err)
		cli.RunCleanup(logger, 10*time.Second, res.Cleanup)
		os.Exit(1)
	}

	sessions := session.NewManager(res.KV, res.Store, session.WithCollection(cfg.WalletCollection))
	w := worker.NewExportWorker(res.Store, sessions, exporter, res.KV, worker.Config{
		Debounce: cfg.ExportDebounce,
		Schedule: cfg.ExportSchedule,
	}, logger)

	logger.Info("Starting moneymate-sync",
		log.FieldBackend, cfg.StoreBackend,
		"schedule", cfg.ExportSchedule,
		"debounce", cfg.ExportDebounce)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if res.Background != nil {
		g.Go(func() error { return res.Background(gctx) })
	} else if cfg.StoreBackend == config.BackendSQLite {
		logger.Warn("No AMQP broadcast configured; changes made by other processes are exported on schedule only")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Sync worker stopped with error", log.FieldError, err)
	}
	logger.Info("Sync worker stopped", "exports", w.Exports(), "failures", w.Failures())

	cli.RunCleanup(logger, 10*time.Second, res.Cleanup)
}

// newExporter picks Google Sheets when a spreadsheet is configured and the
// CSV file otherwise.
func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.ReportExporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled, exporting to CSV file", "path", cfg.ExportCSVPath)
		return sheets.NewFileExporter(cfg.ExportCSVPath), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client, nil
}
