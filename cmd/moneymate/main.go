package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneymate/internal/backend"
	"moneymate/internal/cli"
	apphttp "moneymate/internal/http"
	"moneymate/internal/log"
	"moneymate/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp, os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

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

	sessions := session.NewManager(res.KV, res.Store, session.WithCollection(cfg.WalletCollection))
	startupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	id, err := sessions.EnsureActiveWallet(startupCtx)
	cancel()
	if err != nil {
		// The server still starts: reads fall back to 503 until the store
		// comes back, and the wallet is created on the first request.
		logger.Warn("Active wallet not ready", log.FieldError, err)
	} else {
		logger.Info("Active wallet", log.FieldWalletID, id, log.FieldCollection, cfg.WalletCollection)
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:      ":" + cfg.Port,
		Store:     res.Store,
		Sessions:  sessions,
		Health:    res.Health,
		Logger:    logger,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting moneymate server", "port", cfg.Port, log.FieldBackend, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if res.Background != nil {
		g.Go(func() error { return res.Background(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
	}

	cli.RunCleanup(logger, 10*time.Second, func(ctx context.Context) error {
		if res.Cleanup == nil {
			return nil
		}
		return res.Cleanup(ctx)
	})
}
