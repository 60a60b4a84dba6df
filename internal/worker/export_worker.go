// Package worker keeps an external report of the active wallet up to date.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"moneymate/internal/core"
	"moneymate/internal/docstore"
	"moneymate/internal/log"
	"moneymate/internal/report"
	"moneymate/internal/session"
	"moneymate/internal/sheets"
	"moneymate/internal/wallet"
)

// Keys under which the last successful export is recorded in the device KV.
const (
	LastExportAtKey  = "export.last_at"
	LastExportRefKey = "export.last_ref"
)

var errWalletChanged = errors.New("active wallet changed")

type Config struct {
	// Debounce collapses bursts of changes into one export. Zero exports
	// on every change.
	Debounce time.Duration

	// Schedule is a standard cron expression for full re-exports. Empty
	// disables scheduled runs.
	Schedule string

	// MaxRetries bounds attempts per export (default: 3).
	MaxRetries int

	// RetryBackoff is the wait before the first retry, doubled after each
	// failure (default: 2s).
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Debounce:     5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
	}
}

// Handles resolves the wallet to export.
type Handles interface {
	Handle(ctx context.Context) (session.Handle, error)
}

// ExportWorker follows the active wallet and replaces the exported report
// after each burst of changes and on a schedule.
type ExportWorker struct {
	store    docstore.Store
	handles  Handles
	exporter sheets.ReportExporter
	state    session.KV
	config   Config
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	running bool

	exports  atomic.Int64
	failures atomic.Int64
}

func NewExportWorker(store docstore.Store, handles Handles, exporter sheets.ReportExporter, state session.KV, config Config, logger *log.Logger) *ExportWorker {
	def := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = def.RetryBackoff
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{
		store:    store,
		handles:  handles,
		exporter: exporter,
		state:    state,
		config:   config,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentExport).Slog(),
	}
}

// Run follows the active wallet until ctx is done, exporting its current
// state first. A wallet switch noticed by a scheduled run moves the worker to
// the new wallet.
func (w *ExportWorker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("export worker is already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ticks := make(chan struct{}, 1)
	if w.config.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.config.Schedule, func() {
			select {
			case ticks <- struct{}{}:
			default:
			}
		}); err != nil {
			return fmt.Errorf("parse export schedule: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	for {
		h, err := w.handles.Handle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("resolve wallet: %w", err)
		}
		err = w.follow(ctx, h, ticks)
		if errors.Is(err, errWalletChanged) {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// follow exports h when the subscription delivers its current state, after
// each debounced change and on every scheduled tick. It returns
// errWalletChanged when a tick finds that the device moved to another
// wallet.
func (w *ExportWorker) follow(ctx context.Context, h session.Handle, ticks <-chan struct{}) error {
	logger := w.logger.With(log.FieldWalletID, h.WalletID, log.FieldCollection, h.Collection)
	acc := wallet.NewAccessor(w.store, wallet.Fixed(h))

	sub, err := acc.Stream(ctx)
	if err != nil {
		return err
	}
	defer sub.Cancel()
	logger.InfoContext(ctx, "Following wallet", "debounce", w.config.Debounce, "schedule", w.config.Schedule)

	var (
		pending *core.Wallet
		timer   *time.Timer
		fire    <-chan time.Time
		initial = true
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case wl, ok := <-sub.C():
			if !ok {
				return ctx.Err()
			}
			if initial {
				initial = false
				w.exportSnapshot(ctx, h, wl)
				continue
			}
			pending = &wl
			if w.config.Debounce <= 0 {
				w.exportSnapshot(ctx, h, wl)
				pending = nil
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.config.Debounce)
			} else {
				timer.Reset(w.config.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if pending != nil {
				w.exportSnapshot(ctx, h, *pending)
				pending = nil
			}

		case <-ticks:
			current, err := w.handles.Handle(ctx)
			if err == nil && current.WalletID != h.WalletID {
				logger.InfoContext(ctx, "Active wallet changed", "next_wallet_id", current.WalletID)
				return errWalletChanged
			}
			if err := w.ExportNow(ctx, h); err != nil {
				logger.ErrorContext(ctx, "Scheduled export failed", log.FieldError, err)
			}
		}
	}
}

// ExportNow reads h from the store and exports it.
func (w *ExportWorker) ExportNow(ctx context.Context, h session.Handle) error {
	wl, err := wallet.NewAccessor(w.store, wallet.Fixed(h)).ReadOnce(ctx)
	if err != nil {
		w.failures.Add(1)
		return err
	}
	return w.export(ctx, h, wl)
}

func (w *ExportWorker) exportSnapshot(ctx context.Context, h session.Handle, wl core.Wallet) {
	if err := w.export(ctx, h, wl); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Export failed", log.FieldWalletID, h.WalletID, log.FieldError, err)
	}
}

// export writes the report with retries and records the result.
func (w *ExportWorker) export(ctx context.Context, h session.Handle, wl core.Wallet) error {
	r := report.Build(h.WalletID, wl, w.now())
	backoff := w.config.RetryBackoff

	var lastErr error
	for attempt := 1; attempt <= w.config.MaxRetries; attempt++ {
		ref, err := w.exporter.Export(ctx, r)
		if err == nil {
			w.exports.Add(1)
			w.record(ctx, ref)
			w.logger.InfoContext(ctx, "Report exported",
				log.FieldWalletID, h.WalletID,
				log.FieldSheetsRange, ref,
				"months", len(r.Months),
				"attempt", attempt)
			return nil
		}
		lastErr = err
		if attempt == w.config.MaxRetries {
			break
		}
		w.logger.WarnContext(ctx, "Export attempt failed, retrying",
			log.FieldWalletID, h.WalletID,
			"attempt", attempt,
			"backoff", backoff,
			log.FieldError, err)
		select {
		case <-ctx.Done():
			w.failures.Add(1)
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	w.failures.Add(1)
	return fmt.Errorf("export after %d attempts: %w", w.config.MaxRetries, lastErr)
}

func (w *ExportWorker) record(ctx context.Context, ref string) {
	if w.state == nil {
		return
	}
	if err := w.state.SetValue(ctx, LastExportAtKey, w.now().UTC().Format(time.RFC3339)); err != nil {
		w.logger.WarnContext(ctx, "Failed to record export time", log.FieldError, err)
	}
	if err := w.state.SetValue(ctx, LastExportRefKey, ref); err != nil {
		w.logger.WarnContext(ctx, "Failed to record export ref", log.FieldError, err)
	}
}

// IsRunning returns whether Run is active.
func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Exports returns the number of successful exports.
func (w *ExportWorker) Exports() int64 { return w.exports.Load() }

// Failures returns the number of exports that gave up.
func (w *ExportWorker) Failures() int64 { return w.failures.Load() }
