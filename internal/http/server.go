// Package http serves the wallet over a JSON API with a server-sent event
// stream of changes.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"moneymate/internal/cache"
	"moneymate/internal/core"
	"moneymate/internal/docstore"
	"moneymate/internal/log"
	"moneymate/internal/middleware/ratelimit"
	"moneymate/internal/middleware/security"
	"moneymate/internal/middleware/trace"
	"moneymate/internal/session"
)

// Sessions resolves and changes the active wallet.
type Sessions interface {
	Handle(ctx context.Context) (session.Handle, error)
	SwitchToWallet(ctx context.Context, id core.WalletID) error
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr     string
	Store    docstore.Store
	Sessions Sessions
	// Health is optional; without it /readyz always succeeds.
	Health Pinger
	Logger *log.Logger

	CacheSize int
	CacheTTL  time.Duration
	RateLimit ratelimit.Config

	// KeepAlive is the interval of comment frames on idle event streams.
	KeepAlive time.Duration
	Now       func() time.Time
}

type Server struct {
	http.Server

	store    docstore.Store
	sessions Sessions
	health   Pinger
	logger   *log.Logger
	events   *log.StructuredLogger
	now      func() time.Time

	keepAlive time.Duration

	// snapshots holds the last wallet served per id, for stale reads when
	// the store is unreachable.
	snapshots *cache.LRUCache[core.Wallet]
	cacheMgr  *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	// background is cancelled at shutdown; event streams end with it.
	background     context.Context
	stopBackground context.CancelFunc
	shutdownOnce   sync.Once
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 25 * time.Second
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		store:     opts.Store,
		sessions:  opts.Sessions,
		health:    opts.Health,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		now:       opts.Now,
		keepAlive: opts.KeepAlive,
		snapshots: cache.NewLRUCache[core.Wallet](opts.CacheSize, opts.CacheTTL),
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	s.cacheMgr = cache.NewManager(s.snapshots)

	s.background, s.stopBackground = context.WithCancel(context.Background())
	go s.cacheMgr.Run(s.background, 10*time.Minute)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No WriteTimeout: /api/events responses stay open.
	}
	return s
}

// Routes builds the router. It is separate from NewServer so tests can mount
// it on httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(log.Middleware(s.logger, trace.RequestID))
	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/wallet", s.handleWallet)
		r.Post("/wallet/join", s.handleJoin)

		r.Get("/months", s.handleListMonths)
		r.Route("/months/{month}", func(r chi.Router) {
			r.Get("/", s.handleGetMonth)
			r.Put("/", s.handleSaveMonth)
			r.Delete("/", s.handleDeleteMonth)
			r.Post("/transactions", s.handleAddTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
		})

		r.Get("/categories", s.handleCategories)
		r.Get("/categories/totals", s.handleCategoryTotals)
		r.Get("/totals", s.handleTotals)
		r.Get("/report.csv", s.handleReportCSV)
		r.Get("/events", s.handleEvents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Shutdown stops background work and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopBackground()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Close releases background work without serving. Tests that only use
// Routes call it.
func (s *Server) Close() error {
	s.stopBackground()
	s.limiter.Stop()
	return s.Server.Close()
}
