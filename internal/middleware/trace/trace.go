// Package trace logs each HTTP request once it completes, tagged with the
// request id chi assigned.
package trace

import (
	"net/http"
	"sync/atomic"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"moneymate/internal/log"
)

type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.StructuredLogger
	total     atomic.Int64
	inflight  atomic.Int64
}

func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP, logger: log.NewStructuredLogger(logger)}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.total.Add(1)
		m.inflight.Add(1)
		defer m.inflight.Add(-1)

		// The wrapper keeps http.Flusher, which event streams rely on.
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		m.logger.LogHTTPEnd(r.Context(), r, status, time.Since(start).Milliseconds(), clientIP)
	})
}

// RequestID returns the id chi's RequestID middleware stored for r.
func RequestID(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}

// TotalRequests returns how many requests have started.
func (m *Middleware) TotalRequests() int64 {
	return m.total.Load()
}

// InFlight returns how many requests are being served, long-lived event
// streams included.
func (m *Middleware) InFlight() int64 {
	return m.inflight.Load()
}
