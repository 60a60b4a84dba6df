package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"moneymate/internal/aggregate"
	"moneymate/internal/core"
	"moneymate/internal/log"
)

// walletEvent is the payload of one "wallet" frame.
type walletEvent struct {
	WalletID core.WalletID         `json:"walletId"`
	Months   []aggregate.MonthRow  `json:"months"`
	Totals   aggregate.GrandTotals `json:"totals"`
}

// handleEvents streams the active wallet as server-sent events. A frame is
// sent with the current state and then once per committed change, in order.
// Idle streams get a comment frame every keep-alive interval.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(s.background, cancel)()

	h, acc, err := s.accessor(ctx)
	if err != nil {
		s.fail(w, r, log.OpSubscribe, err)
		return
	}
	sub, err := acc.Stream(ctx)
	if err != nil {
		s.fail(w, r, log.OpSubscribe, err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := loggerFor(r).With(log.FieldWalletID, h.WalletID)
	logger.DebugContext(ctx, "Event stream opened")
	defer logger.DebugContext(context.WithoutCancel(ctx), "Event stream closed")

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case wl, ok := <-sub.C():
			if !ok {
				return
			}
			s.snapshots.Set(string(h.WalletID), wl)
			payload, err := json.Marshal(walletEvent{
				WalletID: h.WalletID,
				Months:   aggregate.ListMonths(wl, malformedKeys(r)),
				Totals:   aggregate.Totals(wl),
			})
			if err != nil {
				logger.ErrorContext(ctx, "Encode wallet event failed", log.FieldError, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: wallet\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
			ticker.Reset(s.keepAlive)
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
