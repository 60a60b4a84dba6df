package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"moneymate/internal/core"
	"moneymate/internal/docstore"
	"moneymate/internal/invite"
	"moneymate/internal/log"
	"moneymate/internal/session"
	"moneymate/internal/wallet"
)

func loggerFor(r *http.Request) *log.Logger {
	return log.FromContext(r.Context())
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		loggerFor(r).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type walletInfo struct {
	WalletID      core.WalletID `json:"walletId"`
	Collection    string        `json:"collection"`
	InviteLink    string        `json:"inviteLink"`
	InviteMessage string        `json:"inviteMessage"`
}

func infoFor(h session.Handle) walletInfo {
	return walletInfo{
		WalletID:      h.WalletID,
		Collection:    h.Collection,
		InviteLink:    invite.Link(h.WalletID),
		InviteMessage: invite.Message(h.WalletID),
	}
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	h, err := s.sessions.Handle(r.Context())
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, infoFor(h))
}

type joinRequest struct {
	Code string `json:"code"`
}

// handleJoin switches the device to the wallet named by an invite link or a
// bare code.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, log.OpSwitch, err)
		return
	}
	id, err := invite.Parse(sanitizeInput(req.Code))
	if err != nil {
		s.fail(w, r, log.OpSwitch, err)
		return
	}
	if err := s.sessions.SwitchToWallet(r.Context(), id); err != nil {
		s.fail(w, r, log.OpSwitch, err)
		return
	}
	h, err := s.sessions.Handle(r.Context())
	if err != nil {
		s.fail(w, r, log.OpSwitch, err)
		return
	}
	loggerFor(r).InfoContext(r.Context(), "Joined wallet", log.NewFields().
		WithWallet(h.Collection, string(h.WalletID)).
		WithOperation(log.OpSwitch).ToSlice()...)
	writeJSON(w, http.StatusOK, infoFor(h))
}

// accessor resolves the active wallet once and binds an accessor to it, so
// a request never spans two wallets when the device switches concurrently.
func (s *Server) accessor(ctx context.Context) (session.Handle, *wallet.Accessor, error) {
	h, err := s.sessions.Handle(ctx)
	if err != nil {
		return session.Handle{}, nil, err
	}
	return h, wallet.NewAccessor(s.store, wallet.Fixed(h)), nil
}

// readWallet reads the active wallet. When the store is unavailable it
// falls back to the last snapshot served for that wallet and reports it as
// stale.
func (s *Server) readWallet(r *http.Request) (session.Handle, core.Wallet, bool, error) {
	h, acc, err := s.accessor(r.Context())
	if err != nil {
		return h, core.Wallet{}, false, err
	}
	wl, err := acc.ReadOnce(r.Context())
	if err == nil {
		s.snapshots.Set(string(h.WalletID), wl)
		return h, wl, false, nil
	}
	if errors.Is(err, docstore.ErrUnavailable) {
		if cached, age, ok := s.snapshots.GetWithAge(string(h.WalletID)); ok {
			loggerFor(r).WarnContext(r.Context(), "Serving cached wallet",
				log.FieldWalletID, h.WalletID, "age", age.Round(time.Second).String(), log.FieldError, err)
			return h, cached, true, nil
		}
	}
	return h, core.Wallet{}, false, err
}

// mutate applies update to the active wallet and logs the write.
func (s *Server) mutate(r *http.Request, op string, month core.MonthKey, txID string, update wallet.Updater) (core.Wallet, error) {
	h, acc, err := s.accessor(r.Context())
	if err != nil {
		return core.Wallet{}, err
	}
	next, err := acc.Mutate(r.Context(), update)
	if err != nil {
		return core.Wallet{}, err
	}
	s.snapshots.Set(string(h.WalletID), next)
	s.events.LogWalletWrite(r.Context(), h.Collection, string(h.WalletID), op, string(month), txID)
	return next, nil
}
