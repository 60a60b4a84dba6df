package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"moneymate/internal/aggregate"
	"moneymate/internal/core"
	"moneymate/internal/log"
	"moneymate/internal/report"
	"moneymate/internal/wallet"
)

// malformedKeys logs month keys that cannot be ordered.
func malformedKeys(r *http.Request) aggregate.MalformedKeyFunc {
	return func(key core.MonthKey, err error) {
		loggerFor(r).WarnContext(r.Context(), "Malformed month key", log.FieldMonth, key, log.FieldError, err)
	}
}

func (s *Server) handleListMonths(w http.ResponseWriter, r *http.Request) {
	_, wl, stale, err := s.readWallet(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeStale(w, aggregate.ListMonths(wl, malformedKeys(r)), stale)
}

func (s *Server) handleGetMonth(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	_, wl, stale, err := s.readWallet(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	if _, ok := wl.Months[key]; !ok {
		s.fail(w, r, log.OpRead, fmt.Errorf("%w: %s", wallet.ErrMonthNotFound, key))
		return
	}
	writeStale(w, aggregate.SummarizeMonth(wl, key), stale)
}

type saveMonthRequest struct {
	Income *float64 `json:"income"`
}

// handleSaveMonth creates the month or sets its income.
func (s *Server) handleSaveMonth(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.fail(w, r, log.OpMutate, err)
		return
	}
	var req saveMonthRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, log.OpMutate, err)
		return
	}
	if req.Income == nil {
		s.fail(w, r, log.OpMutate, fmt.Errorf("%w: income is required", core.ErrInvalidIncome))
		return
	}
	next, err := s.mutate(r, log.OpMutate, key, "", wallet.SaveMonth(key, *req.Income))
	if err != nil {
		s.fail(w, r, log.OpMutate, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregate.SummarizeMonth(next, key))
}

// handleDeleteMonth accepts keys that do not parse, so stray months can be
// removed.
func (s *Server) handleDeleteMonth(w http.ResponseWriter, r *http.Request) {
	key := rawMonthParam(r)
	h, acc, err := s.accessor(r.Context())
	if err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	if err := acc.DeleteMonth(r.Context(), key); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.snapshots.Delete(string(h.WalletID))
	s.events.LogWalletWrite(r.Context(), h.Collection, string(h.WalletID), log.OpDelete, string(key), "")
	w.WriteHeader(http.StatusNoContent)
}

type transactionRequest struct {
	Title       string           `json:"title"`
	Amount      float64          `json:"amount"`
	Category    string           `json:"category"`
	Notes       string           `json:"notes"`
	AccountType core.AccountType `json:"accountType"`
	Image       string           `json:"image"`
}

func (t transactionRequest) input() core.TransactionInput {
	return core.TransactionInput{
		Title:       sanitizeInput(t.Title),
		Amount:      t.Amount,
		Category:    sanitizeInput(t.Category),
		Notes:       sanitizeInput(t.Notes),
		AccountType: t.AccountType,
		Image:       strings.TrimSpace(t.Image),
	}
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	tx := core.NewTransaction(req.input(), s.now())
	if _, err := s.mutate(r, log.OpCreate, key, tx.ID, wallet.AddTransaction(key, tx)); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.fail(w, r, log.OpMutate, err)
		return
	}
	id := chi.URLParam(r, "id")
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, log.OpMutate, err)
		return
	}
	next, err := s.mutate(r, log.OpMutate, key, id, wallet.UpdateTransaction(key, id, req.input()))
	if err != nil {
		s.fail(w, r, log.OpMutate, err)
		return
	}
	m := next.Months[key]
	writeJSON(w, http.StatusOK, m.Transactions[m.Index(id)])
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	key, err := monthParam(r)
	if err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.mutate(r, log.OpDelete, key, id, wallet.RemoveTransaction(key, id)); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, core.Categories)
}

// handleCategoryTotals returns expense per category, for the whole wallet or
// for one month when ?month= is given.
func (s *Server) handleCategoryTotals(w http.ResponseWriter, r *http.Request) {
	_, wl, stale, err := s.readWallet(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("month")); raw != "" {
		key := core.MonthKey(raw)
		if err := key.Validate(); err != nil {
			s.fail(w, r, log.OpRead, err)
			return
		}
		txs := wl.Months[key].Transactions
		writeStale(w, aggregate.SortedCategories(aggregate.MonthCategoryTotals(wl, key), txs), stale)
		return
	}
	writeStale(w, aggregate.SortedCategories(aggregate.CategoryTotals(wl), aggregate.AllTransactions(wl)), stale)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	_, wl, stale, err := s.readWallet(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeStale(w, aggregate.Totals(wl), stale)
}

// handleReportCSV downloads the wallet report.
func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	h, wl, stale, err := s.readWallet(r)
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", string(h.WalletID)+".csv"))
	if stale {
		w.Header().Set("X-Stale", "true")
	}
	if err := report.WriteCSV(w, report.Build(h.WalletID, wl, s.now())); err != nil {
		loggerFor(r).ErrorContext(r.Context(), "Write report failed", log.FieldError, err)
	}
}
