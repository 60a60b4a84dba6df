package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"moneymate/internal/core"
	"moneymate/internal/docstore"
	"moneymate/internal/log"
	"moneymate/internal/wallet"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Response is the envelope of every JSON reply.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	// Stale is set when Data came from the last good snapshot because the
	// store could not be reached.
	Stale bool `json:"stale,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, Response{Data: data})
}

func writeStale(w http.ResponseWriter, data any, stale bool) {
	writeResponse(w, http.StatusOK, Response{Data: data, Stale: stale})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeResponse(w, status, Response{Error: msg})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

var errBadRequest = errors.New("bad request")

// statusFor maps domain and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidWalletID),
		errors.Is(err, core.ErrInvalidTransaction),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidIncome),
		errors.Is(err, core.ErrEmptyTitle),
		errors.Is(err, core.ErrMalformedMonthKey),
		errors.Is(err, docstore.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrMonthNotFound),
		errors.Is(err, wallet.ErrTransactionNotFound),
		errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err at a level matching its status and writes the error reply.
// Internal errors are not echoed to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		s.events.LogError(r.Context(), "Request failed", err, log.ErrorTypeInternal, op, nil)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		s.events.LogError(r.Context(), "Store unavailable", err, log.ErrorTypeUnavailable, op, nil)
	case http.StatusNotFound:
		loggerFor(r).InfoContext(r.Context(), "Not found", log.NewFields().
			WithError(err).WithErrorType(log.ErrorTypeNotFound).WithOperation(op).ToSlice()...)
	default:
		loggerFor(r).WarnContext(r.Context(), "Request rejected", log.NewFields().
			WithError(err).WithErrorType(log.ErrorTypeValidation).WithOperation(op).ToSlice()...)
	}
	writeError(w, status, msg)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// rawMonthParam returns the {month} path parameter as stored, without
// checking that it parses.
func rawMonthParam(r *http.Request) core.MonthKey {
	raw := chi.URLParam(r, "month")
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return core.MonthKey(strings.TrimSpace(raw))
}

// monthParam returns the {month} path parameter as a validated key.
func monthParam(r *http.Request) (core.MonthKey, error) {
	key := rawMonthParam(r)
	if err := key.Validate(); err != nil {
		return "", err
	}
	return key, nil
}

// sanitizeInput trims s and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
