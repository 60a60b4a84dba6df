// Package memory is an in-process report exporter for tests and local runs
// without a spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"

	"moneymate/internal/report"
	"moneymate/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	exports []report.Report
	err     error
	notify  chan struct{}
}

func New() *Store {
	return &Store{notify: make(chan struct{}, 1)}
}

// FailWith makes subsequent exports return err. nil restores success.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Export records r and returns a synthetic reference.
func (s *Store) Export(ctx context.Context, r report.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.exports = append(s.exports, r)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return fmt.Sprintf("mem:%d", len(s.exports)), nil
}

// Exports returns every recorded report, oldest first.
func (s *Store) Exports() []report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.Report(nil), s.exports...)
}

// Last returns the most recent report.
func (s *Store) Last() (report.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.exports) == 0 {
		return report.Report{}, false
	}
	return s.exports[len(s.exports)-1], true
}

// Exported is signalled after each successful export.
func (s *Store) Exported() <-chan struct{} {
	return s.notify
}

var _ sheets.ReportExporter = (*Store)(nil)
