// Package sheets defines where wallet reports are exported to. The Google
// Sheets writer lives in sheets/google; this package holds the CSV file
// fallback used when no spreadsheet is configured.
package sheets

import (
	"context"

	"moneymate/internal/report"
)

// Ports for outbound adapters.
type (
	// ReportExporter replaces the previous export with r and returns a
	// reference to where it was written.
	ReportExporter interface {
		Export(ctx context.Context, r report.Report) (ref string, err error)
	}
)
