package sheets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"moneymate/internal/report"
)

// FileExporter writes the report as CSV to a fixed path. The file is
// replaced atomically so readers never see a partial export.
type FileExporter struct {
	Path string
}

func NewFileExporter(path string) *FileExporter {
	return &FileExporter{Path: path}
}

func (f *FileExporter) Export(ctx context.Context, r report.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".moneymate-export-*.csv")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := report.WriteCSV(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return "", fmt.Errorf("replace export: %w", err)
	}
	return f.Path, nil
}

var _ ReportExporter = (*FileExporter)(nil)
