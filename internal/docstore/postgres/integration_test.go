//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"moneymate/internal/docstore/storetest"
)

// Run with: POSTGRES_TEST_URL=postgres://localhost/moneymate_test go test -tags=integration ./internal/docstore/postgres
func TestIntegration_Contract(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	storetest.Run(t, s)
}
