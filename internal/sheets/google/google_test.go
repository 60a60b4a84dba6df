package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"moneymate/internal/core"
	"moneymate/internal/report"
)

type fakeSheets struct {
	mu     sync.Mutex
	titles []string
	calls  []string
	values [][]string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.calls = append(f.calls, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/v4/spreadsheets/sheet-id"):
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct{ Title string } `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.values = nil
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		if r.URL.Query().Get("valueInputOption") != "RAW" {
			http.Error(w, `{"error":{"code":400,"message":"missing valueInputOption"}}`, http.StatusBadRequest)
			return
		}
		var vr struct {
			Values [][]string `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.values = vr.Values
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updatedRange": "'MoneyMate'!A1:G" + itoa(len(vr.Values)),
			"updatedRows":  len(vr.Values),
		})
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Options{
		SpreadsheetID: "sheet-id",
		SheetName:     "MoneyMate",
		Endpoint:      srv.URL + "/",
		HTTPClient:    srv.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func sampleReport() report.Report {
	w := core.Wallet{Months: map[core.MonthKey]core.MonthRecord{
		"March 2025": {Income: 50000, Transactions: []core.Transaction{
			{ID: "1", Title: "rent", Amount: 2000, Type: core.Expense, Category: "Rent"},
		}},
	}}
	return report.Build("wallet_a", w, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
}

func TestExportCreatesMissingSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, fake)

	ref, err := c.Export(context.Background(), sampleReport())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(ref, "'MoneyMate'!A1") {
		t.Fatalf("unexpected ref %q", ref)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.titles) != 2 || fake.titles[1] != "MoneyMate" {
		t.Fatalf("sheet not added: %v", fake.titles)
	}
	if len(fake.values) == 0 || fake.values[0][0] != "MoneyMate Report" {
		t.Fatalf("unexpected values: %v", fake.values)
	}
	want := sampleReport().Rows()
	if len(fake.values) != len(want) {
		t.Fatalf("wrote %d rows, want %d", len(fake.values), len(want))
	}
}

func TestExportReusesExistingSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"MoneyMate"}}
	c := newTestClient(t, fake)

	if _, err := c.Export(context.Background(), sampleReport()); err != nil {
		t.Fatal(err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, call := range fake.calls {
		if strings.HasSuffix(call, ":batchUpdate") {
			t.Fatalf("unexpected batchUpdate: %v", fake.calls)
		}
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected get, clear, update; got %v", fake.calls)
	}
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Options{SheetName: "x"}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if _, err := New(ctx, Options{SpreadsheetID: "x"}); err == nil {
		t.Fatal("expected error for missing sheet name")
	}
	if _, err := New(ctx, Options{SpreadsheetID: "x", SheetName: "y"}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := New(ctx, Options{SpreadsheetID: "x", SheetName: "y", CredentialsFile: "/non/existent.json"}); err == nil {
		t.Fatal("expected error for unreadable credentials file")
	}
}

func TestQuoteSheet(t *testing.T) {
	if got := quoteSheet("Bob's"); got != "'Bob''s'" {
		t.Fatalf("quoteSheet = %q", got)
	}
}
