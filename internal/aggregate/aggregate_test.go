package aggregate

import (
	"errors"
	"reflect"
	"testing"

	"moneymate/internal/core"
)

func march() core.Wallet {
	return core.Wallet{Months: map[core.MonthKey]core.MonthRecord{
		"March 2025": {
			Income: 50000,
			Transactions: []core.Transaction{
				{ID: "1", Title: "veg", Amount: 1200, Type: core.Expense, Category: "Grocery"},
				{ID: "2", Title: "milk", Amount: 300, Type: core.Expense, Category: "Grocery"},
				{ID: "3", Title: "rent", Amount: 2000, Type: core.Expense, Category: "Rent"},
			},
		},
	}}
}

func TestSummarizeMonth(t *testing.T) {
	got := SummarizeMonth(march(), "March 2025")
	if got.Income != 50000 || got.Expense != 3500 || got.Balance != 46500 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	ids := []string{got.Transactions[0].ID, got.Transactions[1].ID, got.Transactions[2].ID}
	if !reflect.DeepEqual(ids, []string{"1", "2", "3"}) {
		t.Fatalf("expected stored order, got %v", ids)
	}
}

func TestSummarizeMissingMonth(t *testing.T) {
	got := SummarizeMonth(march(), "April 2025")
	if got.Income != 0 || got.Expense != 0 || got.Balance != 0 || got.Transactions == nil || len(got.Transactions) != 0 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestCategoryTotals(t *testing.T) {
	want := map[string]float64{"Grocery": 1500, "Rent": 2000}
	if got := CategoryTotals(march()); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := MonthCategoryTotals(march(), "March 2025"); !reflect.DeepEqual(got, want) {
		t.Fatalf("month scope: got %v, want %v", got, want)
	}
	if got := MonthCategoryTotals(march(), "May 2025"); len(got) != 0 {
		t.Fatalf("expected empty totals, got %v", got)
	}
}

func TestCategoryTotalsKeepsUnknownCategories(t *testing.T) {
	w := core.Wallet{Months: map[core.MonthKey]core.MonthRecord{
		"May 2025": {Transactions: []core.Transaction{
			{ID: "1", Amount: 5, Type: core.Expense, Category: "Pets"},
			{ID: "2", Amount: 7, Type: core.Expense, Category: "Other"},
		}},
	}}
	got := CategoryTotals(w)
	if got["Pets"] != 5 || got["Other"] != 7 {
		t.Fatalf("unknown category merged: %v", got)
	}
}

func TestListMonthsOrdering(t *testing.T) {
	w := core.Wallet{Months: map[core.MonthKey]core.MonthRecord{
		"January 2024":  {},
		"December 2024": {},
		"June 2023":     {},
	}}
	rows := ListMonths(w, nil)
	var got []core.MonthKey
	for _, r := range rows {
		got = append(got, r.Month)
	}
	want := []core.MonthKey{"December 2024", "January 2024", "June 2023"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestListMonthsMalformedLast(t *testing.T) {
	w := core.Wallet{Months: map[core.MonthKey]core.MonthRecord{
		"zzz":          {},
		"Smarch 2025":  {},
		"June 2023":    {},
		"January 2026": {},
	}}
	var reported []core.MonthKey
	rows := ListMonths(w, func(k core.MonthKey, err error) {
		if !errors.Is(err, core.ErrMalformedMonthKey) {
			t.Fatalf("unexpected error type: %v", err)
		}
		reported = append(reported, k)
	})

	var got []core.MonthKey
	for _, r := range rows {
		got = append(got, r.Month)
	}
	want := []core.MonthKey{"January 2026", "June 2023", "Smarch 2025", "zzz"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(reported) != 2 {
		t.Fatalf("expected 2 malformed keys reported, got %v", reported)
	}
}

func TestListMonthsFigures(t *testing.T) {
	w := march()
	w.Months["February 2025"] = core.MonthRecord{
		Income: 100,
		Transactions: []core.Transaction{
			{ID: "a", Amount: 30, Type: core.Expense, Category: "Health"},
			{ID: "b", Amount: 20, Type: core.Income, Category: "Other"},
		},
	}
	rows := ListMonths(w, nil)
	if len(rows) != 2 || rows[0].Month != "March 2025" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Expense != 3500 || rows[0].Extra != 46500 {
		t.Fatalf("unexpected march row: %+v", rows[0])
	}
	if rows[1].Income != 100 || rows[1].Expense != 30 || rows[1].Extra != 70 {
		t.Fatalf("unexpected february row: %+v", rows[1])
	}
}

func TestTotals(t *testing.T) {
	w := march()
	w.Months["April 2025"] = core.MonthRecord{Income: 1000, Transactions: []core.Transaction{
		{ID: "x", Amount: 250, Type: core.Expense, Category: "Petrol"},
	}}
	got := Totals(w)
	if got.Income != 51000 || got.Expense != 3750 || got.Balance != 47250 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestSortedCategories(t *testing.T) {
	txs := []core.Transaction{
		{Category: "Grocery", CategoryIcon: "🛒"},
		{Category: "Rent"},
	}
	got := SortedCategories(map[string]float64{"Grocery": 1500, "Rent": 2000, "Health": 1500}, txs)
	if got[0].Name != "Rent" || got[1].Name != "Grocery" || got[2].Name != "Health" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Icon != "🛒" {
		t.Fatalf("expected icon, got %+v", got[1])
	}
}

func TestAllTransactionsLatestMonthFirst(t *testing.T) {
	w := march()
	w.Months["April 2025"] = core.MonthRecord{Transactions: []core.Transaction{{ID: "x"}}}
	got := AllTransactions(w)
	if len(got) != 4 || got[0].ID != "x" {
		t.Fatalf("unexpected: %+v", got)
	}
}
