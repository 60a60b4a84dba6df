// Package report turns a wallet into the tabular report users export: one
// section per month with its transactions and category subtotals, then
// wallet-wide category totals and a grand total.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"moneymate/internal/aggregate"
	"moneymate/internal/core"
)

// GeneratedLayout formats the report timestamp.
const GeneratedLayout = "2006-01-02 15:04:05"

type (
	Report struct {
		GeneratedAt time.Time
		WalletID    core.WalletID
		Months      []MonthSection
		Categories  []aggregate.CategoryAmount
		Totals      aggregate.GrandTotals
	}

	MonthSection struct {
		Summary    aggregate.MonthSummary
		Categories []aggregate.CategoryAmount
	}
)

// Build derives the report. Months are latest first; malformed month keys
// still appear, after the valid ones.
func Build(id core.WalletID, w core.Wallet, now time.Time) Report {
	r := Report{GeneratedAt: now, WalletID: id, Totals: aggregate.Totals(w)}
	for _, row := range aggregate.ListMonths(w, nil) {
		summary := aggregate.SummarizeMonth(w, row.Month)
		r.Months = append(r.Months, MonthSection{
			Summary:    summary,
			Categories: aggregate.SortedCategories(aggregate.MonthCategoryTotals(w, row.Month), summary.Transactions),
		})
	}
	r.Categories = aggregate.SortedCategories(aggregate.CategoryTotals(w), aggregate.AllTransactions(w))
	return r
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Rows lays the report out as a grid, shared by the CSV and sheet writers.
func (r Report) Rows() [][]string {
	rows := [][]string{
		{"MoneyMate Report"},
		{"Wallet", string(r.WalletID)},
		{"Generated", r.GeneratedAt.Format(GeneratedLayout)},
		{},
	}
	for _, m := range r.Months {
		s := m.Summary
		rows = append(rows,
			[]string{string(s.Month)},
			[]string{"Income", money(s.Income)},
			[]string{"Expense", money(s.Expense)},
			[]string{"Balance", money(s.Balance)},
			[]string{"Date", "Title", "Category", "Type", "Account", "Amount", "Notes"},
		)
		for _, t := range s.Transactions {
			rows = append(rows, []string{
				t.Date, t.Title, t.Category, string(t.Type), string(t.AccountType), money(t.Amount), t.Notes,
			})
		}
		if len(m.Categories) > 0 {
			rows = append(rows, []string{"Category", "Amount"})
			for _, c := range m.Categories {
				rows = append(rows, []string{c.Name, money(c.Amount)})
			}
		}
		rows = append(rows, []string{})
	}

	rows = append(rows, []string{"CATEGORY TOTALS"}, []string{"Category", "Amount"})
	for _, c := range r.Categories {
		rows = append(rows, []string{c.Name, money(c.Amount)})
	}
	rows = append(rows,
		[]string{},
		[]string{"TOTALS"},
		[]string{"Income", money(r.Totals.Income)},
		[]string{"Expense", money(r.Totals.Expense)},
		[]string{"Balance", money(r.Totals.Balance)},
	)
	return rows
}

// WriteCSV writes the report rows as CSV.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	for _, row := range r.Rows() {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
