// Package aggregate derives display-ready figures from a wallet snapshot.
//
// Everything here is pure: no I/O, no clock, no logging. Sums use float64 and
// are never rounded; formatting belongs to the caller.
package aggregate

import (
	"sort"

	"moneymate/internal/core"
)

// MonthRow is one line of the month listing.
type MonthRow struct {
	Month   core.MonthKey `json:"month"`
	Income  float64       `json:"income"`
	Expense float64       `json:"expense"`
	Extra   float64       `json:"extra"` // income - expense
}

// MonthSummary is the detail of a single month.
type MonthSummary struct {
	Month        core.MonthKey      `json:"month"`
	Income       float64            `json:"income"`
	Expense      float64            `json:"expense"`
	Balance      float64            `json:"balance"`
	Transactions []core.Transaction `json:"transactions"`
}

// GrandTotals sums every month of the wallet.
type GrandTotals struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}

// CategoryAmount is a category subtotal in a stable order.
type CategoryAmount struct {
	Name   string  `json:"name"`
	Icon   string  `json:"icon,omitempty"`
	Amount float64 `json:"amount"`
}

// MalformedKeyFunc is told about month keys that do not parse.
type MalformedKeyFunc func(key core.MonthKey, err error)

// monthFigures returns the month's stored income and its expense total.
// Income-typed transactions are listed but never counted.
func monthFigures(m core.MonthRecord) (income, expense float64) {
	income = m.Income
	if income < 0 {
		income = 0
	}
	for _, t := range m.Transactions {
		if t.Type == core.Expense {
			expense += t.Amount
		}
	}
	return income, expense
}

// ListMonths returns every month, latest first. Keys that do not parse sort
// after all valid ones, by key string, and are reported to onMalformed.
func ListMonths(w core.Wallet, onMalformed MalformedKeyFunc) []MonthRow {
	type keyed struct {
		row     MonthRow
		ordinal int
		valid   bool
	}
	items := make([]keyed, 0, len(w.Months))
	for k, m := range w.Months {
		income, expense := monthFigures(m)
		ord, err := k.Ordinal()
		if err != nil && onMalformed != nil {
			onMalformed(k, err)
		}
		items = append(items, keyed{
			row:     MonthRow{Month: k, Income: income, Expense: expense, Extra: income - expense},
			ordinal: ord,
			valid:   err == nil,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.valid != b.valid {
			return a.valid
		}
		if a.valid && a.ordinal != b.ordinal {
			return a.ordinal > b.ordinal
		}
		return a.row.Month < b.row.Month
	})

	rows := make([]MonthRow, len(items))
	for i, it := range items {
		rows[i] = it.row
	}
	return rows
}

// SummarizeMonth returns the month's figures with transactions in stored
// order. A missing month yields zeros and an empty list.
func SummarizeMonth(w core.Wallet, key core.MonthKey) MonthSummary {
	m := w.Months[key]
	income, expense := monthFigures(m)
	txs := m.Transactions
	if txs == nil {
		txs = []core.Transaction{}
	}
	return MonthSummary{
		Month:        key,
		Income:       income,
		Expense:      expense,
		Balance:      income - expense,
		Transactions: txs,
	}
}

// Totals sums income and expense across all months.
func Totals(w core.Wallet) GrandTotals {
	var g GrandTotals
	for _, m := range w.Months {
		income, expense := monthFigures(m)
		g.Income += income
		g.Expense += expense
	}
	g.Balance = g.Income - g.Expense
	return g
}

// CategoryTotals groups every transaction of the wallet by its literal
// category string and sums the amounts.
func CategoryTotals(w core.Wallet) map[string]float64 {
	out := map[string]float64{}
	for _, m := range w.Months {
		addCategories(out, m.Transactions)
	}
	return out
}

// MonthCategoryTotals is CategoryTotals restricted to one month.
func MonthCategoryTotals(w core.Wallet, key core.MonthKey) map[string]float64 {
	out := map[string]float64{}
	addCategories(out, w.Months[key].Transactions)
	return out
}

func addCategories(out map[string]float64, txs []core.Transaction) {
	for _, t := range txs {
		out[t.Category] += t.Amount
	}
}

// SortedCategories orders a totals map by amount descending, then name, and
// attaches the icon of the first transaction seen for each category.
func SortedCategories(totals map[string]float64, txs []core.Transaction) []CategoryAmount {
	icons := map[string]string{}
	for _, t := range txs {
		if _, ok := icons[t.Category]; !ok && t.CategoryIcon != "" {
			icons[t.Category] = t.CategoryIcon
		}
	}
	out := make([]CategoryAmount, 0, len(totals))
	for name, amt := range totals {
		out = append(out, CategoryAmount{Name: name, Icon: icons[name], Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// AllTransactions flattens the wallet's transactions, latest month first.
func AllTransactions(w core.Wallet) []core.Transaction {
	var out []core.Transaction
	for _, row := range ListMonths(w, nil) {
		out = append(out, w.Months[row.Month].Transactions...)
	}
	return out
}
