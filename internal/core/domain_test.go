package core

import (
	"strings"
	"testing"
	"time"
)

func TestWalletIDValidate(t *testing.T) {
	cases := []struct {
		id WalletID
		ok bool
	}{
		{"wallet_lq3k2jabc123", true},
		{NewWalletID(time.Now()), true},
		{"wallet_", false},
		{"lq3k2jabc123", false},
		{"wallet_ABC", false},
		{"wallet_has space", false},
		{WalletID("wallet_" + strings.Repeat("a", 65)), false},
	}
	for i, tc := range cases {
		err := tc.id.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d (%q) expected ok, got %v", i, tc.id, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d (%q) expected error", i, tc.id)
		}
	}
}

func TestNewWalletIDUnique(t *testing.T) {
	now := time.Now()
	seen := map[WalletID]bool{}
	for i := 0; i < 200; i++ {
		id := NewWalletID(now)
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{ID: "1", Title: "Milk", Amount: 40, Type: Expense, Category: "Grocery"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Title: "Milk", Amount: 40, Type: Expense},
		{ID: "1", Title: " ", Amount: 40, Type: Expense},
		{ID: "1", Title: strings.Repeat("x", MaxTitleLength+1), Amount: 40, Type: Expense},
		{ID: "1", Title: "Milk", Amount: -1, Type: Expense},
		{ID: "1", Title: "Milk", Amount: 1, Type: "transfer"},
		{ID: "1", Title: "Milk", Amount: 1, Type: Expense, AccountType: "Card"},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMonthRecordValidateDuplicateIDs(t *testing.T) {
	m := MonthRecord{Transactions: []Transaction{
		{ID: "a", Title: "x", Amount: 1, Type: Expense},
		{ID: "a", Title: "y", Amount: 2, Type: Expense},
	}}
	if err := m.Validate(); err == nil {
		t.Fatal("expected duplicate id error")
	}
	if err := (MonthRecord{Income: -1}).Validate(); err == nil {
		t.Fatal("expected negative income error")
	}
}

func TestNewTransactionCopiesCategory(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	tx := NewTransaction(TransactionInput{Title: " Rent ", Amount: 2000, Category: "House Rent"}, now)

	if tx.ID == "" || tx.Type != Expense {
		t.Fatalf("unexpected identity: %+v", tx)
	}
	if tx.Title != "Rent" || tx.Category != "House Rent" || tx.CategoryIcon != "🏠" {
		t.Fatalf("unexpected fields: %+v", tx)
	}
	if tx.AccountType != AccountTransaction {
		t.Fatalf("expected default account type, got %q", tx.AccountType)
	}
	if tx.Date != "Fri Mar 14 2025" {
		t.Fatalf("unexpected date %q", tx.Date)
	}

	// renaming the catalog later must not touch the stored copy
	saved := Categories[3].Name
	Categories[3].Name = "Rent"
	defer func() { Categories[3].Name = saved }()
	if tx.Category != "House Rent" {
		t.Fatalf("category changed with catalog: %q", tx.Category)
	}
}

func TestTransactionApplyKeepsIdentity(t *testing.T) {
	orig := Transaction{ID: "t1", Title: "a", Amount: 1, Type: Expense, Date: "Sat Mar 01 2025", AccountType: AccountCash}
	got := orig.Apply(TransactionInput{Title: "b", Amount: 2, Category: "Health"})
	if got.ID != "t1" || got.Date != orig.Date || got.Type != Expense {
		t.Fatalf("identity fields changed: %+v", got)
	}
	if got.Title != "b" || got.Amount != 2 || got.Category != "Health" || got.CategoryIcon != "🩺" {
		t.Fatalf("edit not applied: %+v", got)
	}
	if got.AccountType != AccountCash {
		t.Fatalf("account type should be kept when not provided, got %q", got.AccountType)
	}
}

func TestWalletCloneIsDeep(t *testing.T) {
	w := Wallet{Months: map[MonthKey]MonthRecord{
		"March 2025": {Income: 10, Transactions: []Transaction{{ID: "a", Title: "x", Amount: 1, Type: Expense}}},
	}}
	c := w.Clone()
	m := c.Months["March 2025"]
	m.Transactions[0].Amount = 99
	c.Months["March 2025"] = m
	c.Months["April 2025"] = MonthRecord{}

	if w.Months["March 2025"].Transactions[0].Amount != 1 {
		t.Fatal("clone shares transaction storage")
	}
	if _, ok := w.Months["April 2025"]; ok {
		t.Fatal("clone shares month map")
	}
}

func TestCloneKeepsEmptyTransactionList(t *testing.T) {
	m := MonthRecord{Income: 1, Transactions: []Transaction{}}
	c := m.Clone()
	if c.Transactions == nil {
		t.Fatal("clone turned an empty list into nil")
	}
	if (MonthRecord{}).Clone().Transactions != nil {
		t.Fatal("clone invented a list")
	}
}

func TestMonthRecordEqual(t *testing.T) {
	a := Transaction{ID: "1", Title: "veg", Amount: 5, Type: Expense}
	b := a
	b.Amount = 6
	cases := []struct {
		name string
		x, y MonthRecord
		want bool
	}{
		{"nil and empty", MonthRecord{Income: 1}, MonthRecord{Income: 1, Transactions: []Transaction{}}, true},
		{"same transactions", MonthRecord{Transactions: []Transaction{a}}, MonthRecord{Transactions: []Transaction{a}}, true},
		{"income differs", MonthRecord{Income: 1}, MonthRecord{Income: 2}, false},
		{"amount differs", MonthRecord{Transactions: []Transaction{a}}, MonthRecord{Transactions: []Transaction{b}}, false},
		{"length differs", MonthRecord{Transactions: []Transaction{a}}, MonthRecord{}, false},
	}
	for _, tc := range cases {
		if got := tc.x.Equal(tc.y); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNormalizeClampsIncome(t *testing.T) {
	w := Wallet{Months: map[MonthKey]MonthRecord{"May 2025": {Income: -5}}}.Normalize()
	if w.Months["May 2025"].Income != 0 {
		t.Fatalf("expected 0, got %v", w.Months["May 2025"].Income)
	}
	if w.Months["May 2025"].Transactions == nil {
		t.Fatal("expected an empty transaction list")
	}
	if (Wallet{}).Normalize().Months == nil {
		t.Fatal("expected non-nil months")
	}
}

func TestLookupCategoryFallback(t *testing.T) {
	if c := LookupCategory("Petrol"); c.Icon != "⛽" {
		t.Fatalf("unexpected %+v", c)
	}
	if c := LookupCategory("Nope"); c.Name != "Grocery" {
		t.Fatalf("expected default, got %+v", c)
	}
}
