package wallet

import (
	"errors"
	"testing"

	"moneymate/internal/core"
)

func walletWith(key core.MonthKey, txs ...core.Transaction) core.Wallet {
	w := core.EmptyWallet()
	w.Months[key] = core.MonthRecord{Income: 100, Transactions: txs}
	return w
}

func TestSaveMonthKeepsTransactions(t *testing.T) {
	w := walletWith("March 2025", tx("1", "veg", 5, "Grocery"))
	got, err := SaveMonth("March 2025", 200)(w)
	if err != nil {
		t.Fatal(err)
	}
	m := got.Months["March 2025"]
	if m.Income != 200 || len(m.Transactions) != 1 {
		t.Fatalf("unexpected month: %+v", m)
	}
}

func TestSaveMonthValidation(t *testing.T) {
	cases := []struct {
		key    core.MonthKey
		income float64
		want   error
	}{
		{"March 2025", -1, core.ErrInvalidIncome},
		{"Marchh 2025", 1, core.ErrMalformedMonthKey},
	}
	for _, tc := range cases {
		if _, err := SaveMonth(tc.key, tc.income)(core.EmptyWallet()); !errors.Is(err, tc.want) {
			t.Fatalf("%q/%v: expected %v, got %v", tc.key, tc.income, tc.want, err)
		}
	}
}

func TestAddTransaction(t *testing.T) {
	w := walletWith("March 2025", tx("1", "veg", 5, "Grocery"))
	if _, err := AddTransaction("March 2025", tx("1", "dup", 1, "Grocery"))(w); !errors.Is(err, core.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	got, err := AddTransaction("March 2025", tx("2", "milk", 3, "Grocery"))(w)
	if err != nil {
		t.Fatal(err)
	}
	if txs := got.Months["March 2025"].Transactions; len(txs) != 2 || txs[1].ID != "2" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}
}

func TestUpdateTransaction(t *testing.T) {
	w := walletWith("March 2025", tx("1", "veg", 5, "Grocery"), tx("2", "milk", 3, "Grocery"))
	got, err := UpdateTransaction("March 2025", "2", core.TransactionInput{Title: "oat milk", Amount: 4, Category: "Grocery"})(w)
	if err != nil {
		t.Fatal(err)
	}
	u := got.Months["March 2025"].Transactions[1]
	if u.ID != "2" || u.Title != "oat milk" || u.Amount != 4 || u.Date != "Sat Mar 01 2025" {
		t.Fatalf("unexpected update: %+v", u)
	}
	if _, err := UpdateTransaction("March 2025", "9", core.TransactionInput{Title: "x"})(w); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestRemoveTransaction(t *testing.T) {
	w := walletWith("March 2025", tx("1", "veg", 5, "Grocery"), tx("2", "milk", 3, "Grocery"))
	got, err := RemoveTransaction("March 2025", "1")(w.Clone())
	if err != nil {
		t.Fatal(err)
	}
	if txs := got.Months["March 2025"].Transactions; len(txs) != 1 || txs[0].ID != "2" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}
	if _, err := RemoveTransaction("April 2025", "1")(w); !errors.Is(err, ErrMonthNotFound) {
		t.Fatalf("expected ErrMonthNotFound, got %v", err)
	}
}
