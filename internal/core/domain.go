package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"

	AccountTransaction AccountType = "Transaction"
	AccountCash        AccountType = "Cash"
)

// MaxTitleLength bounds the free-text label of a transaction.
const MaxTitleLength = 60

// DisplayDateLayout is the layout of Transaction.Date, captured once at creation.
const DisplayDateLayout = "Mon Jan 02 2006"

type (
	TransactionType string
	AccountType     string

	// WalletID identifies exactly one Wallet document.
	WalletID string

	// Wallet is the root document of one household's finances.
	Wallet struct {
		CreatedAt int64                    `json:"createdAt,omitempty"` // unix millis, set once
		Months    map[MonthKey]MonthRecord `json:"months"`
	}

	MonthRecord struct {
		Income       float64       `json:"income"`
		Transactions []Transaction `json:"transactions"`
	}

	Transaction struct {
		ID           string          `json:"id"`
		Title        string          `json:"title"`
		Amount       float64         `json:"amount"`
		Type         TransactionType `json:"type"`
		Category     string          `json:"category"`
		CategoryIcon string          `json:"categoryIcon"`
		Notes        string          `json:"notes,omitempty"`
		AccountType  AccountType     `json:"accountType,omitempty"`
		Image        string          `json:"image,omitempty"` // local URI, may not resolve on other devices
		Date         string          `json:"date"`
	}
)

var (
	ErrInvalidWalletID    = errors.New("invalid wallet id")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidIncome      = errors.New("invalid income")
	ErrEmptyTitle         = errors.New("empty title")
	ErrDuplicateID        = errors.New("duplicate transaction id")
)

var walletIDPattern = regexp.MustCompile(`^wallet_[0-9a-z_-]{1,64}$`)

// Validate checks the token shape shared through invite links.
func (id WalletID) Validate() error {
	if !walletIDPattern.MatchString(string(id)) {
		return fmt.Errorf("%w: %q", ErrInvalidWalletID, string(id))
	}
	return nil
}

func (id WalletID) String() string { return string(id) }

// NewWallet returns an empty wallet stamped with the creation time.
func NewWallet(now time.Time) Wallet {
	return Wallet{CreatedAt: now.UnixMilli(), Months: map[MonthKey]MonthRecord{}}
}

// EmptyWallet is the canonical value of a wallet whose document does not exist.
func EmptyWallet() Wallet {
	return Wallet{Months: map[MonthKey]MonthRecord{}}
}

// Normalize fills absent fields and clamps income so aggregation never sees
// nil maps or negative income.
func (w Wallet) Normalize() Wallet {
	if w.Months == nil {
		w.Months = map[MonthKey]MonthRecord{}
	}
	for k, m := range w.Months {
		if m.Income < 0 {
			m.Income = 0
		}
		if m.Transactions == nil {
			m.Transactions = []Transaction{}
		}
		w.Months[k] = m
	}
	return w
}

// Clone returns a deep copy so updaters can mutate freely.
func (w Wallet) Clone() Wallet {
	out := Wallet{CreatedAt: w.CreatedAt, Months: make(map[MonthKey]MonthRecord, len(w.Months))}
	for k, m := range w.Months {
		out.Months[k] = m.Clone()
	}
	return out
}

func (m MonthRecord) Clone() MonthRecord {
	out := MonthRecord{Income: m.Income}
	if m.Transactions != nil {
		out.Transactions = make([]Transaction, len(m.Transactions))
		copy(out.Transactions, m.Transactions)
	}
	return out
}

// Equal reports whether m and o hold the same income and transactions. A nil
// and an empty transaction list are equal.
func (m MonthRecord) Equal(o MonthRecord) bool {
	if m.Income != o.Income || len(m.Transactions) != len(o.Transactions) {
		return false
	}
	for i := range m.Transactions {
		if m.Transactions[i] != o.Transactions[i] {
			return false
		}
	}
	return true
}

// Index returns the position of the transaction with the given id, or -1.
func (m MonthRecord) Index(id string) int {
	for i, t := range m.Transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (m MonthRecord) Validate() error {
	if m.Income < 0 {
		return ErrInvalidIncome
	}
	seen := make(map[string]struct{}, len(m.Transactions))
	for _, t := range m.Transactions {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}
	if len(strings.TrimSpace(t.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len([]rune(t.Title)) > MaxTitleLength {
		return fmt.Errorf("%w: title too long (max %d characters)", ErrInvalidTransaction, MaxTitleLength)
	}
	if t.Amount < 0 {
		return ErrInvalidAmount
	}
	switch t.Type {
	case Expense, Income:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, t.Type)
	}
	switch t.AccountType {
	case "", AccountTransaction, AccountCash:
	default:
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidTransaction, t.AccountType)
	}
	return nil
}

// TransactionInput carries the editable fields of a transaction.
type TransactionInput struct {
	Title       string
	Amount      float64
	Category    string
	Notes       string
	AccountType AccountType
	Image       string
}

// NewTransaction builds an expense from the editor input, copying the
// category name and icon by value and stamping id and display date.
func NewTransaction(in TransactionInput, now time.Time) Transaction {
	cat := LookupCategory(in.Category)
	acct := in.AccountType
	if acct == "" {
		acct = AccountTransaction
	}
	return Transaction{
		ID:           NewTransactionID(),
		Title:        strings.TrimSpace(in.Title),
		Amount:       in.Amount,
		Type:         Expense,
		Category:     cat.Name,
		CategoryIcon: cat.Icon,
		Notes:        in.Notes,
		AccountType:  acct,
		Image:        in.Image,
		Date:         now.Format(DisplayDateLayout),
	}
}

// Apply edits a transaction in place. ID, Type and Date never change.
func (t Transaction) Apply(in TransactionInput) Transaction {
	cat := LookupCategory(in.Category)
	t.Title = strings.TrimSpace(in.Title)
	t.Amount = in.Amount
	t.Category = cat.Name
	t.CategoryIcon = cat.Icon
	t.Notes = in.Notes
	if in.AccountType != "" {
		t.AccountType = in.AccountType
	}
	t.Image = in.Image
	return t
}
