package wallet

import (
	"fmt"

	"moneymate/internal/core"
)

// SaveMonth sets a month's income, creating the month when absent. Existing
// transactions are kept.
func SaveMonth(key core.MonthKey, income float64) Updater {
	return func(w core.Wallet) (core.Wallet, error) {
		if err := key.Validate(); err != nil {
			return w, err
		}
		if income < 0 {
			return w, core.ErrInvalidIncome
		}
		m := w.Months[key]
		m.Income = income
		if m.Transactions == nil {
			m.Transactions = []core.Transaction{}
		}
		w.Months[key] = m
		return w, nil
	}
}

// AddTransaction appends tx to an existing month.
func AddTransaction(key core.MonthKey, tx core.Transaction) Updater {
	return func(w core.Wallet) (core.Wallet, error) {
		m, ok := w.Months[key]
		if !ok {
			return w, fmt.Errorf("%w: %s", ErrMonthNotFound, key)
		}
		if err := tx.Validate(); err != nil {
			return w, err
		}
		if m.Index(tx.ID) >= 0 {
			return w, fmt.Errorf("%w: %s", core.ErrDuplicateID, tx.ID)
		}
		m.Transactions = append(m.Transactions, tx)
		w.Months[key] = m
		return w, nil
	}
}

// UpdateTransaction edits the transaction with the given id in place.
func UpdateTransaction(key core.MonthKey, id string, in core.TransactionInput) Updater {
	return func(w core.Wallet) (core.Wallet, error) {
		m, ok := w.Months[key]
		if !ok {
			return w, fmt.Errorf("%w: %s", ErrMonthNotFound, key)
		}
		i := m.Index(id)
		if i < 0 {
			return w, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		updated := m.Transactions[i].Apply(in)
		if err := updated.Validate(); err != nil {
			return w, err
		}
		m.Transactions[i] = updated
		w.Months[key] = m
		return w, nil
	}
}

// RemoveTransaction drops the transaction with the given id.
func RemoveTransaction(key core.MonthKey, id string) Updater {
	return func(w core.Wallet) (core.Wallet, error) {
		m, ok := w.Months[key]
		if !ok {
			return w, fmt.Errorf("%w: %s", ErrMonthNotFound, key)
		}
		i := m.Index(id)
		if i < 0 {
			return w, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		m.Transactions = append(m.Transactions[:i], m.Transactions[i+1:]...)
		w.Months[key] = m
		return w, nil
	}
}
