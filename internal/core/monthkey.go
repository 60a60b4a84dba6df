package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthKey is the display key of a month inside a wallet, e.g. "January 2025".
type MonthKey string

var ErrMalformedMonthKey = errors.New("malformed month key")

var monthNames = map[string]time.Month{
	"January":   time.January,
	"February":  time.February,
	"March":     time.March,
	"April":     time.April,
	"May":       time.May,
	"June":      time.June,
	"July":      time.July,
	"August":    time.August,
	"September": time.September,
	"October":   time.October,
	"November":  time.November,
	"December":  time.December,
}

// NewMonthKey formats year and month as "<MonthName> <Year>".
func NewMonthKey(year int, month time.Month) MonthKey {
	return MonthKey(fmt.Sprintf("%s %d", month.String(), year))
}

// MonthKeyOf returns the key for the month containing t.
func MonthKeyOf(t time.Time) MonthKey {
	return NewMonthKey(t.Year(), t.Month())
}

// Parse splits the key into year and calendar month.
func (k MonthKey) Parse() (year int, month time.Month, err error) {
	parts := strings.Fields(string(k))
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedMonthKey, string(k))
	}
	m, ok := monthNames[parts[0]]
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown month name in %q", ErrMalformedMonthKey, string(k))
	}
	y, err := strconv.Atoi(parts[1])
	if err != nil || y < 1 || y > 9999 {
		return 0, 0, fmt.Errorf("%w: bad year in %q", ErrMalformedMonthKey, string(k))
	}
	return y, m, nil
}

// Validate rejects keys that are unsafe as document field names. Only keys
// that parse and are in canonical form are accepted for writes.
func (k MonthKey) Validate() error {
	if strings.ContainsAny(string(k), ".$") {
		return fmt.Errorf("%w: %q", ErrMalformedMonthKey, string(k))
	}
	y, m, err := k.Parse()
	if err != nil {
		return err
	}
	if NewMonthKey(y, m) != k {
		return fmt.Errorf("%w: %q is not canonical", ErrMalformedMonthKey, string(k))
	}
	return nil
}

func (k MonthKey) String() string { return string(k) }

// Ordinal maps a parsed key to a sortable number (year*12 + month index).
func (k MonthKey) Ordinal() (int, error) {
	y, m, err := k.Parse()
	if err != nil {
		return 0, err
	}
	return y*12 + int(m) - 1, nil
}
