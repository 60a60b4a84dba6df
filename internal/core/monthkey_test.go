package core

import (
	"errors"
	"testing"
	"time"
)

func TestMonthKeyParse(t *testing.T) {
	cases := []struct {
		in    MonthKey
		year  int
		month time.Month
		ok    bool
	}{
		{"January 2025", 2025, time.January, true},
		{"December 2024", 2024, time.December, true},
		{" June  2023 ", 2023, time.June, true},
		{"Jan 2025", 0, 0, false},
		{"january 2025", 0, 0, false},
		{"March", 0, 0, false},
		{"March twenty", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		y, m, err := tc.in.Parse()
		if tc.ok {
			if err != nil || y != tc.year || m != tc.month {
				t.Fatalf("%q expected %d/%v, got %d/%v (err=%v)", tc.in, tc.year, tc.month, y, m, err)
			}
			continue
		}
		if !errors.Is(err, ErrMalformedMonthKey) {
			t.Fatalf("%q expected ErrMalformedMonthKey, got %v", tc.in, err)
		}
	}
}

func TestNewMonthKey(t *testing.T) {
	if k := NewMonthKey(2025, time.March); k != "March 2025" {
		t.Fatalf("got %q", k)
	}
	if k := MonthKeyOf(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)); k != "December 2024" {
		t.Fatalf("got %q", k)
	}
}

func TestMonthKeyValidate(t *testing.T) {
	if err := MonthKey("March 2025").Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	for _, k := range []MonthKey{"March.2025", "$March 2025", "Smarch 2025"} {
		if err := k.Validate(); err == nil {
			t.Fatalf("%q expected error", k)
		}
	}
}

func TestMonthKeyOrdinal(t *testing.T) {
	a, _ := MonthKey("December 2024").Ordinal()
	b, _ := MonthKey("January 2025").Ordinal()
	if b != a+1 {
		t.Fatalf("expected consecutive ordinals, got %d and %d", a, b)
	}
}

func TestMonthKeyValidateCanonical(t *testing.T) {
	if err := MonthKey(" June  2023 ").Validate(); !errors.Is(err, ErrMalformedMonthKey) {
		t.Fatalf("expected non-canonical key to be rejected, got %v", err)
	}
}
