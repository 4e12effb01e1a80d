package core

import (
	"testing"
	"time"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases", input: "ACME Corp", want: "acme corp"},
		{name: "collapses whitespace", input: "  acme   corp  ", want: "acme corp"},
		{name: "strips punctuation", input: "ACME *Corp, Inc.", want: "acme corp inc"},
		{name: "keeps digits", input: "Store #42", want: "store 42"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDescription(tt.input); got != tt.want {
				t.Errorf("NormalizeDescription(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDedupKey(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	amount := Money{Cents: -4500}

	a := DedupKey(date, amount, "ACME *Corp")
	b := DedupKey(date, amount, "acme corp")
	if a != b {
		t.Errorf("keys for equivalent descriptions differ: %s vs %s", a, b)
	}

	// Time-of-day must not affect the key, only the calendar date.
	later := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)
	if DedupKey(later, amount, "acme corp") != a {
		t.Error("key changed with time of day")
	}

	if DedupKey(date.AddDate(0, 0, 1), amount, "acme corp") == a {
		t.Error("key did not change with date")
	}
	if DedupKey(date, Money{Cents: -4600}, "acme corp") == a {
		t.Error("key did not change with amount")
	}
}
