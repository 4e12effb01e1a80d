package core

import "testing"

func TestParseSignedCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "dot separator", input: "12.34", want: 1234},
		{name: "comma separator", input: "12,34", want: 1234},
		{name: "negative", input: "-12.34", want: -1234},
		{name: "explicit plus", input: "+7", want: 700},
		{name: "no fraction", input: "120", want: 12000},
		{name: "one fractional digit", input: "5.5", want: 550},
		{name: "third digit rounds down", input: "12.344", want: 1234},
		{name: "third digit rounds up", input: "12.346", want: 1235},
		{name: "leading dot", input: ".50", want: 50},
		{name: "zero rejected", input: "0.00", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "letters rejected", input: "12a.30", wantErr: true},
		{name: "two dots rejected", input: "1.2.3", wantErr: true},
		{name: "overflow rejected", input: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignedCents(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSignedCents(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignedCents(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSignedCents(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestMoneySigned(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		kind Kind
		want int64
	}{
		{name: "expense forces negative", in: 300, kind: KindExpense, want: -300},
		{name: "expense keeps negative", in: -300, kind: KindExpense, want: -300},
		{name: "income forces positive", in: -200, kind: KindIncome, want: 200},
		{name: "income keeps positive", in: 200, kind: KindIncome, want: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Money{Cents: tt.in}.Signed(tt.kind)
			if got.Cents != tt.want {
				t.Errorf("Signed(%v) = %d, want %d", tt.kind, got.Cents, tt.want)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 1234, want: "12.34"},
		{cents: -1234, want: "-12.34"},
		{cents: 5, want: "0.05"},
		{cents: -5, want: "-0.05"},
		{cents: 0, want: "0.00"},
	}

	for _, tt := range tests {
		if got := (Money{Cents: tt.cents}).String(); got != tt.want {
			t.Errorf("Money{%d}.String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
