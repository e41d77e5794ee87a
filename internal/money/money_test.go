package money

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     int64
		wantErr  bool
	}{
		{name: "plain decimal", input: "12.99", want: 1299},
		{name: "whole number", input: "30", want: 3000},
		{name: "one decimal place", input: "4.5", want: 450},
		{name: "zero", input: "0.00", want: 0},
		{name: "negative", input: "-3.25", want: -325},
		{name: "too many decimals", input: "1.999", wantErr: true},
		{name: "not a number", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.input, "USD", 2)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if m.Amount != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, m.Amount, tt.want)
			}
			if m.Currency != "USD" {
				t.Errorf("Parse(%q) currency = %q, want USD", tt.input, m.Currency)
			}
		})
	}
}

func TestArithmeticCurrencyMismatch(t *testing.T) {
	usd := New(100, "USD")
	eur := New(100, "EUR")

	if _, err := usd.Add(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Add across currencies: err = %v, want ErrCurrencyMismatch", err)
	}
	if _, err := usd.Sub(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Sub across currencies: err = %v, want ErrCurrencyMismatch", err)
	}
	if _, err := usd.Cmp(eur); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Cmp across currencies: err = %v, want ErrCurrencyMismatch", err)
	}
}

func TestAddSub(t *testing.T) {
	a := New(1050, "USD")
	b := New(325, "USD")

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if sum.Amount != 1375 {
		t.Errorf("Add = %d, want 1375", sum.Amount)
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub error: %v", err)
	}
	if diff.Amount != 725 {
		t.Errorf("Sub = %d, want 725", diff.Amount)
	}
}
