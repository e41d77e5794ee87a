package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when an operation mixes two currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money is an exact amount in minor units (cents, kopecks, ...) of a single
// currency. All arithmetic stays in integer minor units; floating point never
// enters a stored or compared value.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New creates a Money from a minor-unit amount and an ISO 4217 currency code.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Amount: 0, Currency: currency}
}

// Parse converts a decimal string like "12.99" into minor units. The exponent
// gives the number of minor-unit digits (2 for most currencies). Parsing goes
// through shopspring/decimal so the value is never represented as a float.
func Parse(s, currency string, exponent int32) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	scaled := d.Shift(exponent)
	if !scaled.IsInteger() {
		return Money{}, fmt.Errorf("amount %q has more than %d decimal places", s, exponent)
	}
	return Money{Amount: scaled.IntPart(), Currency: currency}, nil
}

// String renders the amount with two minor-unit digits, e.g. "12.99 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", decimal.New(m.Amount, -2).StringFixed(2), m.Currency)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Neg()
	}
	return m
}

// MulInt returns m multiplied by an integer factor (e.g. a line quantity).
func (m Money) MulInt(n int64) Money {
	return Money{Amount: m.Amount * n, Currency: m.Currency}
}

// Cmp compares amounts: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}
