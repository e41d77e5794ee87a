package money

import (
	"errors"
	"math"
	"testing"
)

func TestApportion(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		weights []int64
		want    []int64
		wantErr error
	}{
		{
			name:    "three way even split",
			total:   3000, // $30.00
			weights: []int64{1, 1, 1},
			want:    []int64{1000, 1000, 1000},
		},
		{
			name:    "three way split with remainder goes to first by order",
			total:   1001, // $10.01
			weights: []int64{1, 1, 1},
			want:    []int64{334, 334, 333},
		},
		{
			name:    "proportional forty percent",
			total:   400, // $4.00 tax, 40/60 item subtotals
			weights: []int64{2000, 3000},
			want:    []int64{160, 240},
		},
		{
			name:    "uneven weights",
			total:   100,
			weights: []int64{1, 2},
			want:    []int64{33, 67},
		},
		{
			name:    "zero weight participant gets nothing",
			total:   100,
			weights: []int64{1, 0, 1},
			want:    []int64{50, 0, 50},
		},
		{
			name:    "negative total splits like a discount",
			total:   -1001,
			weights: []int64{1, 1, 1},
			want:    []int64{-334, -334, -333},
		},
		{
			name:    "total smaller than participant count",
			total:   2,
			weights: []int64{1, 1, 1},
			want:    []int64{1, 1, 0},
		},
		{
			name:    "all weights zero",
			total:   100,
			weights: []int64{0, 0},
			wantErr: ErrZeroTotalWeight,
		},
		{
			name:    "no weights",
			total:   100,
			weights: nil,
			wantErr: ErrZeroTotalWeight,
		},
		{
			name:    "negative weight",
			total:   100,
			weights: []int64{1, -1},
			wantErr: ErrNegativeWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := Apportion(New(tt.total, "USD"), tt.weights)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Apportion err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apportion error: %v", err)
			}
			if len(shares) != len(tt.want) {
				t.Fatalf("Apportion returned %d shares, want %d", len(shares), len(tt.want))
			}
			var sum int64
			for i, s := range shares {
				if s.Amount != tt.want[i] {
					t.Errorf("share[%d] = %d, want %d", i, s.Amount, tt.want[i])
				}
				sum += s.Amount
			}
			if sum != tt.total {
				t.Errorf("shares sum to %d, want %d", sum, tt.total)
			}
		})
	}
}

// TestApportionExactness sweeps a range of totals and weight sets and checks
// the two closure properties: shares sum to the total exactly, and every
// share is within one minor unit of its exact rational value.
func TestApportionExactness(t *testing.T) {
	weightSets := [][]int64{
		{1},
		{1, 1},
		{1, 1, 1},
		{1, 2, 3},
		{7, 11, 13},
		{1, 1, 1, 1, 1, 1, 1},
		{100, 1},
		{99, 98, 97, 1},
	}

	for _, weights := range weightSets {
		var weightSum int64
		for _, w := range weights {
			weightSum += w
		}
		for total := int64(0); total <= 1000; total += 7 {
			shares, err := Apportion(New(total, "USD"), weights)
			if err != nil {
				t.Fatalf("Apportion(%d, %v) error: %v", total, weights, err)
			}
			var sum int64
			for i, s := range shares {
				sum += s.Amount
				// |share*weightSum - total*weight| < weightSum means the
				// share is within one unit of the exact rational value.
				diff := s.Amount*weightSum - total*weights[i]
				if diff < 0 {
					diff = -diff
				}
				if diff >= weightSum {
					t.Fatalf("Apportion(%d, %v): share[%d]=%d is off by a full unit", total, weights, i, s.Amount)
				}
			}
			if sum != total {
				t.Fatalf("Apportion(%d, %v): shares sum to %d", total, weights, sum)
			}
		}
	}
}

// TestApportionLargeValues covers totals and weights whose naive product
// exceeds int64: the split must still be exact instead of wrapping around.
func TestApportionLargeValues(t *testing.T) {
	total := int64(math.MaxInt64 - 2)
	weights := []int64{3, 1, 1}

	shares, err := Apportion(New(total, "USD"), weights)
	if err != nil {
		t.Fatalf("Apportion error: %v", err)
	}

	var sum int64
	for _, s := range shares {
		if s.Amount < 0 {
			t.Fatalf("share went negative: %d", s.Amount)
		}
		sum += s.Amount
	}
	if sum != total {
		t.Fatalf("shares sum to %d, want %d", sum, total)
	}
	if shares[0] != shares[1].MulInt(3) && shares[0].Amount != shares[1].MulInt(3).Amount+1 {
		t.Fatalf("weight-3 share %d is not triple the weight-1 share %d", shares[0].Amount, shares[1].Amount)
	}

	largeWeights := []int64{math.MaxInt64 / 2, math.MaxInt64 / 2, math.MaxInt64 / 2}
	if _, err := Apportion(New(100, "USD"), largeWeights); !errors.Is(err, ErrWeightOverflow) {
		t.Fatalf("err = %v, want weight overflow", err)
	}
}

func TestSum(t *testing.T) {
	total, err := Sum("USD", []Money{New(100, "USD"), New(250, "USD"), New(-50, "USD")})
	if err != nil {
		t.Fatalf("Sum error: %v", err)
	}
	if total.Amount != 300 {
		t.Errorf("Sum = %d, want 300", total.Amount)
	}

	if _, err := Sum("USD", []Money{New(100, "USD"), New(1, "EUR")}); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("Sum across currencies: err = %v, want ErrCurrencyMismatch", err)
	}

	empty, err := Sum("EUR", nil)
	if err != nil || empty.Amount != 0 || empty.Currency != "EUR" {
		t.Errorf("Sum(nil) = %v, %v; want zero EUR", empty, err)
	}
}
