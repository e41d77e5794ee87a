package money

import (
	"errors"
	"math/bits"
	"sort"
)

// ErrZeroTotalWeight is returned when the combined weight of all shares is zero.
var ErrZeroTotalWeight = errors.New("combined weight is zero")

// ErrNegativeWeight is returned when any individual weight is negative.
var ErrNegativeWeight = errors.New("weight is negative")

// ErrWeightOverflow is returned when the combined weight exceeds int64.
var ErrWeightOverflow = errors.New("combined weight overflows")

// Apportion splits total across weights using largest-remainder integer
// apportionment: each share starts at the floor of its exact proportional
// value, then the leftover minor units are handed out one at a time to the
// shares with the largest fractional remainder, ties broken by input order.
// The shares always sum to total exactly and each share is within one minor
// unit of its exact rational value. Negative totals (discounts) are split by
// apportioning the absolute value and negating every share.
func Apportion(total Money, weights []int64) ([]Money, error) {
	if len(weights) == 0 {
		return nil, ErrZeroTotalWeight
	}

	var weightSum int64
	for _, w := range weights {
		if w < 0 {
			return nil, ErrNegativeWeight
		}
		weightSum += w
		if weightSum < 0 {
			return nil, ErrWeightOverflow
		}
	}
	if weightSum == 0 {
		return nil, ErrZeroTotalWeight
	}

	if total.Amount < 0 {
		shares, err := Apportion(total.Neg(), weights)
		if err != nil {
			return nil, err
		}
		for i := range shares {
			shares[i] = shares[i].Neg()
		}
		return shares, nil
	}

	shares := make([]Money, len(weights))
	remainders := make([]int64, len(weights))
	var distributed int64
	for i, w := range weights {
		// total*w can exceed int64, so the product goes through a 128-bit
		// intermediate. The quotient is at most total (weightSum >= w), so
		// it always fits back into int64.
		hi, lo := bits.Mul64(uint64(total.Amount), uint64(w))
		floor, rem := bits.Div64(hi, lo, uint64(weightSum))
		shares[i] = Money{Amount: int64(floor), Currency: total.Currency}
		remainders[i] = int64(rem)
		distributed += int64(floor)
	}

	// Hand out the leftover units to the largest fractional remainders.
	leftover := total.Amount - distributed
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := int64(0); i < leftover; i++ {
		shares[order[i]].Amount++
	}

	return shares, nil
}

// Sum adds a slice of amounts, failing on mixed currencies. An empty slice
// sums to the zero value of the given currency.
func Sum(currency string, amounts []Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		total, err = total.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
