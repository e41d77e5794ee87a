// Package allocation computes each participant's exact owed amount for one
// finalized receipt. Every split uses largest-remainder apportionment, so no
// minor unit is ever lost or duplicated.
package allocation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

var (
	// ErrNotFinalized means the draft has not been committed yet; shares are
	// only derived from finalized receipts.
	ErrNotFinalized = errors.New("receipt is not finalized")

	// ErrUnassignedItem means a line item has no assigned participants.
	// Finalization must not proceed with orphaned items.
	ErrUnassignedItem = errors.New("line item has no assigned participants")

	// ErrZeroWeightAssignment means an item's assignees have a combined
	// weight of zero, so there is no way to split it.
	ErrZeroWeightAssignment = errors.New("assigned participants have zero combined weight")

	// ErrInconsistentAllocation signals a monetary-invariant violation after
	// allocation: a bug in the apportionment, not a data problem. Callers
	// must abort rather than persist the shares.
	ErrInconsistentAllocation = errors.New("allocated shares do not sum to declared total")
)

// Allocate derives one ParticipantShare per assigned participant of a
// finalized draft. Tax and tip are apportioned in proportion to each
// participant's item subtotal, discount likewise but subtracted, and any
// residual between the computed and declared totals (reconciliation slack)
// is closed onto the same apportionment so that the shares sum to the
// declared total exactly.
func Allocate(d *models.ReceiptDraft) ([]models.ParticipantShare, error) {
	if d.Status != models.StatusFinalized {
		return nil, fmt.Errorf("%w: draft %s is %q", ErrNotFinalized, d.ID, d.Status)
	}
	if d.Total == nil {
		return nil, fmt.Errorf("%w: draft %s has no declared total", ErrNotFinalized, d.ID)
	}

	// Participants in first-appearance order keeps remainder tie-breaking
	// stable across runs.
	var order []uuid.UUID
	index := make(map[uuid.UUID]int)
	itemSubtotals := make(map[uuid.UUID]money.Money)

	for _, item := range d.Items {
		if len(item.Assignments) == 0 {
			return nil, fmt.Errorf("%w: item %s (%q)", ErrUnassignedItem, item.ID, item.Description)
		}
		weights := make([]int64, len(item.Assignments))
		var weightSum int64
		for i, a := range item.Assignments {
			weights[i] = a.Weight
			weightSum += a.Weight
		}
		if weightSum == 0 {
			return nil, fmt.Errorf("%w: item %s (%q)", ErrZeroWeightAssignment, item.ID, item.Description)
		}

		shares, err := money.Apportion(item.Total(), weights)
		if err != nil {
			return nil, fmt.Errorf("split item %s: %w", item.ID, err)
		}
		for i, a := range item.Assignments {
			if _, seen := index[a.ParticipantID]; !seen {
				index[a.ParticipantID] = len(order)
				order = append(order, a.ParticipantID)
				itemSubtotals[a.ParticipantID] = money.Zero(d.Currency)
			}
			sum, err := itemSubtotals[a.ParticipantID].Add(shares[i])
			if err != nil {
				return nil, err
			}
			itemSubtotals[a.ParticipantID] = sum
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: receipt %s has no items", ErrUnassignedItem, d.ID)
	}

	// Adjustment weights follow each participant's item subtotal. When every
	// item subtotal is zero there is no proportion to follow, so adjustments
	// fall back to an equal split.
	weights := make([]int64, len(order))
	var weightSum int64
	for i, pid := range order {
		weights[i] = itemSubtotals[pid].Amount
		weightSum += weights[i]
	}
	if weightSum == 0 {
		for i := range weights {
			weights[i] = 1
		}
	}

	taxShares, err := money.Apportion(d.DeclaredOr(d.Tax), weights)
	if err != nil {
		return nil, fmt.Errorf("apportion tax: %w", err)
	}
	tipShares, err := money.Apportion(d.DeclaredOr(d.Tip), weights)
	if err != nil {
		return nil, fmt.Errorf("apportion tip: %w", err)
	}
	discountShares, err := money.Apportion(d.DeclaredOr(d.Discount), weights)
	if err != nil {
		return nil, fmt.Errorf("apportion discount: %w", err)
	}

	// Close the gap between the computed and declared totals. Within
	// reconciliation tolerance this residual is at most a few minor units;
	// anything larger was already resolved by an explicit confirmation.
	var allocated int64
	for i, pid := range order {
		allocated += itemSubtotals[pid].Amount + taxShares[i].Amount + tipShares[i].Amount - discountShares[i].Amount
	}
	residualShares, err := money.Apportion(money.New(d.Total.Amount-allocated, d.Currency), weights)
	if err != nil {
		return nil, fmt.Errorf("apportion residual: %w", err)
	}

	shares := make([]models.ParticipantShare, len(order))
	var owedSum int64
	for i, pid := range order {
		owed := itemSubtotals[pid].Amount + taxShares[i].Amount + tipShares[i].Amount -
			discountShares[i].Amount + residualShares[i].Amount
		shares[i] = models.ParticipantShare{
			ReceiptID:     d.ID,
			ParticipantID: pid,
			ItemsSubtotal: itemSubtotals[pid],
			Tax:           taxShares[i],
			Tip:           tipShares[i],
			Discount:      discountShares[i],
			Owed:          money.New(owed, d.Currency),
		}
		owedSum += owed
	}

	if owedSum != d.Total.Amount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInconsistentAllocation, owedSum, d.Total.Amount)
	}
	return shares, nil
}
