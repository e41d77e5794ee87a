// Package reconcile verifies that a draft's line items are consistent with
// the amounts the receipt itself declares, and owns the draft lifecycle
// transitions around review and finalization.
package reconcile

import (
	"errors"
	"fmt"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

var (
	// ErrInvalidState is returned when a lifecycle operation is attempted
	// from a state it is not allowed in.
	ErrInvalidState = errors.New("invalid receipt state")

	// ErrConfirmationRequired is returned when finalizing a draft parked in
	// needs_review without an explicit reviewer confirmation.
	ErrConfirmationRequired = errors.New("explicit confirmation required to finalize a draft under review")
)

// missingTotalWarning is the warning Check itself appends. It is stripped on
// every run so a draft cycling through review does not accumulate duplicates.
const missingTotalWarning = "no declared total extracted; review required before finalization"

// Checker compares computed and declared amounts within a rounding tolerance.
type Checker struct {
	// TolerancePerLine is the allowed slack in minor units per line item:
	// the effective tolerance for a draft is TolerancePerLine * len(items).
	// One minor unit per line is the conservative default, covering per-line
	// rounding on the printed receipt.
	TolerancePerLine int64
}

// Check reconciles an extracted draft in place. On success the draft moves to
// reconciled; on any mismatch beyond tolerance (or a missing declared total)
// it moves to needs_review with a discrepancy report attached. The draft is
// never auto-corrected.
func (c *Checker) Check(d *models.ReceiptDraft) error {
	if d.Status != models.StatusExtracted {
		return fmt.Errorf("%w: cannot reconcile draft in state %q", ErrInvalidState, d.Status)
	}

	d.Discrepancies = nil
	d.Warnings = dropWarning(d.Warnings, missingTotalWarning)
	tolerance := c.TolerancePerLine * int64(len(d.Items))

	computedSubtotal := money.Zero(d.Currency)
	for _, item := range d.Items {
		var err error
		computedSubtotal, err = computedSubtotal.Add(item.Total())
		if err != nil {
			return err
		}
	}

	if d.Subtotal != nil {
		if delta := computedSubtotal.Amount - d.Subtotal.Amount; abs(delta) > tolerance {
			d.Discrepancies = append(d.Discrepancies, models.Discrepancy{
				Kind:     "subtotal",
				Expected: *d.Subtotal,
				Actual:   computedSubtotal,
				Delta:    money.New(delta, d.Currency),
			})
		}
	}

	if d.Total == nil {
		// Allocation needs a declared total to close against; a reviewer has
		// to supply or confirm one.
		d.Warnings = append(d.Warnings, models.Warning{
			Field:   "total",
			Message: missingTotalWarning,
		})
		return d.TransitionTo(models.StatusNeedsReview)
	}

	computedTotal := computedSubtotal.Amount +
		d.DeclaredOr(d.Tax).Amount +
		d.DeclaredOr(d.Tip).Amount -
		d.DeclaredOr(d.Discount).Amount
	if delta := computedTotal - d.Total.Amount; abs(delta) > tolerance {
		d.Discrepancies = append(d.Discrepancies, models.Discrepancy{
			Kind:     "total",
			Expected: *d.Total,
			Actual:   money.New(computedTotal, d.Currency),
			Delta:    money.New(delta, d.Currency),
		})
	}

	if len(d.Discrepancies) > 0 {
		return d.TransitionTo(models.StatusNeedsReview)
	}
	return d.TransitionTo(models.StatusReconciled)
}

// Finalize commits the draft as the immutable basis for settlement. From
// reconciled it proceeds directly; from needs_review it requires the caller
// to pass the reviewer's explicit confirmation. There is no path back.
func Finalize(d *models.ReceiptDraft, confirmed bool) error {
	switch d.Status {
	case models.StatusReconciled:
	case models.StatusNeedsReview:
		if !confirmed {
			return ErrConfirmationRequired
		}
		if d.Total == nil {
			return fmt.Errorf("%w: cannot finalize without a declared total", ErrInvalidState)
		}
	default:
		return fmt.Errorf("%w: cannot finalize draft in state %q", ErrInvalidState, d.Status)
	}
	return d.TransitionTo(models.StatusFinalized)
}

func dropWarning(ws []models.Warning, message string) []models.Warning {
	out := ws[:0]
	for _, w := range ws {
		if w.Message != message {
			out = append(out, w)
		}
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
