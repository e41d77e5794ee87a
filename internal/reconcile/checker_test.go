package reconcile

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

func ptr(amount int64) *money.Money {
	m := money.New(amount, "USD")
	return &m
}

func draftWithItems(prices []int64, quantities []int64) *models.ReceiptDraft {
	d := &models.ReceiptDraft{
		ID:       uuid.New(),
		Currency: "USD",
		Status:   models.StatusExtracted,
	}
	for i := range prices {
		d.Items = append(d.Items, models.LineItem{
			ID:        uuid.New(),
			UnitPrice: money.New(prices[i], "USD"),
			Quantity:  quantities[i],
		})
	}
	return d
}

func TestCheckMatchesWithinTolerance(t *testing.T) {
	tests := []struct {
		name       string
		subtotal   int64
		total      int64
		wantStatus models.ReceiptStatus
	}{
		{name: "exact match", subtotal: 5000, total: 5900, wantStatus: models.StatusReconciled},
		{name: "off by one per line is tolerated", subtotal: 5003, total: 5903, wantStatus: models.StatusReconciled},
		{name: "subtotal off beyond tolerance", subtotal: 5004, total: 5904, wantStatus: models.StatusNeedsReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Three items: 20.00 + 2x10.00 + 10.00 = 50.00 computed subtotal.
			d := draftWithItems([]int64{2000, 1000, 1000}, []int64{1, 2, 1})
			d.Subtotal = ptr(tt.subtotal)
			d.Tax = ptr(400)
			d.Tip = ptr(500)
			d.Total = ptr(tt.total)

			checker := &Checker{TolerancePerLine: 1}
			if err := checker.Check(d); err != nil {
				t.Fatalf("Check error: %v", err)
			}
			if d.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q (discrepancies: %v)", d.Status, tt.wantStatus, d.Discrepancies)
			}
			if tt.wantStatus == models.StatusNeedsReview && len(d.Discrepancies) == 0 {
				t.Error("needs_review draft has no discrepancy report")
			}
			if tt.wantStatus == models.StatusReconciled && len(d.Discrepancies) != 0 {
				t.Errorf("reconciled draft carries discrepancies: %v", d.Discrepancies)
			}
		})
	}
}

func TestCheckTotalMismatch(t *testing.T) {
	d := draftWithItems([]int64{2000, 3000}, []int64{1, 1})
	d.Subtotal = ptr(5000)
	d.Tax = ptr(400)
	d.Discount = ptr(1000)
	d.Total = ptr(5000) // computed is 50.00 + 4.00 - 10.00 = 44.00

	checker := &Checker{TolerancePerLine: 1}
	if err := checker.Check(d); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if d.Status != models.StatusNeedsReview {
		t.Fatalf("status = %q, want needs_review", d.Status)
	}
	if len(d.Discrepancies) != 1 {
		t.Fatalf("got %d discrepancies, want 1: %v", len(d.Discrepancies), d.Discrepancies)
	}
	disc := d.Discrepancies[0]
	if disc.Kind != "total" {
		t.Errorf("kind = %q, want total", disc.Kind)
	}
	if disc.Expected.Amount != 5000 || disc.Actual.Amount != 4400 || disc.Delta.Amount != -600 {
		t.Errorf("discrepancy = %+v", disc)
	}
}

func TestCheckMissingDeclaredTotal(t *testing.T) {
	d := draftWithItems([]int64{1000}, []int64{1})
	d.Subtotal = ptr(1000)

	checker := &Checker{TolerancePerLine: 1}
	if err := checker.Check(d); err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if d.Status != models.StatusNeedsReview {
		t.Errorf("status = %q, want needs_review when total is missing", d.Status)
	}
}

// A draft with no declared total can cycle through review more than once;
// every cycle must leave exactly one missing-total warning.
func TestCheckDoesNotAccumulateMissingTotalWarnings(t *testing.T) {
	d := draftWithItems([]int64{1000}, []int64{1})
	d.Subtotal = ptr(1000)

	checker := &Checker{TolerancePerLine: 1}
	for round := 0; round < 3; round++ {
		if err := checker.Check(d); err != nil {
			t.Fatalf("Check round %d error: %v", round, err)
		}
		if d.Status != models.StatusNeedsReview {
			t.Fatalf("round %d status = %q, want needs_review", round, d.Status)
		}

		count := 0
		for _, w := range d.Warnings {
			if w.Message == missingTotalWarning {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("round %d: %d missing-total warnings, want 1", round, count)
		}

		// A review that still does not supply a total reopens the draft.
		if err := d.TransitionTo(models.StatusExtracted); err != nil {
			t.Fatalf("reopen: %v", err)
		}
	}
}

func TestCheckRejectsWrongState(t *testing.T) {
	for _, status := range []models.ReceiptStatus{models.StatusPending, models.StatusReconciled, models.StatusFinalized, models.StatusFailed} {
		d := draftWithItems([]int64{1000}, []int64{1})
		d.Status = status
		if err := (&Checker{TolerancePerLine: 1}).Check(d); !errors.Is(err, ErrInvalidState) {
			t.Errorf("Check from %q: err = %v, want ErrInvalidState", status, err)
		}
	}
}

func TestFinalize(t *testing.T) {
	t.Run("from reconciled", func(t *testing.T) {
		d := &models.ReceiptDraft{Status: models.StatusReconciled, Total: ptr(1000)}
		if err := Finalize(d, false); err != nil {
			t.Fatalf("Finalize error: %v", err)
		}
		if d.Status != models.StatusFinalized {
			t.Errorf("status = %q", d.Status)
		}
	})

	t.Run("from needs_review requires confirmation", func(t *testing.T) {
		d := &models.ReceiptDraft{Status: models.StatusNeedsReview, Total: ptr(1000)}
		if err := Finalize(d, false); !errors.Is(err, ErrConfirmationRequired) {
			t.Fatalf("err = %v, want ErrConfirmationRequired", err)
		}
		if d.Status != models.StatusNeedsReview {
			t.Errorf("failed finalize mutated status to %q", d.Status)
		}
		if err := Finalize(d, true); err != nil {
			t.Fatalf("confirmed Finalize error: %v", err)
		}
		if d.Status != models.StatusFinalized {
			t.Errorf("status = %q", d.Status)
		}
	})

	t.Run("from needs_review without total", func(t *testing.T) {
		d := &models.ReceiptDraft{Status: models.StatusNeedsReview}
		if err := Finalize(d, true); !errors.Is(err, ErrInvalidState) {
			t.Errorf("err = %v, want ErrInvalidState", err)
		}
	})

	t.Run("from other states", func(t *testing.T) {
		for _, status := range []models.ReceiptStatus{models.StatusPending, models.StatusExtracted, models.StatusFailed, models.StatusFinalized} {
			d := &models.ReceiptDraft{Status: status, Total: ptr(1000)}
			if err := Finalize(d, true); !errors.Is(err, ErrInvalidState) {
				t.Errorf("Finalize from %q: err = %v, want ErrInvalidState", status, err)
			}
		}
	})
}
