package models

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ReceiptStatus
		to   ReceiptStatus
		want bool
	}{
		{name: "pending to extracted", from: StatusPending, to: StatusExtracted, want: true},
		{name: "pending to failed", from: StatusPending, to: StatusFailed, want: true},
		{name: "pending skips reconciliation", from: StatusPending, to: StatusReconciled, want: false},
		{name: "extracted to reconciled", from: StatusExtracted, to: StatusReconciled, want: true},
		{name: "extracted to needs_review", from: StatusExtracted, to: StatusNeedsReview, want: true},
		{name: "extracted cannot finalize directly", from: StatusExtracted, to: StatusFinalized, want: false},
		{name: "reconciled to finalized", from: StatusReconciled, to: StatusFinalized, want: true},
		{name: "review loop reopens extraction", from: StatusNeedsReview, to: StatusExtracted, want: true},
		{name: "review can finalize", from: StatusNeedsReview, to: StatusFinalized, want: true},
		{name: "finalized is terminal", from: StatusFinalized, to: StatusFailed, want: false},
		{name: "failed is terminal", from: StatusFailed, to: StatusPending, want: false},
		{name: "no self transition", from: StatusExtracted, to: StatusExtracted, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTransitionTo(t *testing.T) {
	d := &ReceiptDraft{Status: StatusPending}

	if err := d.TransitionTo(StatusExtracted); err != nil {
		t.Fatalf("TransitionTo(extracted): %v", err)
	}
	if d.Status != StatusExtracted {
		t.Fatalf("status = %q, want extracted", d.Status)
	}

	err := d.TransitionTo(StatusFinalized)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if d.Status != StatusExtracted {
		t.Errorf("status changed on rejected transition: %q", d.Status)
	}
}
