package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"splitsnap/internal/money"
)

// ErrInvalidTransition is returned when a status change is not allowed by
// the receipt lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

type ReceiptStatus string

const (
	StatusPending     ReceiptStatus = "pending"
	StatusExtracted   ReceiptStatus = "extracted"
	StatusReconciled  ReceiptStatus = "reconciled"
	StatusNeedsReview ReceiptStatus = "needs_review"
	StatusFinalized   ReceiptStatus = "finalized"
	StatusFailed      ReceiptStatus = "failed"
)

// validTransitions is the one-directional receipt lifecycle. "failed" is
// reachable from any state except "finalized"; nothing leaves "finalized".
var validTransitions = map[ReceiptStatus][]ReceiptStatus{
	StatusPending:     {StatusExtracted, StatusFailed},
	StatusExtracted:   {StatusReconciled, StatusNeedsReview, StatusFailed},
	StatusReconciled:  {StatusFinalized, StatusFailed},
	StatusNeedsReview: {StatusExtracted, StatusFinalized, StatusFailed},
	StatusFinalized:   {},
	StatusFailed:      {},
}

// CanTransition reports whether moving from one status to another is allowed.
// needs_review -> extracted covers the human-review loop: applying a
// correction re-runs reconciliation on the corrected fields.
func (s ReceiptStatus) CanTransition(to ReceiptStatus) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Warning flags a low-confidence or invalid extracted field on a draft. It is
// advisory: the data is kept for human correction, never dropped.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Discrepancy records a reconciliation mismatch between a declared amount and
// the amount computed from line items.
type Discrepancy struct {
	Kind     string      `json:"kind"` // "subtotal" or "total"
	Expected money.Money `json:"expected"`
	Actual   money.Money `json:"actual"`
	Delta    money.Money `json:"delta"`
}

// ItemAssignment maps a line item share to one participant with an integer
// split weight. Equal split is every assignee at weight 1.
type ItemAssignment struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Weight        int64     `json:"weight"`
}

type LineItem struct {
	ID          uuid.UUID        `json:"id"`
	Description string           `json:"description"`
	UnitPrice   money.Money      `json:"unit_price"`
	Quantity    int64            `json:"quantity"`
	Confidence  float64          `json:"confidence"`
	Assignments []ItemAssignment `json:"assignments"`
}

// Total is the line total: unit price times quantity.
func (li LineItem) Total() money.Money {
	return li.UnitPrice.MulInt(li.Quantity)
}

// ReceiptDraft is a receipt moving through the ingestion pipeline. Declared
// amounts are nil until the extractor (or a reviewer) provides them. A draft
// becomes immutable once its status reaches finalized.
type ReceiptDraft struct {
	ID            uuid.UUID     `json:"id"`
	GroupID       uuid.UUID     `json:"group_id"`
	UploadedBy    uuid.UUID     `json:"uploaded_by"`
	Merchant      string        `json:"merchant"`
	Currency      string        `json:"currency"`
	Items         []LineItem    `json:"items"`
	Subtotal      *money.Money  `json:"subtotal"`
	Tax           *money.Money  `json:"tax"`
	Tip           *money.Money  `json:"tip"`
	Discount      *money.Money  `json:"discount"`
	Total         *money.Money  `json:"total"`
	Status        ReceiptStatus `json:"status"`
	Warnings      []Warning     `json:"warnings"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	ImageLocator  string        `json:"image_locator"`
	ErrorNote     string        `json:"error_note"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TransitionTo moves the draft to the next lifecycle status. Every status
// change goes through here so the transition table is the single source of
// truth for the lifecycle.
func (r *ReceiptDraft) TransitionTo(next ReceiptStatus) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// DeclaredOr returns the given declared amount, or the zero amount in the
// draft's currency when the field was never extracted.
func (r *ReceiptDraft) DeclaredOr(m *money.Money) money.Money {
	if m == nil {
		return money.Zero(r.Currency)
	}
	return *m
}
