package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

type AssignmentRequest struct {
	ParticipantID string `json:"participant_id" validate:"required,uuid"`
	Weight        int64  `json:"weight" validate:"required,min=1"`
}

type ReviewItemRequest struct {
	ID          string              `json:"id,omitempty"`
	Description string              `json:"description" validate:"required"`
	UnitPrice   string              `json:"unit_price" validate:"required"`
	Quantity    int64               `json:"quantity"`
	Assignments []AssignmentRequest `json:"assignments,omitempty"`
}

type ItemAssignmentsRequest struct {
	ItemID      string              `json:"item_id" validate:"required,uuid"`
	Assignments []AssignmentRequest `json:"assignments" validate:"required,min=1"`
}

// ReviewRequest carries reviewer corrections. Omitted fields stay untouched;
// a non-nil items array replaces the draft's line items wholesale.
type ReviewRequest struct {
	Merchant    *string                  `json:"merchant,omitempty"`
	Currency    *string                  `json:"currency,omitempty"`
	Subtotal    *string                  `json:"subtotal,omitempty"`
	Tax         *string                  `json:"tax,omitempty"`
	Tip         *string                  `json:"tip,omitempty"`
	Discount    *string                  `json:"discount,omitempty"`
	Total       *string                  `json:"total,omitempty"`
	Items       []ReviewItemRequest      `json:"items,omitempty"`
	Assignments []ItemAssignmentsRequest `json:"assignments,omitempty"`
}

type FinalizeRequest struct {
	Confirm bool `json:"confirm"`
}

type AssignmentResponse struct {
	ParticipantID string `json:"participant_id"`
	Weight        int64  `json:"weight"`
}

type LineItemResponse struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	UnitPrice   string               `json:"unit_price"`
	Quantity    int64                `json:"quantity"`
	LineTotal   string               `json:"line_total"`
	Confidence  float64              `json:"confidence"`
	Assignments []AssignmentResponse `json:"assignments,omitempty"`
}

type WarningResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type DiscrepancyResponse struct {
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Delta    string `json:"delta"`
}

type ReceiptResponse struct {
	ID            string                `json:"id"`
	GroupID       string                `json:"group_id"`
	UploadedBy    string                `json:"uploaded_by"`
	Merchant      string                `json:"merchant,omitempty"`
	Currency      string                `json:"currency"`
	Status        string                `json:"status"`
	Items         []LineItemResponse    `json:"items"`
	Subtotal      *string               `json:"subtotal,omitempty"`
	Tax           *string               `json:"tax,omitempty"`
	Tip           *string               `json:"tip,omitempty"`
	Discount      *string               `json:"discount,omitempty"`
	Total         *string               `json:"total,omitempty"`
	Warnings      []WarningResponse     `json:"warnings,omitempty"`
	Discrepancies []DiscrepancyResponse `json:"discrepancies,omitempty"`
	ErrorNote     string                `json:"error_note,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at"`
}

type ShareResponse struct {
	ReceiptID     string `json:"receipt_id"`
	ParticipantID string `json:"participant_id"`
	ItemsSubtotal string `json:"items_subtotal"`
	Tax           string `json:"tax"`
	Tip           string `json:"tip"`
	Discount      string `json:"discount"`
	Owed          string `json:"owed"`
	Currency      string `json:"currency"`
}

func amountString(m money.Money) string {
	return decimal.New(m.Amount, -2).StringFixed(2)
}

func optionalAmount(m *money.Money) *string {
	if m == nil {
		return nil
	}
	s := amountString(*m)
	return &s
}

func ToReceiptResponse(d *models.ReceiptDraft) ReceiptResponse {
	resp := ReceiptResponse{
		ID:         d.ID.String(),
		GroupID:    d.GroupID.String(),
		UploadedBy: d.UploadedBy.String(),
		Merchant:   d.Merchant,
		Currency:   d.Currency,
		Status:     string(d.Status),
		Subtotal:   optionalAmount(d.Subtotal),
		Tax:        optionalAmount(d.Tax),
		Tip:        optionalAmount(d.Tip),
		Discount:   optionalAmount(d.Discount),
		Total:      optionalAmount(d.Total),
		ErrorNote:  d.ErrorNote,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}

	resp.Items = make([]LineItemResponse, 0, len(d.Items))
	for _, item := range d.Items {
		ir := LineItemResponse{
			ID:          item.ID.String(),
			Description: item.Description,
			UnitPrice:   amountString(item.UnitPrice),
			Quantity:    item.Quantity,
			LineTotal:   amountString(item.Total()),
			Confidence:  item.Confidence,
		}
		for _, a := range item.Assignments {
			ir.Assignments = append(ir.Assignments, AssignmentResponse{
				ParticipantID: a.ParticipantID.String(),
				Weight:        a.Weight,
			})
		}
		resp.Items = append(resp.Items, ir)
	}

	for _, w := range d.Warnings {
		resp.Warnings = append(resp.Warnings, WarningResponse{Field: w.Field, Message: w.Message})
	}
	for _, disc := range d.Discrepancies {
		resp.Discrepancies = append(resp.Discrepancies, DiscrepancyResponse{
			Kind:     disc.Kind,
			Expected: amountString(disc.Expected),
			Actual:   amountString(disc.Actual),
			Delta:    amountString(disc.Delta),
		})
	}
	return resp
}

func ToShareResponse(s models.ParticipantShare) ShareResponse {
	return ShareResponse{
		ReceiptID:     s.ReceiptID.String(),
		ParticipantID: s.ParticipantID.String(),
		ItemsSubtotal: amountString(s.ItemsSubtotal),
		Tax:           amountString(s.Tax),
		Tip:           amountString(s.Tip),
		Discount:      amountString(s.Discount),
		Owed:          amountString(s.Owed),
		Currency:      s.Owed.Currency,
	}
}
