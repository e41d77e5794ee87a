package models

import (
	"github.com/google/uuid"

	"splitsnap/internal/money"
)

// ParticipantShare is one participant's exact owed amount for one finalized
// receipt: the sum of their item shares plus their proportional slice of tax
// and tip, minus their slice of the discount. Shares are derived values:
// they are discarded and recomputed whenever the draft changes, never patched.
type ParticipantShare struct {
	ReceiptID     uuid.UUID   `json:"receipt_id"`
	ParticipantID uuid.UUID   `json:"participant_id"`
	ItemsSubtotal money.Money `json:"items_subtotal"`
	Tax           money.Money `json:"tax"`
	Tip           money.Money `json:"tip"`
	Discount      money.Money `json:"discount"`
	Owed          money.Money `json:"owed"`
}
