package models

import (
	"github.com/google/uuid"

	"splitsnap/internal/money"
)

// SettlementEntry is the net balance between two participants of a group:
// the debtor owes the creditor Amount, aggregated across every finalized
// receipt the pair shares. For any unordered pair at most one entry exists;
// a pair with a zero net balance has no entry at all.
type SettlementEntry struct {
	GroupID    uuid.UUID   `json:"group_id"`
	DebtorID   uuid.UUID   `json:"debtor_id"`
	CreditorID uuid.UUID   `json:"creditor_id"`
	Amount     money.Money `json:"amount"`
	ReceiptIDs []uuid.UUID `json:"receipt_ids"`
}
