package dto

import (
	"splitsnap/internal/models"
)

type SettlementEntryResponse struct {
	GroupID    string   `json:"group_id"`
	DebtorID   string   `json:"debtor_id"`
	CreditorID string   `json:"creditor_id"`
	Amount     string   `json:"amount"`
	Currency   string   `json:"currency"`
	ReceiptIDs []string `json:"receipt_ids"`
}

type SettlementResponse struct {
	GroupID string                    `json:"group_id"`
	Entries []SettlementEntryResponse `json:"entries"`
}

func ToSettlementResponse(groupID string, entries []models.SettlementEntry) SettlementResponse {
	resp := SettlementResponse{
		GroupID: groupID,
		Entries: make([]SettlementEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		er := SettlementEntryResponse{
			GroupID:    e.GroupID.String(),
			DebtorID:   e.DebtorID.String(),
			CreditorID: e.CreditorID.String(),
			Amount:     amountString(e.Amount),
			Currency:   e.Amount.Currency,
		}
		for _, id := range e.ReceiptIDs {
			er.ReceiptIDs = append(er.ReceiptIDs, id.String())
		}
		resp.Entries = append(resp.Entries, er)
	}
	return resp
}
