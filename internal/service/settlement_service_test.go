package service

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"splitsnap/internal/events"
	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

func finalizedReceipt(group, uploader uuid.UUID) *models.ReceiptDraft {
	total := money.New(3000, "USD")
	return &models.ReceiptDraft{
		ID:         uuid.New(),
		GroupID:    group,
		UploadedBy: uploader,
		Currency:   "USD",
		Total:      &total,
		Status:     models.StatusFinalized,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestRecomputeBuildsLedgerFromFinalizedReceipts(t *testing.T) {
	store := newFakeReceiptStore()
	settlements := newFakeSettlementStore()
	svc := NewSettlementService(store, store, settlements, events.NoopPublisher{}, zap.NewNop())

	group := uuid.New()
	uploader, alice := uuid.New(), uuid.New()

	r := finalizedReceipt(group, uploader)
	store.drafts[r.ID] = r
	store.shares[r.ID] = []models.ParticipantShare{
		{ReceiptID: r.ID, ParticipantID: uploader, Owed: money.New(1500, "USD")},
		{ReceiptID: r.ID, ParticipantID: alice, Owed: money.New(1500, "USD")},
	}

	if err := svc.Recompute(context.Background(), group); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	entries, err := svc.Balances(context.Background(), group)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.DebtorID != alice || e.CreditorID != uploader || e.Amount.Amount != 1500 {
		t.Fatalf("entry = %+v, want alice owes uploader 1500", e)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	store := newFakeReceiptStore()
	settlements := newFakeSettlementStore()
	svc := NewSettlementService(store, store, settlements, events.NoopPublisher{}, zap.NewNop())

	group := uuid.New()
	uploader, alice := uuid.New(), uuid.New()
	r := finalizedReceipt(group, uploader)
	store.drafts[r.ID] = r
	store.shares[r.ID] = []models.ParticipantShare{
		{ReceiptID: r.ID, ParticipantID: alice, Owed: money.New(3000, "USD")},
	}

	if err := svc.Recompute(context.Background(), group); err != nil {
		t.Fatalf("first Recompute: %v", err)
	}
	first, _ := svc.Balances(context.Background(), group)

	if err := svc.Recompute(context.Background(), group); err != nil {
		t.Fatalf("second Recompute: %v", err)
	}
	second, _ := svc.Balances(context.Background(), group)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recompute is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestRecomputeEmptyGroupClearsLedger(t *testing.T) {
	store := newFakeReceiptStore()
	settlements := newFakeSettlementStore()
	svc := NewSettlementService(store, store, settlements, events.NoopPublisher{}, zap.NewNop())

	group := uuid.New()
	settlements.entries[group] = []models.SettlementEntry{
		{GroupID: group, DebtorID: uuid.New(), CreditorID: uuid.New(), Amount: money.New(1, "USD")},
	}

	if err := svc.Recompute(context.Background(), group); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	entries, _ := svc.Balances(context.Background(), group)
	if len(entries) != 0 {
		t.Fatalf("entries = %d, want 0 after recompute with no receipts", len(entries))
	}
}

func TestRecomputeSerializesPerGroup(t *testing.T) {
	store := newFakeReceiptStore()
	settlements := newFakeSettlementStore()
	svc := NewSettlementService(store, store, settlements, events.NoopPublisher{}, zap.NewNop())

	group := uuid.New()
	uploader, alice := uuid.New(), uuid.New()
	r := finalizedReceipt(group, uploader)
	store.drafts[r.ID] = r
	store.shares[r.ID] = []models.ParticipantShare{
		{ReceiptID: r.ID, ParticipantID: alice, Owed: money.New(3000, "USD")},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Recompute(context.Background(), group); err != nil {
				t.Errorf("Recompute: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, _ := svc.Balances(context.Background(), group)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}
