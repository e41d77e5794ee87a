package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"splitsnap/internal/events"
	"splitsnap/internal/models"
	"splitsnap/internal/settlement"
	"splitsnap/pkg/metrics"
)

// SettlementStore persists the derived per-group ledger.
type SettlementStore interface {
	ReplaceForGroup(ctx context.Context, groupID uuid.UUID, entries []models.SettlementEntry) error
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.SettlementEntry, error)
}

// SettlementService recomputes and serves the per-group settlement ledger.
// Recomputation is serialized per group so concurrent finalizations cannot
// interleave stale ledgers.
type SettlementService struct {
	receipts    ReceiptStore
	shares      ShareStore
	settlements SettlementStore
	publisher   events.Publisher
	logger      *zap.Logger

	mu     sync.Mutex
	groups map[uuid.UUID]*sync.Mutex
}

func NewSettlementService(
	receipts ReceiptStore,
	shares ShareStore,
	settlements SettlementStore,
	publisher events.Publisher,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		receipts:    receipts,
		shares:      shares,
		settlements: settlements,
		publisher:   publisher,
		logger:      logger,
		groups:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *SettlementService) groupLock(groupID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.groups[groupID]
	if !ok {
		lock = &sync.Mutex{}
		s.groups[groupID] = lock
	}
	return lock
}

// Recompute rebuilds the group's ledger from every finalized receipt and
// replaces the stored entries in one transaction. The result is a pure
// function of the finalized receipts, so rerunning it is always safe.
func (s *SettlementService) Recompute(ctx context.Context, groupID uuid.UUID) error {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	receipts, err := s.receipts.ListFinalizedByGroup(ctx, groupID)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.ID)
	}
	shares, err := s.shares.GetByReceiptIDs(ctx, ids)
	if err != nil {
		return err
	}

	entries, err := settlement.Compute(receipts, shares)
	if err != nil {
		return err
	}
	for i := range entries {
		entries[i].GroupID = groupID
	}

	if err := s.settlements.ReplaceForGroup(ctx, groupID, entries); err != nil {
		return err
	}
	metrics.SettlementRecomputes.Inc()

	if err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeSettlementRecomputed,
		GroupID:    groupID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("publish settlement event", zap.Error(err))
	}

	s.logger.Info("settlement recomputed",
		zap.String("group_id", groupID.String()),
		zap.Int("receipts", len(receipts)),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Balances returns the group's current ledger.
func (s *SettlementService) Balances(ctx context.Context, groupID uuid.UUID) ([]models.SettlementEntry, error) {
	return s.settlements.ListByGroup(ctx, groupID)
}
