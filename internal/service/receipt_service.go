package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"splitsnap/internal/allocation"
	"splitsnap/internal/events"
	"splitsnap/internal/extraction"
	"splitsnap/internal/models"
	"splitsnap/internal/money"
	"splitsnap/internal/reconcile"
	"splitsnap/internal/storage"
	"splitsnap/pkg/config"
	"splitsnap/pkg/metrics"
)

var (
	ErrReceiptNotProcessable = errors.New("receipt is not in a processable state")
	ErrReceiptNotReviewable  = errors.New("receipt is not in a reviewable state")
)

// ReceiptStore is the persistence surface the pipeline needs. The repository
// layer implements it against Postgres.
type ReceiptStore interface {
	Create(ctx context.Context, draft *models.ReceiptDraft) error
	Update(ctx context.Context, draft *models.ReceiptDraft) error
	UpdateWithShares(ctx context.Context, draft *models.ReceiptDraft, shares []models.ParticipantShare) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReceiptDraft, error)
	ListFinalizedByGroup(ctx context.Context, groupID uuid.UUID) ([]*models.ReceiptDraft, error)
}

// ShareStore reads persisted participant shares.
type ShareStore interface {
	GetByReceiptID(ctx context.Context, receiptID uuid.UUID) ([]models.ParticipantShare, error)
	GetByReceiptIDs(ctx context.Context, receiptIDs []uuid.UUID) (map[uuid.UUID][]models.ParticipantShare, error)
}

// ReceiptService drives a receipt from upload through extraction,
// reconciliation, review and finalization.
type ReceiptService struct {
	receipts    ReceiptStore
	shares      ShareStore
	blobs       storage.BlobStore
	extractor   Extractor
	settlements *SettlementService
	publisher   events.Publisher
	normalizer  *extraction.Normalizer
	checker     *reconcile.Checker
	cfg         config.EngineConfig
	logger      *zap.Logger
}

func NewReceiptService(
	receipts ReceiptStore,
	shares ShareStore,
	blobs storage.BlobStore,
	extractor Extractor,
	settlements *SettlementService,
	publisher events.Publisher,
	cfg config.EngineConfig,
	logger *zap.Logger,
) *ReceiptService {
	return &ReceiptService{
		receipts:    receipts,
		shares:      shares,
		blobs:       blobs,
		extractor:   extractor,
		settlements: settlements,
		publisher:   publisher,
		normalizer: &extraction.Normalizer{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			DefaultCurrency:     cfg.DefaultCurrency,
		},
		checker: &reconcile.Checker{TolerancePerLine: cfg.TolerancePerLine},
		cfg:     cfg,
		logger:  logger,
	}
}

// Upload stores the original image and creates a pending draft. Extraction is
// a separate step so a slow or failing provider never blocks the upload.
func (s *ReceiptService) Upload(ctx context.Context, groupID, uploadedBy uuid.UUID, image []byte, contentType string) (*models.ReceiptDraft, error) {
	locator, err := s.blobs.Put(ctx, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("store receipt image: %w", err)
	}

	now := time.Now().UTC()
	draft := &models.ReceiptDraft{
		ID:           uuid.New(),
		GroupID:      groupID,
		UploadedBy:   uploadedBy,
		Currency:     s.cfg.DefaultCurrency,
		Status:       models.StatusPending,
		ImageLocator: locator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.receipts.Create(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("receipt uploaded",
		zap.String("receipt_id", draft.ID.String()),
		zap.String("group_id", groupID.String()),
	)
	return draft, nil
}

// Process runs AI extraction, normalization and reconciliation on a pending
// draft. A provider failure leaves the draft pending with an error note so it
// can be re-processed; a structurally unusable extraction fails the draft.
func (s *ReceiptService) Process(ctx context.Context, id uuid.UUID) (*models.ReceiptDraft, error) {
	draft, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: status is %q", ErrReceiptNotProcessable, draft.Status)
	}

	image, err := s.blobs.Get(ctx, draft.ImageLocator)
	if err != nil {
		return nil, fmt.Errorf("load receipt image: %w", err)
	}

	raw, err := s.extractWithRetry(ctx, image, contentTypeForLocator(draft.ImageLocator))
	if err != nil {
		return s.recordExtractionFailure(ctx, draft, err)
	}

	result, err := s.normalizer.Normalize(raw)
	if err != nil {
		return s.recordExtractionFailure(ctx, draft, err)
	}

	draft.Merchant = sanitizeUTF8(result.Merchant)
	draft.Currency = result.Currency
	draft.Items = result.Items
	for i := range draft.Items {
		draft.Items[i].Description = sanitizeUTF8(draft.Items[i].Description)
	}
	draft.Subtotal = result.Subtotal
	draft.Tax = result.Tax
	draft.Tip = result.Tip
	draft.Discount = result.Discount
	draft.Total = result.Total
	draft.Warnings = result.Warnings
	draft.ErrorNote = ""
	if err := draft.TransitionTo(models.StatusExtracted); err != nil {
		return nil, err
	}

	if err := s.checker.Check(draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = time.Now().UTC()

	if err := s.receipts.Update(ctx, draft); err != nil {
		return nil, err
	}

	metrics.ReceiptsProcessed.WithLabelValues(string(draft.Status)).Inc()
	s.logger.Info("receipt processed",
		zap.String("receipt_id", draft.ID.String()),
		zap.String("status", string(draft.Status)),
		zap.Int("items", len(draft.Items)),
		zap.Int("discrepancies", len(draft.Discrepancies)),
	)
	return draft, nil
}

// extractWithRetry retries transient provider errors only, each attempt under
// its own deadline. A malformed answer is the provider's final word.
func (s *ReceiptService) extractWithRetry(ctx context.Context, image []byte, contentType string) (*models.RawExtraction, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.ExtractRetries; attempt++ {
		if attempt > 0 {
			metrics.ExtractionRetries.Inc()
			s.logger.Warn("retrying extraction",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
		raw, err := s.extractor.Extract(attemptCtx, image, contentType)
		cancel()
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !isTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// recordExtractionFailure persists the failure on the draft. Transient
// provider errors keep the draft pending for another processing run; a
// malformed extraction is terminal.
func (s *ReceiptService) recordExtractionFailure(ctx context.Context, draft *models.ReceiptDraft, cause error) (*models.ReceiptDraft, error) {
	draft.ErrorNote = cause.Error()
	draft.UpdatedAt = time.Now().UTC()

	class := "provider"
	if errors.Is(cause, extraction.ErrMalformedExtraction) {
		class = "malformed"
		if err := draft.TransitionTo(models.StatusFailed); err != nil {
			return nil, errors.Join(cause, err)
		}
	}
	metrics.ExtractionFailures.WithLabelValues(class).Inc()
	metrics.ReceiptsProcessed.WithLabelValues(string(draft.Status)).Inc()

	if err := s.receipts.Update(ctx, draft); err != nil {
		s.logger.Error("persist extraction failure",
			zap.String("receipt_id", draft.ID.String()),
			zap.Error(err),
		)
		return nil, errors.Join(cause, err)
	}

	s.logger.Error("extraction failed",
		zap.String("receipt_id", draft.ID.String()),
		zap.String("class", class),
		zap.Error(cause),
	)
	return draft, cause
}

// ItemPatch is one reviewed line item. A zero ID means a new item.
type ItemPatch struct {
	ID          uuid.UUID
	Description string
	UnitPrice   money.Money
	Quantity    int64
	Assignments []models.ItemAssignment
}

// ReviewPatch carries a human reviewer's corrections. Nil fields are left
// untouched; a non-nil Items slice replaces the line items wholesale.
type ReviewPatch struct {
	Merchant *string
	Currency *string
	Subtotal *money.Money
	Tax      *money.Money
	Tip      *money.Money
	Discount *money.Money
	Total    *money.Money
	Items    []ItemPatch
	// Assignments maps existing item IDs to their participant assignments.
	// Used alone it does not reopen reconciliation.
	Assignments map[uuid.UUID][]models.ItemAssignment
}

// touchesAmounts reports whether the patch changes anything reconciliation
// depends on. Pure assignment changes do not.
func (p *ReviewPatch) touchesAmounts() bool {
	return p.Merchant != nil || p.Currency != nil || p.Items != nil ||
		p.Subtotal != nil || p.Tax != nil || p.Tip != nil ||
		p.Discount != nil || p.Total != nil
}

// ApplyReview applies reviewer corrections to a draft. Amount or item edits
// are only accepted on a draft under review and re-run reconciliation;
// assignment-only edits are accepted on any unfinalized extracted draft.
func (s *ReceiptService) ApplyReview(ctx context.Context, id uuid.UUID, patch *ReviewPatch) (*models.ReceiptDraft, error) {
	draft, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.touchesAmounts() {
		if draft.Status != models.StatusNeedsReview {
			return nil, fmt.Errorf("%w: amount corrections require status %q, have %q",
				ErrReceiptNotReviewable, models.StatusNeedsReview, draft.Status)
		}
		applyFieldPatch(draft, patch)
		if err := draft.TransitionTo(models.StatusExtracted); err != nil {
			return nil, err
		}
		if err := s.checker.Check(draft); err != nil {
			return nil, err
		}
	} else {
		switch draft.Status {
		case models.StatusExtracted, models.StatusReconciled, models.StatusNeedsReview:
		default:
			return nil, fmt.Errorf("%w: status is %q", ErrReceiptNotReviewable, draft.Status)
		}
	}

	if err := applyAssignments(draft, patch.Assignments); err != nil {
		return nil, err
	}

	draft.UpdatedAt = time.Now().UTC()
	if err := s.receipts.Update(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("review applied",
		zap.String("receipt_id", draft.ID.String()),
		zap.String("status", string(draft.Status)),
	)
	return draft, nil
}

func applyFieldPatch(draft *models.ReceiptDraft, patch *ReviewPatch) {
	if patch.Merchant != nil {
		draft.Merchant = sanitizeUTF8(*patch.Merchant)
	}
	if patch.Currency != nil {
		draft.Currency = *patch.Currency
	}
	if patch.Subtotal != nil {
		draft.Subtotal = patch.Subtotal
	}
	if patch.Tax != nil {
		draft.Tax = patch.Tax
	}
	if patch.Tip != nil {
		draft.Tip = patch.Tip
	}
	if patch.Discount != nil {
		draft.Discount = patch.Discount
	}
	if patch.Total != nil {
		draft.Total = patch.Total
	}
	if patch.Items != nil {
		items := make([]models.LineItem, 0, len(patch.Items))
		for _, ip := range patch.Items {
			itemID := ip.ID
			if itemID == uuid.Nil {
				itemID = uuid.New()
			}
			qty := ip.Quantity
			if qty <= 0 {
				qty = 1
			}
			items = append(items, models.LineItem{
				ID:          itemID,
				Description: sanitizeUTF8(ip.Description),
				UnitPrice:   ip.UnitPrice,
				Quantity:    qty,
				Confidence:  1, // reviewer-confirmed
				Assignments: ip.Assignments,
			})
		}
		draft.Items = items
	}
}

func applyAssignments(draft *models.ReceiptDraft, assignments map[uuid.UUID][]models.ItemAssignment) error {
	for itemID, as := range assignments {
		found := false
		for i := range draft.Items {
			if draft.Items[i].ID == itemID {
				draft.Items[i].Assignments = as
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("assignment references unknown item %s", itemID)
		}
	}
	return nil
}

// Finalize commits the draft, computes the participant shares atomically with
// the status change, and triggers a settlement recomputation for the group.
func (s *ReceiptService) Finalize(ctx context.Context, id uuid.UUID, confirmed bool) (*models.ReceiptDraft, error) {
	draft, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := reconcile.Finalize(draft, confirmed); err != nil {
		return nil, err
	}

	shares, err := allocation.Allocate(draft)
	if err != nil {
		// The in-memory transition is discarded; the stored draft is intact.
		return nil, err
	}

	draft.UpdatedAt = time.Now().UTC()
	if err := s.receipts.UpdateWithShares(ctx, draft, shares); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:       events.TypeReceiptFinalized,
		GroupID:    draft.GroupID,
		ReceiptID:  draft.ID,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("publish finalized event", zap.Error(err))
	}

	if err := s.settlements.Recompute(ctx, draft.GroupID); err != nil {
		// The receipt is finalized either way; the ledger catches up on the
		// next recomputation.
		s.logger.Error("settlement recompute after finalization",
			zap.String("group_id", draft.GroupID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("receipt finalized",
		zap.String("receipt_id", draft.ID.String()),
		zap.String("group_id", draft.GroupID.String()),
		zap.Int("shares", len(shares)),
	)
	return draft, nil
}

func (s *ReceiptService) Get(ctx context.Context, id uuid.UUID) (*models.ReceiptDraft, error) {
	return s.receipts.GetByID(ctx, id)
}

func (s *ReceiptService) Shares(ctx context.Context, id uuid.UUID) ([]models.ParticipantShare, error) {
	return s.shares.GetByReceiptID(ctx, id)
}

// contentTypeForLocator recovers the upload's media type from the extension
// the blob store encoded into the locator.
func contentTypeForLocator(locator string) string {
	if ct := mime.TypeByExtension(filepath.Ext(locator)); ct != "" {
		return ct
	}
	return "image/jpeg"
}
