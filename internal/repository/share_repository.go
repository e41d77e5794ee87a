package repository

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

var shareColumns = []string{
	"receipt_id", "participant_id", "items_subtotal", "tax", "tip", "discount", "owed", "currency",
}

type ShareRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewShareRepository(db *pgxpool.Pool, logger *zap.Logger) *ShareRepository {
	return &ShareRepository{
		db:     db,
		logger: logger,
	}
}

// GetByReceiptID returns the shares of one receipt in stored order.
func (r *ShareRepository) GetByReceiptID(ctx context.Context, receiptID uuid.UUID) ([]models.ParticipantShare, error) {
	shares, err := r.GetByReceiptIDs(ctx, []uuid.UUID{receiptID})
	if err != nil {
		return nil, err
	}
	return shares[receiptID], nil
}

// GetByReceiptIDs loads shares for a set of receipts, keyed by receipt id.
func (r *ShareRepository) GetByReceiptIDs(ctx context.Context, receiptIDs []uuid.UUID) (map[uuid.UUID][]models.ParticipantShare, error) {
	result := make(map[uuid.UUID][]models.ParticipantShare)
	if len(receiptIDs) == 0 {
		return result, nil
	}

	query := squirrel.Select(shareColumns...).
		From("participant_shares").
		Where(squirrel.Eq{"receipt_id": receiptIDs}).
		OrderBy("receipt_id", "participant_id").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var share shareRow
		if err := rows.Scan(
			&share.receiptID, &share.participantID,
			&share.itemsSubtotal, &share.tax, &share.tip, &share.discount, &share.owed,
			&share.currency,
		); err != nil {
			return nil, err
		}
		result[share.receiptID] = append(result[share.receiptID], share.toModel())
	}
	return result, rows.Err()
}

type shareRow struct {
	receiptID     uuid.UUID
	participantID uuid.UUID
	itemsSubtotal int64
	tax           int64
	tip           int64
	discount      int64
	owed          int64
	currency      string
}

func (p shareRow) toModel() models.ParticipantShare {
	return models.ParticipantShare{
		ReceiptID:     p.receiptID,
		ParticipantID: p.participantID,
		ItemsSubtotal: money.New(p.itemsSubtotal, p.currency),
		Tax:           money.New(p.tax, p.currency),
		Tip:           money.New(p.tip, p.currency),
		Discount:      money.New(p.discount, p.currency),
		Owed:          money.New(p.owed, p.currency),
	}
}

// replaceShares swaps a receipt's derived shares inside the caller's
// transaction. Shares are recomputed wholesale, never patched.
func replaceShares(ctx context.Context, tx pgx.Tx, draft *models.ReceiptDraft, shares []models.ParticipantShare) error {
	sql, args, err := squirrel.Delete("participant_shares").
		Where(squirrel.Eq{"receipt_id": draft.ID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return err
	}

	if len(shares) == 0 {
		return nil
	}
	insert := squirrel.Insert("participant_shares").
		Columns(shareColumns...).
		PlaceholderFormat(squirrel.Dollar)
	for _, s := range shares {
		insert = insert.Values(s.ReceiptID, s.ParticipantID,
			s.ItemsSubtotal.Amount, s.Tax.Amount, s.Tip.Amount, s.Discount.Amount, s.Owed.Amount,
			s.Owed.Currency)
	}
	sql, args, err = insert.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}
