package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"splitsnap/internal/models"
	"splitsnap/internal/money"
)

// ErrReceiptNotFound is returned when no draft exists for an id.
var ErrReceiptNotFound = errors.New("receipt not found")

var receiptColumns = []string{
	"id", "group_id", "uploaded_by", "merchant", "currency",
	"subtotal", "tax", "tip", "discount", "total",
	"status", "warnings", "discrepancies", "image_locator", "error_note",
	"created_at", "updated_at",
}

type ReceiptRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the draft together with its items in one transaction.
func (r *ReceiptRepository) Create(ctx context.Context, draft *models.ReceiptDraft) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.insertReceipt(ctx, tx, draft); err != nil {
			return err
		}
		return r.insertItems(ctx, tx, draft)
	})
}

// Update rewrites the draft row and replaces its item list in one
// transaction. Items are derived state during extraction and review, so they
// are discarded and reinserted rather than patched.
func (r *ReceiptRepository) Update(ctx context.Context, draft *models.ReceiptDraft) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.updateReceipt(ctx, tx, draft); err != nil {
			return err
		}
		if err := r.deleteItems(ctx, tx, draft.ID); err != nil {
			return err
		}
		return r.insertItems(ctx, tx, draft)
	})
}

// UpdateWithShares persists the finalized draft and its recomputed shares
// atomically: the status transition and the derived shares land together.
func (r *ReceiptRepository) UpdateWithShares(ctx context.Context, draft *models.ReceiptDraft, shares []models.ParticipantShare) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.updateReceipt(ctx, tx, draft); err != nil {
			return err
		}
		if err := r.deleteItems(ctx, tx, draft.ID); err != nil {
			return err
		}
		if err := r.insertItems(ctx, tx, draft); err != nil {
			return err
		}
		return replaceShares(ctx, tx, draft, shares)
	})
}

func (r *ReceiptRepository) insertReceipt(ctx context.Context, tx pgx.Tx, draft *models.ReceiptDraft) error {
	warnings, discrepancies, err := marshalNotes(draft)
	if err != nil {
		return err
	}
	query := squirrel.Insert("receipts").
		Columns(receiptColumns...).
		Values(draft.ID, draft.GroupID, draft.UploadedBy, draft.Merchant, draft.Currency,
			nullableAmount(draft.Subtotal), nullableAmount(draft.Tax), nullableAmount(draft.Tip),
			nullableAmount(draft.Discount), nullableAmount(draft.Total),
			draft.Status, warnings, discrepancies, draft.ImageLocator, draft.ErrorNote,
			draft.CreatedAt, draft.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}

func (r *ReceiptRepository) updateReceipt(ctx context.Context, tx pgx.Tx, draft *models.ReceiptDraft) error {
	warnings, discrepancies, err := marshalNotes(draft)
	if err != nil {
		return err
	}
	query := squirrel.Update("receipts").
		Set("merchant", draft.Merchant).
		Set("currency", draft.Currency).
		Set("subtotal", nullableAmount(draft.Subtotal)).
		Set("tax", nullableAmount(draft.Tax)).
		Set("tip", nullableAmount(draft.Tip)).
		Set("discount", nullableAmount(draft.Discount)).
		Set("total", nullableAmount(draft.Total)).
		Set("status", draft.Status).
		Set("warnings", warnings).
		Set("discrepancies", discrepancies).
		Set("image_locator", draft.ImageLocator).
		Set("error_note", draft.ErrorNote).
		Set("updated_at", draft.UpdatedAt).
		Where(squirrel.Eq{"id": draft.ID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrReceiptNotFound, draft.ID)
	}
	return nil
}

func (r *ReceiptRepository) insertItems(ctx context.Context, tx pgx.Tx, draft *models.ReceiptDraft) error {
	if len(draft.Items) == 0 {
		return nil
	}

	items := squirrel.Insert("receipt_items").
		Columns("id", "receipt_id", "position", "description", "unit_price", "quantity", "confidence").
		PlaceholderFormat(squirrel.Dollar)
	for i, item := range draft.Items {
		items = items.Values(item.ID, draft.ID, i, item.Description, item.UnitPrice.Amount, item.Quantity, item.Confidence)
	}
	sql, args, err := items.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return err
	}

	assignments := squirrel.Insert("item_assignments").
		Columns("item_id", "participant_id", "weight", "position").
		PlaceholderFormat(squirrel.Dollar)
	hasAssignments := false
	for _, item := range draft.Items {
		for i, a := range item.Assignments {
			assignments = assignments.Values(item.ID, a.ParticipantID, a.Weight, i)
			hasAssignments = true
		}
	}
	if !hasAssignments {
		return nil
	}
	sql, args, err = assignments.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}

func (r *ReceiptRepository) deleteItems(ctx context.Context, tx pgx.Tx, receiptID uuid.UUID) error {
	sql, args, err := squirrel.Delete("receipt_items").
		Where(squirrel.Eq{"receipt_id": receiptID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}

// GetByID loads a draft with its items and assignments.
func (r *ReceiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReceiptDraft, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	draft, err := scanReceipt(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
		}
		return nil, err
	}

	if err := r.loadItems(ctx, []*models.ReceiptDraft{draft}); err != nil {
		return nil, err
	}
	return draft, nil
}

// ListFinalizedByGroup returns every finalized receipt of a group with items
// loaded, ordered by creation time for deterministic settlement input.
func (r *ReceiptRepository) ListFinalizedByGroup(ctx context.Context, groupID uuid.UUID) ([]*models.ReceiptDraft, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		Where(squirrel.Eq{"group_id": groupID, "status": models.StatusFinalized}).
		OrderBy("created_at ASC, id ASC").
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

	var drafts []*models.ReceiptDraft
	for rows.Next() {
		draft, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

func (r *ReceiptRepository) loadItems(ctx context.Context, drafts []*models.ReceiptDraft) error {
	if len(drafts) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.ReceiptDraft, len(drafts))
	ids := make([]uuid.UUID, len(drafts))
	for i, d := range drafts {
		byID[d.ID] = d
		ids[i] = d.ID
	}

	query := squirrel.Select("id", "receipt_id", "description", "unit_price", "quantity", "confidence").
		From("receipt_items").
		Where(squirrel.Eq{"receipt_id": ids}).
		OrderBy("receipt_id", "position").
		PlaceholderFormat(squirrel.Dollar)
	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	itemOwner := make(map[uuid.UUID]*models.ReceiptDraft)
	for rows.Next() {
		var (
			item      models.LineItem
			receiptID uuid.UUID
			amount    int64
		)
		if err := rows.Scan(&item.ID, &receiptID, &item.Description, &amount, &item.Quantity, &item.Confidence); err != nil {
			return err
		}
		draft := byID[receiptID]
		item.UnitPrice = money.New(amount, draft.Currency)
		draft.Items = append(draft.Items, item)
		itemOwner[item.ID] = draft
	}
	if err := rows.Err(); err != nil {
		return err
	}

	itemIDs := make([]uuid.UUID, 0, len(itemOwner))
	for id := range itemOwner {
		itemIDs = append(itemIDs, id)
	}
	if len(itemIDs) == 0 {
		return nil
	}

	query = squirrel.Select("item_id", "participant_id", "weight").
		From("item_assignments").
		Where(squirrel.Eq{"item_id": itemIDs}).
		OrderBy("item_id", "position").
		PlaceholderFormat(squirrel.Dollar)
	sql, args, err = query.ToSql()
	if err != nil {
		return err
	}
	rows, err = r.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID     uuid.UUID
			assignment models.ItemAssignment
		)
		if err := rows.Scan(&itemID, &assignment.ParticipantID, &assignment.Weight); err != nil {
			return err
		}
		draft := itemOwner[itemID]
		for i := range draft.Items {
			if draft.Items[i].ID == itemID {
				draft.Items[i].Assignments = append(draft.Items[i].Assignments, assignment)
				break
			}
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*models.ReceiptDraft, error) {
	var (
		draft                               models.ReceiptDraft
		subtotal, tax, tip, discount, total *int64
		warnings, discrepancies             []byte
	)
	if err := row.Scan(
		&draft.ID, &draft.GroupID, &draft.UploadedBy, &draft.Merchant, &draft.Currency,
		&subtotal, &tax, &tip, &discount, &total,
		&draft.Status, &warnings, &discrepancies, &draft.ImageLocator, &draft.ErrorNote,
		&draft.CreatedAt, &draft.UpdatedAt,
	); err != nil {
		return nil, err
	}

	draft.Subtotal = amountOrNil(subtotal, draft.Currency)
	draft.Tax = amountOrNil(tax, draft.Currency)
	draft.Tip = amountOrNil(tip, draft.Currency)
	draft.Discount = amountOrNil(discount, draft.Currency)
	draft.Total = amountOrNil(total, draft.Currency)

	if err := json.Unmarshal(warnings, &draft.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if err := json.Unmarshal(discrepancies, &draft.Discrepancies); err != nil {
		return nil, fmt.Errorf("decode discrepancies: %w", err)
	}
	return &draft, nil
}

func marshalNotes(draft *models.ReceiptDraft) (warnings, discrepancies []byte, err error) {
	if draft.Warnings == nil {
		draft.Warnings = []models.Warning{}
	}
	if draft.Discrepancies == nil {
		draft.Discrepancies = []models.Discrepancy{}
	}
	warnings, err = json.Marshal(draft.Warnings)
	if err != nil {
		return nil, nil, err
	}
	discrepancies, err = json.Marshal(draft.Discrepancies)
	if err != nil {
		return nil, nil, err
	}
	return warnings, discrepancies, nil
}

func nullableAmount(m *money.Money) *int64 {
	if m == nil {
		return nil
	}
	return &m.Amount
}

func amountOrNil(v *int64, currency string) *money.Money {
	if v == nil {
		return nil
	}
	m := money.New(*v, currency)
	return &m
}
