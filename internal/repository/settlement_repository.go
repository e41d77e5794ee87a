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

type SettlementRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSettlementRepository(db *pgxpool.Pool, logger *zap.Logger) *SettlementRepository {
	return &SettlementRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceForGroup swaps the group's whole entry set in one transaction.
// Settlement entries are a derived view of the finalized receipts; they are
// always rewritten from scratch, never patched in place.
func (r *SettlementRepository) ReplaceForGroup(ctx context.Context, groupID uuid.UUID, entries []models.SettlementEntry) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		sql, args, err := squirrel.Delete("settlement_entries").
			Where(squirrel.Eq{"group_id": groupID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return err
		}

		if len(entries) == 0 {
			return nil
		}
		insert := squirrel.Insert("settlement_entries").
			Columns("group_id", "debtor_id", "creditor_id", "amount", "currency", "receipt_ids").
			PlaceholderFormat(squirrel.Dollar)
		for _, e := range entries {
			insert = insert.Values(groupID, e.DebtorID, e.CreditorID, e.Amount.Amount, e.Amount.Currency, e.ReceiptIDs)
		}
		sql, args, err = insert.ToSql()
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sql, args...)
		return err
	})
}

// ListByGroup returns the group's current entries in canonical order.
func (r *SettlementRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]models.SettlementEntry, error) {
	query := squirrel.Select("group_id", "debtor_id", "creditor_id", "amount", "currency", "receipt_ids").
		From("settlement_entries").
		Where(squirrel.Eq{"group_id": groupID}).
		OrderBy("debtor_id", "creditor_id").
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

	var entries []models.SettlementEntry
	for rows.Next() {
		var (
			e        models.SettlementEntry
			amount   int64
			currency string
		)
		if err := rows.Scan(&e.GroupID, &e.DebtorID, &e.CreditorID, &amount, &currency, &e.ReceiptIDs); err != nil {
			return nil, err
		}
		e.Amount = money.New(amount, currency)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
