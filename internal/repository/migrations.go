package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup so tables exist. Declared amounts are integer
// minor units throughout; NULL means the field was never extracted.
const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    id UUID PRIMARY KEY,
    group_id UUID NOT NULL,
    uploaded_by UUID NOT NULL,
    merchant TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL,
    subtotal BIGINT,
    tax BIGINT,
    tip BIGINT,
    discount BIGINT,
    total BIGINT,
    status TEXT NOT NULL,
    warnings JSONB NOT NULL DEFAULT '[]',
    discrepancies JSONB NOT NULL DEFAULT '[]',
    image_locator TEXT NOT NULL DEFAULT '',
    error_note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS receipt_items (
    id UUID PRIMARY KEY,
    receipt_id UUID NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
    position INT NOT NULL,
    description TEXT NOT NULL,
    unit_price BIGINT NOT NULL,
    quantity BIGINT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS item_assignments (
    item_id UUID NOT NULL REFERENCES receipt_items(id) ON DELETE CASCADE,
    participant_id UUID NOT NULL,
    weight BIGINT NOT NULL,
    position INT NOT NULL,
    PRIMARY KEY (item_id, participant_id)
);

CREATE TABLE IF NOT EXISTS participant_shares (
    receipt_id UUID NOT NULL REFERENCES receipts(id) ON DELETE CASCADE,
    participant_id UUID NOT NULL,
    items_subtotal BIGINT NOT NULL,
    tax BIGINT NOT NULL,
    tip BIGINT NOT NULL,
    discount BIGINT NOT NULL,
    owed BIGINT NOT NULL,
    currency TEXT NOT NULL,
    PRIMARY KEY (receipt_id, participant_id)
);

CREATE TABLE IF NOT EXISTS settlement_entries (
    group_id UUID NOT NULL,
    debtor_id UUID NOT NULL,
    creditor_id UUID NOT NULL,
    amount BIGINT NOT NULL,
    currency TEXT NOT NULL,
    receipt_ids UUID[] NOT NULL,
    PRIMARY KEY (group_id, debtor_id, creditor_id)
);

CREATE INDEX IF NOT EXISTS idx_receipts_group_id ON receipts(group_id);
CREATE INDEX IF NOT EXISTS idx_receipt_items_receipt_id ON receipt_items(receipt_id);
CREATE INDEX IF NOT EXISTS idx_participant_shares_receipt_id ON participant_shares(receipt_id);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}
