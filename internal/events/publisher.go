// Package events publishes domain notifications for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeReceiptFinalized     = "receipt.finalized"
	TypeSettlementRecomputed = "settlement.recomputed"
)

// Event is a domain notification. Payload is event-type specific.
type Event struct {
	Type       string    `json:"type"`
	GroupID    uuid.UUID `json:"group_id"`
	ReceiptID  uuid.UUID `json:"receipt_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events to whatever transport is configured. Publishing
// is best-effort from the engine's point of view: a failed publish is logged
// by the caller, never rolled into the receipt transaction.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NoopPublisher) Close() error                                   { return nil }
