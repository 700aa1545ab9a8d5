package services

import (
	"context"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// notifier fans a ledger change out to the report cache and the broker.
// Publishing is best effort: the write has already been committed.
type notifier struct {
	publisher   EventPublisher
	invalidator Invalidator
}

func (n notifier) changed(ctx context.Context, ev *amqp.LedgerEvent) {
	if n.invalidator != nil {
		n.invalidator.Invalidate(ev.UserID)
	}
	if n.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping ledger event", "component", "ledger", "type", ev.Type)
		return
	}
	if err := n.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"component", "ledger",
			"type", ev.Type,
			"user_id", ev.UserID,
			"error", err)
	}
}

func transactionEvent(kind string, t core.Transaction) *amqp.LedgerEvent {
	ev := amqp.NewLedgerEvent(kind, t.UserID, t.Date.Period().String())
	ev.Transaction = &amqp.TransactionPayload{
		ID:          t.ID,
		Type:        string(t.Type),
		Category:    t.Category,
		Amount:      t.Amount,
		Date:        t.Date.String(),
		Description: t.Description,
	}
	return ev
}
