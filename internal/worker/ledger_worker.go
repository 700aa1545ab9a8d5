package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

type (
	// AlertSource evaluates budget alerts for one user and month.
	AlertSource interface {
		Alerts(ctx context.Context, userID int64, period core.Period) ([]*amqp.BudgetAlertMessage, error)
	}

	AlertPublisher interface {
		PublishBudgetAlert(ctx context.Context, alert *amqp.BudgetAlertMessage) error
	}
)

// LedgerWorker reacts to ledger events: it re-evaluates the user's budgets
// and mirrors new transactions to the spreadsheet when one is configured.
type LedgerWorker struct {
	alerts    AlertSource
	publisher AlertPublisher
	mirror    sheets.LedgerWriter
	now       func() time.Time
}

// NewLedgerWorker creates a worker; mirror may be nil.
func NewLedgerWorker(alerts AlertSource, publisher AlertPublisher, mirror sheets.LedgerWriter) *LedgerWorker {
	return &LedgerWorker{
		alerts:    alerts,
		publisher: publisher,
		mirror:    mirror,
		now:       time.Now,
	}
}

// HandleLedgerEvent processes one event from the ledger queue. Malformed
// events are rejected with amqp.ErrPermanent so they are not redelivered.
func (w *LedgerWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"component", "worker",
		"type", ev.Type,
		"user_id", ev.UserID)

	switch ev.Type {
	case amqp.EventTransactionCreated, amqp.EventTransactionUpdated, amqp.EventTransactionDeleted,
		amqp.EventBudgetChanged, amqp.EventTotalBudgetChanged:
	default:
		return fmt.Errorf("%w: unknown event type %q", amqp.ErrPermanent, ev.Type)
	}

	period := core.PeriodOf(w.now())
	if ev.Period != "" {
		p, err := core.ParsePeriod(ev.Period)
		if err != nil {
			return fmt.Errorf("%w: %v", amqp.ErrPermanent, err)
		}
		period = p
	}
	periods := []core.Period{period}
	if ev.PreviousPeriod != "" {
		prev, err := core.ParsePeriod(ev.PreviousPeriod)
		if err != nil {
			return fmt.Errorf("%w: previous period: %v", amqp.ErrPermanent, err)
		}
		if prev != period {
			periods = append(periods, prev)
		}
	}

	for _, p := range periods {
		if err := w.publishAlerts(ctx, ev.UserID, p); err != nil {
			return err
		}
	}

	// Mirror last so a failed publish, which requeues the event, never
	// leaves a row behind that the retry would append again.
	if ev.Type == amqp.EventTransactionCreated {
		w.mirrorTransaction(ctx, ev)
	}
	return nil
}

func (w *LedgerWorker) publishAlerts(ctx context.Context, userID int64, period core.Period) error {
	alerts, err := w.alerts.Alerts(ctx, userID, period)
	if err != nil {
		return fmt.Errorf("evaluate alerts: %w", err)
	}
	for _, a := range alerts {
		if err := w.publisher.PublishBudgetAlert(ctx, a); err != nil {
			return fmt.Errorf("publish budget alert: %w", err)
		}
	}
	if len(alerts) > 0 {
		slog.InfoContext(ctx, "Budget alerts published",
			"component", "worker",
			"user_id", userID,
			"period", period.String(),
			"count", len(alerts))
	}
	return nil
}

// mirrorTransaction appends the event's transaction to the spreadsheet
// unless a row for it already exists. A failure is logged only; the ledger
// in the database stays the source of truth.
func (w *LedgerWorker) mirrorTransaction(ctx context.Context, ev *amqp.LedgerEvent) {
	if w.mirror == nil || ev.Transaction == nil {
		return
	}
	t, err := transactionFromPayload(ev.UserID, ev.Transaction)
	if err != nil {
		slog.WarnContext(ctx, "Skipping sheet mirror of malformed transaction", "component", "sheets", "error", err)
		return
	}
	if reader, ok := w.mirror.(sheets.LedgerReader); ok {
		// A year's sheet is created on first append, so a read error falls
		// through to the append.
		exists, err := alreadyMirrored(ctx, reader, t)
		if err != nil {
			slog.WarnContext(ctx, "Failed to read sheet before mirroring",
				"component", "sheets",
				"transaction_id", t.ID,
				"error", err)
		}
		if exists {
			slog.DebugContext(ctx, "Transaction already mirrored", "component", "sheets", "transaction_id", t.ID)
			return
		}
	}
	ref, err := w.mirror.AppendTransaction(ctx, t)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror transaction to sheet",
			"component", "sheets",
			"transaction_id", t.ID,
			"error", err)
		return
	}
	slog.InfoContext(ctx, "Mirrored transaction to sheet",
		"component", "sheets",
		"transaction_id", t.ID,
		"sheets_ref", ref)
}

func alreadyMirrored(ctx context.Context, reader sheets.LedgerReader, t core.Transaction) (bool, error) {
	rows, err := reader.ListRows(ctx, t.Date.Year())
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.TransactionID == t.ID && r.UserID == t.UserID {
			return true, nil
		}
	}
	return false, nil
}

func transactionFromPayload(userID int64, p *amqp.TransactionPayload) (core.Transaction, error) {
	typ, err := core.ParseTransactionType(p.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(p.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	if p.ID == 0 {
		return core.Transaction{}, errors.New("transaction payload without id")
	}
	return core.Transaction{
		ID:          p.ID,
		UserID:      userID,
		Type:        typ,
		Category:    p.Category,
		Amount:      p.Amount,
		Date:        date,
		Description: p.Description,
	}, nil
}
