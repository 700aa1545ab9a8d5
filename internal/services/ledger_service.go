package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// TransactionInput is a ledger entry as submitted by a client.
type TransactionInput struct {
	Type        string
	Category    string
	Amount      string
	Date        string
	Description string
}

// ListFilter is the query form of core.Filter.
type ListFilter struct {
	Month    string // YYYY-MM, empty for all
	Category string
	Type     string
}

func (f ListFilter) toCore() (core.Filter, error) {
	var out core.Filter
	if f.Month != "" {
		p, err := core.ParsePeriod(f.Month)
		if err != nil {
			return core.Filter{}, err
		}
		out.Period = &p
	}
	if f.Category != "" {
		out.Category = core.NormalizeCategory(f.Category)
	}
	if f.Type != "" {
		t, err := core.ParseTransactionType(f.Type)
		if err != nil {
			return core.Filter{}, err
		}
		out.Type = t
	}
	return out, nil
}

// LedgerService manages a user's transactions.
type LedgerService struct {
	store LedgerStore
	notifier
}

func NewLedgerService(store LedgerStore, publisher EventPublisher, invalidator Invalidator) *LedgerService {
	return &LedgerService{store: store, notifier: notifier{publisher: publisher, invalidator: invalidator}}
}

// parseTransaction turns client input into a validated transaction. Every
// required field is checked before any is parsed so a blank form reports a
// missing field rather than a format error.
func parseTransaction(userID int64, in TransactionInput) (core.Transaction, error) {
	required := []struct{ field, value string }{
		{"type", in.Type},
		{"category", in.Category},
		{"amount", in.Amount},
		{"date", in.Date},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return core.Transaction{}, &core.FieldError{Field: r.field, Err: core.ErrMissingField}
		}
	}

	typ, err := core.ParseTransactionType(in.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParsePositiveAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		UserID:      userID,
		Type:        typ,
		Category:    core.NormalizeCategory(in.Category),
		Amount:      amount,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
	}
	return t, t.Validate()
}

func (s *LedgerService) Create(ctx context.Context, userID int64, in TransactionInput) (core.Transaction, error) {
	t, err := parseTransaction(userID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	s.changed(ctx, transactionEvent(amqp.EventTransactionCreated, created))
	return created, nil
}

// List returns the user's transactions, newest first, narrowed by f.
func (s *LedgerService) List(ctx context.Context, userID int64, f ListFilter) ([]core.Transaction, error) {
	filter, err := f.toCore()
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return core.FilterTransactions(txs, filter), nil
}

// Update replaces a transaction the user owns.
func (s *LedgerService) Update(ctx context.Context, userID, id int64, in TransactionInput) (core.Transaction, error) {
	t, err := parseTransaction(userID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = id
	existing, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	ev := transactionEvent(amqp.EventTransactionUpdated, updated)
	if prev := existing.Date.Period(); prev != updated.Date.Period() {
		ev.PreviousPeriod = prev.String()
	}
	s.changed(ctx, ev)
	return updated, nil
}

func (s *LedgerService) Delete(ctx context.Context, userID, id int64) error {
	existing, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, transactionEvent(amqp.EventTransactionDeleted, existing))
	return nil
}

var csvHeader = []string{"id", "date", "type", "category", "amount", "description"}

// Export writes the filtered ledger as CSV and returns the number of rows.
func (s *LedgerService) Export(ctx context.Context, userID int64, f ListFilter, w io.Writer) (int, error) {
	txs, err := s.List(ctx, userID, f)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range txs {
		row := []string{
			strconv.FormatInt(t.ID, 10),
			t.Date.String(),
			string(t.Type),
			t.Category,
			t.Amount.StringFixed(2),
			t.Description,
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return len(txs), cw.Error()
}
