package services

import (
	"context"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

type BudgetInput struct {
	Category string
	Amount   string
}

// BudgetService manages per-category budgets and the total budget.
type BudgetService struct {
	store BudgetStore
	notifier
}

func NewBudgetService(store BudgetStore, publisher EventPublisher, invalidator Invalidator) *BudgetService {
	return &BudgetService{store: store, notifier: notifier{publisher: publisher, invalidator: invalidator}}
}

func parseBudget(userID int64, in BudgetInput) (core.Budget, error) {
	category := core.NormalizeCategory(in.Category)
	if category == "" {
		return core.Budget{}, &core.FieldError{Field: "category", Err: core.ErrMissingField}
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{UserID: userID, Category: category, Amount: amount}
	return b, b.Validate()
}

func (s *BudgetService) Create(ctx context.Context, userID int64, in BudgetInput) (core.Budget, error) {
	b, err := parseBudget(userID, in)
	if err != nil {
		return core.Budget{}, err
	}
	created, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	s.changed(ctx, amqp.NewLedgerEvent(amqp.EventBudgetChanged, userID, ""))
	return created, nil
}

func (s *BudgetService) List(ctx context.Context, userID int64) ([]core.Budget, error) {
	return s.store.ListBudgets(ctx, userID)
}

func (s *BudgetService) Update(ctx context.Context, userID, id int64, in BudgetInput) (core.Budget, error) {
	b, err := parseBudget(userID, in)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = id
	updated, err := s.store.UpdateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	s.changed(ctx, amqp.NewLedgerEvent(amqp.EventBudgetChanged, userID, ""))
	return updated, nil
}

func (s *BudgetService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteBudget(ctx, userID, id); err != nil {
		return err
	}
	s.changed(ctx, amqp.NewLedgerEvent(amqp.EventBudgetChanged, userID, ""))
	return nil
}

// TotalBudget returns the user's total budget, zero when unset.
func (s *BudgetService) TotalBudget(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.store.GetTotalBudget(ctx, userID)
}

// SetTotalBudget upserts the total budget.
func (s *BudgetService) SetTotalBudget(ctx context.Context, userID int64, raw string) (decimal.Decimal, error) {
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.store.SetTotalBudget(ctx, userID, amount); err != nil {
		return decimal.Zero, err
	}
	s.changed(ctx, amqp.NewLedgerEvent(amqp.EventTotalBudgetChanged, userID, ""))
	return amount, nil
}
