package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const budgetColumns = `id, user_id, category, amount`

func scanBudget(row rowScanner) (core.Budget, error) {
	var (
		b      core.Budget
		amount string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Category, &amount); err != nil {
		return core.Budget{}, err
	}
	var err error
	if b.Amount, err = parseStoredAmount(amount); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO budgets (user_id, category, amount) VALUES (?, ?, ?) RETURNING `+budgetColumns,
		b.UserID, b.Category, b.Amount.String())
	created, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget saved",
		"id", created.ID,
		"user_id", created.UserID,
		"category", created.Category,
		"amount", created.Amount.String())
	return created, nil
}

// ListBudgets returns a user's budgets in creation order.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	budgets := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return budgets, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE budgets SET category = ?, amount = ? WHERE id = ? AND user_id = ? RETURNING `+budgetColumns,
		b.Category, b.Amount.String(), b.ID, b.UserID)
	updated, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, ErrNotFound
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %d: %w", b.ID, err)
	}

	slog.InfoContext(ctx, "Budget updated", "id", b.ID, "user_id", b.UserID)
	return updated, nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete budget %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete budget %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Budget deleted", "id", id, "user_id", userID)
	return nil
}

// GetTotalBudget returns the user's total budget, or zero when never set.
func (r *SQLiteRepository) GetTotalBudget(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var amount string
	err := r.db.QueryRowContext(ctx,
		`SELECT total_budget FROM total_budget WHERE user_id = ?`, userID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get total budget: %w", err)
	}
	return parseStoredAmount(amount)
}

// SetTotalBudget upserts the user's single total budget row.
func (r *SQLiteRepository) SetTotalBudget(ctx context.Context, userID int64, amount decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO total_budget (user_id, total_budget, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET total_budget = excluded.total_budget, updated_at = excluded.updated_at`,
		userID, amount.String(), now())
	if err != nil {
		return fmt.Errorf("set total budget: %w", err)
	}

	slog.InfoContext(ctx, "Total budget set", "user_id", userID, "amount", amount.String())
	return nil
}
