package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

const transactionColumns = `id, user_id, type, category, amount, date, description, created_at`

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                          core.Transaction
		typ, amount, date, created string
	)
	if err := row.Scan(&t.ID, &t.UserID, &typ, &t.Category, &amount, &date, &t.Description, &created); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)

	var err error
	if t.Amount, err = parseStoredAmount(amount); err != nil {
		return core.Transaction{}, err
	}
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	t.CreatedAt = parseTimestamp(created)
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, type, category, amount, date, description)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING `+transactionColumns,
		t.UserID, string(t.Type), t.Category, t.Amount.String(), t.Date.String(), t.Description)
	created, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", created.ID,
		"user_id", created.UserID,
		"type", created.Type,
		"category", created.Category,
		"amount", created.Amount.String(),
		"date", created.Date.String())
	return created, nil
}

// ListTransactions returns a user's ledger, newest date first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// UpdateTransaction replaces every editable field of a transaction owned by t.UserID.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE transactions SET type = ?, category = ?, amount = ?, date = ?, description = ?
		 WHERE id = ? AND user_id = ? RETURNING `+transactionColumns,
		string(t.Type), t.Category, t.Amount.String(), t.Date.String(), t.Description, t.ID, t.UserID)
	updated, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", t.ID, err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", t.ID, "user_id", t.UserID)
	return updated, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return nil
}
