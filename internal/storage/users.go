package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
)

const userColumns = `id, username, email, password, COALESCE(profile_pic, ''), created_at, updated_at`

// UserUpdate carries the fields of a profile update; nil means unchanged.
type UserUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
	ProfilePic   *string
}

func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.PasswordHash == nil && u.ProfilePic == nil
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u                core.User
		created, updated string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.ProfilePic, &created, &updated); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = parseTimestamp(created)
	u.UpdatedAt = parseTimestamp(updated)
	return u, nil
}

// CreateUser inserts a new account. A duplicate email yields ErrAlreadyExists.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password) VALUES (?, ?, ?) RETURNING `+userColumns,
		u.Username, u.Email, u.PasswordHash)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ErrAlreadyExists
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", created.ID)
	return created, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdateUser applies the non-nil fields of upd and bumps updated_at.
func (r *SQLiteRepository) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (core.User, error) {
	if upd.Empty() {
		return r.GetUser(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	add("username", upd.Username)
	add("email", upd.Email)
	add("password", upd.PasswordHash)
	add("profile_pic", upd.ProfilePic)
	sets = append(sets, "updated_at = ?")
	args = append(args, now(), id)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.User{}, ErrNotFound
	case err != nil && isUniqueViolation(err):
		return core.User{}, ErrAlreadyExists
	case err != nil:
		return core.User{}, fmt.Errorf("update user %d: %w", id, err)
	}

	slog.InfoContext(ctx, "User updated", "user_id", id, "fields", len(sets)-1)
	return u, nil
}

// ListUserIDs returns every account id, ascending.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
