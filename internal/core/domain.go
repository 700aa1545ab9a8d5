package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	Date struct {
		time.Time
	}

	User struct {
		ID           int64
		Username     string
		Email        string
		PasswordHash string
		ProfilePic   string // object key, empty when no picture was uploaded
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	Transaction struct {
		ID          int64
		UserID      int64
		Type        TransactionType
		Category    string
		Amount      decimal.Decimal
		Date        Date
		Description string
		CreatedAt   time.Time
	}

	Budget struct {
		ID       int64
		UserID   int64
		Category string
		Amount   decimal.Decimal // spending limit
	}

	// Snapshot is an immutable copy of everything the engine needs for one user.
	Snapshot struct {
		Transactions []Transaction
		Budgets      []Budget
		TotalBudget  decimal.Decimal
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrMissingField    = errors.New("missing field")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrDescriptionSize = errors.New("description too long (max 200 characters)")
)

// FieldError names the field a validation error refers to.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &FieldError{Field: field, Err: ErrMissingField}
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// ParseTransactionType accepts the two ledger types, case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", missing("type")
	}
	t := TransactionType(s)
	if !t.Valid() {
		return "", &FieldError{Field: "type", Err: ErrInvalidType}
	}
	return t, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD format. A trailing time
// component (as sent by some clients) is ignored.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, missing("date")
	}
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &FieldError{Field: "date", Err: ErrInvalidDate}
	}
	return Date{Time: t}, nil
}

const DateLayout = "2006-01-02"

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// Period returns the calendar month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: int(d.Month())}
}

func (t Transaction) Validate() error {
	if t.Type == "" {
		return missing("type")
	}
	if !t.Type.Valid() {
		return &FieldError{Field: "type", Err: ErrInvalidType}
	}
	if strings.TrimSpace(t.Category) == "" {
		return missing("category")
	}
	if t.Date.IsZero() {
		return missing("date")
	}
	if !t.Amount.IsPositive() {
		return &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	if len(t.Description) > 200 {
		return &FieldError{Field: "description", Err: ErrDescriptionSize}
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return missing("category")
	}
	if b.Amount.IsNegative() {
		return &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	return nil
}

// NormalizeCategory trims, collapses inner whitespace and lowercases a
// category label so that "Food ", "food" and "FOOD" share one key.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
