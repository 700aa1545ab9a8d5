// Package http exposes the ledger, budget and report services as a JSON API.
//
// This file holds the response side: a small builder for JSON bodies, the
// wire shapes of domain objects and the mapping from service errors to
// status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/blob"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

// JSONResponseBuilder assembles a JSON object body field by field.
type JSONResponseBuilder struct {
	statusCode int
	fields     map[string]any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		fields:     make(map[string]any),
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Field sets one top-level key of the body.
func (b *JSONResponseBuilder) Field(name string, value any) *JSONResponseBuilder {
	b.fields[name] = value
	return b
}

// Message is shorthand for Field("message", msg).
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	return b.Field("message", msg)
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	writeJSON(w, b.statusCode, b.fields)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders the {"message": ...} error body every endpoint uses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// authError adapts writeError to the auth guard and rate limiter callbacks.
func authError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	writeError(w, status, message)
}

// ErrorResponse maps a service error to a status and client message. The
// notFound message names the missing resource.
func ErrorResponse(err error, notFound string) (int, string) {
	var fe *core.FieldError
	switch {
	case errors.Is(err, core.ErrMissingField):
		return http.StatusBadRequest, "All fields are required"
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be a non-negative number"
	case errors.Is(err, core.ErrInvalidType):
		return http.StatusBadRequest, "Type must be income or expense"
	case errors.Is(err, core.ErrInvalidDate):
		return http.StatusBadRequest, "Date must be formatted as YYYY-MM-DD"
	case errors.Is(err, core.ErrInvalidPeriod):
		return http.StatusBadRequest, "Month must be formatted as YYYY-MM"
	case errors.Is(err, core.ErrDescriptionSize):
		return http.StatusBadRequest, "Description is too long (max 200 characters)"
	case errors.Is(err, blob.ErrUnsupportedType):
		return http.StatusBadRequest, "Profile picture must be a PNG, JPEG, GIF or WebP image"
	case errors.Is(err, services.ErrEmailTaken):
		return http.StatusBadRequest, "Email already exists"
	case errors.Is(err, services.ErrNoFieldsToUpdate):
		return http.StatusBadRequest, "No valid fields to update"
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, notFound
	case errors.As(err, &fe):
		return http.StatusBadRequest, fe.Error()
	}
	return http.StatusInternalServerError, "Server error"
}

// respondError writes the mapped error and logs server-side failures with
// their cause.
func respondError(w http.ResponseWriter, r *http.Request, err error, notFound, operation string) {
	status, msg := ErrorResponse(err, notFound)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.NewFields().
				WithOperation(operation).
				WithError(err).
				WithErrorType(applog.ErrorTypeInternal).
				ToSlice()...)
	}
	writeError(w, status, msg)
}

type userResponse struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	ProfilePic    string    `json:"profile_pic"`
	ProfilePicURL string    `json:"profile_pic_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newUserResponse(u core.User, pictureURL string) userResponse {
	return userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		ProfilePic:    u.ProfilePic,
		ProfilePicURL: pictureURL,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type transactionResponse struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        core.Date       `json:"date"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Type:        string(t.Type),
		Category:    t.Category,
		Amount:      t.Amount,
		Date:        t.Date,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

func newTransactionList(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTransactionResponse(t))
	}
	return out
}

type budgetResponse struct {
	ID       int64           `json:"id"`
	UserID   int64           `json:"user_id"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

func newBudgetResponse(b core.Budget) budgetResponse {
	return budgetResponse{ID: b.ID, UserID: b.UserID, Category: b.Category, Amount: b.Amount}
}

func newBudgetList(budgets []core.Budget) []budgetResponse {
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, newBudgetResponse(b))
	}
	return out
}
