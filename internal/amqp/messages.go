package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys. Ledger events are consumed by the worker; alerts and digests
// land on the notifications queue.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventBudgetChanged      = "budget.changed"
	EventTotalBudgetChanged = "total_budget.changed"

	RouteBudgetAlert   = "notify.budget_alert"
	RouteMonthlyDigest = "notify.monthly_digest"
)

var ledgerBindings = []string{"transaction.*", EventBudgetChanged, EventTotalBudgetChanged}

var notifyBindings = []string{"notify.*"}

// TransactionPayload is the ledger entry carried by transaction events.
type TransactionPayload struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
}

// LedgerEvent announces a change to one user's ledger or budgets.
// PreviousPeriod is set on updates that moved a transaction to another
// month, which needs its alerts re-evaluated too.
type LedgerEvent struct {
	Type           string              `json:"type"`
	UserID         int64               `json:"user_id"`
	Period         string              `json:"period,omitempty"`
	PreviousPeriod string              `json:"previous_period,omitempty"`
	Transaction    *TransactionPayload `json:"transaction,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

func NewLedgerEvent(kind string, userID int64, period string) *LedgerEvent {
	return &LedgerEvent{
		Type:      kind,
		UserID:    userID,
		Period:    period,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" || msg.UserID <= 0 {
		return nil, fmt.Errorf("ledger event missing type or user id")
	}
	return &msg, nil
}

// BudgetAlertMessage is raised when a budget crosses the warning or danger line.
type BudgetAlertMessage struct {
	UserID    int64           `json:"user_id"`
	Period    string          `json:"period"`
	Severity  string          `json:"severity"`
	Kind      string          `json:"kind"`
	Category  string          `json:"category,omitempty"`
	Message   string          `json:"message"`
	Percent   decimal.Decimal `json:"percent"`
	Timestamp time.Time       `json:"timestamp"`
}

type DigestCategory struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// DigestMessage summarizes one user's month.
type DigestMessage struct {
	UserID        int64            `json:"user_id"`
	Period        string           `json:"period"`
	Income        decimal.Decimal  `json:"income"`
	Expense       decimal.Decimal  `json:"expense"`
	Net           decimal.Decimal  `json:"net"`
	HealthScore   decimal.Decimal  `json:"health_score"`
	TopCategories []DigestCategory `json:"top_categories"`
	Timestamp     time.Time        `json:"timestamp"`
}
