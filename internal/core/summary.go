package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Summary is everything the overview pages show for one period.
type Summary struct {
	Period          string           `json:"period,omitempty"` // empty when unfiltered
	TotalIncome     decimal.Decimal  `json:"totalIncome"`
	TotalExpense    decimal.Decimal  `json:"totalExpense"`
	NetBalance      decimal.Decimal  `json:"netBalance"`
	HealthScore     decimal.Decimal  `json:"healthScore"`
	SpendingPercent decimal.Decimal  `json:"spendingPercent"`
	SpendByCategory []CategoryAmount `json:"spendByCategory"`
	Budgets         []Progress       `json:"budgets"`
	Overall         Progress         `json:"overall"`
}

// Rounded returns a copy with every percentage rounded for display. The
// receiver's slices are not modified.
func (s Summary) Rounded() Summary {
	s.HealthScore = RoundPercent(s.HealthScore)
	s.SpendingPercent = RoundPercent(s.SpendingPercent)
	s.Overall.Percent = RoundPercent(s.Overall.Percent)
	if s.Budgets != nil {
		budgets := make([]Progress, len(s.Budgets))
		for i, p := range s.Budgets {
			p.Percent = RoundPercent(p.Percent)
			budgets[i] = p
		}
		s.Budgets = budgets
	}
	return s
}

// MonthPoint is one month of the dashboard trend.
type MonthPoint struct {
	Month      string          `json:"month"` // YYYY-MM
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Savings    decimal.Decimal `json:"savings"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Forecast projects the month after the last one in a trend.
type Forecast struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Savings decimal.Decimal `json:"savings"`
}

// Dashboard is the long-range view across every month in the ledger.
type Dashboard struct {
	TotalIncome   decimal.Decimal  `json:"totalIncome"`
	TotalExpense  decimal.Decimal  `json:"totalExpense"`
	NetBalance    decimal.Decimal  `json:"netBalance"`
	HealthScore   decimal.Decimal  `json:"healthScore"`
	Trend         []MonthPoint     `json:"trend"`
	TopCategories []CategoryAmount `json:"topCategories"`
	Forecast      *Forecast        `json:"forecast,omitempty"`
}

// Rounded returns a copy with the health score rounded for display.
func (d Dashboard) Rounded() Dashboard {
	d.HealthScore = RoundPercent(d.HealthScore)
	return d
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Notification is a budget alert derived from a snapshot.
type Notification struct {
	Severity Severity        `json:"severity"`
	Kind     string          `json:"kind"`
	Category string          `json:"category,omitempty"`
	Message  string          `json:"message"`
	Amount   decimal.Decimal `json:"amount"`
	Percent  decimal.Decimal `json:"percent"`
	TxID     int64           `json:"transactionId,omitempty"`
}

// RoundNotifications returns copies of notes with percentages rounded for
// display.
func RoundNotifications(notes []Notification) []Notification {
	out := make([]Notification, len(notes))
	for i, n := range notes {
		n.Percent = RoundPercent(n.Percent)
		out[i] = n
	}
	return out
}

const (
	KindTotalBudget = "total_budget"
	KindBudget      = "budget"
	KindHighExpense = "high_expense"
)
