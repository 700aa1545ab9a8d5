package core

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Progress is the consumption of a spending limit. Percent is clamped to
// [0,100] for display; OverBudget reports the true overage.
type Progress struct {
	Category   string          `json:"category,omitempty"`
	Spent      decimal.Decimal `json:"spent"`
	Limit      decimal.Decimal `json:"limit"`
	Percent    decimal.Decimal `json:"percent"`
	OverBudget bool            `json:"overBudget"`
}

// checkTransaction rejects malformed entries instead of coercing them.
func checkTransaction(t Transaction) error {
	if t.Type == "" {
		return missing("type")
	}
	if !t.Type.Valid() {
		return &FieldError{Field: "type", Err: ErrInvalidType}
	}
	if t.Date.IsZero() {
		return missing("date")
	}
	if t.Amount.IsNegative() {
		return &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	return nil
}

func sumType(txs []Transaction, period *Period, typ TransactionType) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range txs {
		if err := checkTransaction(t); err != nil {
			return decimal.Zero, err
		}
		if t.Type == typ && inPeriod(period, t.Date) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

// TotalIncome sums income amounts, restricted to period when it is not nil.
func TotalIncome(txs []Transaction, period *Period) (decimal.Decimal, error) {
	return sumType(txs, period, Income)
}

// TotalExpense sums expense amounts, restricted to period when it is not nil.
func TotalExpense(txs []Transaction, period *Period) (decimal.Decimal, error) {
	return sumType(txs, period, Expense)
}

// NetBalance is income minus expense and may be negative.
func NetBalance(txs []Transaction, period *Period) (decimal.Decimal, error) {
	income, err := TotalIncome(txs, period)
	if err != nil {
		return decimal.Zero, err
	}
	expense, err := TotalExpense(txs, period)
	if err != nil {
		return decimal.Zero, err
	}
	return income.Sub(expense), nil
}

// SpendByCategory groups expense amounts by exact category string. A
// category with no expense is absent from the result.
func SpendByCategory(txs []Transaction, period *Period) (map[string]decimal.Decimal, error) {
	spend := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if err := checkTransaction(t); err != nil {
			return nil, err
		}
		if t.Type != Expense || !inPeriod(period, t.Date) {
			continue
		}
		spend[t.Category] = spend[t.Category].Add(t.Amount)
	}
	return spend, nil
}

// BudgetProgress reports how much of a single budget has been spent.
func BudgetProgress(b Budget, txs []Transaction, period *Period) (Progress, error) {
	if b.Amount.IsNegative() {
		return Progress{}, &FieldError{Field: "amount", Err: ErrInvalidAmount}
	}
	spend, err := SpendByCategory(txs, period)
	if err != nil {
		return Progress{}, err
	}
	p := progress(spend[b.Category], b.Amount)
	p.Category = b.Category
	return p, nil
}

// OverallProgress measures spend against the total budget. Only categories
// that have a budget count toward the total.
func OverallProgress(totalBudget decimal.Decimal, budgets []Budget, txs []Transaction, period *Period) (Progress, error) {
	if totalBudget.IsNegative() {
		return Progress{}, &FieldError{Field: "totalBudget", Err: ErrInvalidAmount}
	}
	spend, err := SpendByCategory(txs, period)
	if err != nil {
		return Progress{}, err
	}
	spent := decimal.Zero
	for _, category := range budgetedCategories(budgets) {
		spent = spent.Add(spend[category])
	}
	return progress(spent, totalBudget), nil
}

// HealthScore is the savings rate as a percentage in [0,100].
func HealthScore(income, expense decimal.Decimal) decimal.Decimal {
	if !income.IsPositive() {
		return decimal.Zero
	}
	score := income.Sub(expense).Div(income).Mul(hundred)
	return clampPercent(score)
}

// SpendingPercent is the share of income spent, capped at 100.
func SpendingPercent(income, expense decimal.Decimal) decimal.Decimal {
	if !income.IsPositive() {
		return decimal.Zero
	}
	return clampPercent(expense.Div(income).Mul(hundred))
}

// MergeBudgets folds budgets sharing a category into one entry whose limit is
// the sum of theirs, keeping the first id and the order of first appearance.
func MergeBudgets(budgets []Budget) []Budget {
	index := make(map[string]int, len(budgets))
	merged := make([]Budget, 0, len(budgets))
	for _, b := range budgets {
		if i, ok := index[b.Category]; ok {
			merged[i].Amount = merged[i].Amount.Add(b.Amount)
			continue
		}
		index[b.Category] = len(merged)
		merged = append(merged, b)
	}
	return merged
}

func budgetedCategories(budgets []Budget) []string {
	seen := make(map[string]struct{}, len(budgets))
	out := make([]string, 0, len(budgets))
	for _, b := range budgets {
		if _, ok := seen[b.Category]; ok {
			continue
		}
		seen[b.Category] = struct{}{}
		out = append(out, b.Category)
	}
	return out
}

// progress never divides by zero: a zero limit yields 0%.
func progress(spent, limit decimal.Decimal) Progress {
	p := Progress{
		Spent:      spent,
		Limit:      limit,
		Percent:    decimal.Zero,
		OverBudget: spent.GreaterThan(limit),
	}
	if limit.IsPositive() {
		p.Percent = clampPercent(spent.Div(limit).Mul(hundred))
	}
	return p
}

// clampPercent bounds d to [0,100] without rounding, so alert thresholds
// compare the exact ratio. Callers round for display with RoundPercent.
func clampPercent(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// RoundPercent rounds a percentage to the two decimals shown to users.
func RoundPercent(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
