package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	warnPercent        = decimal.NewFromInt(80)
	forecastDamp       = decimal.NewFromFloat(0.5)
	DefaultHighExpense = decimal.NewFromInt(1000)
)

// Filter narrows a transaction list. Zero values mean "any".
type Filter struct {
	Period   *Period
	Category string
	Type     TransactionType
}

// FilterTransactions returns the transactions matching f, preserving order.
func FilterTransactions(txs []Transaction, f Filter) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if !inPeriod(f.Period, t.Date) {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Summarize computes the period overview for a snapshot. Budgets sharing a
// category are merged before progress is computed.
func Summarize(s Snapshot, period *Period) (Summary, error) {
	income, err := TotalIncome(s.Transactions, period)
	if err != nil {
		return Summary{}, err
	}
	expense, err := TotalExpense(s.Transactions, period)
	if err != nil {
		return Summary{}, err
	}
	spend, err := SpendByCategory(s.Transactions, period)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		TotalIncome:     income,
		TotalExpense:    expense,
		NetBalance:      income.Sub(expense),
		HealthScore:     HealthScore(income, expense),
		SpendingPercent: SpendingPercent(income, expense),
		SpendByCategory: sortedAmounts(spend),
		Budgets:         []Progress{},
	}
	if period != nil {
		sum.Period = period.String()
	}

	for _, b := range MergeBudgets(s.Budgets) {
		if b.Amount.IsNegative() {
			return Summary{}, &FieldError{Field: "amount", Err: ErrInvalidAmount}
		}
		p := progress(spend[b.Category], b.Amount)
		p.Category = b.Category
		sum.Budgets = append(sum.Budgets, p)
	}

	sum.Overall, err = OverallProgress(s.TotalBudget, s.Budgets, s.Transactions, period)
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// MonthlyTrend buckets the ledger by month, ascending, with running savings.
func MonthlyTrend(txs []Transaction) ([]MonthPoint, error) {
	buckets := make(map[string]*MonthPoint)
	for _, t := range txs {
		if err := checkTransaction(t); err != nil {
			return nil, err
		}
		key := t.Date.Period().String()
		mp, ok := buckets[key]
		if !ok {
			mp = &MonthPoint{Month: key}
			buckets[key] = mp
		}
		if t.Type == Income {
			mp.Income = mp.Income.Add(t.Amount)
		} else {
			mp.Expense = mp.Expense.Add(t.Amount)
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	trend := make([]MonthPoint, 0, len(keys))
	running := decimal.Zero
	for _, k := range keys {
		mp := *buckets[k]
		mp.Savings = mp.Income.Sub(mp.Expense)
		running = running.Add(mp.Savings)
		mp.Cumulative = running
		trend = append(trend, mp)
	}
	return trend, nil
}

// ForecastNext extrapolates half of the last month-over-month change. It
// needs at least two months of history.
func ForecastNext(trend []MonthPoint) *Forecast {
	if len(trend) < 2 {
		return nil
	}
	last, prev := trend[len(trend)-1], trend[len(trend)-2]
	lastPeriod, err := ParsePeriod(last.Month)
	if err != nil {
		return nil
	}
	next := Period{Year: lastPeriod.Year, Month: lastPeriod.Month + 1}
	if next.Month > 12 {
		next = Period{Year: next.Year + 1, Month: 1}
	}

	income := nonNegative(last.Income.Add(last.Income.Sub(prev.Income).Mul(forecastDamp)))
	expense := nonNegative(last.Expense.Add(last.Expense.Sub(prev.Expense).Mul(forecastDamp)))
	return &Forecast{
		Month:   next.String(),
		Income:  income.Round(2),
		Expense: expense.Round(2),
		Savings: income.Sub(expense).Round(2),
	}
}

// TopCategories returns the n largest spend categories, ties by name.
func TopCategories(spend map[string]decimal.Decimal, n int) []CategoryAmount {
	all := sortedAmounts(spend)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Amount.GreaterThan(all[j].Amount)
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// BuildDashboard computes the all-time dashboard view.
func BuildDashboard(s Snapshot, top int) (Dashboard, error) {
	income, err := TotalIncome(s.Transactions, nil)
	if err != nil {
		return Dashboard{}, err
	}
	expense, err := TotalExpense(s.Transactions, nil)
	if err != nil {
		return Dashboard{}, err
	}
	spend, err := SpendByCategory(s.Transactions, nil)
	if err != nil {
		return Dashboard{}, err
	}
	trend, err := MonthlyTrend(s.Transactions)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		TotalIncome:   income,
		TotalExpense:  expense,
		NetBalance:    income.Sub(expense),
		HealthScore:   HealthScore(income, expense),
		Trend:         trend,
		TopCategories: TopCategories(spend, top),
		Forecast:      ForecastNext(trend),
	}, nil
}

// Notifications derives budget alerts for a period. A zero highExpense
// disables the large-expense warnings.
func Notifications(s Snapshot, period *Period, highExpense decimal.Decimal) ([]Notification, error) {
	sum, err := Summarize(s, period)
	if err != nil {
		return nil, err
	}

	var out []Notification
	if s.TotalBudget.IsPositive() {
		o := sum.Overall
		n := Notification{Kind: KindTotalBudget, Amount: o.Spent, Percent: o.Percent}
		switch {
		case o.OverBudget || o.Percent.GreaterThanOrEqual(hundred):
			n.Severity = SeverityDanger
			n.Message = fmt.Sprintf("Total budget exceeded: spent %s of %s", o.Spent.StringFixed(2), o.Limit.StringFixed(2))
		case o.Percent.GreaterThanOrEqual(warnPercent):
			n.Severity = SeverityWarning
			n.Message = fmt.Sprintf("You have used %s%% of your total budget", o.Percent.StringFixed(0))
		default:
			n.Severity = SeverityInfo
			n.Message = fmt.Sprintf("Spending is within budget (%s%% spent)", o.Percent.StringFixed(0))
		}
		out = append(out, n)
	}

	for _, p := range sum.Budgets {
		if !p.Limit.IsPositive() {
			continue
		}
		n := Notification{Kind: KindBudget, Category: p.Category, Amount: p.Spent, Percent: p.Percent}
		switch {
		case p.OverBudget || p.Percent.GreaterThanOrEqual(hundred):
			n.Severity = SeverityDanger
			n.Message = fmt.Sprintf("Budget for %s exceeded: spent %s of %s", p.Category, p.Spent.StringFixed(2), p.Limit.StringFixed(2))
		case p.Percent.GreaterThanOrEqual(warnPercent):
			n.Severity = SeverityWarning
			n.Message = fmt.Sprintf("Budget for %s is at %s%%", p.Category, p.Percent.StringFixed(0))
		default:
			continue
		}
		out = append(out, n)
	}

	if highExpense.IsPositive() {
		for _, t := range FilterTransactions(s.Transactions, Filter{Period: period, Type: Expense}) {
			if t.Amount.GreaterThan(highExpense) {
				out = append(out, Notification{
					Severity: SeverityWarning,
					Kind:     KindHighExpense,
					Category: t.Category,
					Amount:   t.Amount,
					TxID:     t.ID,
					Message:  fmt.Sprintf("High expense of %s in %s on %s", t.Amount.StringFixed(2), t.Category, t.Date),
				})
			}
		}
	}
	return out, nil
}

func sortedAmounts(spend map[string]decimal.Decimal) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(spend))
	for c, a := range spend {
		out = append(out, CategoryAmount{Category: c, Amount: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
