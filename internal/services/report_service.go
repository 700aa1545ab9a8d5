package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
)

const topCategories = 5

// ReportService runs the aggregation engine over a freshly loaded snapshot
// and caches the results per user and period.
type ReportService struct {
	ledger      LedgerStore
	budgets     BudgetStore
	summaries   cache.Cache[core.Summary]
	dashboards  cache.Cache[core.Dashboard]
	highExpense decimal.Decimal
	now         func() time.Time

	// generations counts invalidations per user. A report computed from a
	// snapshot loaded before an invalidation is never cached.
	genMu       sync.Mutex
	generations map[int64]uint64
}

func NewReportService(ledger LedgerStore, budgets BudgetStore, summaries cache.Cache[core.Summary], dashboards cache.Cache[core.Dashboard], highExpense decimal.Decimal) *ReportService {
	if highExpense.IsZero() {
		highExpense = core.DefaultHighExpense
	}
	return &ReportService{
		ledger:      ledger,
		budgets:     budgets,
		summaries:   summaries,
		dashboards:  dashboards,
		highExpense: highExpense,
		now:         time.Now,
		generations: make(map[int64]uint64),
	}
}

func (s *ReportService) generation(userID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// storeIfCurrent runs set only when no invalidation happened since gen was
// read. The lock is held across set so Invalidate cannot interleave.
func (s *ReportService) storeIfCurrent(userID int64, gen uint64, set func()) bool {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return false
	}
	set()
	return true
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("user:%d:", userID)
}

func periodKey(userID int64, period *core.Period) string {
	if period == nil {
		return userPrefix(userID) + "all"
	}
	return userPrefix(userID) + period.String()
}

// Invalidate drops every cached report of the user.
func (s *ReportService) Invalidate(userID int64) {
	s.genMu.Lock()
	s.generations[userID]++
	s.genMu.Unlock()

	n := 0
	if s.summaries != nil {
		n += s.summaries.DeletePrefix(userPrefix(userID))
	}
	if s.dashboards != nil {
		n += s.dashboards.DeletePrefix(userPrefix(userID))
	}
	if n > 0 {
		slog.Debug("Report cache invalidated", "component", "cache", "user_id", userID, "entries", n)
	}
}

// ResolvePeriod maps the month query parameter: empty means the current
// month, "all" means no filter.
func (s *ReportService) ResolvePeriod(month string) (*core.Period, error) {
	switch month {
	case "":
		p := core.PeriodOf(s.now())
		return &p, nil
	case "all":
		return nil, nil
	}
	p, err := core.ParsePeriod(month)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Snapshot loads transactions, budgets and the total budget concurrently.
func (s *ReportService) Snapshot(ctx context.Context, userID int64) (core.Snapshot, error) {
	var snap core.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.ledger.ListTransactions(gctx, userID)
		snap.Transactions = txs
		return err
	})
	g.Go(func() error {
		budgets, err := s.budgets.ListBudgets(gctx, userID)
		snap.Budgets = budgets
		return err
	})
	g.Go(func() error {
		total, err := s.budgets.GetTotalBudget(gctx, userID)
		snap.TotalBudget = total
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Snapshot{}, fmt.Errorf("load snapshot for user %d: %w", userID, err)
	}
	return snap, nil
}

func (s *ReportService) Summary(ctx context.Context, userID int64, period *core.Period) (core.Summary, error) {
	key := periodKey(userID, period)
	if s.summaries != nil {
		if cached, ok := s.summaries.Get(key); ok {
			return cached, nil
		}
	}

	gen := s.generation(userID)
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return core.Summary{}, err
	}
	sum, err := core.Summarize(snap, period)
	if err != nil {
		return core.Summary{}, err
	}
	if s.summaries != nil {
		s.storeIfCurrent(userID, gen, func() { s.summaries.Set(key, sum) })
	}
	return sum, nil
}

func (s *ReportService) Dashboard(ctx context.Context, userID int64) (core.Dashboard, error) {
	key := userPrefix(userID) + "dashboard"
	if s.dashboards != nil {
		if cached, ok := s.dashboards.Get(key); ok {
			return cached, nil
		}
	}

	gen := s.generation(userID)
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return core.Dashboard{}, err
	}
	d, err := core.BuildDashboard(snap, topCategories)
	if err != nil {
		return core.Dashboard{}, err
	}
	if s.dashboards != nil {
		s.storeIfCurrent(userID, gen, func() { s.dashboards.Set(key, d) })
	}
	return d, nil
}

func (s *ReportService) Notifications(ctx context.Context, userID int64, period *core.Period) ([]core.Notification, error) {
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return core.Notifications(snap, period, s.highExpense)
}

// Alerts returns the warning and danger budget notifications for a period as
// broker messages.
func (s *ReportService) Alerts(ctx context.Context, userID int64, period core.Period) ([]*amqp.BudgetAlertMessage, error) {
	notes, err := s.Notifications(ctx, userID, &period)
	if err != nil {
		return nil, err
	}
	var alerts []*amqp.BudgetAlertMessage
	for _, n := range notes {
		if n.Kind == core.KindHighExpense || n.Severity == core.SeverityInfo {
			continue
		}
		alerts = append(alerts, &amqp.BudgetAlertMessage{
			UserID:    userID,
			Period:    period.String(),
			Severity:  string(n.Severity),
			Kind:      n.Kind,
			Category:  n.Category,
			Message:   n.Message,
			Percent:   core.RoundPercent(n.Percent),
			Timestamp: s.now().UTC(),
		})
	}
	return alerts, nil
}

// MonthlyDigest summarizes one closed month for the digest job.
func (s *ReportService) MonthlyDigest(ctx context.Context, userID int64, period core.Period) (*amqp.DigestMessage, error) {
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := core.Summarize(snap, &period)
	if err != nil {
		return nil, err
	}

	spend := make(map[string]decimal.Decimal, len(sum.SpendByCategory))
	for _, c := range sum.SpendByCategory {
		spend[c.Category] = c.Amount
	}
	msg := &amqp.DigestMessage{
		UserID:        userID,
		Period:        period.String(),
		Income:        sum.TotalIncome,
		Expense:       sum.TotalExpense,
		Net:           sum.NetBalance,
		HealthScore:   sum.HealthScore,
		TopCategories: []amqp.DigestCategory{},
		Timestamp:     s.now().UTC(),
	}
	for _, c := range core.TopCategories(spend, topCategories) {
		msg.TopCategories = append(msg.TopCategories, amqp.DigestCategory{Category: c.Category, Amount: c.Amount})
	}
	return msg, nil
}
