package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

func newReportService(store *memStore) *ReportService {
	svc := NewReportService(store, store,
		cache.NewLRUCache[core.Summary](16, time.Minute),
		cache.NewLRUCache[core.Dashboard](16, time.Minute),
		decimal.Zero)
	svc.now = func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) }
	return svc
}

func seedTx(t *testing.T, store *memStore, userID int64, typ core.TransactionType, category, amount string, date core.Date) {
	t.Helper()
	_, err := store.CreateTransaction(context.Background(), core.Transaction{
		UserID: userID, Type: typ, Category: category,
		Amount: decimal.RequireFromString(amount), Date: date,
	})
	require.NoError(t, err)
}

func TestReportService_ResolvePeriod(t *testing.T) {
	svc := newReportService(newMemStore())

	p, err := svc.ResolvePeriod("")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2024-05", p.String())

	p, err = svc.ResolvePeriod("all")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = svc.ResolvePeriod("2023-12")
	require.NoError(t, err)
	assert.Equal(t, core.Period{Year: 2023, Month: 12}, *p)

	_, err = svc.ResolvePeriod("2023-13")
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestReportService_SummaryCachedUntilInvalidated(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	ctx := context.Background()
	may := &core.Period{Year: 2024, Month: 5}

	seedTx(t, store, 1, core.Income, "salary", "2000", core.NewDate(2024, 5, 1))
	seedTx(t, store, 1, core.Expense, "food", "500", core.NewDate(2024, 5, 2))

	first, err := svc.Summary(ctx, 1, may)
	require.NoError(t, err)
	assert.Equal(t, "1500", first.NetBalance.String())
	assert.Equal(t, "2024-05", first.Period)

	seedTx(t, store, 1, core.Expense, "food", "100", core.NewDate(2024, 5, 3))
	cached, err := svc.Summary(ctx, 1, may)
	require.NoError(t, err)
	assert.Equal(t, "1500", cached.NetBalance.String(), "served from cache")

	svc.Invalidate(1)
	fresh, err := svc.Summary(ctx, 1, may)
	require.NoError(t, err)
	assert.Equal(t, "1400", fresh.NetBalance.String())
}

// parkListing makes the next ListTransactions call block after reading its
// rows until release is closed. entered is closed once the rows are read.
func parkListing(store *memStore) (entered, release chan struct{}) {
	entered, release = make(chan struct{}), make(chan struct{})
	var once sync.Once
	store.mu.Lock()
	store.afterList = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	store.mu.Unlock()
	return entered, release
}

func TestReportService_InvalidateDuringReadIsNotOverwritten(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	ctx := context.Background()
	may := &core.Period{Year: 2024, Month: 5}

	seedTx(t, store, 1, core.Income, "salary", "2000", core.NewDate(2024, 5, 1))

	entered, release := parkListing(store)
	done := make(chan core.Summary)
	go func() {
		sum, err := svc.Summary(ctx, 1, may)
		assert.NoError(t, err)
		done <- sum
	}()

	<-entered
	seedTx(t, store, 1, core.Expense, "food", "500", core.NewDate(2024, 5, 2))
	svc.Invalidate(1)
	close(release)

	stale := <-done
	assert.True(t, stale.TotalExpense.IsZero(), "in-flight read used the old rows")

	fresh, err := svc.Summary(ctx, 1, may)
	require.NoError(t, err)
	assert.Equal(t, "500", fresh.TotalExpense.String())
	assert.Equal(t, "1500", fresh.NetBalance.String())
}

func TestReportService_DashboardInvalidateDuringRead(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	ctx := context.Background()

	seedTx(t, store, 1, core.Expense, "rent", "600", core.NewDate(2024, 5, 2))

	entered, release := parkListing(store)
	done := make(chan error)
	go func() {
		_, err := svc.Dashboard(ctx, 1)
		done <- err
	}()

	<-entered
	seedTx(t, store, 1, core.Expense, "food", "900", core.NewDate(2024, 5, 3))
	svc.Invalidate(1)
	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, svc.dashboards.Size(), "stale dashboard must not be cached")

	d, err := svc.Dashboard(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, d.TopCategories)
	assert.Equal(t, "food", d.TopCategories[0].Category)
}

func TestReportService_InvalidateIsPerUser(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	ctx := context.Background()

	seedTx(t, store, 1, core.Income, "salary", "100", core.NewDate(2024, 5, 1))
	seedTx(t, store, 2, core.Income, "salary", "200", core.NewDate(2024, 5, 1))
	_, err := svc.Summary(ctx, 1, nil)
	require.NoError(t, err)
	_, err = svc.Summary(ctx, 2, nil)
	require.NoError(t, err)
	_, err = svc.Dashboard(ctx, 1)
	require.NoError(t, err)

	svc.Invalidate(1)
	assert.Equal(t, 1, svc.summaries.Size())
	assert.Zero(t, svc.dashboards.Size())
}

func TestReportService_Dashboard(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	ctx := context.Background()

	seedTx(t, store, 1, core.Income, "salary", "1000", core.NewDate(2024, 4, 1))
	seedTx(t, store, 1, core.Expense, "rent", "600", core.NewDate(2024, 4, 2))
	seedTx(t, store, 1, core.Income, "salary", "1200", core.NewDate(2024, 5, 1))
	seedTx(t, store, 1, core.Expense, "rent", "600", core.NewDate(2024, 5, 2))

	d, err := svc.Dashboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, d.Trend, 2)
	assert.Equal(t, "2024-04", d.Trend[0].Month)
	assert.Equal(t, "1000", d.Trend[1].Cumulative.String())
	require.NotNil(t, d.Forecast)
	assert.Equal(t, "2024-06", d.Forecast.Month)
	require.Len(t, d.TopCategories, 1)
	assert.Equal(t, "rent", d.TopCategories[0].Category)
}

func TestReportService_SnapshotError(t *testing.T) {
	store := newMemStore()
	store.failTx = errors.New("disk on fire")
	svc := newReportService(store)

	_, err := svc.Summary(context.Background(), 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Zero(t, svc.summaries.Size(), "errors are not cached")
}

func TestReportService_Alerts(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	ctx := context.Background()
	may := core.Period{Year: 2024, Month: 5}

	_, err := store.CreateBudget(ctx, core.Budget{UserID: 1, Category: "food", Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	_, err = store.CreateBudget(ctx, core.Budget{UserID: 1, Category: "rent", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	_, err = store.CreateBudget(ctx, core.Budget{UserID: 1, Category: "fun", Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	require.NoError(t, store.SetTotalBudget(ctx, 1, decimal.NewFromInt(5000)))

	seedTx(t, store, 1, core.Expense, "food", "90", core.NewDate(2024, 5, 2))
	seedTx(t, store, 1, core.Expense, "rent", "600", core.NewDate(2024, 5, 3))
	seedTx(t, store, 1, core.Expense, "fun", "10", core.NewDate(2024, 5, 4))
	seedTx(t, store, 1, core.Expense, "car", "1500", core.NewDate(2024, 5, 5))

	alerts, err := svc.Alerts(ctx, 1, may)
	require.NoError(t, err)
	require.Len(t, alerts, 2, "info and high expense notifications are not alerts")

	byCategory := map[string]string{}
	for _, a := range alerts {
		assert.Equal(t, "2024-05", a.Period)
		assert.Equal(t, core.KindBudget, a.Kind)
		byCategory[a.Category] = a.Severity
	}
	assert.Equal(t, map[string]string{"food": "warning", "rent": "danger"}, byCategory)
}

func TestReportService_MonthlyDigest(t *testing.T) {
	store := newMemStore()
	svc := newReportService(store)
	april := core.Period{Year: 2024, Month: 4}

	seedTx(t, store, 1, core.Income, "salary", "2000", core.NewDate(2024, 4, 1))
	seedTx(t, store, 1, core.Expense, "rent", "800", core.NewDate(2024, 4, 2))
	seedTx(t, store, 1, core.Expense, "food", "200", core.NewDate(2024, 4, 3))
	seedTx(t, store, 1, core.Expense, "food", "999", core.NewDate(2024, 5, 3))

	msg, err := svc.MonthlyDigest(context.Background(), 1, april)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.UserID)
	assert.Equal(t, "2024-04", msg.Period)
	assert.Equal(t, "2000", msg.Income.String())
	assert.Equal(t, "1000", msg.Expense.String())
	assert.Equal(t, "1000", msg.Net.String())
	require.Len(t, msg.TopCategories, 2)
	assert.Equal(t, "rent", msg.TopCategories[0].Category)
	assert.Equal(t, "food", msg.TopCategories[1].Category)
	assert.Equal(t, 2024, msg.Timestamp.Year())
}

func TestReportService_MonthlyDigestEmptyMonth(t *testing.T) {
	svc := newReportService(newMemStore())
	msg, err := svc.MonthlyDigest(context.Background(), 7, core.Period{Year: 2024, Month: 1})
	require.NoError(t, err)
	assert.True(t, msg.Expense.IsZero())
	assert.NotNil(t, msg.TopCategories)
	assert.Empty(t, msg.TopCategories)
}
