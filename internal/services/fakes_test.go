package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// memStore is an in-memory stand-in for storage.SQLiteRepository.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]core.User
	txs     map[int64]core.Transaction
	budgets map[int64]core.Budget
	totals  map[int64]decimal.Decimal
	failTx  error

	// afterList runs once ListTransactions has read its rows and released
	// the lock, so a test can park a reader holding a stale snapshot.
	afterList func()
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[int64]core.User{},
		txs:     map[int64]core.Transaction{},
		budgets: map[int64]core.Budget{},
		totals:  map[int64]decimal.Decimal{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateUser(_ context.Context, u core.User) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, storage.ErrAlreadyExists
		}
	}
	u.ID = m.id()
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, storage.ErrNotFound
}

func (m *memStore) UpdateUser(_ context.Context, id int64, upd storage.UserUpdate) (core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return core.User{}, storage.ErrNotFound
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		for otherID, other := range m.users {
			if otherID != id && strings.EqualFold(other.Email, *upd.Email) {
				return core.User{}, storage.ErrAlreadyExists
			}
		}
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.ProfilePic != nil {
		u.ProfilePic = *upd.ProfilePic
	}
	m.users[id] = u
	return u, nil
}

func (m *memStore) ListUserIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	m.txs[t.ID] = t
	return t, nil
}

func (m *memStore) ListTransactions(_ context.Context, userID int64) ([]core.Transaction, error) {
	out, err := m.listTransactions(userID)
	m.mu.Lock()
	hook := m.afterList
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, err
}

func (m *memStore) listTransactions(userID int64) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return nil, m.failTx
	}
	out := []core.Transaction{}
	for _, t := range m.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memStore) GetTransaction(_ context.Context, userID, id int64) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, storage.ErrNotFound
	}
	return t, nil
}

func (m *memStore) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.txs[t.ID]
	if !ok || old.UserID != t.UserID {
		return core.Transaction{}, storage.ErrNotFound
	}
	m.txs[t.ID] = t
	return t, nil
}

func (m *memStore) DeleteTransaction(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok || t.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.txs, id)
	return nil
}

func (m *memStore) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.id()
	m.budgets[b.ID] = b
	return b, nil
}

func (m *memStore) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []core.Budget{}
	for _, b := range m.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.budgets[b.ID]
	if !ok || old.UserID != b.UserID {
		return core.Budget{}, storage.ErrNotFound
	}
	m.budgets[b.ID] = b
	return b, nil
}

func (m *memStore) DeleteBudget(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.budgets[id]
	if !ok || b.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.budgets, id)
	return nil
}

func (m *memStore) GetTotalBudget(_ context.Context, userID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[userID], nil
}

func (m *memStore) SetTotalBudget(_ context.Context, userID int64, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[userID] = amount
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type countingInvalidator struct{ calls map[int64]int }

func (c *countingInvalidator) Invalidate(userID int64) {
	if c.calls == nil {
		c.calls = map[int64]int{}
	}
	c.calls[userID]++
}
