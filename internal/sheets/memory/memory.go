package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Store is an in-memory ledger mirror. It keeps rows per year the way the
// spreadsheet client does, without a network.
type Store struct {
	mu   sync.RWMutex
	rows map[int][]ports.Row
}

var (
	_ ports.LedgerWriter = (*Store)(nil)
	_ ports.LedgerReader = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{rows: make(map[int][]ports.Row)}
}

func (s *Store) AppendTransaction(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	year := t.Date.Year()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[year] = append(s.rows[year], ports.RowFromTransaction(t))
	// header occupies row 1
	return fmt.Sprintf("mem:%d!%d", year, len(s.rows[year])+1), nil
}

func (s *Store) ListRows(_ context.Context, year int) ([]ports.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ports.Row, len(s.rows[year]))
	copy(out, s.rows[year])
	return out, nil
}
