package finance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory implements Repository with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	seq     int64
	txs     map[int64]Transaction
	budgets map[int64]Budget
	goals   map[int64]Goal
}

func NewInMemory() *InMemory {
	return &InMemory{
		txs:     make(map[int64]Transaction),
		budgets: make(map[int64]Budget),
		goals:   make(map[int64]Goal),
	}
}

func (s *InMemory) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *InMemory) CreateTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t.ID = s.nextID()
	t.CreatedAt, t.UpdatedAt = now, now
	s.txs[t.ID] = t
	return t, nil
}

func (s *InMemory) TransactionByID(ctx context.Context, userID, id int64) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok || t.UserID != userID {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemory) UpdateTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[t.ID]
	if !ok || cur.UserID != t.UserID {
		return Transaction{}, ErrNotFound
	}
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.txs[t.ID] = t
	return t, nil
}

func (s *InMemory) DeleteTransaction(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[id]
	if !ok || cur.UserID != userID {
		return ErrNotFound
	}
	delete(s.txs, id)
	return nil
}

func (s *InMemory) ListTransactions(ctx context.Context, userID int64, f TransactionFilter, offset, limit int) ([]Transaction, int, error) {
	all, _ := s.AllTransactions(ctx, userID, f)
	return window(all, offset, limit), len(all), nil
}

func (s *InMemory) AllTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]Transaction, error) {
	s.mu.RLock()
	out := make([]Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID && f.Match(t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemory) CreateBudget(ctx context.Context, b Budget) (Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	b.ID = s.nextID()
	b.CreatedAt, b.UpdatedAt = now, now
	s.budgets[b.ID] = b
	return b, nil
}

func (s *InMemory) BudgetByID(ctx context.Context, userID, id int64) (Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok || b.UserID != userID {
		return Budget{}, ErrNotFound
	}
	return b, nil
}

func (s *InMemory) UpdateBudget(ctx context.Context, b Budget) (Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.budgets[b.ID]
	if !ok || cur.UserID != b.UserID {
		return Budget{}, ErrNotFound
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *InMemory) DeleteBudget(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.budgets[id]
	if !ok || cur.UserID != userID {
		return ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

func (s *InMemory) ListBudgets(ctx context.Context, userID int64, offset, limit int) ([]Budget, int, error) {
	s.mu.RLock()
	out := make([]Budget, 0)
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, offset, limit), len(out), nil
}

func (s *InMemory) BudgetsCovering(ctx context.Context, userID int64, category string, at time.Time) ([]Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Budget
	for _, b := range s.budgets {
		if b.UserID == userID && b.Category == category && b.Covers(at) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) CreateGoal(ctx context.Context, g Goal) (Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	g.ID = s.nextID()
	g.CreatedAt, g.UpdatedAt = now, now
	s.goals[g.ID] = g
	return g, nil
}

func (s *InMemory) GoalByID(ctx context.Context, userID, id int64) (Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return Goal{}, ErrNotFound
	}
	return g, nil
}

func (s *InMemory) UpdateGoal(ctx context.Context, userID, id int64, fn func(*Goal) error) (Goal, Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[id]
	if !ok || cur.UserID != userID {
		return Goal{}, Goal{}, ErrNotFound
	}
	next := cur
	if err := fn(&next); err != nil {
		return Goal{}, Goal{}, err
	}
	next.ID, next.UserID, next.CreatedAt = cur.ID, cur.UserID, cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.goals[id] = next
	return cur, next, nil
}

func (s *InMemory) DeleteGoal(ctx context.Context, userID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[id]
	if !ok || cur.UserID != userID {
		return ErrNotFound
	}
	delete(s.goals, id)
	return nil
}

func (s *InMemory) ListGoals(ctx context.Context, userID int64, offset, limit int) ([]Goal, int, error) {
	s.mu.RLock()
	out := make([]Goal, 0)
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return window(out, offset, limit), len(out), nil
}

func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
