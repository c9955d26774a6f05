package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	seq     int64
	byID    map[int64]User
	byEmail map[string]int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[int64]User),
		byEmail: make(map[string]int64),
	}
}

func (s *InMemory) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return User{}, ErrEmailTaken
	}
	s.seq++
	now := time.Now().UTC()
	u.ID = s.seq
	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *InMemory) UserByID(ctx context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemory) UserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *InMemory) ListUsers(ctx context.Context, offset, limit int) ([]User, int, error) {
	s.mu.RLock()
	all := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		all = append(all, u)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []User{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *InMemory) UpdateUser(ctx context.Context, u User, expectedVersion int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[u.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return User{}, ErrVersionConflict
	}
	if u.Email != cur.Email {
		if _, taken := s.byEmail[u.Email]; taken {
			return User{}, ErrEmailTaken
		}
		delete(s.byEmail, cur.Email)
		s.byEmail[u.Email] = u.ID
	}
	u.Version = cur.Version + 1
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.byID[u.ID] = u
	return u, nil
}
