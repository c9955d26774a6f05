package notify

import (
	"context"
	"sort"
	"sync"
)

// InMemory implements Store.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]Notification
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]Notification)}
}

func (s *InMemory) CreateNotification(ctx context.Context, n Notification) error {
	s.mu.Lock()
	s.items[n.ID] = n
	s.mu.Unlock()
	return nil
}

func (s *InMemory) ListNotifications(ctx context.Context, userID int64, offset, limit int) ([]Notification, int, error) {
	s.mu.RLock()
	var all []Notification
	for _, n := range s.items {
		if n.UserID == userID {
			all = append(all, n)
		}
	}
	s.mu.RUnlock()
	// ids are ULIDs, so descending id order is newest first
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return []Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *InMemory) MarkNotificationRead(ctx context.Context, userID int64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	s.items[id] = n
	return nil
}
