package notify

import (
	"context"
	"sync"
)

const subscriberBuffer = 16

type subscriber struct {
	userID int64
	ch     chan Notification
}

// Hub fans notifications out to live subscribers (SSE clients) of the
// addressed user.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for userID. The channel is closed when
// ctx ends.
func (h *Hub) Subscribe(ctx context.Context, userID int64) <-chan Notification {
	ch := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{userID: userID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Publish delivers n to every subscriber of n.UserID. Slow subscribers
// miss events rather than block the publisher.
func (h *Hub) Publish(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.userID != n.UserID {
			continue
		}
		select {
		case s.ch <- n:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
