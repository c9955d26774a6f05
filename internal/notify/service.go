package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"moneta.app/internal/ids"
	"moneta.app/internal/obs"
	"moneta.app/internal/paging"
)

// Recipients resolves the email address of a user.
type Recipients interface {
	EmailFor(ctx context.Context, userID int64) (string, error)
}

// Service stores notifications, emails them and pushes them to live
// subscribers.
type Service struct {
	store      Store
	mailer     Mailer
	hub        *Hub
	recipients Recipients
	from       string
	now        func() time.Time
}

type Option func(*Service)

func WithMailer(m Mailer) Option { return func(s *Service) { s.mailer = m } }

func WithHub(h *Hub) Option { return func(s *Service) { s.hub = h } }

func WithSender(from string) Option {
	return func(s *Service) {
		if from = strings.TrimSpace(from); from != "" {
			s.from = from
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, recipients Recipients, opts ...Option) *Service {
	s := &Service{
		store:      store,
		mailer:     ConsoleMailer{},
		recipients: recipients,
		from:       "no-reply@moneta.local",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hub returns the live fan-out hub, nil when streaming is disabled.
func (s *Service) Hub() *Hub { return s.hub }

// Notify persists m, then delivers it by email and to live subscribers.
// Delivery failures are logged; only a failed write is returned.
func (s *Service) Notify(ctx context.Context, m Message) (Notification, error) {
	if m.UserID <= 0 || m.Kind == "" {
		return Notification{}, fmt.Errorf("notify: user and kind are required")
	}
	now := s.now().UTC()
	n := Notification{
		ID:        ids.NewAt(now),
		UserID:    m.UserID,
		Kind:      m.Kind,
		Subject:   m.Subject,
		Body:      m.Body,
		CreatedAt: now,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return Notification{}, fmt.Errorf("store notification: %w", err)
	}

	if s.mailer != nil && s.recipients != nil {
		to, err := s.recipients.EmailFor(ctx, m.UserID)
		if err == nil {
			err = s.mailer.Send(ctx, Email{From: s.from, To: to, Subject: m.Subject, Body: m.Body})
		}
		if err != nil {
			obs.Warn("notification_email_failed", map[string]any{
				"notification_id": n.ID,
				"user_id":         m.UserID,
				"err":             err,
			})
		}
	}
	if s.hub != nil {
		s.hub.Publish(n)
	}
	obs.NotificationSent(string(m.Kind))
	return n, nil
}

func (s *Service) List(ctx context.Context, userID int64, req paging.Request) (paging.Result[Notification], error) {
	req = req.Normalize()
	items, total, err := s.store.ListNotifications(ctx, userID, req.Offset(), req.Limit())
	if err != nil {
		return paging.Result[Notification]{}, err
	}
	return paging.NewResult(items, req, total), nil
}

func (s *Service) MarkRead(ctx context.Context, userID int64, id string) error {
	if !ids.Valid(id) {
		return ErrNotFound
	}
	return s.store.MarkNotificationRead(ctx, userID, id)
}
