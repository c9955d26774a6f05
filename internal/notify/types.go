package notify

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("notification not found")

// Kind classifies a notification.
type Kind string

const (
	BudgetWarning  Kind = "budget_warning"
	BudgetExceeded Kind = "budget_exceeded"
	GoalAchieved   Kind = "goal_achieved"
)

// Notification is a stored message addressed to one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Message is what producers hand to Service.Notify.
type Message struct {
	UserID  int64
	Kind    Kind
	Subject string
	Body    string
}

// Store persists notifications. Listing is newest first.
type Store interface {
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID int64, offset, limit int) ([]Notification, int, error)
	MarkNotificationRead(ctx context.Context, userID int64, id string) error
}
