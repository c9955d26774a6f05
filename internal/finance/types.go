package finance

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Kind distinguishes money in from money out.
type Kind string

const (
	Income  Kind = "INCOME"
	Expense Kind = "EXPENSE"
)

func (k Kind) Valid() bool { return k == Income || k == Expense }

// Transaction amounts are in minor units (e.g. cents) and always positive;
// Kind gives the direction.
type Transaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Kind        Kind      `json:"kind"`
	Amount      int64     `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Budget caps expenses of one category over [PeriodStart, PeriodEnd).
type Budget struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Limit       int64     `json:"limit"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Covers reports whether t falls inside the budget period.
func (b Budget) Covers(t time.Time) bool {
	return !t.Before(b.PeriodStart) && t.Before(b.PeriodEnd)
}

// Goal is a savings target.
type Goal struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	Target    int64      `json:"target"`
	Saved     int64      `json:"saved"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (g Goal) Achieved() bool { return g.Saved >= g.Target }

// TransactionFilter narrows listings and reports. Zero fields match all;
// From is inclusive, To exclusive.
type TransactionFilter struct {
	Kind     Kind
	Category string
	From     time.Time
	To       time.Time
}

func (f TransactionFilter) Match(t Transaction) bool {
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && t.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

// Repository persists finance records. Every lookup is scoped by owner: a
// record of another user is reported as ErrNotFound.
type Repository interface {
	CreateTransaction(ctx context.Context, t Transaction) (Transaction, error)
	TransactionByID(ctx context.Context, userID, id int64) (Transaction, error)
	UpdateTransaction(ctx context.Context, t Transaction) (Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id int64) error
	// ListTransactions orders by occurred_at desc, id desc.
	ListTransactions(ctx context.Context, userID int64, f TransactionFilter, offset, limit int) ([]Transaction, int, error)
	AllTransactions(ctx context.Context, userID int64, f TransactionFilter) ([]Transaction, error)

	CreateBudget(ctx context.Context, b Budget) (Budget, error)
	BudgetByID(ctx context.Context, userID, id int64) (Budget, error)
	UpdateBudget(ctx context.Context, b Budget) (Budget, error)
	DeleteBudget(ctx context.Context, userID, id int64) error
	ListBudgets(ctx context.Context, userID int64, offset, limit int) ([]Budget, int, error)
	// BudgetsCovering returns budgets of the category whose period contains at.
	BudgetsCovering(ctx context.Context, userID int64, category string, at time.Time) ([]Budget, error)

	CreateGoal(ctx context.Context, g Goal) (Goal, error)
	GoalByID(ctx context.Context, userID, id int64) (Goal, error)
	// UpdateGoal applies fn to the stored goal while holding it locked and
	// writes the result back. It returns the goal before and after fn.
	UpdateGoal(ctx context.Context, userID, id int64, fn func(*Goal) error) (before, after Goal, err error)
	DeleteGoal(ctx context.Context, userID, id int64) error
	ListGoals(ctx context.Context, userID int64, offset, limit int) ([]Goal, int, error)
}
