package finance

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"moneta.app/internal/notify"
	"moneta.app/internal/obs"
	"moneta.app/internal/paging"
)

const (
	maxCategoryLen    = 64
	maxNameLen        = 120
	maxDescriptionLen = 500

	DefaultWarnPercent = 80

	// MaxAmount bounds any single amount and a goal's saved total, in minor units.
	MaxAmount = 1_000_000_000_000_000
)

// Notifier receives budget and goal alerts.
type Notifier interface {
	Notify(ctx context.Context, m notify.Message) (notify.Notification, error)
}

// Service implements transactions, budgets, goals and reports for one
// owner at a time.
type Service struct {
	repo        Repository
	notifier    Notifier
	warnPercent int
	now         func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithWarnPercent sets the share of a budget limit at which a warning fires.
func WithWarnPercent(p int) Option {
	return func(s *Service) {
		if p > 0 && p <= 100 {
			s.warnPercent = p
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

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, warnPercent: DefaultWarnPercent, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransactionInput is the writable part of a transaction.
type TransactionInput struct {
	Kind        Kind
	Amount      int64
	Category    string
	Description string
	OccurredAt  time.Time
}

func (s *Service) buildTransaction(userID int64, in TransactionInput) (Transaction, error) {
	kind := Kind(strings.ToUpper(strings.TrimSpace(string(in.Kind))))
	if !kind.Valid() {
		return Transaction{}, fmt.Errorf("%w: kind must be INCOME or EXPENSE", ErrInvalidInput)
	}
	if err := checkAmount("amount", in.Amount); err != nil {
		return Transaction{}, err
	}
	category, err := cleanCategory(in.Category)
	if err != nil {
		return Transaction{}, err
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return Transaction{}, fmt.Errorf("%w: description is too long", ErrInvalidInput)
	}
	at := in.OccurredAt
	if at.IsZero() {
		at = s.now()
	}
	return Transaction{
		UserID:      userID,
		Kind:        kind,
		Amount:      in.Amount,
		Category:    category,
		Description: desc,
		OccurredAt:  at.UTC(),
	}, nil
}

func (s *Service) CreateTransaction(ctx context.Context, userID int64, in TransactionInput) (Transaction, error) {
	t, err := s.buildTransaction(userID, in)
	if err != nil {
		return Transaction{}, err
	}
	created, err := s.repo.CreateTransaction(ctx, t)
	if err != nil {
		return Transaction{}, err
	}
	s.checkBudgets(ctx, userID, nil, &created)
	return created, nil
}

func (s *Service) GetTransaction(ctx context.Context, userID, id int64) (Transaction, error) {
	return s.repo.TransactionByID(ctx, userID, id)
}

func (s *Service) UpdateTransaction(ctx context.Context, userID, id int64, in TransactionInput) (Transaction, error) {
	old, err := s.repo.TransactionByID(ctx, userID, id)
	if err != nil {
		return Transaction{}, err
	}
	t, err := s.buildTransaction(userID, in)
	if err != nil {
		return Transaction{}, err
	}
	t.ID = id
	updated, err := s.repo.UpdateTransaction(ctx, t)
	if err != nil {
		return Transaction{}, err
	}
	s.checkBudgets(ctx, userID, &old, &updated)
	return updated, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, userID, id int64) error {
	return s.repo.DeleteTransaction(ctx, userID, id)
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, f TransactionFilter, req paging.Request) (paging.Result[Transaction], error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return paging.Result[Transaction]{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, f.Kind)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return paging.Result[Transaction]{}, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	req = req.Normalize()
	items, total, err := s.repo.ListTransactions(ctx, userID, f, req.Offset(), req.Limit())
	if err != nil {
		return paging.Result[Transaction]{}, err
	}
	return paging.NewResult(items, req, total), nil
}

// BudgetInput is the writable part of a budget.
type BudgetInput struct {
	Name        string
	Category    string
	Limit       int64
	PeriodStart time.Time
	PeriodEnd   time.Time
}

func buildBudget(userID int64, in BudgetInput) (Budget, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return Budget{}, err
	}
	category, err := cleanCategory(in.Category)
	if err != nil {
		return Budget{}, err
	}
	if err := checkAmount("limit", in.Limit); err != nil {
		return Budget{}, err
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() || !in.PeriodStart.Before(in.PeriodEnd) {
		return Budget{}, fmt.Errorf("%w: period_start must be before period_end", ErrInvalidInput)
	}
	return Budget{
		UserID:      userID,
		Name:        name,
		Category:    category,
		Limit:       in.Limit,
		PeriodStart: in.PeriodStart.UTC(),
		PeriodEnd:   in.PeriodEnd.UTC(),
	}, nil
}

func (s *Service) CreateBudget(ctx context.Context, userID int64, in BudgetInput) (Budget, error) {
	b, err := buildBudget(userID, in)
	if err != nil {
		return Budget{}, err
	}
	return s.repo.CreateBudget(ctx, b)
}

func (s *Service) GetBudget(ctx context.Context, userID, id int64) (Budget, error) {
	return s.repo.BudgetByID(ctx, userID, id)
}

func (s *Service) UpdateBudget(ctx context.Context, userID, id int64, in BudgetInput) (Budget, error) {
	b, err := buildBudget(userID, in)
	if err != nil {
		return Budget{}, err
	}
	b.ID = id
	return s.repo.UpdateBudget(ctx, b)
}

func (s *Service) DeleteBudget(ctx context.Context, userID, id int64) error {
	return s.repo.DeleteBudget(ctx, userID, id)
}

func (s *Service) ListBudgets(ctx context.Context, userID int64, req paging.Request) (paging.Result[Budget], error) {
	req = req.Normalize()
	items, total, err := s.repo.ListBudgets(ctx, userID, req.Offset(), req.Limit())
	if err != nil {
		return paging.Result[Budget]{}, err
	}
	return paging.NewResult(items, req, total), nil
}

// GoalInput is the writable part of a goal. Saved is changed only through
// Contribute.
type GoalInput struct {
	Name     string
	Target   int64
	Deadline *time.Time
}

func buildGoal(userID int64, in GoalInput) (Goal, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return Goal{}, err
	}
	if err := checkAmount("target", in.Target); err != nil {
		return Goal{}, err
	}
	g := Goal{UserID: userID, Name: name, Target: in.Target}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		g.Deadline = &d
	}
	return g, nil
}

func (s *Service) CreateGoal(ctx context.Context, userID int64, in GoalInput) (Goal, error) {
	g, err := buildGoal(userID, in)
	if err != nil {
		return Goal{}, err
	}
	return s.repo.CreateGoal(ctx, g)
}

func (s *Service) GetGoal(ctx context.Context, userID, id int64) (Goal, error) {
	return s.repo.GoalByID(ctx, userID, id)
}

// UpdateGoal replaces name, target and deadline. Saved is left as stored.
func (s *Service) UpdateGoal(ctx context.Context, userID, id int64, in GoalInput) (Goal, error) {
	g, err := buildGoal(userID, in)
	if err != nil {
		return Goal{}, err
	}
	before, after, err := s.repo.UpdateGoal(ctx, userID, id, func(cur *Goal) error {
		cur.Name, cur.Target, cur.Deadline = g.Name, g.Target, g.Deadline
		return nil
	})
	if err != nil {
		return Goal{}, err
	}
	s.checkGoal(ctx, before, after)
	return after, nil
}

func (s *Service) DeleteGoal(ctx context.Context, userID, id int64) error {
	return s.repo.DeleteGoal(ctx, userID, id)
}

func (s *Service) ListGoals(ctx context.Context, userID int64, req paging.Request) (paging.Result[Goal], error) {
	req = req.Normalize()
	items, total, err := s.repo.ListGoals(ctx, userID, req.Offset(), req.Limit())
	if err != nil {
		return paging.Result[Goal]{}, err
	}
	return paging.NewResult(items, req, total), nil
}

// Contribute adds amount to the goal's saved total.
func (s *Service) Contribute(ctx context.Context, userID, id, amount int64) (Goal, error) {
	if err := checkAmount("amount", amount); err != nil {
		return Goal{}, err
	}
	before, after, err := s.repo.UpdateGoal(ctx, userID, id, func(g *Goal) error {
		if g.Saved > MaxAmount-amount {
			return fmt.Errorf("%w: saved total would exceed %d", ErrInvalidInput, int64(MaxAmount))
		}
		g.Saved += amount
		return nil
	})
	if err != nil {
		return Goal{}, err
	}
	s.checkGoal(ctx, before, after)
	return after, nil
}

// checkAmount accepts 1..MaxAmount minor units.
func checkAmount(field string, v int64) error {
	if v <= 0 || v > MaxAmount {
		return fmt.Errorf("%w: %s must be between 1 and %d", ErrInvalidInput, field, int64(MaxAmount))
	}
	return nil
}

func cleanCategory(c string) (string, error) {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "", fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(c) > maxCategoryLen {
		return "", fmt.Errorf("%w: category is too long", ErrInvalidInput)
	}
	return c, nil
}

func cleanName(n string) (string, error) {
	n = strings.TrimSpace(n)
	if n == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(n) > maxNameLen {
		return "", fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	return n, nil
}

func (s *Service) send(ctx context.Context, m notify.Message) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, m); err != nil {
		obs.Warn("notification_failed", map[string]any{"user_id": m.UserID, "kind": m.Kind, "err": err})
	}
}
