package finance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"moneta.app/internal/notify"
)

// BudgetState orders by severity: OK < WARNING < EXCEEDED.
type BudgetState string

const (
	StateOK       BudgetState = "OK"
	StateWarning  BudgetState = "WARNING"
	StateExceeded BudgetState = "EXCEEDED"
)

func (s BudgetState) rank() int {
	switch s {
	case StateWarning:
		return 1
	case StateExceeded:
		return 2
	default:
		return 0
	}
}

// CategoryTotal is the expense sum of one category.
type CategoryTotal struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

type Summary struct {
	From       time.Time       `json:"from,omitempty"`
	To         time.Time       `json:"to,omitempty"`
	Income     int64           `json:"income"`
	Expense    int64           `json:"expense"`
	Net        int64           `json:"net"`
	Categories []CategoryTotal `json:"categories"`
}

type BudgetStatus struct {
	Budget    Budget      `json:"budget"`
	Spent     int64       `json:"spent"`
	Remaining int64       `json:"remaining"`
	Percent   float64     `json:"percent"`
	State     BudgetState `json:"state"`
}

type GoalProgress struct {
	Goal      Goal    `json:"goal"`
	Percent   float64 `json:"percent"`
	Remaining int64   `json:"remaining"`
	Achieved  bool    `json:"achieved"`
}

// Summary totals the owner's transactions in [from, to). Zero bounds are open.
func (s *Service) Summary(ctx context.Context, userID int64, from, to time.Time) (Summary, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return Summary{}, fmt.Errorf("%w: from must be before to", ErrInvalidInput)
	}
	txs, err := s.repo.AllTransactions(ctx, userID, TransactionFilter{From: from, To: to})
	if err != nil {
		return Summary{}, err
	}
	out := Summary{From: from, To: to, Categories: []CategoryTotal{}}
	byCat := make(map[string]int64)
	for _, t := range txs {
		switch t.Kind {
		case Income:
			out.Income = addCapped(out.Income, t.Amount)
		case Expense:
			out.Expense = addCapped(out.Expense, t.Amount)
			byCat[t.Category] = addCapped(byCat[t.Category], t.Amount)
		}
	}
	out.Net = out.Income - out.Expense
	for c, a := range byCat {
		out.Categories = append(out.Categories, CategoryTotal{Category: c, Amount: a})
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		if out.Categories[i].Amount != out.Categories[j].Amount {
			return out.Categories[i].Amount > out.Categories[j].Amount
		}
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out, nil
}

func (s *Service) BudgetStatus(ctx context.Context, userID, id int64) (BudgetStatus, error) {
	b, err := s.repo.BudgetByID(ctx, userID, id)
	if err != nil {
		return BudgetStatus{}, err
	}
	spent, err := s.spent(ctx, b)
	if err != nil {
		return BudgetStatus{}, err
	}
	return BudgetStatus{
		Budget:    b,
		Spent:     spent,
		Remaining: b.Limit - spent,
		Percent:   percent(spent, b.Limit),
		State:     s.state(spent, b.Limit),
	}, nil
}

func (s *Service) GoalProgress(ctx context.Context, userID, id int64) (GoalProgress, error) {
	g, err := s.repo.GoalByID(ctx, userID, id)
	if err != nil {
		return GoalProgress{}, err
	}
	remaining := g.Target - g.Saved
	if remaining < 0 {
		remaining = 0
	}
	return GoalProgress{
		Goal:      g,
		Percent:   percent(g.Saved, g.Target),
		Remaining: remaining,
		Achieved:  g.Achieved(),
	}, nil
}

func (s *Service) spent(ctx context.Context, b Budget) (int64, error) {
	txs, err := s.repo.AllTransactions(ctx, b.UserID, TransactionFilter{
		Kind:     Expense,
		Category: b.Category,
		From:     b.PeriodStart,
		To:       b.PeriodEnd,
	})
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, t := range txs {
		sum = addCapped(sum, t.Amount)
	}
	return sum, nil
}

// addCapped adds two non-negative amounts, stopping at math.MaxInt64.
func addCapped(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func (s *Service) state(spent, limit int64) BudgetState {
	// Past the first case spent <= limit <= MaxAmount, so the products fit.
	switch {
	case spent > limit:
		return StateExceeded
	case spent*100 >= limit*int64(s.warnPercent):
		return StateWarning
	default:
		return StateOK
	}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)*10000/float64(whole)) / 100
}

// counts reports how much t adds to the spending of b.
func counts(b Budget, t *Transaction) int64 {
	if t == nil || t.Kind != Expense || t.Category != b.Category || !b.Covers(t.OccurredAt) {
		return 0
	}
	return t.Amount
}

// checkBudgets evaluates budgets touched by a write that replaced before with
// after and notifies on every transition into a worse state.
func (s *Service) checkBudgets(ctx context.Context, userID int64, before, after *Transaction) {
	if s.notifier == nil || after == nil || after.Kind != Expense {
		return
	}
	budgets, err := s.repo.BudgetsCovering(ctx, userID, after.Category, after.OccurredAt)
	if err != nil {
		return
	}
	for _, b := range budgets {
		spentAfter, err := s.spent(ctx, b)
		if err != nil {
			continue
		}
		spentBefore := spentAfter - (counts(b, after) - counts(b, before))
		was, now := s.state(spentBefore, b.Limit), s.state(spentAfter, b.Limit)
		if now.rank() <= was.rank() {
			continue
		}
		s.send(ctx, budgetMessage(b, now, spentAfter))
	}
}

func budgetMessage(b Budget, st BudgetState, spent int64) notify.Message {
	if st == StateExceeded {
		return notify.Message{
			UserID:  b.UserID,
			Kind:    notify.BudgetExceeded,
			Subject: fmt.Sprintf("Budget %q exceeded", b.Name),
			Body: fmt.Sprintf("Spent %s of %s in %s (over by %s).",
				formatMinor(spent), formatMinor(b.Limit), b.Category, formatMinor(spent-b.Limit)),
		}
	}
	return notify.Message{
		UserID:  b.UserID,
		Kind:    notify.BudgetWarning,
		Subject: fmt.Sprintf("Budget %q is almost used", b.Name),
		Body: fmt.Sprintf("Spent %s of %s in %s (%.2f%%).",
			formatMinor(spent), formatMinor(b.Limit), b.Category, percent(spent, b.Limit)),
	}
}

func (s *Service) checkGoal(ctx context.Context, before, after Goal) {
	if before.Achieved() || !after.Achieved() {
		return
	}
	s.send(ctx, notify.Message{
		UserID:  after.UserID,
		Kind:    notify.GoalAchieved,
		Subject: fmt.Sprintf("Goal %q achieved", after.Name),
		Body:    fmt.Sprintf("Saved %s of %s.", formatMinor(after.Saved), formatMinor(after.Target)),
	})
}

// formatMinor renders minor units as a decimal with two fraction digits.
func formatMinor(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
