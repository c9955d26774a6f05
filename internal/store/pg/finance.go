package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"moneta.app/internal/finance"
)

const (
	txColumns     = `id, user_id, kind, amount, category, description, occurred_at, created_at, updated_at`
	budgetColumns = `id, user_id, name, category, limit_amount, period_start, period_end, created_at, updated_at`
	goalColumns   = `id, user_id, name, target, saved, deadline, created_at, updated_at`
)

func scanTransaction(row rowScanner) (finance.Transaction, error) {
	var (
		t    finance.Transaction
		kind string
	)
	if err := row.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.Category, &t.Description, &t.OccurredAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return finance.Transaction{}, err
	}
	t.Kind = finance.Kind(kind)
	return t, nil
}

func scanBudget(row rowScanner) (finance.Budget, error) {
	var b finance.Budget
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Category, &b.Limit, &b.PeriodStart, &b.PeriodEnd, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanGoal(row rowScanner) (finance.Goal, error) {
	var (
		g        finance.Goal
		deadline sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Target, &g.Saved, &deadline, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return finance.Goal{}, err
	}
	g.Deadline = timePtr(deadline)
	return g, nil
}

// one maps sql.ErrNoRows to finance.ErrNotFound.
func one[T any](v T, err error) (T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, finance.ErrNotFound
	}
	return v, err
}

// --- transactions ---

func (s *Store) CreateTransaction(ctx context.Context, t finance.Transaction) (finance.Transaction, error) {
	if s.db == nil {
		return finance.Transaction{}, errNoDB
	}
	return scanTransaction(s.db.QueryRowContext(ctx, `
		insert into transactions (user_id, kind, amount, category, description, occurred_at)
		values ($1, $2, $3, $4, $5, $6)
		returning `+txColumns,
		t.UserID, string(t.Kind), t.Amount, t.Category, t.Description, t.OccurredAt))
}

func (s *Store) TransactionByID(ctx context.Context, userID, id int64) (finance.Transaction, error) {
	if s.db == nil {
		return finance.Transaction{}, errNoDB
	}
	return one[finance.Transaction](scanTransaction(s.db.QueryRowContext(ctx,
		`select `+txColumns+` from transactions where id = $1 and user_id = $2`, id, userID)))
}

func (s *Store) UpdateTransaction(ctx context.Context, t finance.Transaction) (finance.Transaction, error) {
	if s.db == nil {
		return finance.Transaction{}, errNoDB
	}
	return one[finance.Transaction](scanTransaction(s.db.QueryRowContext(ctx, `
		update transactions
		set kind = $3, amount = $4, category = $5, description = $6, occurred_at = $7, updated_at = now()
		where id = $1 and user_id = $2
		returning `+txColumns,
		t.ID, t.UserID, string(t.Kind), t.Amount, t.Category, t.Description, t.OccurredAt)))
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "transactions", userID, id)
}

// txFilter renders f as a where clause over transactions; argument numbering
// starts at $2 ($1 is the owner).
func txFilter(f finance.TransactionFilter) (string, []any) {
	conds := []string{"user_id = $1"}
	var args []any
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)+1))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	return strings.Join(conds, " and "), args
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, f finance.TransactionFilter, offset, limit int) ([]finance.Transaction, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	where, args := txFilter(f)
	args = append([]any{userID}, args...)

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from transactions where `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := fmt.Sprintf(`select %s from transactions where %s order by occurred_at desc, id desc offset $%d limit $%d`,
		txColumns, where, n+1, n+2)
	items, err := s.queryTransactions(ctx, query, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) AllTransactions(ctx context.Context, userID int64, f finance.TransactionFilter) ([]finance.Transaction, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	where, args := txFilter(f)
	query := `select ` + txColumns + ` from transactions where ` + where + ` order by occurred_at desc, id desc`
	return s.queryTransactions(ctx, query, append([]any{userID}, args...)...)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]finance.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]finance.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- budgets ---

func (s *Store) CreateBudget(ctx context.Context, b finance.Budget) (finance.Budget, error) {
	if s.db == nil {
		return finance.Budget{}, errNoDB
	}
	return scanBudget(s.db.QueryRowContext(ctx, `
		insert into budgets (user_id, name, category, limit_amount, period_start, period_end)
		values ($1, $2, $3, $4, $5, $6)
		returning `+budgetColumns,
		b.UserID, b.Name, b.Category, b.Limit, b.PeriodStart, b.PeriodEnd))
}

func (s *Store) BudgetByID(ctx context.Context, userID, id int64) (finance.Budget, error) {
	if s.db == nil {
		return finance.Budget{}, errNoDB
	}
	return one[finance.Budget](scanBudget(s.db.QueryRowContext(ctx,
		`select `+budgetColumns+` from budgets where id = $1 and user_id = $2`, id, userID)))
}

func (s *Store) UpdateBudget(ctx context.Context, b finance.Budget) (finance.Budget, error) {
	if s.db == nil {
		return finance.Budget{}, errNoDB
	}
	return one[finance.Budget](scanBudget(s.db.QueryRowContext(ctx, `
		update budgets
		set name = $3, category = $4, limit_amount = $5, period_start = $6, period_end = $7, updated_at = now()
		where id = $1 and user_id = $2
		returning `+budgetColumns,
		b.ID, b.UserID, b.Name, b.Category, b.Limit, b.PeriodStart, b.PeriodEnd)))
}

func (s *Store) DeleteBudget(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "budgets", userID, id)
}

func (s *Store) ListBudgets(ctx context.Context, userID int64, offset, limit int) ([]finance.Budget, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from budgets where user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := s.queryBudgets(ctx,
		`select `+budgetColumns+` from budgets where user_id = $1 order by id offset $2 limit $3`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) BudgetsCovering(ctx context.Context, userID int64, category string, at time.Time) ([]finance.Budget, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return s.queryBudgets(ctx, `
		select `+budgetColumns+`
		from budgets
		where user_id = $1 and category = $2 and period_start <= $3 and period_end > $3
		order by id
	`, userID, category, at)
}

func (s *Store) queryBudgets(ctx context.Context, query string, args ...any) ([]finance.Budget, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]finance.Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- goals ---

func (s *Store) CreateGoal(ctx context.Context, g finance.Goal) (finance.Goal, error) {
	if s.db == nil {
		return finance.Goal{}, errNoDB
	}
	return scanGoal(s.db.QueryRowContext(ctx, `
		insert into goals (user_id, name, target, saved, deadline)
		values ($1, $2, $3, $4, $5)
		returning `+goalColumns,
		g.UserID, g.Name, g.Target, g.Saved, nullTime(g.Deadline)))
}

func (s *Store) GoalByID(ctx context.Context, userID, id int64) (finance.Goal, error) {
	if s.db == nil {
		return finance.Goal{}, errNoDB
	}
	return one[finance.Goal](scanGoal(s.db.QueryRowContext(ctx,
		`select `+goalColumns+` from goals where id = $1 and user_id = $2`, id, userID)))
}

// UpdateGoal locks the goal row for the duration of fn, so concurrent
// contributions are applied one after another.
func (s *Store) UpdateGoal(ctx context.Context, userID, id int64, fn func(*finance.Goal) error) (finance.Goal, finance.Goal, error) {
	if s.db == nil {
		return finance.Goal{}, finance.Goal{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return finance.Goal{}, finance.Goal{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := one[finance.Goal](scanGoal(tx.QueryRowContext(ctx,
		`select `+goalColumns+` from goals where id = $1 and user_id = $2 for update`, id, userID)))
	if err != nil {
		return finance.Goal{}, finance.Goal{}, err
	}
	next := before
	if err := fn(&next); err != nil {
		return finance.Goal{}, finance.Goal{}, err
	}
	after, err := scanGoal(tx.QueryRowContext(ctx, `
		update goals
		set name = $3, target = $4, saved = $5, deadline = $6, updated_at = now()
		where id = $1 and user_id = $2
		returning `+goalColumns,
		id, userID, next.Name, next.Target, next.Saved, nullTime(next.Deadline)))
	if err != nil {
		return finance.Goal{}, finance.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return finance.Goal{}, finance.Goal{}, err
	}
	return before, after, nil
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id int64) error {
	return s.deleteOwned(ctx, "goals", userID, id)
}

func (s *Store) ListGoals(ctx context.Context, userID int64, offset, limit int) ([]finance.Goal, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from goals where user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+goalColumns+` from goals where user_id = $1 order by id offset $2 limit $3`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]finance.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// deleteOwned removes a row of table owned by userID. table is always a
// package constant.
func (s *Store) deleteOwned(ctx context.Context, table string, userID, id int64) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from `+table+` where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return affected(res, finance.ErrNotFound)
}
