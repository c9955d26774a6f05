package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"moneta.app/internal/audit"
	"moneta.app/internal/auth"
	"moneta.app/internal/finance"
	"moneta.app/internal/paging"
)

type transactionRequest struct {
	Kind        string     `json:"kind" validate:"required,kind"`
	Amount      int64      `json:"amount" validate:"gt=0"`
	Category    string     `json:"category" validate:"required,max=64"`
	Description string     `json:"description" validate:"max=500"`
	OccurredAt  *time.Time `json:"occurred_at"`
}

func (req transactionRequest) input() finance.TransactionInput {
	in := finance.TransactionInput{
		Kind:        finance.Kind(req.Kind),
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}
	return in
}

type budgetRequest struct {
	Name        string    `json:"name" validate:"required,max=120"`
	Category    string    `json:"category" validate:"required,max=64"`
	Limit       int64     `json:"limit" validate:"gt=0"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (req budgetRequest) input() finance.BudgetInput {
	return finance.BudgetInput{
		Name:        req.Name,
		Category:    req.Category,
		Limit:       req.Limit,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	}
}

type goalRequest struct {
	Name     string     `json:"name" validate:"required,max=120"`
	Target   int64      `json:"target" validate:"gt=0"`
	Deadline *time.Time `json:"deadline"`
}

type contributionRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// caller returns the authenticated user id; private() guarantees it is set.
func caller(r *http.Request) int64 {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// --- transactions ---

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := paging.FromQuery(q)
	if err != nil {
		handleError(w, r, err)
		return
	}
	f, err := transactionFilter(q.Get("kind"), q.Get("category"), q.Get("from"), q.Get("to"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.finance.ListTransactions(r.Context(), caller(r), f, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func transactionFilter(kind, category, from, to string) (finance.TransactionFilter, error) {
	var f finance.TransactionFilter
	if kind = strings.TrimSpace(kind); kind != "" {
		f.Kind = finance.Kind(strings.ToUpper(kind))
	}
	f.Category = strings.ToLower(strings.TrimSpace(category))
	var err error
	if f.From, err = parseTime(from); err != nil {
		return f, fmt.Errorf("%w: from must be RFC 3339 or YYYY-MM-DD", finance.ErrInvalidInput)
	}
	if f.To, err = parseTime(to); err != nil {
		return f, fmt.Errorf("%w: to must be RFC 3339 or YYYY-MM-DD", finance.ErrInvalidInput)
	}
	return f, nil
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.finance.CreateTransaction(r.Context(), caller(r), req.input())
	if err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "transaction.created", map[string]any{"transaction_id": t.ID, "kind": t.Kind, "amount": t.Amount})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	t, err := a.finance.GetTransaction(r.Context(), caller(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req transactionRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.finance.UpdateTransaction(r.Context(), caller(r), id, req.input())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.finance.DeleteTransaction(r.Context(), caller(r), id); err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "transaction.deleted", map[string]any{"transaction_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- budgets ---

func (a *API) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	req, err := paging.FromQuery(r.URL.Query())
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.finance.ListBudgets(r.Context(), caller(r), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !bind(w, r, &req) {
		return
	}
	b, err := a.finance.CreateBudget(r.Context(), caller(r), req.input())
	if err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "budget.created", map[string]any{"budget_id": b.ID})
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	b, err := a.finance.GetBudget(r.Context(), caller(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req budgetRequest
	if !bind(w, r, &req) {
		return
	}
	b, err := a.finance.UpdateBudget(r.Context(), caller(r), id, req.input())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.finance.DeleteBudget(r.Context(), caller(r), id); err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "budget.deleted", map[string]any{"budget_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	st, err := a.finance.BudgetStatus(r.Context(), caller(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- goals ---

func (a *API) handleListGoals(w http.ResponseWriter, r *http.Request) {
	req, err := paging.FromQuery(r.URL.Query())
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.finance.ListGoals(r.Context(), caller(r), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !bind(w, r, &req) {
		return
	}
	g, err := a.finance.CreateGoal(r.Context(), caller(r), finance.GoalInput{Name: req.Name, Target: req.Target, Deadline: req.Deadline})
	if err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "goal.created", map[string]any{"goal_id": g.ID})
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	g, err := a.finance.GetGoal(r.Context(), caller(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req goalRequest
	if !bind(w, r, &req) {
		return
	}
	g, err := a.finance.UpdateGoal(r.Context(), caller(r), id, finance.GoalInput{Name: req.Name, Target: req.Target, Deadline: req.Deadline})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := a.finance.DeleteGoal(r.Context(), caller(r), id); err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "goal.deleted", map[string]any{"goal_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleContribute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req contributionRequest
	if !bind(w, r, &req) {
		return
	}
	g, err := a.finance.Contribute(r.Context(), caller(r), id, req.Amount)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (a *API) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	p, err := a.finance.GoalProgress(r.Context(), caller(r), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- reports ---

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		handleError(w, r, fmt.Errorf("%w: from must be RFC 3339 or YYYY-MM-DD", finance.ErrInvalidInput))
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		handleError(w, r, fmt.Errorf("%w: to must be RFC 3339 or YYYY-MM-DD", finance.ErrInvalidInput))
		return
	}
	s, err := a.finance.Summary(r.Context(), caller(r), from, to)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
