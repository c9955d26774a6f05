package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"moneta.app/internal/auth"
	"moneta.app/internal/finance"
	"moneta.app/internal/notify"
	"moneta.app/internal/obs"
	"moneta.app/internal/users"
)

const serviceName = "moneta-api"

// Pinger is anything readiness can ping (Redis backend, etc.).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings the database and the token cache when they are configured.
type ReadyProbe struct {
	DB    *sql.DB
	Cache Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Cache != nil {
		if err := rp.Cache.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Authenticator validates bearer tokens.
type Authenticator interface {
	Validate(ctx context.Context, token string) (auth.Identity, error)
}

// Options wires the API to its services.
type Options struct {
	Users   *users.Service
	Finance *finance.Service
	Notify  *notify.Service
	Tokens  Authenticator
	// TokenTTL is reported to clients as expires_in.
	TokenTTL time.Duration

	Ready   readinessChecker
	Version string

	RatePerSec   int
	RateBurst    int
	MaxBodyBytes int64
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	users    *users.Service
	finance  *finance.Service
	notify   *notify.Service
	tokens   Authenticator
	tokenTTL time.Duration
	ready    readinessChecker
	version  string

	ratePerSec int
	rateBurst  int
	maxBody    int64
}

func New(opts Options) (*API, error) {
	if opts.Users == nil || opts.Finance == nil || opts.Notify == nil || opts.Tokens == nil {
		return nil, errors.New("httpapi: users, finance, notify and tokens are required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		users:      opts.Users,
		finance:    opts.Finance,
		notify:     opts.Notify,
		tokens:     opts.Tokens,
		tokenTTL:   opts.TokenTTL,
		ready:      opts.Ready,
		version:    opts.Version,
		ratePerSec: opts.RatePerSec,
		rateBurst:  opts.RateBurst,
		maxBody:    opts.MaxBodyBytes,
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.Handle("POST /v1/auth/logout", a.private(a.handleLogout))

	a.mux.Handle("GET /v1/me", a.private(a.handleGetMe))
	a.mux.Handle("PATCH /v1/me", a.private(a.handleUpdateMe))
	a.mux.Handle("POST /v1/me/password", a.private(a.handleChangePassword))

	a.mux.Handle("GET /v1/transactions", a.private(a.handleListTransactions))
	a.mux.Handle("POST /v1/transactions", a.private(a.handleCreateTransaction))
	a.mux.Handle("GET /v1/transactions/{id}", a.private(a.handleGetTransaction))
	a.mux.Handle("PUT /v1/transactions/{id}", a.private(a.handleUpdateTransaction))
	a.mux.Handle("DELETE /v1/transactions/{id}", a.private(a.handleDeleteTransaction))

	a.mux.Handle("GET /v1/budgets", a.private(a.handleListBudgets))
	a.mux.Handle("POST /v1/budgets", a.private(a.handleCreateBudget))
	a.mux.Handle("GET /v1/budgets/{id}", a.private(a.handleGetBudget))
	a.mux.Handle("PUT /v1/budgets/{id}", a.private(a.handleUpdateBudget))
	a.mux.Handle("DELETE /v1/budgets/{id}", a.private(a.handleDeleteBudget))
	a.mux.Handle("GET /v1/budgets/{id}/status", a.private(a.handleBudgetStatus))

	a.mux.Handle("GET /v1/goals", a.private(a.handleListGoals))
	a.mux.Handle("POST /v1/goals", a.private(a.handleCreateGoal))
	a.mux.Handle("GET /v1/goals/{id}", a.private(a.handleGetGoal))
	a.mux.Handle("PUT /v1/goals/{id}", a.private(a.handleUpdateGoal))
	a.mux.Handle("DELETE /v1/goals/{id}", a.private(a.handleDeleteGoal))
	a.mux.Handle("POST /v1/goals/{id}/contributions", a.private(a.handleContribute))
	a.mux.Handle("GET /v1/goals/{id}/progress", a.private(a.handleGoalProgress))

	a.mux.Handle("GET /v1/reports/summary", a.private(a.handleSummary))

	a.mux.Handle("GET /v1/notifications", a.private(a.handleListNotifications))
	a.mux.Handle("POST /v1/notifications/{id}/read", a.private(a.handleMarkRead))
	a.mux.Handle("GET /v1/notifications/stream", a.private(a.handleNotificationStream))

	a.mux.Handle("GET /v1/admin/users", a.admin(a.handleAdminListUsers))
	a.mux.Handle("PUT /v1/admin/users/{id}/role", a.admin(a.handleAdminSetRole))
	a.mux.Handle("PUT /v1/admin/users/{id}/block", a.admin(a.handleAdminSetBlocked))
}

// Handler returns the mux wrapped in the full middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recovery(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
