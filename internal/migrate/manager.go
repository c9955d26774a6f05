package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pressly/goose/v3"
)

// Migrations holds the goose SQL files applied by Manager.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const migrationsDir = "migrations"

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// seams for tests
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	}
	gooseDown = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	}
	gooseVersion = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

// Manager applies the embedded schema migrations.
type Manager struct {
	db      *sql.DB
	dialect string
}

// Option configures Manager.
type Option func(*Manager)

// WithDialect overrides the goose dialect ("postgres" by default).
func WithDialect(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.dialect = name
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, dialect: "postgres"}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) prepare() error {
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect(m.dialect); err != nil {
		return fmt.Errorf("goose dialect %q: %w", m.dialect, err)
	}
	return nil
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := m.prepare(); err != nil {
		return err
	}
	if err := gooseUp(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := m.prepare(); err != nil {
		return err
	}
	if err := gooseDown(ctx, m.db, migrationsDir); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status returns the file names of applied migrations in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := m.prepare(); err != nil {
		return nil, err
	}
	current, err := gooseVersion(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	return applied(current)
}

// Available lists the embedded migration files in version order.
func Available() ([]string, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(Migrations)
	return applied(goose.MaxVersion)
}

func applied(upTo int64) ([]string, error) {
	all, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, mig := range all {
		if mig.Version > upTo {
			break
		}
		res = append(res, filepath.Base(mig.Source))
	}
	return res, nil
}
