package migrate

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAvailableListsEmbeddedMigrations(t *testing.T) {
	got, err := Available()
	if err != nil {
		t.Fatalf("Available: %v", err)
	}
	want := []string{"00001_users.sql", "00002_finance.sql", "00003_notifications.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("migrations = %v, want %v", got, want)
	}
}

func TestUpUsesEmbeddedDir(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()
	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	if err := NewManager(newDB(t)).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if gotDir != "migrations" {
		t.Fatalf("dir = %q", gotDir)
	}
}

func TestDownWrapsError(t *testing.T) {
	orig := gooseDown
	defer func() { gooseDown = orig }()
	boom := errors.New("boom")
	gooseDown = func(ctx context.Context, db *sql.DB, dir string) error { return boom }

	err := NewManager(newDB(t)).Down(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
}

func TestStatusReportsAppliedPrefix(t *testing.T) {
	orig := gooseVersion
	defer func() { gooseVersion = orig }()
	gooseVersion = func(ctx context.Context, db *sql.DB) (int64, error) { return 2, nil }

	got, err := NewManager(newDB(t)).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	want := []string{"00001_users.sql", "00002_finance.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("status = %v, want %v", got, want)
	}
}

func TestUnknownDialect(t *testing.T) {
	if err := NewManager(newDB(t), WithDialect("oracle-ish")).Up(context.Background()); err == nil {
		t.Fatal("expected dialect error")
	}
}
