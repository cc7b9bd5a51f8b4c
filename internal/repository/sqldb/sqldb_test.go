package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/snipshare/internal/config"
	"github.com/sakif/snipshare/internal/model"
)

// newTestDB opens a fresh in-memory SQLite database with the schema applied.
// Every test gets its own, so tests never see each other's rows.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), config.DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), model.NewUser{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

func createTestSnippet(t *testing.T, db *DB, ownerID, title string, vis model.Visibility, tags ...string) *model.Snippet {
	t.Helper()
	s, err := NewSnippetStore(db).Create(context.Background(), ownerID, model.NewSnippet{
		Title:      title,
		Language:   "go",
		Code:       "package main",
		Visibility: vis,
		Tags:       tags,
	})
	if err != nil {
		t.Fatalf("failed to create test snippet: %v", err)
	}
	return s
}

// tagUsage returns the usage_count of the named tag, or -1 if no such row.
func tagUsage(t *testing.T, db *DB, name string) int {
	t.Helper()
	var n int
	err := db.conn.Get(&n, `SELECT usage_count FROM tags WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return -1
	}
	if err != nil {
		t.Fatalf("reading usage of tag %q: %v", name, err)
	}
	return n
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.conn.Get(&n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if db.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q, want %q", db.Driver(), DriverSQLite)
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	if err == nil {
		t.Fatal("New() with unknown driver should fail")
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")

	err := InTx(context.Background(), db.conn, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO tags (id, name, usage_count, created_at) VALUES ('t1', 'go', 0, ?)`, now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want %v", err, boom)
	}
	if got := countRows(t, db, "tags"); got != 0 {
		t.Errorf("tags after rollback = %d, want 0", got)
	}
}

func TestInTx_Commits(t *testing.T) {
	db := newTestDB(t)

	err := InTx(context.Background(), db.conn, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO tags (id, name, usage_count, created_at) VALUES ('t1', 'go', 0, ?)`, now())
		return err
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	if got := countRows(t, db, "tags"); got != 1 {
		t.Errorf("tags after commit = %d, want 1", got)
	}
}

func TestDriverDSN(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.DatabaseConfig
		wantDriver string
		wantDSN    string
	}{
		{
			name:       "sqlite file",
			cfg:        config.DatabaseConfig{Driver: "sqlite", DSN: "data/app.db"},
			wantDriver: "sqlite",
			wantDSN:    "data/app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		},
		{
			name:       "sqlite dsn with query",
			cfg:        config.DatabaseConfig{Driver: "sqlite", DSN: "file:app.db?cache=shared"},
			wantDriver: "sqlite",
			wantDSN:    "file:app.db?cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		},
		{
			name:       "postgres",
			cfg:        config.DatabaseConfig{Driver: "postgres", DSN: "postgres://u:p@localhost/db"},
			wantDriver: "pgx",
			wantDSN:    "postgres://u:p@localhost/db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := driverDSN(tt.cfg)
			if err != nil {
				t.Fatalf("driverDSN() error = %v", err)
			}
			if driver != tt.wantDriver {
				t.Errorf("driver = %q, want %q", driver, tt.wantDriver)
			}
			if dsn != tt.wantDSN {
				t.Errorf("dsn = %q, want %q", dsn, tt.wantDSN)
			}
		})
	}
}
