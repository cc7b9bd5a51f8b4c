// Package sqldb implements the repository interfaces on top of database/sql,
// using sqlx for scanning and two interchangeable drivers:
//
//   - "sqlite"   → modernc.org/sqlite, a pure Go SQLite (no CGo). The default;
//     use a file path for persistence or ":memory:" for tests.
//   - "postgres" → github.com/jackc/pgx/v5/stdlib, for deployments that already
//     run a PostgreSQL server.
//
// Every query is written once with ? placeholders and passed through Rebind,
// which rewrites them to $1, $2 ... when the connection is PostgreSQL.
// The schema sticks to the subset both engines understand (TEXT ids,
// TIMESTAMP columns, ON CONFLICT DO NOTHING) so the same migrations run on both.
package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/sakif/snipshare/internal/config"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// unicodeLower is the SQLite function used for case-insensitive matching.
// The built-in LOWER only folds ASCII, so "É" would never match "é".
const unicodeLower = "unicode_lower"

func init() {
	// sqlx does not know modernc's driver name; tell it to leave ? alone.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlite.MustRegisterDeterministicScalarFunction(unicodeLower, 1, lowerFunc)
}

func lowerFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// lower wraps a column expression in the engine's Unicode-aware lower-case
// function. PostgreSQL's LOWER already folds non-ASCII letters.
func (db *DB) lower(expr string) string {
	if db.driver == DriverPostgres {
		return "LOWER(" + expr + ")"
	}
	return unicodeLower + "(" + expr + ")"
}

// DB owns the connection pool shared by every store in this package.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx, so helpers that take it
// can run either inside or outside a transaction.
type DBTX interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// New opens the pool described by cfg, verifies it with a ping and runs the
// migrations.
//
// For SQLite the foreign_keys and busy_timeout pragmas are passed through the
// DSN rather than executed once, because they are per-connection settings and
// the pool may open several connections.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driverName, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening database: %w", err)
	}

	if isMemory(cfg) {
		// Each new connection to ":memory:" is a brand new, empty database.
		// Pin the pool to a single connection that never expires.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqldb: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress. It is a property
	// of the database file, so setting it once is enough.
	if cfg.Driver == DriverSQLite && !isMemory(cfg) {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("sqldb: setting WAL mode: %w", err)
		}
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}

	return db, nil
}

func driverDSN(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
		return "sqlite", dsn, nil
	case DriverPostgres:
		return "pgx", cfg.DSN, nil
	default:
		return "", "", fmt.Errorf("sqldb: unsupported driver %q", cfg.Driver)
	}
}

func isMemory(cfg config.DatabaseConfig) bool {
	return (cfg.Driver == DriverSQLite || cfg.Driver == "") &&
		(cfg.DSN == "" || strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory"))
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.conn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("sqldb: ping: %w", err)
	}
	return nil
}

// Driver returns the configured driver name ("sqlite" or "postgres").
func (db *DB) Driver() string {
	return db.driver
}

// Stats exposes the pool counters.
func (db *DB) Stats() sql.DBStats {
	return db.conn.Stats()
}

// InTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. A panic inside fn rolls back and re-panics.
//
// Everything fn does must go through tx: with a single-connection pool
// (":memory:") a query on the outer pool would wait forever for the
// connection the transaction is holding.
func InTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldb: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqldb: rollback failed: %w (original: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqldb: commit transaction: %w", err)
	}
	return nil
}

// now is the timestamp written on every insert and update. UTC and
// microsecond precision keep values identical after a round trip through
// either engine.
func now() time.Time {
	return time.Now().UTC().Round(time.Microsecond)
}

// migrations are applied in order on every start. Each statement is
// idempotent, so re-running them against an existing database is a no-op.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		visibility    TEXT NOT NULL DEFAULT 'public',
		github_id     BIGINT UNIQUE,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snippets (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title       TEXT NOT NULL,
		language    TEXT NOT NULL,
		code        TEXT NOT NULL,
		description TEXT,
		visibility  TEXT NOT NULL DEFAULT 'public',
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_user_id ON snippets(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_snippets_visibility_created_at ON snippets(visibility, created_at)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		usage_count INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snippet_tags (
		snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
		tag_id     TEXT NOT NULL REFERENCES tags(id),
		PRIMARY KEY (snippet_id, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snippet_tags_tag_id ON snippet_tags(tag_id)`,
	`CREATE TABLE IF NOT EXISTS likes (
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, snippet_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_likes_snippet_id ON likes(snippet_id)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
		content    TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_snippet_id ON comments(snippet_id)`,
}

func (db *DB) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
