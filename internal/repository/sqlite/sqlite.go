// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and the whole
// database is one file next to the binary (or ":memory:" in tests).
//
// SCHEMA:
// The schema lives in migrations/*.sql, embedded into the binary and applied
// by golang-migrate on every start. golang-migrate records the applied
// version in schema_migrations, so New is safe to call on an existing file.
//
// UNIQUENESS:
// courses.slug, subscribers.email and users.email carry UNIQUE indexes. Two
// racing inserts with the same key both reach the index and exactly one wins;
// the loser's driver error is translated to apperror.ErrConflict here.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// casefold(x) lowercases with Unicode rules. SQLite's own LIKE and lower()
// only fold ASCII, so "écrire" would never match "Écrire" without it.
func init() {
	moderncsqlite.MustRegisterDeterministicScalarFunction("casefold", 1, casefold)
}

func casefold(_ *moderncsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// DB owns the connection pool and hands out one store per collection.
type DB struct {
	conn *sql.DB

	courses     *CourseStore
	subscribers *SubscriberStore
	users       *UserStore
	visits      *VisitStore
}

// New opens (or creates) the database at dbPath and migrates it to the latest schema.
//
// dbPath examples:
//   - "data/learnmade.db" → file-based database
//   - ":memory:"          → in-memory database for tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database,
	// so an in-memory DB is pinned to a single connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{
		conn:        conn,
		courses:     &CourseStore{conn: conn},
		subscribers: &SubscriberStore{conn: conn},
		users:       &UserStore{conn: conn},
		visits:      &VisitStore{conn: conn},
	}, nil
}

// dsn adds connection pragmas. WAL lets readers proceed during a write and
// busy_timeout makes concurrent writers wait instead of failing with SQLITE_BUSY.
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func migrateUp(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	// m.Close is deliberately not called: it would close conn, which the DB keeps using.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (db *DB) Courses() *CourseStore         { return db.courses }
func (db *DB) Subscribers() *SubscriberStore { return db.subscribers }
func (db *DB) Users() *UserStore             { return db.users }
func (db *DB) Visits() *VisitStore           { return db.visits }

// Ping backs the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate key.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// likePattern turns a user search term into a LIKE pattern that matches the
// term literally anywhere in the column. Used with ESCAPE '\'.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
