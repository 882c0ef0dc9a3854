// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// cross-compiling the server stays trivial.
//
// WHY sqlx ON TOP OF database/sql?
// sqlx keeps database/sql's model (pools, transactions, contexts) and adds
// struct scanning: GetContext/SelectContext fill model structs by their
// `db:"..."` tags, so each query is written once instead of once plus a
// column-by-column Scan.
//
// The DB type is split into small stores that each implement one repository
// interface:
//
//	db.Users()    → repository.UserRepository
//	db.Snippets() → repository.SnippetRepository
//	db.Tags()     → repository.TagRepository
//	db.Ledger()   → repository.LedgerRepository
//	db.Comments() → repository.CommentRepository
//
// They all share one connection pool and one transaction helper (withTx).
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sakif/csstoy/internal/apperror"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Migrations are embedded into the binary so the server and csstoyctl never
// depend on the working directory.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// FOLD:
// SQLite's LOWER() only folds ASCII, so "Ü" never meets "ü". fold(x) lowers
// with the Go rules instead; queries compare fold(column) against a pattern
// lowered by strings.ToLower so both sides agree on every letter.
// Registration is global to the driver and covers every connection opened
// afterwards.
func init() {
	sqlitedrv.MustRegisterDeterministicScalarFunction("fold", 1,
		func(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
}

// foldPattern lowers user input the same way fold() lowers stored text and
// escapes LIKE wildcards in it.
func foldPattern(s string) string {
	return escapeLike(strings.ToLower(s))
}

// DB wraps the sqlx connection pool.
type DB struct {
	conn *sqlx.DB
}

// New opens the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/csstoy.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Open opens and configures the database without migrating it.
//
// ONE CONNECTION:
// SQLite allows a single writer at a time. Capping the pool at one
// connection turns that into plain queueing inside database/sql instead of
// SQLITE_BUSY errors, and it is required for ":memory:" where every new
// connection would be a brand-new empty database. The consequence for
// callers: inside withTx, only ever use the tx, never db.conn, or the
// transaction waits on itself forever.
func Open(dbPath string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// PRAGMAs are per connection. With a single long-lived connection they
	// only need to run once.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	return &DB{conn: conn}, nil
}

// Migrate applies every pending goose migration and reports what ran.
// Running it against an up-to-date database is a no-op.
func (db *DB) Migrate(ctx context.Context) ([]*goose.MigrationResult, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return results, fmt.Errorf("sqlite: applying migrations: %w", err)
	}
	return results, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the /health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB       { return &UserDB{db: db} }
func (db *DB) Snippets() *SnippetDB { return &SnippetDB{db: db} }
func (db *DB) Tags() *TagDB         { return &TagDB{db: db} }
func (db *DB) Ledger() *LedgerDB    { return &LedgerDB{db: db} }
func (db *DB) Comments() *CommentDB { return &CommentDB{db: db} }

// withTx runs fn inside a transaction.
//
// fn's error decides the outcome: nil commits, anything else rolls back and
// is returned unchanged so apperror kinds survive. A panic inside fn also
// rolls back before re-panicking; without that the single pooled
// connection would stay stuck inside an open transaction.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure. Other constraint failures (foreign keys, CHECK) are
// real bugs and must not be mistaken for a duplicate.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// escapeLike escapes LIKE wildcards so user input matches literally.
// Queries using it must say ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isNoRows is a small readability helper for the sql.ErrNoRows check.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// requireAffected turns "UPDATE/DELETE matched nothing" into NotFound.
func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func isConflict(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}
