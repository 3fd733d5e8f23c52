// Package storage opens the databases used by the journal and the archive
// index and brings their schema up to date with embedded goose migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// Dialect selects a migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// runProvider is a seam for testing goose migrations.
var runProvider = func(ctx context.Context, p *goose.Provider) error {
	_, err := p.Up(ctx)
	return err
}

// Migrate applies every pending migration of the given dialect to db.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var (
		gd   goose.Dialect
		fsys fs.FS
		err  error
	)

	switch dialect {
	case DialectSQLite:
		gd = goose.DialectSQLite3
		fsys, err = fs.Sub(sqliteMigrations, "migrations/sqlite")
	case DialectPostgres:
		gd = goose.DialectPostgres
		fsys, err = fs.Sub(postgresMigrations, "migrations/postgres")
	default:
		return fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	p, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if err := runProvider(ctx, p); err != nil {
		return fmt.Errorf("migrate %s: %w", dialect, err)
	}
	return nil
}

// SQLiteDSN turns a file path into a modernc.org/sqlite DSN with the pragmas
// the journal relies on. ":memory:" is passed through.
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
}

// OpenSQLite opens (creating if needed) the local state database and runs its
// migrations. The pool is limited to one connection so that SQLite sees a
// single writer.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db, DialectSQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenPostgres connects to dsn through the pgx stdlib driver and runs the
// archive-index migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db, DialectPostgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
