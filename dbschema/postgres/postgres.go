// Package postgres implements the reconciler's database surface for PostgreSQL.
// Catalog reads go through information_schema and pg_catalog; every write is a
// single auto-committed statement.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stokaro/schemasync/dbschema/types"
)

// Database reads and writes one PostgreSQL schema.
type Database struct {
	db     *sql.DB
	schema string
	info   types.DBInfo
	logger *slog.Logger
}

var _ types.Database = (*Database)(nil)

// NewDatabase creates a new PostgreSQL database adapter. An empty schema means "public".
func NewDatabase(db *sql.DB, info types.DBInfo) *Database {
	if info.Schema == "" {
		info.Schema = "public"
	}
	return &Database{
		db:     db,
		schema: info.Schema,
		info:   info,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used to trace executed statements
func (d *Database) WithLogger(l *slog.Logger) *Database {
	tmp := *d
	tmp.logger = l
	return &tmp
}

// Info returns connection metadata.
func (d *Database) Info() types.DBInfo {
	return d.info
}

func (d *Database) exec(ctx context.Context, query string, args ...any) error {
	d.logger.Debug("executing statement", "sql", query)
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return enrichError(err)
	}
	return nil
}

// enrichError appends the server's detail and hint to the error text. The
// detail carries the offending key for unique and not-null violations, which is
// what an operator needs to fix the data before re-running.
func enrichError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Detail != "" && pgErr.Hint != "":
		return fmt.Errorf("%w: %s (hint: %s)", err, pgErr.Detail, pgErr.Hint)
	case pgErr.Detail != "":
		return fmt.Errorf("%w: %s", err, pgErr.Detail)
	case pgErr.Hint != "":
		return fmt.Errorf("%w (hint: %s)", err, pgErr.Hint)
	}
	return err
}
