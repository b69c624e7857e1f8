// Package mysql implements the reconciler's database surface for MySQL and
// MariaDB. Column types are translated to and from the canonical spelling the
// planner works with, so plans look the same on every dialect.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/stokaro/schemasync/dbschema/types"
)

// Database reads and writes one MySQL database.
type Database struct {
	db     *sql.DB
	schema string
	info   types.DBInfo
	logger *slog.Logger
}

var _ types.Database = (*Database)(nil)

// NewDatabase creates a new MySQL database adapter. info.Schema must name the
// database that holds the reconciled tables.
func NewDatabase(db *sql.DB, info types.DBInfo) *Database {
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

// Server error numbers that point at existing data rather than at the statement.
const (
	errDupEntry            = 1062
	errInvalidUseOfNull    = 1138
	errWarnDataTruncated   = 1265
	errTruncatedWrongValue = 1366
)

// enrichError explains server errors caused by existing rows.
func enrichError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	switch myErr.Number {
	case errDupEntry:
		return fmt.Errorf("%w: existing rows hold duplicate values", err)
	case errInvalidUseOfNull:
		return fmt.Errorf("%w: existing rows hold NULL values", err)
	case errWarnDataTruncated, errTruncatedWrongValue:
		return fmt.Errorf("%w: existing values cannot be converted", err)
	}
	return err
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

func quoteLiteral(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}
