package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/stokaro/schemasync/dbschema/types"
)

// TableExists reports whether the table exists in the schema.
func (d *Database) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`

	var exists bool
	if err := d.db.QueryRowContext(ctx, query, d.schema, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query table existence: %w", err)
	}
	return exists, nil
}

// ListTables returns the base tables whose name starts with prefix, sorted.
func (d *Database) ListTables(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		AND table_name LIKE $2 ESCAPE '\'
		ORDER BY table_name`

	rows, err := d.db.QueryContext(ctx, query, d.schema, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// GetTableColumns reads all columns for a specific table
func (d *Database) GetTableColumns(ctx context.Context, table string) ([]types.DBColumn, error) {
	query := `
		SELECT
			column_name,
			data_type,
			udt_name,
			is_nullable,
			column_default,
			character_maximum_length,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := d.db.QueryContext(ctx, query, d.schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.DBColumn
	for rows.Next() {
		var col types.DBColumn
		err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.UDTName,
			&col.IsNullable,
			&col.ColumnDefault,
			&col.CharacterMaxLength,
			&col.OrdinalPosition,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.ColumnType = types.ColumnType{DataType: col.DataType, CharacterMaximumLength: col.CharacterMaxLength}.String()
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

type constraintRow struct {
	name          string
	typ           string
	column        string
	foreignTable  sql.NullString
	foreignColumn sql.NullString
	deleteRule    sql.NullString
}

// GetTableConstraints reads the primary key, unique and foreign key constraints
// of a table. Constraints spanning several columns are not reported.
func (d *Database) GetTableConstraints(ctx context.Context, table string) ([]types.DBConstraint, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		LEFT JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
			AND tc.table_schema = rc.constraint_schema
		LEFT JOIN information_schema.constraint_column_usage ccu
			ON rc.unique_constraint_name = ccu.constraint_name
			AND rc.unique_constraint_schema = ccu.constraint_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		ORDER BY tc.constraint_name, kcu.ordinal_position`

	rows, err := d.db.QueryContext(ctx, query, d.schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	var scanned []constraintRow
	for rows.Next() {
		var r constraintRow
		if err := rows.Scan(&r.name, &r.typ, &r.column, &r.foreignTable, &r.foreignColumn, &r.deleteRule); err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return singleColumnConstraints(table, scanned), nil
}

// singleColumnConstraints folds catalog rows into constraints, dropping every
// constraint that covers more than one column.
func singleColumnConstraints(table string, rows []constraintRow) []types.DBConstraint {
	columns := map[string]map[string]bool{}
	var order []string
	first := map[string]constraintRow{}
	for _, r := range rows {
		if _, seen := columns[r.name]; !seen {
			columns[r.name] = map[string]bool{}
			order = append(order, r.name)
			first[r.name] = r
		}
		columns[r.name][r.column] = true
	}

	var result []types.DBConstraint
	for _, name := range order {
		if len(columns[name]) != 1 {
			continue
		}
		r := first[name]
		con := types.DBConstraint{
			Name:       r.name,
			TableName:  table,
			Type:       r.typ,
			ColumnName: r.column,
		}
		if r.typ == types.ConstraintForeignKey {
			con.ForeignTable = nullable(r.foreignTable)
			con.ForeignColumn = nullable(r.foreignColumn)
			con.DeleteRule = nullable(r.deleteRule)
		}
		result = append(result, con)
	}
	return result
}

// GetTableComment returns the table comment, or an empty string.
func (d *Database) GetTableComment(ctx context.Context, table string) (string, error) {
	query := `
		SELECT COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`

	var comment string
	err := d.db.QueryRowContext(ctx, query, d.schema, table).Scan(&comment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query table comment: %w", err)
	}
	return comment, nil
}

// HasIndex reports whether the named index exists on the table.
func (d *Database) HasIndex(ctx context.Context, table, index string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = $1 AND tablename = $2 AND indexname = $3
		)`

	var exists bool
	if err := d.db.QueryRowContext(ctx, query, d.schema, table, index).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query index: %w", err)
	}
	return exists, nil
}

// SelectSettingsRows returns the stored rows of one settings type, oldest id first.
func (d *Database) SelectSettingsRows(ctx context.Context, table, settingsType string) ([]types.SettingsRow, error) {
	query := fmt.Sprintf(`SELECT %s, %s, %s, %s FROM %s WHERE %s = $1 ORDER BY %s`,
		pq.QuoteIdentifier(types.SettingsIDColumn),
		pq.QuoteIdentifier(types.SettingsTypeColumn),
		pq.QuoteIdentifier(types.SettingsFieldColumn),
		pq.QuoteIdentifier(types.SettingsValueColumn),
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(types.SettingsTypeColumn),
		pq.QuoteIdentifier(types.SettingsIDColumn),
	)

	rows, err := d.db.QueryContext(ctx, query, settingsType)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings rows: %w", enrichError(err))
	}
	defer rows.Close()

	var result []types.SettingsRow
	for rows.Next() {
		var row types.SettingsRow
		var value []byte
		if err := rows.Scan(&row.ID, &row.SettingsType, &row.Field, &value); err != nil {
			return nil, fmt.Errorf("failed to scan settings row: %w", err)
		}
		if value != nil {
			row.Value = append([]byte(nil), value...)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// likePrefix builds a LIKE pattern matching names that start with prefix.
// Underscores are common in table names and are wildcards in LIKE.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `_`, `\_`, `%`, `\%`)
	return r.Replace(prefix) + "%"
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
