package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stokaro/schemasync/core/platform"
	"github.com/stokaro/schemasync/dbschema/types"
)

// TableExists reports whether the table exists in the database.
func (d *Database) TableExists(ctx context.Context, table string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
		d.schema, table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query table existence: %w", err)
	}
	return count > 0, nil
}

// ListTables returns the base tables whose name starts with prefix, sorted.
func (d *Database) ListTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' AND TABLE_NAME LIKE ?
		 ORDER BY TABLE_NAME`,
		d.schema, likePrefix(prefix),
	)
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

// GetTableColumns reads all columns of a table with canonical type names.
func (d *Database) GetTableColumns(ctx context.Context, table string) ([]types.DBColumn, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT,
		        CHARACTER_MAXIMUM_LENGTH, ORDINAL_POSITION
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		 ORDER BY ORDINAL_POSITION`,
		d.schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.DBColumn
	for rows.Next() {
		var (
			col       types.DBColumn
			dataType  string
			maxLength sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &dataType, &col.ColumnType, &col.IsNullable, &col.ColumnDefault, &maxLength, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		var length *int
		if maxLength.Valid {
			n := int(maxLength.Int64)
			length = &n
		}
		canonical := canonicalType(dataType, col.ColumnType, length)
		col.DataType = canonical.DataType
		col.UDTName = dataType
		col.CharacterMaxLength = canonical.CharacterMaximumLength
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// GetTableConstraints reads the single-column primary key, unique and foreign
// key constraints of a table.
func (d *Database) GetTableConstraints(ctx context.Context, table string) ([]types.DBConstraint, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT tc.CONSTRAINT_NAME, tc.CONSTRAINT_TYPE, kcu.COLUMN_NAME,
		        kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME, rc.DELETE_RULE
		 FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		 JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		   ON tc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA
		  AND tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		  AND tc.TABLE_NAME = kcu.TABLE_NAME
		 LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		   ON rc.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
		  AND rc.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		  AND rc.TABLE_NAME = tc.TABLE_NAME
		 WHERE tc.TABLE_SCHEMA = ? AND tc.TABLE_NAME = ?
		   AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		 ORDER BY tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`,
		d.schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	count := map[string]int{}
	var order []types.DBConstraint
	for rows.Next() {
		var con types.DBConstraint
		var foreignTable, foreignColumn, deleteRule sql.NullString
		if err := rows.Scan(&con.Name, &con.Type, &con.ColumnName, &foreignTable, &foreignColumn, &deleteRule); err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		count[con.Name]++
		if count[con.Name] > 1 {
			continue
		}
		con.TableName = table
		if con.Type == types.ConstraintForeignKey {
			con.ForeignTable = nullable(foreignTable)
			con.ForeignColumn = nullable(foreignColumn)
			con.DeleteRule = nullable(deleteRule)
		}
		order = append(order, con)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []types.DBConstraint
	for _, con := range order {
		if count[con.Name] == 1 {
			result = append(result, con)
		}
	}
	return result, nil
}

// GetTableComment returns the table comment, or an empty string.
func (d *Database) GetTableComment(ctx context.Context, table string) (string, error) {
	var comment string
	err := d.db.QueryRowContext(ctx,
		`SELECT TABLE_COMMENT FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
		d.schema, table,
	).Scan(&comment)
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
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM INFORMATION_SCHEMA.STATISTICS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME = ?`,
		d.schema, table, index,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query index: %w", err)
	}
	return count > 0, nil
}

// SelectSettingsRows returns the stored rows of one settings type, oldest id first.
func (d *Database) SelectSettingsRows(ctx context.Context, table, settingsType string) ([]types.SettingsRow, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s = ? ORDER BY %s",
		quoteIdentifier(types.SettingsIDColumn),
		quoteIdentifier(types.SettingsTypeColumn),
		quoteIdentifier(types.SettingsFieldColumn),
		quoteIdentifier(types.SettingsValueColumn),
		quoteIdentifier(table),
		quoteIdentifier(types.SettingsTypeColumn),
		quoteIdentifier(types.SettingsIDColumn),
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

// constraintType looks up the kind of a named constraint; MySQL drops each
// kind with different syntax.
func (d *Database) constraintType(ctx context.Context, table, name string) (string, error) {
	var typ string
	err := d.db.QueryRowContext(ctx,
		`SELECT CONSTRAINT_TYPE FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = ?`,
		d.schema, table, name,
	).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("constraint %s does not exist on table %s", name, table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query constraint %s: %w", name, err)
	}
	return typ, nil
}

// column reads a single column of a table.
func (d *Database) column(ctx context.Context, table, column string) (types.DBColumn, error) {
	columns, err := d.GetTableColumns(ctx, table)
	if err != nil {
		return types.DBColumn{}, err
	}
	for _, col := range columns {
		if col.Name == column {
			return col, nil
		}
	}
	return types.DBColumn{}, fmt.Errorf("column %s.%s does not exist", table, column)
}

// columnDefault returns the current default of a column as SQL, or an empty
// string when it has none.
func (d *Database) columnDefault(ctx context.Context, table, column string) (string, error) {
	var (
		def   sql.NullString
		extra string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT COLUMN_DEFAULT, EXTRA
		 FROM INFORMATION_SCHEMA.COLUMNS
		 WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
		d.schema, table, column,
	).Scan(&def, &extra)
	if err != nil {
		return "", fmt.Errorf("failed to read default of %s.%s: %w", table, column, err)
	}
	return restateDefault(d.info.Dialect == platform.MariaDB, def, extra), nil
}

// likePrefix builds a LIKE pattern matching names that start with prefix.
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
