package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/stokaro/schemasync/dbschema/types"
)

// CreateTable creates a table holding only its id column.
func (d *Database) CreateTable(ctx context.Context, table string, id types.ColumnDefinition) error {
	return d.exec(ctx, createTableSQL(table, id))
}

// AddTableComment sets the table comment. An empty comment removes it.
func (d *Database) AddTableComment(ctx context.Context, table, comment string) error {
	return d.exec(ctx, commentSQL(table, comment))
}

// AddColumn adds a column with its nullability, default and uniqueness.
func (d *Database) AddColumn(ctx context.Context, table string, column types.ColumnDefinition) error {
	query, err := addColumnSQL(table, column)
	if err != nil {
		return err
	}
	return d.exec(ctx, query)
}

// RemoveColumn drops a column together with the constraints on it.
func (d *Database) RemoveColumn(ctx context.Context, table, column string) error {
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", pq.QuoteIdentifier(table), pq.QuoteIdentifier(column)))
}

// ChangeColumnDataType converts a column in place.
func (d *Database) ChangeColumnDataType(ctx context.Context, table, column string, newType types.ColumnType) error {
	return d.exec(ctx, alterTypeSQL(table, column, newType))
}

// SetColumnNull toggles NOT NULL on a column.
func (d *Database) SetColumnNull(ctx context.Context, table, column string, nullable bool) error {
	return d.exec(ctx, setNullSQL(table, column, nullable))
}

// MakeColumnUnique adds a unique constraint named <table>_<column>_key.
func (d *Database) MakeColumnUnique(ctx context.Context, table, column string) error {
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(uniqueConstraintName(table, column)),
		pq.QuoteIdentifier(column),
	))
}

// RemoveColumnUnique drops every single-column unique constraint on the column.
func (d *Database) RemoveColumnUnique(ctx context.Context, table, column string) error {
	constraints, err := d.GetTableConstraints(ctx, table)
	if err != nil {
		return err
	}
	dropped := 0
	for _, con := range constraints {
		if con.Type != types.ConstraintUnique || con.ColumnName != column {
			continue
		}
		if err := d.DropConstraint(ctx, table, con.Name); err != nil {
			return err
		}
		dropped++
	}
	if dropped == 0 {
		return fmt.Errorf("no unique constraint on %s.%s", table, column)
	}
	return nil
}

// AddForeignKey adds a single-column foreign key.
func (d *Database) AddForeignKey(ctx context.Context, fk types.ForeignKeySpec) error {
	return d.exec(ctx, addForeignKeySQL(fk))
}

// DropConstraint drops a named constraint of a table.
func (d *Database) DropConstraint(ctx context.Context, table, constraint string) error {
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", pq.QuoteIdentifier(table), pq.QuoteIdentifier(constraint)))
}

// CreateIndex creates a plain or unique index.
func (d *Database) CreateIndex(ctx context.Context, index types.IndexSpec) error {
	return d.exec(ctx, createIndexSQL(index))
}

// InsertSettingsRow stores a new settings value.
func (d *Database) InsertSettingsRow(ctx context.Context, table string, row types.SettingsRow) error {
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, $3, $4)",
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(types.SettingsIDColumn),
		pq.QuoteIdentifier(types.SettingsTypeColumn),
		pq.QuoteIdentifier(types.SettingsFieldColumn),
		pq.QuoteIdentifier(types.SettingsValueColumn),
	)
	return d.exec(ctx, query, row.ID, row.SettingsType, row.Field, jsonArg(row.Value))
}

// UpdateSettingsRow replaces the value of a settings row.
func (d *Database) UpdateSettingsRow(ctx context.Context, table, id string, value json.RawMessage) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2",
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(types.SettingsValueColumn),
		pq.QuoteIdentifier(types.SettingsIDColumn),
	)
	return d.exec(ctx, query, jsonArg(value), id)
}

// DeleteSettingsRow removes a settings row.
func (d *Database) DeleteSettingsRow(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(types.SettingsIDColumn),
	)
	return d.exec(ctx, query, id)
}

func createTableSQL(table string, id types.ColumnDefinition) string {
	column := pq.QuoteIdentifier(id.Name) + " " + id.Type.String()
	if id.AutoIncrement {
		column += " GENERATED BY DEFAULT AS IDENTITY"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s PRIMARY KEY)", pq.QuoteIdentifier(table), column)
}

func commentSQL(table, comment string) string {
	if comment == "" {
		return fmt.Sprintf("COMMENT ON TABLE %s IS NULL", pq.QuoteIdentifier(table))
	}
	return fmt.Sprintf("COMMENT ON TABLE %s IS %s", pq.QuoteIdentifier(table), pq.QuoteLiteral(comment))
}

func addColumnSQL(table string, col types.ColumnDefinition) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", pq.QuoteIdentifier(table), pq.QuoteIdentifier(col.Name), col.Type.String())
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		lit, err := defaultLiteral(col.Type, col.Default)
		if err != nil {
			return "", fmt.Errorf("invalid default for column %s.%s: %w", table, col.Name, err)
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	if col.Unique {
		fmt.Fprintf(&b, " CONSTRAINT %s UNIQUE", pq.QuoteIdentifier(uniqueConstraintName(table, col.Name)))
	}
	return b.String(), nil
}

func alterTypeSQL(table, column string, t types.ColumnType) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(column),
		t.String(),
		pq.QuoteIdentifier(column),
		t.String(),
	)
}

func setNullSQL(table, column string, nullable bool) string {
	action := "SET NOT NULL"
	if nullable {
		action = "DROP NOT NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", pq.QuoteIdentifier(table), pq.QuoteIdentifier(column), action)
}

func addForeignKeySQL(fk types.ForeignKeySpec) string {
	query := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		pq.QuoteIdentifier(fk.TableName),
		pq.QuoteIdentifier(fk.ConstraintName),
		pq.QuoteIdentifier(fk.ColumnName),
		pq.QuoteIdentifier(fk.ForeignTableName),
		pq.QuoteIdentifier(fk.ForeignColumnName),
	)
	if fk.OnDelete != "" {
		query += " ON DELETE " + fk.OnDelete
	}
	return query
}

func createIndexSQL(index types.IndexSpec) string {
	columns := make([]string, len(index.Columns))
	for i, c := range index.Columns {
		columns[i] = pq.QuoteIdentifier(c)
	}
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		pq.QuoteIdentifier(index.Name),
		pq.QuoteIdentifier(index.TableName),
		strings.Join(columns, ", "),
	)
}

// defaultLiteral renders a declared default as a SQL literal for the column type.
func defaultLiteral(t types.ColumnType, v any) (string, error) {
	if t.DataType == "jsonb" {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return pq.QuoteLiteral(string(data)) + "::jsonb", nil
	}
	switch val := v.(type) {
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return pq.QuoteLiteral(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case json.Number:
		return val.String(), nil
	case time.Time:
		if t.DataType == "date" {
			return pq.QuoteLiteral(val.Format(time.DateOnly)), nil
		}
		return pq.QuoteLiteral(val.Format(time.RFC3339Nano)), nil
	default:
		return "", fmt.Errorf("unsupported default value %v (%T)", v, v)
	}
}

func uniqueConstraintName(table, column string) string {
	return table + "_" + column + "_key"
}

// jsonArg passes a JSON document as a parameter. A nil document stores SQL NULL.
func jsonArg(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return string(v)
}
