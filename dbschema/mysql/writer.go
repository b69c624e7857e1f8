package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stokaro/schemasync/dbschema/types"
)

// CreateTable creates a table holding only its id column.
func (d *Database) CreateTable(ctx context.Context, table string, id types.ColumnDefinition) error {
	return d.exec(ctx, createTableSQL(table, id))
}

// AddTableComment sets the table comment.
func (d *Database) AddTableComment(ctx context.Context, table, comment string) error {
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s COMMENT = %s", quoteIdentifier(table), quoteLiteral(comment)))
}

// AddColumn adds a column with its nullability, default and uniqueness.
func (d *Database) AddColumn(ctx context.Context, table string, column types.ColumnDefinition) error {
	query, err := addColumnSQL(table, column)
	if err != nil {
		return err
	}
	return d.exec(ctx, query)
}

// RemoveColumn drops a column. Indexes covering only this column go with it.
func (d *Database) RemoveColumn(ctx context.Context, table, column string) error {
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdentifier(table), quoteIdentifier(column)))
}

// ChangeColumnDataType converts a column in place, keeping its nullability.
func (d *Database) ChangeColumnDataType(ctx context.Context, table, column string, newType types.ColumnType) error {
	current, err := d.column(ctx, table, column)
	if err != nil {
		return err
	}
	def, err := d.columnDefault(ctx, table, column)
	if err != nil {
		return err
	}
	return d.exec(ctx, modifyColumnSQL(table, column, columnTypeSQL(newType), current.Nullable(), def))
}

// SetColumnNull toggles NOT NULL on a column, keeping its type.
func (d *Database) SetColumnNull(ctx context.Context, table, column string, nullable bool) error {
	current, err := d.column(ctx, table, column)
	if err != nil {
		return err
	}
	def, err := d.columnDefault(ctx, table, column)
	if err != nil {
		return err
	}
	return d.exec(ctx, modifyColumnSQL(table, column, current.ColumnType, nullable, def))
}

// MakeColumnUnique adds a unique constraint named <table>_<column>_key.
func (d *Database) MakeColumnUnique(ctx context.Context, table, column string) error {
	return d.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
		quoteIdentifier(table),
		quoteIdentifier(uniqueConstraintName(table, column)),
		quoteIdentifier(column),
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
		if err := d.exec(ctx, dropConstraintSQL(table, con.Name, con.Type)); err != nil {
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
	typ, err := d.constraintType(ctx, table, constraint)
	if err != nil {
		return err
	}
	return d.exec(ctx, dropConstraintSQL(table, constraint, typ))
}

// CreateIndex creates a plain or unique index.
func (d *Database) CreateIndex(ctx context.Context, index types.IndexSpec) error {
	return d.exec(ctx, createIndexSQL(index))
}

// InsertSettingsRow stores a new settings value.
func (d *Database) InsertSettingsRow(ctx context.Context, table string, row types.SettingsRow) error {
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s, %s) VALUES (?, ?, ?, ?)",
		quoteIdentifier(table),
		quoteIdentifier(types.SettingsIDColumn),
		quoteIdentifier(types.SettingsTypeColumn),
		quoteIdentifier(types.SettingsFieldColumn),
		quoteIdentifier(types.SettingsValueColumn),
	)
	return d.exec(ctx, query, row.ID, row.SettingsType, row.Field, jsonArg(row.Value))
}

// UpdateSettingsRow replaces the value of a settings row.
func (d *Database) UpdateSettingsRow(ctx context.Context, table, id string, value json.RawMessage) error {
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		quoteIdentifier(table),
		quoteIdentifier(types.SettingsValueColumn),
		quoteIdentifier(types.SettingsIDColumn),
	)
	return d.exec(ctx, query, jsonArg(value), id)
}

// DeleteSettingsRow removes a settings row.
func (d *Database) DeleteSettingsRow(ctx context.Context, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdentifier(table), quoteIdentifier(types.SettingsIDColumn))
	return d.exec(ctx, query, id)
}

func createTableSQL(table string, id types.ColumnDefinition) string {
	column := quoteIdentifier(id.Name) + " " + columnTypeSQL(id.Type) + " NOT NULL"
	if id.AutoIncrement {
		column += " AUTO_INCREMENT"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s PRIMARY KEY)", quoteIdentifier(table), column)
}

func addColumnSQL(table string, col types.ColumnDefinition) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", quoteIdentifier(table), quoteIdentifier(col.Name), columnTypeSQL(col.Type))
	if col.Nullable {
		b.WriteString(" NULL")
	} else {
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
		fmt.Fprintf(&b, ", ADD CONSTRAINT %s UNIQUE (%s)", quoteIdentifier(uniqueConstraintName(table, col.Name)), quoteIdentifier(col.Name))
	}
	return b.String(), nil
}

// modifyColumnSQL rewrites a column definition. MODIFY COLUMN replaces the
// whole definition, so an existing default has to be restated in def.
func modifyColumnSQL(table, column, typ string, nullable bool, def string) string {
	null := "NOT NULL"
	if nullable {
		null = "NULL"
	}
	query := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s %s", quoteIdentifier(table), quoteIdentifier(column), typ, null)
	if def != "" {
		query += " DEFAULT " + def
	}
	return query
}

// restateDefault turns a catalog COLUMN_DEFAULT back into SQL. MariaDB reports
// defaults as SQL already, with "NULL" for none. MySQL reports literals bare
// and marks expression defaults DEFAULT_GENERATED, escaping their quotes.
func restateDefault(mariadb bool, def sql.NullString, extra string) string {
	if !def.Valid {
		return ""
	}
	if mariadb {
		if strings.EqualFold(def.String, "NULL") {
			return ""
		}
		return def.String
	}
	if strings.Contains(extra, "DEFAULT_GENERATED") {
		return "(" + strings.NewReplacer(`\\`, `\`, `\'`, `'`).Replace(def.String) + ")"
	}
	return quoteLiteral(def.String)
}

func dropConstraintSQL(table, name, typ string) string {
	switch typ {
	case types.ConstraintForeignKey:
		return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", quoteIdentifier(table), quoteIdentifier(name))
	case types.ConstraintPrimaryKey:
		return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", quoteIdentifier(table))
	case types.ConstraintUnique:
		return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", quoteIdentifier(table), quoteIdentifier(name))
	default:
		return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", quoteIdentifier(table), quoteIdentifier(name))
	}
}

func addForeignKeySQL(fk types.ForeignKeySpec) string {
	query := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteIdentifier(fk.TableName),
		quoteIdentifier(fk.ConstraintName),
		quoteIdentifier(fk.ColumnName),
		quoteIdentifier(fk.ForeignTableName),
		quoteIdentifier(fk.ForeignColumnName),
	)
	if fk.OnDelete != "" {
		query += " ON DELETE " + fk.OnDelete
	}
	return query
}

func createIndexSQL(index types.IndexSpec) string {
	columns := make([]string, len(index.Columns))
	for i, c := range index.Columns {
		columns[i] = quoteIdentifier(c)
	}
	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique,
		quoteIdentifier(index.Name),
		quoteIdentifier(index.TableName),
		strings.Join(columns, ", "),
	)
}

// defaultLiteral renders a declared default for the column type. TEXT and JSON
// columns only take expression defaults, written in parentheses.
func defaultLiteral(t types.ColumnType, v any) (string, error) {
	if t.DataType == "jsonb" {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return "(" + quoteLiteral(string(data)) + ")", nil
	}
	var lit string
	switch val := v.(type) {
	case bool:
		lit = "FALSE"
		if val {
			lit = "TRUE"
		}
	case string:
		lit = quoteLiteral(val)
	case int:
		lit = strconv.Itoa(val)
	case int64:
		lit = strconv.FormatInt(val, 10)
	case float64:
		lit = strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		lit = val.String()
	case time.Time:
		if t.DataType == "date" {
			lit = quoteLiteral(val.Format(time.DateOnly))
		} else {
			// DATETIME carries no zone; connections run in UTC.
			lit = quoteLiteral(val.UTC().Format("2006-01-02 15:04:05.999999"))
		}
	default:
		return "", fmt.Errorf("unsupported default value %v (%T)", v, v)
	}
	if !literalDefaultAllowed(t) {
		return "(" + lit + ")", nil
	}
	return lit, nil
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
