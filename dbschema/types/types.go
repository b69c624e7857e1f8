package types

import (
	"context"
	"encoding/json"
	"fmt"
)

// Constraint types as reported by the catalog.
const (
	ConstraintPrimaryKey = "PRIMARY KEY"
	ConstraintForeignKey = "FOREIGN KEY"
	ConstraintUnique     = "UNIQUE"
)

// Columns of the shared settings table. The shape of this table is fixed and
// not derived from any declaration.
const (
	SettingsIDColumn    = "id"
	SettingsTypeColumn  = "settingsType"
	SettingsFieldColumn = "field"
	SettingsValueColumn = "value"
)

// DBColumn represents a database column
type DBColumn struct {
	Name               string  `json:"name"`
	DataType           string  `json:"data_type"`
	UDTName            string  `json:"udt_name"`             // For PostgreSQL user defined types
	ColumnType         string  `json:"column_type"`          // Full MySQL column type, e.g. varchar(255)
	IsNullable         string  `json:"is_nullable"`          // YES/NO
	ColumnDefault      *string `json:"column_default"`       // Can be NULL
	CharacterMaxLength *int    `json:"character_max_length"` // For VARCHAR, etc.
	OrdinalPosition    int     `json:"ordinal_position"`
}

// Type returns the physical type of the column.
func (c DBColumn) Type() ColumnType {
	return ColumnType{DataType: c.DataType, CharacterMaximumLength: c.CharacterMaxLength}
}

// Nullable reports whether the catalog marks the column as nullable.
func (c DBColumn) Nullable() bool {
	return c.IsNullable == "YES"
}

// DBConstraint represents a single-column database constraint
type DBConstraint struct {
	Name          string  `json:"name"`
	TableName     string  `json:"table_name"`
	Type          string  `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE
	ColumnName    string  `json:"column_name"`
	ForeignTable  *string `json:"foreign_table"`  // For foreign keys
	ForeignColumn *string `json:"foreign_column"` // For foreign keys
	DeleteRule    *string `json:"delete_rule"`    // CASCADE, RESTRICT, etc.
}

// DBInfo contains connection and metadata information
type DBInfo struct {
	Dialect string `json:"dialect"` // postgres, mysql, mariadb
	Version string `json:"version"`
	Schema  string `json:"schema"` // public, database name, etc.
	URL     string `json:"url"`    // database connection URL (for reference)
}

// ColumnType is a physical column type in canonical (PostgreSQL catalog) spelling.
// Bounded string types carry their length separately, the way
// information_schema reports them.
type ColumnType struct {
	DataType               string `json:"data_type"`
	CharacterMaximumLength *int   `json:"character_maximum_length,omitempty"`
}

// String renders the type the way it is written in DDL.
func (t ColumnType) String() string {
	if t.CharacterMaximumLength != nil {
		return fmt.Sprintf("%s(%d)", t.DataType, *t.CharacterMaximumLength)
	}
	return t.DataType
}

// ColumnDefinition is everything needed to add a column to a table.
type ColumnDefinition struct {
	Name          string     `json:"name"`
	Type          ColumnType `json:"type"`
	Nullable      bool       `json:"nullable"`
	Default       any        `json:"default,omitempty"`
	Unique        bool       `json:"unique,omitempty"`
	AutoIncrement bool       `json:"auto_increment,omitempty"`
}

// ForeignKeySpec describes a single-column foreign key.
type ForeignKeySpec struct {
	ConstraintName    string `json:"constraint_name"`
	TableName         string `json:"table_name"`
	ColumnName        string `json:"column_name"`
	ForeignTableName  string `json:"foreign_table_name"`
	ForeignColumnName string `json:"foreign_column_name"`
	OnDelete          string `json:"on_delete,omitempty"` // CASCADE, SET NULL, etc. Empty means database default.
}

// IndexSpec describes a plain or unique index.
type IndexSpec struct {
	Name      string   `json:"name"`
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
	Unique    bool     `json:"unique,omitempty"`
}

// SettingsRow is one stored value of the shared settings table.
type SettingsRow struct {
	ID           string          `json:"id"`
	SettingsType string          `json:"settingsType"`
	Field        string          `json:"field"`
	Value        json.RawMessage `json:"value"`
}

// SchemaReader is the read-only catalog introspection surface. Plan computation
// only ever receives readers.
type SchemaReader interface {
	TableExists(ctx context.Context, table string) (bool, error)
	// ListTables returns the tables whose name starts with prefix, sorted.
	ListTables(ctx context.Context, prefix string) ([]string, error)
	GetTableColumns(ctx context.Context, table string) ([]DBColumn, error)
	GetTableConstraints(ctx context.Context, table string) ([]DBConstraint, error)
	// GetTableComment returns the table description, or an empty string.
	GetTableComment(ctx context.Context, table string) (string, error)
	HasIndex(ctx context.Context, table, index string) (bool, error)
}

// SchemaWriter issues DDL. Every call commits on its own.
type SchemaWriter interface {
	CreateTable(ctx context.Context, table string, id ColumnDefinition) error
	AddTableComment(ctx context.Context, table, comment string) error
	AddColumn(ctx context.Context, table string, column ColumnDefinition) error
	RemoveColumn(ctx context.Context, table, column string) error
	ChangeColumnDataType(ctx context.Context, table, column string, newType ColumnType) error
	SetColumnNull(ctx context.Context, table, column string, nullable bool) error
	MakeColumnUnique(ctx context.Context, table, column string) error
	RemoveColumnUnique(ctx context.Context, table, column string) error
	AddForeignKey(ctx context.Context, fk ForeignKeySpec) error
	DropConstraint(ctx context.Context, table, constraint string) error
	CreateIndex(ctx context.Context, index IndexSpec) error
}

// SettingsReader reads rows of the shared settings table.
type SettingsReader interface {
	SelectSettingsRows(ctx context.Context, table, settingsType string) ([]SettingsRow, error)
}

// SettingsWriter writes rows of the shared settings table.
type SettingsWriter interface {
	InsertSettingsRow(ctx context.Context, table string, row SettingsRow) error
	UpdateSettingsRow(ctx context.Context, table, id string, value json.RawMessage) error
	DeleteSettingsRow(ctx context.Context, table, id string) error
}

// Reader combines the read-only capabilities used while planning.
type Reader interface {
	SchemaReader
	SettingsReader
}

// Database is the full capability set used by the reconciler.
type Database interface {
	Reader
	SchemaWriter
	SettingsWriter
	Info() DBInfo
}
