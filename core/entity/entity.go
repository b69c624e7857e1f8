// Package entity holds the declared model the reconciliation engine works from:
// entry types materialized as relational tables, their one-level child types, and
// settings types stored as rows of a shared key/value table.
//
// Values in this package are immutable once a Registry has been built from them.
// The engine only reads them.
package entity

import "strings"

const (
	// IdentifierKey is the reserved key of the primary identifier field.
	IdentifierKey = "id"

	// ParentKey is the reserved column linking a child row to its parent row.
	ParentKey = "parent"

	// TitleSuffix is appended to a connection field key to name the
	// denormalized title column of the referenced record.
	TitleSuffix = "#"

	childTablePrefix = "child_"
)

// FetchField describes where a denormalized column gets its value from:
// the connection field on the same type and the field read on the target.
type FetchField struct {
	Connection string `json:"connection" yaml:"connection" toml:"connection"`
	Field      string `json:"field" yaml:"field" toml:"field"`
}

// Connection describes the target of a connection field.
type Connection struct {
	// Target is the name of the referenced entry type.
	Target string
	// IDMode overrides the identifier format expected on the target. When empty
	// the target type's own IDMode is used.
	IDMode IDMode
}

// Field is one declared field of an entry, child or settings type.
type Field struct {
	Key       string
	Label     string
	Kind      FieldKind
	Required  bool
	ReadOnly  bool
	Unique    bool
	Hidden    bool
	Default   any
	MaxLength int

	Fetch      *FetchField
	Connection *Connection
}

// IsIdentifier reports whether the field is the primary identifier.
func (f Field) IsIdentifier() bool {
	return f.Kind == KindID || f.Key == IdentifierKey
}

// ChildType is a one-to-many sub-record of an entry type. It has its own table
// linked to the parent through a parent column. A child type cannot declare
// children of its own.
type ChildType struct {
	Name        string
	Description string
	Fields      []Field
}

// RootType is an entry type materialized as one relational table.
type RootType struct {
	Name        string
	Table       string
	Description string
	IDMode      IDMode
	// TitleField names the field used to represent a record of this type in
	// listings and in denormalized title columns of referencing types.
	TitleField string
	Fields     []Field
	Children   []ChildType
}

// TableName returns the physical table of the type. It defaults to the type name.
func (r *RootType) TableName() string {
	if r.Table != "" {
		return r.Table
	}
	return r.Name
}

// Field returns the declared field with the given key.
func (r *RootType) Field(key string) (Field, bool) {
	return findField(r.Fields, key)
}

// ChildTableName returns the table of a child type under the given parent type.
func (r *RootType) ChildTableName(child string) string {
	return ChildTableName(r.Name, child)
}

// SettingsType is a singleton configuration schema. Its fields are stored as
// rows of the shared settings table keyed by (settingsType, field).
type SettingsType struct {
	Name        string
	Description string
	Fields      []Field
}

// Field returns the declared field with the given key.
func (s *SettingsType) Field(key string) (Field, bool) {
	return findField(s.Fields, key)
}

// ChildTableName returns the table name of child under parent, following the
// child_<parent>_<child> convention.
func ChildTableName(parent, child string) string {
	return ChildTablePrefix(parent) + child
}

// ChildTablePrefix returns the prefix shared by every child table of parent.
func ChildTablePrefix(parent string) string {
	return childTablePrefix + parent + "_"
}

// IsTitleColumn reports whether the column name denotes a denormalized title column.
func IsTitleColumn(name string) bool {
	return strings.HasSuffix(name, TitleSuffix)
}

func findField(fields []Field, key string) (Field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}
