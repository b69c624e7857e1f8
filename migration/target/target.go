// Package target translates declared fields into the physical column and
// constraint shapes they require.
//
// The mapping is a pure function of the field, the owning table and the target
// types of connection fields. Physical types use the PostgreSQL catalog spelling
// as the canonical form; dialect adapters translate from it.
package target

import (
	"fmt"

	"github.com/stokaro/schemasync/core/entity"
	"github.com/stokaro/schemasync/dbschema/types"
	"github.com/stokaro/schemasync/migration/plantypes"
)

// Canonical physical type names.
const (
	TypeVarchar     = "character varying"
	TypeText        = "text"
	TypeInteger     = "integer"
	TypeBigint      = "bigint"
	TypeNumeric     = "numeric"
	TypeDate        = "date"
	TypeTimestampTZ = "timestamp with time zone"
	TypeBoolean     = "boolean"
	TypeJSONB       = "jsonb"
	TypeUUID        = "uuid"
)

const (
	// DefaultStringLength bounds short string kinds without an explicit MaxLength.
	DefaultStringLength = 255

	// ULIDLength is the length of a canonical ULID string.
	ULIDLength = 26

	// IDColumnName is the identifier column of every relational table.
	IDColumnName = "id"

	// ForeignColumnName is the column every foreign key references.
	ForeignColumnName = "id"
)

// Resolver looks up the entry type a connection field points at.
// *entity.Registry implements it.
type Resolver interface {
	EntryType(name string) (*entity.RootType, bool)
}

// Owner identifies the table a field belongs to.
type Owner struct {
	Table  string
	IDMode entity.IDMode
}

// Mapping is everything one declared field requires physically.
type Mapping struct {
	Column plantypes.TargetColumn
	// ForeignKey is set for connection fields.
	ForeignKey *types.ForeignKeySpec
	// Title is the denormalized title column, set for connection fields whose
	// target declares a title field.
	Title *plantypes.TargetColumn
}

// ToTargetColumn maps one declared field. It panics on a field kind it does not
// know, which means the kind set and this mapper have drifted apart.
func ToTargetColumn(owner Owner, f entity.Field, r Resolver) Mapping {
	m := Mapping{
		Column: plantypes.TargetColumn{
			ColumnName:    f.Key,
			Type:          columnType(owner, f, r),
			IsNullable:    !f.Required,
			ColumnDefault: f.Default,
			Unique:        f.Unique,
			ReadOnly:      f.ReadOnly,
			FetchField:    f.Fetch,
		},
	}
	if f.Kind == entity.KindID {
		m.Column.IsNullable = false
		m.Column.ColumnDefault = nil
		return m
	}
	if f.Kind != entity.KindConnection {
		return m
	}

	targetType := resolve(f, r)
	m.ForeignKey = &types.ForeignKeySpec{
		ConstraintName:    ForeignKeyName(owner.Table, f.Key),
		TableName:         owner.Table,
		ColumnName:        f.Key,
		ForeignTableName:  targetType.TableName(),
		ForeignColumnName: ForeignColumnName,
	}

	if targetType.TitleField == "" {
		return m
	}
	titleField, ok := targetType.Field(targetType.TitleField)
	if !ok {
		panic(fmt.Sprintf("entry type %q declares unknown title field %q", targetType.Name, targetType.TitleField))
	}
	m.Title = &plantypes.TargetColumn{
		ColumnName: f.Key + entity.TitleSuffix,
		Type:       columnType(Owner{Table: targetType.TableName(), IDMode: targetType.IDMode}, titleField, r),
		IsNullable: true,
		ReadOnly:   true,
		FetchField: &entity.FetchField{Connection: f.Key, Field: titleField.Key},
	}
	return m
}

// Columns maps every field and flattens the result into target columns keyed by
// column name, in declaration order, plus the foreign keys keyed by column name.
// The identifier field is skipped.
func Columns(owner Owner, fields []entity.Field, r Resolver) ([]plantypes.TargetColumn, map[string]types.ForeignKeySpec) {
	cols := make([]plantypes.TargetColumn, 0, len(fields))
	fks := make(map[string]types.ForeignKeySpec)
	for _, f := range fields {
		if f.IsIdentifier() {
			continue
		}
		m := ToTargetColumn(owner, f, r)
		cols = append(cols, m.Column)
		if m.ForeignKey != nil {
			fks[m.Column.ColumnName] = *m.ForeignKey
		}
		if m.Title != nil {
			cols = append(cols, *m.Title)
		}
	}
	return cols, fks
}

// ParentColumn returns the column linking rows of a child table to the parent
// table, together with its cascading foreign key.
func ParentColumn(childTable string, parent Owner) Mapping {
	return Mapping{
		Column: plantypes.TargetColumn{
			ColumnName: entity.ParentKey,
			Type:       IDType(parent.IDMode),
			IsNullable: false,
		},
		ForeignKey: &types.ForeignKeySpec{
			ConstraintName:    ForeignKeyName(childTable, entity.ParentKey),
			TableName:         childTable,
			ColumnName:        entity.ParentKey,
			ForeignTableName:  parent.Table,
			ForeignColumnName: ForeignColumnName,
			OnDelete:          "CASCADE",
		},
	}
}

// IDType returns the physical type of identifier columns in the given mode.
func IDType(mode entity.IDMode) types.ColumnType {
	switch mode.OrDefault() {
	case entity.IDModeUUID:
		return types.ColumnType{DataType: TypeUUID}
	case entity.IDModeSerial:
		return types.ColumnType{DataType: TypeBigint}
	default:
		return Varchar(ULIDLength)
	}
}

// IDColumn returns the identifier column definition used when creating a table.
func IDColumn(mode entity.IDMode) types.ColumnDefinition {
	return types.ColumnDefinition{
		Name:          IDColumnName,
		Type:          IDType(mode),
		AutoIncrement: mode == entity.IDModeSerial,
	}
}

// ForeignKeyName names the foreign key of a column.
func ForeignKeyName(table, column string) string {
	return table + "_" + column + "_fk"
}

// Varchar returns a bounded string type.
func Varchar(n int) types.ColumnType {
	return types.ColumnType{DataType: TypeVarchar, CharacterMaximumLength: &n}
}

func columnType(owner Owner, f entity.Field, r Resolver) types.ColumnType {
	switch f.Kind {
	case entity.KindData, entity.KindPassword, entity.KindChoice, entity.KindEmail, entity.KindPhone:
		n := f.MaxLength
		if n == 0 {
			n = DefaultStringLength
		}
		return Varchar(n)
	case entity.KindText, entity.KindRichText, entity.KindURL:
		return types.ColumnType{DataType: TypeText}
	case entity.KindInt:
		return types.ColumnType{DataType: TypeInteger}
	case entity.KindDecimal, entity.KindCurrency:
		return types.ColumnType{DataType: TypeNumeric}
	case entity.KindDate:
		return types.ColumnType{DataType: TypeDate}
	case entity.KindTimestamp:
		return types.ColumnType{DataType: TypeTimestampTZ}
	case entity.KindBoolean:
		return types.ColumnType{DataType: TypeBoolean}
	case entity.KindMultiChoice, entity.KindImage, entity.KindFile, entity.KindJSON, entity.KindList:
		return types.ColumnType{DataType: TypeJSONB}
	case entity.KindConnection:
		targetType := resolve(f, r)
		mode := f.Connection.IDMode
		if mode == "" {
			mode = targetType.IDMode
		}
		return IDType(mode)
	case entity.KindID:
		return IDType(owner.IDMode)
	default:
		panic(fmt.Sprintf("no column mapping for field %q of kind %q", f.Key, f.Kind))
	}
}

func resolve(f entity.Field, r Resolver) *entity.RootType {
	if f.Connection == nil {
		panic(fmt.Sprintf("connection field %q has no target", f.Key))
	}
	t, ok := r.EntryType(f.Connection.Target)
	if !ok {
		panic(fmt.Sprintf("connection field %q targets unknown entry type %q", f.Key, f.Connection.Target))
	}
	return t
}
