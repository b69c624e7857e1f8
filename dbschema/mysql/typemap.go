package mysql

import (
	"fmt"
	"strings"

	"github.com/stokaro/schemasync/dbschema/types"
)

// uuidLength is the width of a textual UUID; MySQL has no native uuid type.
const uuidLength = 36

// columnTypeSQL renders a canonical column type in MySQL DDL.
func columnTypeSQL(t types.ColumnType) string {
	switch t.DataType {
	case "character varying":
		n := 255
		if t.CharacterMaximumLength != nil {
			n = *t.CharacterMaximumLength
		}
		return fmt.Sprintf("VARCHAR(%d)", n)
	case "character":
		n := 1
		if t.CharacterMaximumLength != nil {
			n = *t.CharacterMaximumLength
		}
		return fmt.Sprintf("CHAR(%d)", n)
	case "text":
		return "TEXT"
	case "integer":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "numeric":
		return "DECIMAL(38,10)"
	case "date":
		return "DATE"
	case "timestamp with time zone":
		return "DATETIME(6)"
	case "boolean":
		return "TINYINT(1)"
	case "jsonb":
		return "JSON"
	case "uuid":
		return fmt.Sprintf("CHAR(%d)", uuidLength)
	default:
		return strings.ToUpper(t.String())
	}
}

// canonicalType maps catalog information back onto the canonical spelling.
// dataType is INFORMATION_SCHEMA.COLUMNS.DATA_TYPE and columnType the full
// COLUMN_TYPE, e.g. "tinyint(1)".
func canonicalType(dataType, columnType string, maxLength *int) types.ColumnType {
	switch strings.ToLower(dataType) {
	case "varchar":
		return types.ColumnType{DataType: "character varying", CharacterMaximumLength: maxLength}
	case "char":
		if maxLength != nil && *maxLength == uuidLength {
			return types.ColumnType{DataType: "uuid"}
		}
		return types.ColumnType{DataType: "character", CharacterMaximumLength: maxLength}
	case "text", "tinytext", "mediumtext", "longtext":
		return types.ColumnType{DataType: "text"}
	case "int", "integer", "mediumint", "smallint":
		return types.ColumnType{DataType: "integer"}
	case "tinyint":
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			return types.ColumnType{DataType: "boolean"}
		}
		return types.ColumnType{DataType: "integer"}
	case "bigint":
		return types.ColumnType{DataType: "bigint"}
	case "decimal", "numeric":
		return types.ColumnType{DataType: "numeric"}
	case "date":
		return types.ColumnType{DataType: "date"}
	case "datetime", "timestamp":
		return types.ColumnType{DataType: "timestamp with time zone"}
	case "json":
		return types.ColumnType{DataType: "jsonb"}
	default:
		return types.ColumnType{DataType: strings.ToLower(dataType), CharacterMaximumLength: maxLength}
	}
}

// literalDefaultAllowed reports whether MySQL accepts a plain literal default
// for the type. TEXT and JSON columns need an expression default.
func literalDefaultAllowed(t types.ColumnType) bool {
	switch t.DataType {
	case "text", "jsonb":
		return false
	default:
		return true
	}
}
