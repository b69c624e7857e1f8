package compare

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/stokaro/schemasync/dbschema/types"
)

var typeAliases = map[string]string{
	"varchar":                     "character varying",
	"character varying":           "character varying",
	"char":                        "character",
	"bpchar":                      "character",
	"character":                   "character",
	"int":                         "integer",
	"int4":                        "integer",
	"integer":                     "integer",
	"int8":                        "bigint",
	"bigint":                      "bigint",
	"int2":                        "smallint",
	"smallint":                    "smallint",
	"bool":                        "boolean",
	"boolean":                     "boolean",
	"decimal":                     "numeric",
	"numeric":                     "numeric",
	"float8":                      "double precision",
	"double precision":            "double precision",
	"timestamptz":                 "timestamp with time zone",
	"timestamp with time zone":    "timestamp with time zone",
	"timestamp":                   "timestamp without time zone",
	"timestamp without time zone": "timestamp without time zone",
}

var lengthSuffix = regexp.MustCompile(`^(.*?)\s*\((\d+)\)$`)

// NormalizeType brings a column type to its canonical spelling. A length written
// inline ("varchar(255)") is split into CharacterMaximumLength.
func NormalizeType(t types.ColumnType) types.ColumnType {
	name := strings.ToLower(strings.TrimSpace(t.DataType))
	length := t.CharacterMaximumLength

	if m := lengthSuffix.FindStringSubmatch(name); m != nil {
		name = m[1]
		if length == nil {
			if n, err := strconv.Atoi(m[2]); err == nil {
				length = &n
			}
		}
	}
	if canonical, ok := typeAliases[name]; ok {
		name = canonical
	}
	// Only string types carry a meaningful length.
	if name != "character varying" && name != "character" {
		length = nil
	}
	return types.ColumnType{DataType: name, CharacterMaximumLength: length}
}

// SameType reports whether two column types are physically identical.
func SameType(a, b types.ColumnType) bool {
	na, nb := NormalizeType(a), NormalizeType(b)
	if na.DataType != nb.DataType {
		return false
	}
	switch {
	case na.CharacterMaximumLength == nil && nb.CharacterMaximumLength == nil:
		return true
	case na.CharacterMaximumLength == nil || nb.CharacterMaximumLength == nil:
		return false
	default:
		return *na.CharacterMaximumLength == *nb.CharacterMaximumLength
	}
}
