package mysql

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-sql-driver/mysql"

	"github.com/stokaro/schemasync/dbschema/types"
)

func intPtr(i int) *int { return &i }

func TestColumnTypeSQL(t *testing.T) {
	tests := []struct {
		canonical types.ColumnType
		expected  string
	}{
		{types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(26)}, "VARCHAR(26)"},
		{types.ColumnType{DataType: "character varying"}, "VARCHAR(255)"},
		{types.ColumnType{DataType: "text"}, "TEXT"},
		{types.ColumnType{DataType: "integer"}, "INT"},
		{types.ColumnType{DataType: "bigint"}, "BIGINT"},
		{types.ColumnType{DataType: "numeric"}, "DECIMAL(38,10)"},
		{types.ColumnType{DataType: "date"}, "DATE"},
		{types.ColumnType{DataType: "timestamp with time zone"}, "DATETIME(6)"},
		{types.ColumnType{DataType: "boolean"}, "TINYINT(1)"},
		{types.ColumnType{DataType: "jsonb"}, "JSON"},
		{types.ColumnType{DataType: "uuid"}, "CHAR(36)"},
	}

	for _, tt := range tests {
		t.Run(tt.canonical.String(), func(t *testing.T) {
			c := qt.New(t)
			c.Assert(columnTypeSQL(tt.canonical), qt.Equals, tt.expected)
		})
	}
}

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		name       string
		dataType   string
		columnType string
		maxLength  *int
		expected   types.ColumnType
	}{
		{"varchar", "varchar", "varchar(26)", intPtr(26), types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(26)}},
		{"uuid char", "char", "char(36)", intPtr(36), types.ColumnType{DataType: "uuid"}},
		{"plain char", "char", "char(2)", intPtr(2), types.ColumnType{DataType: "character", CharacterMaximumLength: intPtr(2)}},
		{"longtext", "longtext", "longtext", intPtr(4294967295), types.ColumnType{DataType: "text"}},
		{"boolean", "tinyint", "tinyint(1)", nil, types.ColumnType{DataType: "boolean"}},
		{"small int", "tinyint", "tinyint(4)", nil, types.ColumnType{DataType: "integer"}},
		{"int", "int", "int", nil, types.ColumnType{DataType: "integer"}},
		{"decimal", "decimal", "decimal(38,10)", nil, types.ColumnType{DataType: "numeric"}},
		{"datetime", "datetime", "datetime(6)", nil, types.ColumnType{DataType: "timestamp with time zone"}},
		{"json", "json", "json", nil, types.ColumnType{DataType: "jsonb"}},
		{"unknown", "BLOB", "blob", nil, types.ColumnType{DataType: "blob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(canonicalType(tt.dataType, tt.columnType, tt.maxLength), qt.DeepEquals, tt.expected)
		})
	}
}

func TestTypeRoundTrip(t *testing.T) {
	c := qt.New(t)

	// Every canonical type written by the adapter must read back unchanged,
	// otherwise each run would plan the same type change again.
	for _, canonical := range []types.ColumnType{
		{DataType: "character varying", CharacterMaximumLength: intPtr(255)},
		{DataType: "text"},
		{DataType: "integer"},
		{DataType: "bigint"},
		{DataType: "numeric"},
		{DataType: "date"},
		{DataType: "timestamp with time zone"},
		{DataType: "boolean"},
		{DataType: "jsonb"},
		{DataType: "uuid"},
	} {
		ddl := columnTypeSQL(canonical)
		dataType, _, _ := strings.Cut(strings.ToLower(ddl), "(")
		length := canonical.CharacterMaximumLength
		if canonical.DataType == "uuid" {
			length = intPtr(36)
		}
		got := canonicalType(dataType, ddl, length)
		c.Assert(got, qt.DeepEquals, canonical, qt.Commentf("ddl %s", ddl))
	}
}

func TestAddColumnSQL(t *testing.T) {
	tests := []struct {
		name     string
		column   types.ColumnDefinition
		expected string
	}{
		{
			name:     "nullable varchar",
			column:   types.ColumnDefinition{Name: "title", Type: types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(255)}, Nullable: true},
			expected: "ALTER TABLE `product` ADD COLUMN `title` VARCHAR(255) NULL",
		},
		{
			name:     "required unique",
			column:   types.ColumnDefinition{Name: "sku", Type: types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(64)}, Unique: true},
			expected: "ALTER TABLE `product` ADD COLUMN `sku` VARCHAR(64) NOT NULL, ADD CONSTRAINT `product_sku_key` UNIQUE (`sku`)",
		},
		{
			name:     "boolean default",
			column:   types.ColumnDefinition{Name: "active", Type: types.ColumnType{DataType: "boolean"}, Default: false},
			expected: "ALTER TABLE `product` ADD COLUMN `active` TINYINT(1) NOT NULL DEFAULT FALSE",
		},
		{
			name:     "text default is an expression",
			column:   types.ColumnDefinition{Name: "notes", Type: types.ColumnType{DataType: "text"}, Nullable: true, Default: `it's "new"`},
			expected: "ALTER TABLE `product` ADD COLUMN `notes` TEXT NULL DEFAULT ('it''s \"new\"')",
		},
		{
			name:     "date default",
			column:   types.ColumnDefinition{Name: "day", Type: types.ColumnType{DataType: "date"}, Nullable: true, Default: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			expected: "ALTER TABLE `product` ADD COLUMN `day` DATE NULL DEFAULT '2024-01-01'",
		},
		{
			name:     "timestamp default in UTC",
			column:   types.ColumnDefinition{Name: "since", Type: types.ColumnType{DataType: "timestamp with time zone"}, Nullable: true, Default: time.Date(2024, 1, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))},
			expected: "ALTER TABLE `product` ADD COLUMN `since` DATETIME(6) NULL DEFAULT '2024-01-01 10:30:00'",
		},
		{
			name:     "json default",
			column:   types.ColumnDefinition{Name: "tags", Type: types.ColumnType{DataType: "jsonb"}, Nullable: true, Default: map[string]any{"a": 1}},
			expected: "ALTER TABLE `product` ADD COLUMN `tags` JSON NULL DEFAULT ('{\"a\":1}')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			got, err := addColumnSQL("product", tt.column)
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tt.expected)
		})
	}
}

func TestStatements(t *testing.T) {
	c := qt.New(t)

	c.Assert(createTableSQL("product", types.ColumnDefinition{Name: "id", Type: types.ColumnType{DataType: "bigint"}, AutoIncrement: true}),
		qt.Equals, "CREATE TABLE `product` (`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY)")
	c.Assert(createTableSQL("product", types.ColumnDefinition{Name: "id", Type: types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(26)}}),
		qt.Equals, "CREATE TABLE `product` (`id` VARCHAR(26) NOT NULL PRIMARY KEY)")
	c.Assert(modifyColumnSQL("product", "code", "INT", true, ""), qt.Equals, "ALTER TABLE `product` MODIFY COLUMN `code` INT NULL")
	c.Assert(modifyColumnSQL("product", "code", "VARCHAR(32)", false, "'n/a'"), qt.Equals, "ALTER TABLE `product` MODIFY COLUMN `code` VARCHAR(32) NOT NULL DEFAULT 'n/a'")
	c.Assert(dropConstraintSQL("product", "product_category_fk", types.ConstraintForeignKey), qt.Equals, "ALTER TABLE `product` DROP FOREIGN KEY `product_category_fk`")
	c.Assert(dropConstraintSQL("product", "product_sku_key", types.ConstraintUnique), qt.Equals, "ALTER TABLE `product` DROP INDEX `product_sku_key`")
	c.Assert(dropConstraintSQL("product", "PRIMARY", types.ConstraintPrimaryKey), qt.Equals, "ALTER TABLE `product` DROP PRIMARY KEY")
	c.Assert(addForeignKeySQL(types.ForeignKeySpec{
		ConstraintName:    "child_product_variant_parent_fk",
		TableName:         "child_product_variant",
		ColumnName:        "parent",
		ForeignTableName:  "product",
		ForeignColumnName: "id",
		OnDelete:          "CASCADE",
	}), qt.Equals, "ALTER TABLE `child_product_variant` ADD CONSTRAINT `child_product_variant_parent_fk` FOREIGN KEY (`parent`) REFERENCES `product` (`id`) ON DELETE CASCADE")
	c.Assert(createIndexSQL(types.IndexSpec{Name: "settings_settingsType_idx", TableName: "settings", Columns: []string{"settingsType"}}),
		qt.Equals, "CREATE INDEX `settings_settingsType_idx` ON `settings` (`settingsType`)")
}

func TestRestateDefault(t *testing.T) {
	tests := []struct {
		name     string
		mariadb  bool
		def      sql.NullString
		extra    string
		expected string
	}{
		{name: "mysql no default", def: sql.NullString{}, expected: ""},
		{name: "mysql literal", def: sql.NullString{String: "it's", Valid: true}, expected: `'it''s'`},
		{name: "mysql number", def: sql.NullString{String: "0", Valid: true}, expected: `'0'`},
		{
			name:     "mysql expression",
			def:      sql.NullString{String: `_utf8mb4\'[\"a\"]\'`, Valid: true},
			extra:    "DEFAULT_GENERATED",
			expected: `(_utf8mb4'[\"a\"]')`,
		},
		{name: "mariadb null", mariadb: true, def: sql.NullString{String: "NULL", Valid: true}, expected: ""},
		{name: "mariadb literal", mariadb: true, def: sql.NullString{String: "'n/a'", Valid: true}, expected: "'n/a'"},
		{name: "mariadb number", mariadb: true, def: sql.NullString{String: "10", Valid: true}, expected: "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(restateDefault(tt.mariadb, tt.def, tt.extra), qt.Equals, tt.expected)
		})
	}
}

func TestQuoting(t *testing.T) {
	c := qt.New(t)
	c.Assert(quoteIdentifier("we`ird"), qt.Equals, "`we``ird`")
	c.Assert(quoteLiteral(`a\b'c`), qt.Equals, `'a\\b''c'`)
	c.Assert(likePrefix("child_product_"), qt.Equals, `child\_product\_%`)
}

func TestEnrichError(t *testing.T) {
	c := qt.New(t)

	plain := errors.New("bad connection")
	c.Assert(enrichError(plain), qt.Equals, plain)

	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'A-1' for key 'product_sku_key'"}
	err := enrichError(dup)
	c.Assert(err, qt.ErrorMatches, `Error 1062.*Duplicate entry.*: existing rows hold duplicate values`)
	c.Assert(errors.Is(err, dup), qt.IsTrue)

	other := &mysql.MySQLError{Number: 1146, Message: "Table 'app.x' doesn't exist"}
	c.Assert(enrichError(other), qt.Equals, error(other))
}
