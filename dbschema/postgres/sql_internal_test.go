package postgres

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stokaro/schemasync/dbschema/types"
)

func intPtr(i int) *int { return &i }

func TestCreateTableSQL(t *testing.T) {
	tests := []struct {
		name     string
		id       types.ColumnDefinition
		expected string
	}{
		{
			name:     "ulid id",
			id:       types.ColumnDefinition{Name: "id", Type: types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(26)}},
			expected: `CREATE TABLE "product" ("id" character varying(26) PRIMARY KEY)`,
		},
		{
			name:     "uuid id",
			id:       types.ColumnDefinition{Name: "id", Type: types.ColumnType{DataType: "uuid"}},
			expected: `CREATE TABLE "product" ("id" uuid PRIMARY KEY)`,
		},
		{
			name:     "serial id",
			id:       types.ColumnDefinition{Name: "id", Type: types.ColumnType{DataType: "bigint"}, AutoIncrement: true},
			expected: `CREATE TABLE "product" ("id" bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			c.Assert(createTableSQL("product", tt.id), qt.Equals, tt.expected)
		})
	}
}

func TestCommentSQL(t *testing.T) {
	c := qt.New(t)
	c.Assert(commentSQL("product", "Sellable item's record"), qt.Equals, `COMMENT ON TABLE "product" IS 'Sellable item''s record'`)
	c.Assert(commentSQL("product", ""), qt.Equals, `COMMENT ON TABLE "product" IS NULL`)
}

func TestAddColumnSQL(t *testing.T) {
	tests := []struct {
		name     string
		column   types.ColumnDefinition
		expected string
		errMatch string
	}{
		{
			name:     "nullable varchar",
			column:   types.ColumnDefinition{Name: "title", Type: types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(255)}, Nullable: true},
			expected: `ALTER TABLE "product" ADD COLUMN "title" character varying(255)`,
		},
		{
			name:     "required unique",
			column:   types.ColumnDefinition{Name: "sku", Type: types.ColumnType{DataType: "text"}, Unique: true},
			expected: `ALTER TABLE "product" ADD COLUMN "sku" text NOT NULL CONSTRAINT "product_sku_key" UNIQUE`,
		},
		{
			name:     "boolean default",
			column:   types.ColumnDefinition{Name: "active", Type: types.ColumnType{DataType: "boolean"}, Default: true},
			expected: `ALTER TABLE "product" ADD COLUMN "active" boolean NOT NULL DEFAULT TRUE`,
		},
		{
			name:     "numeric default",
			column:   types.ColumnDefinition{Name: "price", Type: types.ColumnType{DataType: "numeric"}, Nullable: true, Default: 9.5},
			expected: `ALTER TABLE "product" ADD COLUMN "price" numeric DEFAULT 9.5`,
		},
		{
			name:     "string default is quoted",
			column:   types.ColumnDefinition{Name: "state", Type: types.ColumnType{DataType: "text"}, Nullable: true, Default: "it's new"},
			expected: `ALTER TABLE "product" ADD COLUMN "state" text DEFAULT 'it''s new'`,
		},
		{
			name:     "jsonb default",
			column:   types.ColumnDefinition{Name: "tags", Type: types.ColumnType{DataType: "jsonb"}, Nullable: true, Default: []any{"a"}},
			expected: `ALTER TABLE "product" ADD COLUMN "tags" jsonb DEFAULT '["a"]'::jsonb`,
		},
		{
			name:     "date default",
			column:   types.ColumnDefinition{Name: "day", Type: types.ColumnType{DataType: "date"}, Nullable: true, Default: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			expected: `ALTER TABLE "product" ADD COLUMN "day" date DEFAULT '2024-01-01'`,
		},
		{
			name:     "timestamp default",
			column:   types.ColumnDefinition{Name: "since", Type: types.ColumnType{DataType: "timestamp with time zone"}, Nullable: true, Default: time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
			expected: `ALTER TABLE "product" ADD COLUMN "since" timestamp with time zone DEFAULT '2024-01-01T10:30:00Z'`,
		},
		{
			name:     "unsupported default",
			column:   types.ColumnDefinition{Name: "weird", Type: types.ColumnType{DataType: "text"}, Default: struct{}{}},
			errMatch: `invalid default for column product.weird: unsupported default value .*`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			got, err := addColumnSQL("product", tt.column)
			if tt.errMatch != "" {
				c.Assert(err, qt.ErrorMatches, tt.errMatch)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tt.expected)
		})
	}
}

func TestAlterStatements(t *testing.T) {
	c := qt.New(t)

	c.Assert(alterTypeSQL("product", "code", types.ColumnType{DataType: "integer"}), qt.Equals,
		`ALTER TABLE "product" ALTER COLUMN "code" TYPE integer USING "code"::integer`)
	c.Assert(setNullSQL("product", "code", true), qt.Equals, `ALTER TABLE "product" ALTER COLUMN "code" DROP NOT NULL`)
	c.Assert(setNullSQL("product", "code", false), qt.Equals, `ALTER TABLE "product" ALTER COLUMN "code" SET NOT NULL`)
}

func TestAddForeignKeySQL(t *testing.T) {
	c := qt.New(t)

	fk := types.ForeignKeySpec{
		ConstraintName:    "product_category_fk",
		TableName:         "product",
		ColumnName:        "category",
		ForeignTableName:  "category",
		ForeignColumnName: "id",
	}
	c.Assert(addForeignKeySQL(fk), qt.Equals,
		`ALTER TABLE "product" ADD CONSTRAINT "product_category_fk" FOREIGN KEY ("category") REFERENCES "category" ("id")`)

	fk.OnDelete = "CASCADE"
	c.Assert(addForeignKeySQL(fk), qt.Equals,
		`ALTER TABLE "product" ADD CONSTRAINT "product_category_fk" FOREIGN KEY ("category") REFERENCES "category" ("id") ON DELETE CASCADE`)
}

func TestCreateIndexSQL(t *testing.T) {
	c := qt.New(t)

	c.Assert(createIndexSQL(types.IndexSpec{Name: "settings_settingsType_idx", TableName: "settings", Columns: []string{"settingsType"}}),
		qt.Equals, `CREATE INDEX "settings_settingsType_idx" ON "settings" ("settingsType")`)
	c.Assert(createIndexSQL(types.IndexSpec{Name: "x_idx", TableName: "t", Columns: []string{"a", "b"}, Unique: true}),
		qt.Equals, `CREATE UNIQUE INDEX "x_idx" ON "t" ("a", "b")`)
}

func TestLikePrefix(t *testing.T) {
	c := qt.New(t)
	c.Assert(likePrefix("child_product_"), qt.Equals, `child\_product\_%`)
	c.Assert(likePrefix("50%"), qt.Equals, `50\%%`)
}

func TestSingleColumnConstraints(t *testing.T) {
	c := qt.New(t)

	valid := func(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
	rows := []constraintRow{
		{name: "product_category_fk", typ: "FOREIGN KEY", column: "category", foreignTable: valid("category"), foreignColumn: valid("id"), deleteRule: valid("NO ACTION")},
		{name: "product_pkey", typ: "PRIMARY KEY", column: "id"},
		{name: "product_sku_region_key", typ: "UNIQUE", column: "sku"},
		{name: "product_sku_region_key", typ: "UNIQUE", column: "region"},
		{name: "product_code_key", typ: "UNIQUE", column: "code"},
	}

	got := singleColumnConstraints("product", rows)

	category, id, rule := "category", "id", "NO ACTION"
	c.Assert(got, qt.DeepEquals, []types.DBConstraint{
		{Name: "product_category_fk", TableName: "product", Type: "FOREIGN KEY", ColumnName: "category", ForeignTable: &category, ForeignColumn: &id, DeleteRule: &rule},
		{Name: "product_pkey", TableName: "product", Type: "PRIMARY KEY", ColumnName: "id"},
		{Name: "product_code_key", TableName: "product", Type: "UNIQUE", ColumnName: "code"},
	})
}

func TestEnrichError(t *testing.T) {
	c := qt.New(t)

	plain := errors.New("connection reset")
	c.Assert(enrichError(plain), qt.Equals, plain)

	pgErr := &pgconn.PgError{
		Severity: "ERROR",
		Code:     "23505",
		Message:  `could not create unique index "product_sku_key"`,
		Detail:   "Key (sku)=(A-1) is duplicated.",
	}
	err := enrichError(pgErr)
	c.Assert(err, qt.ErrorMatches, `.*could not create unique index "product_sku_key".*: Key \(sku\)=\(A-1\) is duplicated\.`)
	c.Assert(errors.Is(err, pgErr), qt.IsTrue)

	hinted := &pgconn.PgError{Message: "column cannot be cast", Hint: `You might need to specify "USING code::integer".`}
	c.Assert(enrichError(hinted), qt.ErrorMatches, `.*column cannot be cast.* \(hint: You might need .*\)`)
}
