package memdb_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemasync/dbschema/memdb"
	"github.com/stokaro/schemasync/dbschema/types"
)

func intPtr(i int) *int { return &i }

var varchar26 = types.ColumnType{DataType: "character varying", CharacterMaximumLength: intPtr(26)}

func TestCreateTableAndColumns(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db := memdb.New()

	c.Assert(db.CreateTable(ctx, "product", types.ColumnDefinition{Name: "id", Type: varchar26}), qt.IsNil)
	c.Assert(db.CreateTable(ctx, "product", types.ColumnDefinition{Name: "id", Type: varchar26}), qt.ErrorMatches, `relation "product" already exists`)
	c.Assert(db.AddColumn(ctx, "product", types.ColumnDefinition{Name: "sku", Type: types.ColumnType{DataType: "text"}, Unique: true}), qt.IsNil)
	c.Assert(db.AddColumn(ctx, "product", types.ColumnDefinition{Name: "sku", Type: types.ColumnType{DataType: "text"}}), qt.ErrorMatches, `column "sku" of relation "product" already exists`)

	columns, err := db.GetTableColumns(ctx, "product")
	c.Assert(err, qt.IsNil)
	c.Assert(columns, qt.HasLen, 2)
	c.Assert(columns[0].Name, qt.Equals, "id")
	c.Assert(columns[0].Nullable(), qt.IsFalse)
	c.Assert(columns[1].Name, qt.Equals, "sku")
	c.Assert(columns[1].OrdinalPosition, qt.Equals, 2)

	constraints, err := db.GetTableConstraints(ctx, "product")
	c.Assert(err, qt.IsNil)
	c.Assert(constraints, qt.DeepEquals, []types.DBConstraint{
		{Name: "product_pkey", TableName: "product", Type: types.ConstraintPrimaryKey, ColumnName: "id"},
		{Name: "product_sku_key", TableName: "product", Type: types.ConstraintUnique, ColumnName: "sku"},
	})

	c.Assert(db.RemoveColumn(ctx, "product", "sku"), qt.IsNil)
	constraints, err = db.GetTableConstraints(ctx, "product")
	c.Assert(err, qt.IsNil)
	c.Assert(constraints, qt.HasLen, 1)

	c.Assert(db.Writes(), qt.DeepEquals, []string{
		"CreateTable product character varying(26)",
		"AddColumn product.sku text",
		"RemoveColumn product.sku",
	})
}

func TestForeignKeys(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db := memdb.New()
	db.SeedColumn("product", types.DBColumn{Name: "category", DataType: "character varying", CharacterMaxLength: intPtr(26), IsNullable: "YES"})

	fk := types.ForeignKeySpec{ConstraintName: "product_category_fk", TableName: "product", ColumnName: "category", ForeignTableName: "category", ForeignColumnName: "id"}
	c.Assert(db.AddForeignKey(ctx, fk), qt.ErrorMatches, `relation "category" does not exist`)

	c.Assert(db.CreateTable(ctx, "category", types.ColumnDefinition{Name: "id", Type: varchar26}), qt.IsNil)
	c.Assert(db.AddForeignKey(ctx, fk), qt.IsNil)

	constraints, err := db.GetTableConstraints(ctx, "product")
	c.Assert(err, qt.IsNil)
	c.Assert(constraints, qt.HasLen, 1)
	c.Assert(*constraints[0].ForeignTable, qt.Equals, "category")
	c.Assert(constraints[0].DeleteRule, qt.IsNil)

	c.Assert(db.DropConstraint(ctx, "product", "product_category_fk"), qt.IsNil)
	constraints, err = db.GetTableConstraints(ctx, "product")
	c.Assert(err, qt.IsNil)
	c.Assert(constraints, qt.HasLen, 0)
}

func TestListTables(t *testing.T) {
	c := qt.New(t)
	db := memdb.New()
	for _, name := range []string{"child_product_variant", "product", "child_product_line_part", "child_productx"} {
		db.SeedComment(name, "")
	}

	tables, err := db.ListTables(context.Background(), "child_product_")
	c.Assert(err, qt.IsNil)
	c.Assert(tables, qt.DeepEquals, []string{"child_product_line_part", "child_product_variant"})
}

func TestFailOnIsOneShot(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db := memdb.New()
	boom := errors.New("boom")
	db.FailOn("CreateTable", "product", boom)

	err := db.CreateTable(ctx, "product", types.ColumnDefinition{Name: "id", Type: varchar26})
	c.Assert(err, qt.Equals, boom)
	exists, err := db.TableExists(ctx, "product")
	c.Assert(err, qt.IsNil)
	c.Assert(exists, qt.IsFalse)

	c.Assert(db.CreateTable(ctx, "product", types.ColumnDefinition{Name: "id", Type: varchar26}), qt.IsNil)
	c.Assert(db.Writes(), qt.HasLen, 1)
}

func TestSettingsRows(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db := memdb.New()
	db.SeedSettingsRow("settings", types.SettingsRow{ID: "01A", SettingsType: "siteSettings", Field: "title", Value: json.RawMessage(`"Shop"`)})
	db.SeedSettingsRow("settings", types.SettingsRow{ID: "01B", SettingsType: "mailSettings", Field: "host", Value: json.RawMessage(`"smtp"`)})

	c.Assert(db.InsertSettingsRow(ctx, "settings", types.SettingsRow{ID: "01C", SettingsType: "siteSettings", Field: "maintenanceMode", Value: json.RawMessage(`false`)}), qt.IsNil)
	c.Assert(db.UpdateSettingsRow(ctx, "settings", "01A", json.RawMessage(`"Store"`)), qt.IsNil)
	c.Assert(db.UpdateSettingsRow(ctx, "settings", "missing", json.RawMessage(`1`)), qt.ErrorMatches, `settings row "missing" not found`)

	rows, err := db.SelectSettingsRows(ctx, "settings", "siteSettings")
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 2)
	c.Assert(string(rows[0].Value), qt.Equals, `"Store"`)

	c.Assert(db.DeleteSettingsRow(ctx, "settings", "01B"), qt.IsNil)
	rows, err = db.SelectSettingsRows(ctx, "settings", "mailSettings")
	c.Assert(err, qt.IsNil)
	c.Assert(rows, qt.HasLen, 0)

	c.Assert(db.Writes(), qt.DeepEquals, []string{
		"InsertSettingsRow settings siteSettings.maintenanceMode=false",
		`UpdateSettingsRow settings 01A="Store"`,
		"DeleteSettingsRow settings 01B",
	})

	_, err = db.SelectSettingsRows(ctx, "nope", "siteSettings")
	c.Assert(err, qt.ErrorMatches, `relation "nope" does not exist`)
}

func TestSelectSettingsRows_MissingColumn(t *testing.T) {
	c := qt.New(t)
	db := memdb.New()
	db.SeedColumn("settings", types.DBColumn{Name: "id", DataType: "character varying", IsNullable: "NO"})
	db.SeedColumn("settings", types.DBColumn{Name: "settingsType", DataType: "character varying", IsNullable: "NO"})

	_, err := db.SelectSettingsRows(context.Background(), "settings", "siteSettings")
	c.Assert(err, qt.ErrorMatches, `column "field" of table "settings" does not exist`)
}
