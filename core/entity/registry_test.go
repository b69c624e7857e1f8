package entity_test

import (
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemasync/core/entity"
)

func categoryType() entity.RootType {
	return entity.RootType{
		Name:       "category",
		TitleField: "title",
		Fields: []entity.Field{
			{Key: "title", Kind: entity.KindData, Required: true},
		},
	}
}

func TestNewRegistry_Valid(t *testing.T) {
	c := qt.New(t)

	product := entity.RootType{
		Name:  "product",
		Table: "products",
		Fields: []entity.Field{
			{Key: "id", Kind: entity.KindID},
			{Key: "name", Kind: entity.KindText},
			{Key: "category", Kind: entity.KindConnection, Connection: &entity.Connection{Target: "category"}},
		},
		Children: []entity.ChildType{
			{Name: "variant", Fields: []entity.Field{{Key: "color", Kind: entity.KindData}}},
		},
	}
	settings := entity.SettingsType{
		Name:   "siteSettings",
		Fields: []entity.Field{{Key: "maintenanceMode", Kind: entity.KindBoolean, Default: false}},
	}

	reg, err := entity.NewRegistry([]entity.RootType{categoryType(), product}, []entity.SettingsType{settings})
	c.Assert(err, qt.IsNil)
	c.Assert(reg.EntryTypes(), qt.HasLen, 2)
	c.Assert(reg.SettingsTypes(), qt.HasLen, 1)

	got, ok := reg.EntryType("product")
	c.Assert(ok, qt.IsTrue)
	c.Assert(got.TableName(), qt.Equals, "products")
	c.Assert(got.IDMode, qt.Equals, entity.IDModeULID)
	c.Assert(got.ChildTableName("variant"), qt.Equals, "child_product_variant")

	cat, ok := reg.EntryType("category")
	c.Assert(ok, qt.IsTrue)
	c.Assert(cat.TableName(), qt.Equals, "category")

	_, ok = reg.EntryType("missing")
	c.Assert(ok, qt.IsFalse)
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		entries  []entity.RootType
		settings []entity.SettingsType
		errMatch string
	}{
		{
			name:     "duplicate entry type",
			entries:  []entity.RootType{categoryType(), categoryType()},
			errMatch: `(?s).*entry type "category" declared more than once.*`,
		},
		{
			name: "unknown connection target",
			entries: []entity.RootType{{
				Name:   "product",
				Fields: []entity.Field{{Key: "category", Kind: entity.KindConnection, Connection: &entity.Connection{Target: "nope"}}},
			}},
			errMatch: `(?s).*targets unknown entry type "nope".*`,
		},
		{
			name: "connection without target",
			entries: []entity.RootType{{
				Name:   "product",
				Fields: []entity.Field{{Key: "category", Kind: entity.KindConnection}},
			}},
			errMatch: `(?s).*connection field "category" has no target.*`,
		},
		{
			name: "title field not declared",
			entries: []entity.RootType{{
				Name:       "product",
				TitleField: "name",
			}},
			errMatch: `(?s).*title field "name" is not declared.*`,
		},
		{
			name: "duplicate field key",
			entries: []entity.RootType{{
				Name: "product",
				Fields: []entity.Field{
					{Key: "name", Kind: entity.KindText},
					{Key: "name", Kind: entity.KindData},
				},
			}},
			errMatch: `(?s).*field "name" declared more than once.*`,
		},
		{
			name: "reserved parent key in child",
			entries: []entity.RootType{{
				Name: "product",
				Children: []entity.ChildType{{
					Name:   "variant",
					Fields: []entity.Field{{Key: "parent", Kind: entity.KindText}},
				}},
			}},
			errMatch: `(?s).*field key "parent" is reserved.*`,
		},
		{
			name: "title suffix in key",
			entries: []entity.RootType{{
				Name:   "product",
				Fields: []entity.Field{{Key: "name#", Kind: entity.KindText}},
			}},
			errMatch: `(?s).*must not contain "#".*`,
		},
		{
			name: "unknown kind",
			entries: []entity.RootType{{
				Name:   "product",
				Fields: []entity.Field{{Key: "name", Kind: "blob"}},
			}},
			errMatch: `(?s).*unknown kind "blob".*`,
		},
		{
			name: "fetch through non-connection",
			entries: []entity.RootType{{
				Name: "product",
				Fields: []entity.Field{
					{Key: "name", Kind: entity.KindText},
					{Key: "copy", Kind: entity.KindText, Fetch: &entity.FetchField{Connection: "name", Field: "x"}},
				},
			}},
			errMatch: `(?s).*fetches through "name" which is not a connection field.*`,
		},
		{
			name: "connection in settings",
			settings: []entity.SettingsType{{
				Name:   "siteSettings",
				Fields: []entity.Field{{Key: "home", Kind: entity.KindConnection, Connection: &entity.Connection{Target: "x"}}},
			}},
			errMatch: `(?s).*kind connection is not allowed in settings.*`,
		},
		{
			name:     "duplicate settings type",
			settings: []entity.SettingsType{{Name: "site"}, {Name: "site"}},
			errMatch: `(?s).*settings type "site" declared more than once.*`,
		},
		{
			name: "root table shadows a child table",
			entries: []entity.RootType{
				{Name: "product", Children: []entity.ChildType{{Name: "variant"}}},
				{Name: "child_product_variant", Fields: []entity.Field{{Key: "size", Kind: entity.KindData}}},
			},
			errMatch: `(?s).*child type "product.variant" uses table "child_product_variant" already used by "child_product_variant".*`,
		},
		{
			name: "explicit table shadows a child table",
			entries: []entity.RootType{
				{Name: "variantArchive", Table: "child_product_variant"},
				{Name: "product", Children: []entity.ChildType{{Name: "variant"}}},
			},
			errMatch: `(?s).*child type "product.variant" uses table "child_product_variant" already used by "variantArchive".*`,
		},
		{
			name: "default does not fit kind",
			entries: []entity.RootType{{
				Name:   "product",
				Fields: []entity.Field{{Key: "stock", Kind: entity.KindInt, Default: "ten"}},
			}},
			errMatch: `(?s).*field "stock": default ten \(string\) does not fit kind int.*`,
		},
		{
			name: "settings default does not fit kind",
			settings: []entity.SettingsType{{
				Name:   "siteSettings",
				Fields: []entity.Field{{Key: "maintenanceMode", Kind: entity.KindBoolean, Default: "no"}},
			}},
			errMatch: `(?s).*field "maintenanceMode": default no \(string\) does not fit kind boolean.*`,
		},
		{
			name: "bad id mode",
			entries: []entity.RootType{{
				Name:   "product",
				IDMode: "snowflake",
			}},
			errMatch: `(?s).*unknown id mode "snowflake".*`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			reg, err := entity.NewRegistry(tt.entries, tt.settings)
			c.Assert(err, qt.ErrorMatches, tt.errMatch)
			c.Assert(reg, qt.IsNil)
		})
	}
}

func TestFieldKind_AcceptsDefault(t *testing.T) {
	tests := []struct {
		kind     entity.FieldKind
		value    any
		expected bool
	}{
		{kind: entity.KindData, value: nil, expected: true},
		{kind: entity.KindData, value: "x", expected: true},
		{kind: entity.KindData, value: 1, expected: false},
		{kind: entity.KindInt, value: 20, expected: true},
		{kind: entity.KindInt, value: int64(20), expected: true},
		{kind: entity.KindInt, value: 2.5, expected: false},
		{kind: entity.KindDecimal, value: "12.50", expected: true},
		{kind: entity.KindCurrency, value: "cheap", expected: false},
		{kind: entity.KindBoolean, value: false, expected: true},
		{kind: entity.KindDate, value: "2024-01-01", expected: true},
		{kind: entity.KindTimestamp, value: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), expected: true},
		{kind: entity.KindText, value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), expected: false},
		{kind: entity.KindList, value: []any{"a"}, expected: true},
		{kind: entity.KindMultiChoice, value: "a", expected: false},
		{kind: entity.KindJSON, value: map[string]any{"a": 1}, expected: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.kind, tt.value), func(t *testing.T) {
			c := qt.New(t)
			c.Assert(tt.kind.AcceptsDefault(tt.value), qt.Equals, tt.expected)
		})
	}
}

func TestParseFieldKind(t *testing.T) {
	c := qt.New(t)

	for _, k := range entity.AllKinds() {
		got, err := entity.ParseFieldKind(string(k))
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, k)
	}

	got, err := entity.ParseFieldKind("Multi_Choice")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, entity.KindMultiChoice)

	_, err = entity.ParseFieldKind("blob")
	c.Assert(err, qt.ErrorMatches, `unknown field kind "blob"`)
}

func TestIsTitleColumn(t *testing.T) {
	c := qt.New(t)
	c.Assert(entity.IsTitleColumn("category#"), qt.IsTrue)
	c.Assert(entity.IsTitleColumn("category"), qt.IsFalse)
}
