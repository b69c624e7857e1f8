package entity_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/schemasync/core/entity"
)

const yamlDecl = `
entries:
  - name: category
    titleField: title
    fields:
      - key: title
        kind: data
        required: true
  - name: product
    description: Products for sale
    idMode: uuid
    fields:
      - key: name
        kind: text
        required: true
      - key: price
        kind: decimal
        default: 0
      - key: category
        kind: connection
        connection:
          target: category
    children:
      - name: variant
        fields:
          - key: color
            kind: data
            maxLength: 32
settings:
  - name: siteSettings
    fields:
      - key: maintenanceMode
        kind: boolean
        default: false
`

const tomlDecl = `
[[entries]]
name = "category"
titleField = "title"

  [[entries.fields]]
  key = "title"
  kind = "data"
  required = true

[[settings]]
name = "siteSettings"

  [[settings.fields]]
  key = "maintenanceMode"
  kind = "boolean"
  default = false

  [[settings.fields]]
  key = "pageSize"
  kind = "int"
  default = 20
`

func TestLoad_YAML(t *testing.T) {
	c := qt.New(t)

	reg, err := entity.Load([]byte(yamlDecl), entity.FormatYAML)
	c.Assert(err, qt.IsNil)

	product, ok := reg.EntryType("product")
	c.Assert(ok, qt.IsTrue)
	c.Assert(product.Description, qt.Equals, "Products for sale")
	c.Assert(product.IDMode, qt.Equals, entity.IDModeUUID)
	c.Assert(product.Fields, qt.HasLen, 3)

	cat, ok := product.Field("category")
	c.Assert(ok, qt.IsTrue)
	c.Assert(cat.Kind, qt.Equals, entity.KindConnection)
	c.Assert(cat.Connection, qt.DeepEquals, &entity.Connection{Target: "category"})
	c.Assert(cat.Label, qt.Equals, "category")

	c.Assert(product.Children, qt.HasLen, 1)
	c.Assert(product.Children[0].Fields[0].MaxLength, qt.Equals, 32)

	settings := reg.SettingsTypes()
	c.Assert(settings, qt.HasLen, 1)
	mm, ok := settings[0].Field("maintenanceMode")
	c.Assert(ok, qt.IsTrue)
	c.Assert(mm.Default, qt.Equals, false)
}

func TestLoad_TOML(t *testing.T) {
	c := qt.New(t)

	reg, err := entity.Load([]byte(tomlDecl), entity.FormatTOML)
	c.Assert(err, qt.IsNil)
	c.Assert(reg.EntryTypes(), qt.HasLen, 1)

	s := reg.SettingsTypes()[0]
	size, ok := s.Field("pageSize")
	c.Assert(ok, qt.IsTrue)
	c.Assert(size.Default, qt.Equals, int64(20))
}

func TestLoad_DateDefaults(t *testing.T) {
	yamlDoc := `
entries:
  - name: event
    fields:
      - key: day
        kind: date
        default: 2024-01-01
      - key: startsAt
        kind: timestamp
        default: 2024-01-01T10:30:00Z
      - key: code
        kind: data
        default: 2024-01-01
`
	tomlDoc := `
[[entries]]
name = "event"

[[entries.fields]]
key = "day"
kind = "date"
default = 2024-01-01

[[entries.fields]]
key = "startsAt"
kind = "timestamp"
default = 2024-01-01T10:30:00Z

[[entries.fields]]
key = "code"
kind = "data"
default = 2024-01-01
`
	tests := []struct {
		name   string
		doc    string
		format string
	}{
		{name: "yaml", doc: yamlDoc, format: entity.FormatYAML},
		{name: "toml", doc: tomlDoc, format: entity.FormatTOML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)

			reg, err := entity.Load([]byte(tt.doc), tt.format)
			c.Assert(err, qt.IsNil)
			event, ok := reg.EntryType("event")
			c.Assert(ok, qt.IsTrue)

			day, _ := event.Field("day")
			c.Assert(day.Default, qt.Equals, "2024-01-01")
			startsAt, _ := event.Field("startsAt")
			c.Assert(startsAt.Default, qt.Equals, "2024-01-01T10:30:00Z")
			code, _ := event.Field("code")
			c.Assert(code.Default, qt.Equals, "2024-01-01")
		})
	}
}

func TestLoad_UnknownKeys(t *testing.T) {
	c := qt.New(t)

	_, err := entity.Load([]byte("entries:\n  - name: a\n    colour: red\n"), entity.FormatYAML)
	c.Assert(err, qt.ErrorMatches, `(?s)failed to parse yaml:.*colour.*`)

	_, err = entity.Load([]byte("[[entries]]\nname = \"a\"\ncolour = \"red\"\n"), entity.FormatTOML)
	c.Assert(err, qt.ErrorMatches, `unknown keys in toml: entries.colour`)
}

func TestLoad_UnknownKind(t *testing.T) {
	c := qt.New(t)

	_, err := entity.Load([]byte("entries:\n  - name: a\n    fields:\n      - key: b\n        kind: blob\n"), entity.FormatYAML)
	c.Assert(err, qt.ErrorMatches, `entry type "a": field "b": unknown field kind "blob"`)
}

func TestLoadFile(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "types.yml")
	c.Assert(os.WriteFile(path, []byte(yamlDecl), 0o600), qt.IsNil)
	reg, err := entity.LoadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(reg.EntryTypes(), qt.HasLen, 2)

	_, err = entity.LoadFile(filepath.Join(dir, "types.json"))
	c.Assert(err, qt.ErrorMatches, `cannot infer declaration format of .*types.json`)
}
