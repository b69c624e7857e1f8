package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Declaration file formats understood by Load.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

type fileDoc struct {
	Entries  []entryDoc    `yaml:"entries" toml:"entries"`
	Settings []settingsDoc `yaml:"settings" toml:"settings"`
}

type entryDoc struct {
	Name        string     `yaml:"name" toml:"name"`
	Table       string     `yaml:"table" toml:"table"`
	Description string     `yaml:"description" toml:"description"`
	IDMode      string     `yaml:"idMode" toml:"idMode"`
	TitleField  string     `yaml:"titleField" toml:"titleField"`
	Fields      []fieldDoc `yaml:"fields" toml:"fields"`
	Children    []childDoc `yaml:"children" toml:"children"`
}

type childDoc struct {
	Name        string     `yaml:"name" toml:"name"`
	Description string     `yaml:"description" toml:"description"`
	Fields      []fieldDoc `yaml:"fields" toml:"fields"`
}

type settingsDoc struct {
	Name        string     `yaml:"name" toml:"name"`
	Description string     `yaml:"description" toml:"description"`
	Fields      []fieldDoc `yaml:"fields" toml:"fields"`
}

type connectionDoc struct {
	Target string `yaml:"target" toml:"target"`
	IDMode string `yaml:"idMode" toml:"idMode"`
}

type fieldDoc struct {
	Key        string         `yaml:"key" toml:"key"`
	Label      string         `yaml:"label" toml:"label"`
	Kind       string         `yaml:"kind" toml:"kind"`
	Required   bool           `yaml:"required" toml:"required"`
	ReadOnly   bool           `yaml:"readOnly" toml:"readOnly"`
	Unique     bool           `yaml:"unique" toml:"unique"`
	Hidden     bool           `yaml:"hidden" toml:"hidden"`
	Default    any            `yaml:"default" toml:"default"`
	MaxLength  int            `yaml:"maxLength" toml:"maxLength"`
	Connection *connectionDoc `yaml:"connection" toml:"connection"`
	Fetch      *FetchField    `yaml:"fetch" toml:"fetch"`
}

// LoadFile reads a declaration file and builds a validated Registry. The format
// is chosen from the file extension (.yaml, .yml or .toml).
func LoadFile(path string) (*Registry, error) {
	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declarations %s: %w", path, err)
	}
	reg, err := Load(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load declarations %s: %w", path, err)
	}
	return reg, nil
}

// Load parses declarations in the given format and builds a validated Registry.
// Unknown keys are rejected in both formats.
func Load(data []byte, format string) (*Registry, error) {
	var doc fileDoc
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown keys in toml: %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unsupported declaration format %q", format)
	}
	return doc.build()
}

func formatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("cannot infer declaration format of %s", path)
	}
}

func (d fileDoc) build() (*Registry, error) {
	var errs []error
	entries := make([]RootType, 0, len(d.Entries))
	for _, ed := range d.Entries {
		fields, err := buildFields(ed.Fields)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry type %q: %w", ed.Name, err))
		}
		e := RootType{
			Name:        ed.Name,
			Table:       ed.Table,
			Description: ed.Description,
			IDMode:      IDMode(strings.ToLower(ed.IDMode)),
			TitleField:  ed.TitleField,
			Fields:      fields,
		}
		for _, cd := range ed.Children {
			cf, err := buildFields(cd.Fields)
			if err != nil {
				errs = append(errs, fmt.Errorf("child type %q.%q: %w", ed.Name, cd.Name, err))
			}
			e.Children = append(e.Children, ChildType{Name: cd.Name, Description: cd.Description, Fields: cf})
		}
		entries = append(entries, e)
	}

	settings := make([]SettingsType, 0, len(d.Settings))
	for _, sd := range d.Settings {
		fields, err := buildFields(sd.Fields)
		if err != nil {
			errs = append(errs, fmt.Errorf("settings type %q: %w", sd.Name, err))
		}
		settings = append(settings, SettingsType{Name: sd.Name, Description: sd.Description, Fields: fields})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return NewRegistry(entries, settings)
}

func buildFields(docs []fieldDoc) ([]Field, error) {
	fields := make([]Field, 0, len(docs))
	for _, fd := range docs {
		kind, err := ParseFieldKind(fd.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.Key, err)
		}
		f := Field{
			Key:       fd.Key,
			Label:     fd.Label,
			Kind:      kind,
			Required:  fd.Required,
			ReadOnly:  fd.ReadOnly,
			Unique:    fd.Unique,
			Hidden:    fd.Hidden,
			Default:   normalizeDefault(kind, fd.Default),
			MaxLength: fd.MaxLength,
			Fetch:     fd.Fetch,
		}
		if f.Label == "" {
			f.Label = fd.Key
		}
		if fd.Connection != nil {
			f.Connection = &Connection{
				Target: fd.Connection.Target,
				IDMode: IDMode(strings.ToLower(fd.Connection.IDMode)),
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// normalizeDefault turns unquoted YAML and TOML dates into the strings the
// same value would have been written as when quoted.
func normalizeDefault(kind FieldKind, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	switch kind {
	case KindTimestamp:
		return t.Format(time.RFC3339Nano)
	case KindDate:
		return t.Format(time.DateOnly)
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339Nano)
}
