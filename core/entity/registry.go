package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Registry is the validated, enumerable set of declared types handed to the
// migration planner. It rejects structurally invalid declarations up front so
// that the planner can assume referential validity.
type Registry struct {
	entries  []*RootType
	byName   map[string]*RootType
	settings []*SettingsType
}

// NewRegistry validates the declarations and builds a registry. All problems
// found are reported together.
func NewRegistry(entries []RootType, settings []SettingsType) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*RootType, len(entries)),
	}

	var errs []error
	tables := make(map[string]string)
	for i := range entries {
		e := entries[i]
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("entry type #%d has no name", i))
			continue
		}
		if _, dup := r.byName[e.Name]; dup {
			errs = append(errs, fmt.Errorf("entry type %q declared more than once", e.Name))
			continue
		}
		e.IDMode = e.IDMode.OrDefault()
		if owner, dup := tables[e.TableName()]; dup {
			errs = append(errs, fmt.Errorf("entry type %q uses table %q already used by %q", e.Name, e.TableName(), owner))
		}
		tables[e.TableName()] = e.Name
		r.entries = append(r.entries, &e)
		r.byName[e.Name] = &e
	}
	for _, e := range r.entries {
		for _, c := range e.Children {
			if c.Name == "" {
				continue
			}
			table, owner := e.ChildTableName(c.Name), e.Name+"."+c.Name
			if other, dup := tables[table]; dup && other != owner {
				errs = append(errs, fmt.Errorf("child type %q uses table %q already used by %q", owner, table, other))
			}
			tables[table] = owner
		}
	}

	seenSettings := make(map[string]bool, len(settings))
	for i := range settings {
		s := settings[i]
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("settings type #%d has no name", i))
			continue
		}
		if seenSettings[s.Name] {
			errs = append(errs, fmt.Errorf("settings type %q declared more than once", s.Name))
			continue
		}
		seenSettings[s.Name] = true
		r.settings = append(r.settings, &s)
	}

	for _, e := range r.entries {
		errs = append(errs, r.validateEntry(e)...)
	}
	for _, s := range r.settings {
		errs = append(errs, r.validateFields("settings type "+s.Name, s.Fields, false)...)
		for _, f := range s.Fields {
			if f.Kind == KindConnection || f.Kind == KindID {
				errs = append(errs, fmt.Errorf("settings type %q: field %q: kind %s is not allowed in settings", s.Name, f.Key, f.Kind))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid declarations: %w", err)
	}
	return r, nil
}

// EntryTypes returns the entry types in declaration order.
func (r *Registry) EntryTypes() []*RootType {
	return r.entries
}

// EntryType looks an entry type up by name.
func (r *Registry) EntryType(name string) (*RootType, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// SettingsTypes returns the settings types in declaration order.
func (r *Registry) SettingsTypes() []*SettingsType {
	return r.settings
}

func (r *Registry) validateEntry(e *RootType) []error {
	var errs []error
	if !e.IDMode.Valid() {
		errs = append(errs, fmt.Errorf("entry type %q: unknown id mode %q", e.Name, e.IDMode))
	}
	errs = append(errs, r.validateFields("entry type "+e.Name, e.Fields, false)...)

	if e.TitleField != "" {
		if _, ok := e.Field(e.TitleField); !ok {
			errs = append(errs, fmt.Errorf("entry type %q: title field %q is not declared", e.Name, e.TitleField))
		}
	}

	seen := make(map[string]bool, len(e.Children))
	for _, c := range e.Children {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("entry type %q: child type without a name", e.Name))
			continue
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("entry type %q: child type %q declared more than once", e.Name, c.Name))
			continue
		}
		seen[c.Name] = true
		errs = append(errs, r.validateFields("child type "+e.Name+"."+c.Name, c.Fields, true)...)
	}
	return errs
}

func (r *Registry) validateFields(owner string, fields []Field, child bool) []error {
	var errs []error
	keys := make(map[string]Field, len(fields))
	for _, f := range fields {
		switch {
		case f.Key == "":
			errs = append(errs, fmt.Errorf("%s: field without a key", owner))
			continue
		case strings.Contains(f.Key, TitleSuffix):
			errs = append(errs, fmt.Errorf("%s: field %q: key must not contain %q", owner, f.Key, TitleSuffix))
		case child && f.Key == ParentKey:
			errs = append(errs, fmt.Errorf("%s: field key %q is reserved for child types", owner, ParentKey))
		case !f.Kind.Valid():
			errs = append(errs, fmt.Errorf("%s: field %q: unknown kind %q", owner, f.Key, f.Kind))
		case f.Key == IdentifierKey && f.Kind != KindID:
			errs = append(errs, fmt.Errorf("%s: field key %q is reserved for the identifier", owner, IdentifierKey))
		case f.MaxLength < 0:
			errs = append(errs, fmt.Errorf("%s: field %q: negative max length", owner, f.Key))
		case !f.Kind.AcceptsDefault(f.Default):
			errs = append(errs, fmt.Errorf("%s: field %q: default %v (%T) does not fit kind %s", owner, f.Key, f.Default, f.Default, f.Kind))
		}
		if _, dup := keys[f.Key]; dup {
			errs = append(errs, fmt.Errorf("%s: field %q declared more than once", owner, f.Key))
			continue
		}
		keys[f.Key] = f

		if f.Kind != KindConnection {
			continue
		}
		if f.Connection == nil || f.Connection.Target == "" {
			errs = append(errs, fmt.Errorf("%s: connection field %q has no target", owner, f.Key))
			continue
		}
		if _, ok := r.byName[f.Connection.Target]; !ok {
			errs = append(errs, fmt.Errorf("%s: connection field %q targets unknown entry type %q", owner, f.Key, f.Connection.Target))
		}
		if f.Connection.IDMode != "" && !f.Connection.IDMode.Valid() {
			errs = append(errs, fmt.Errorf("%s: connection field %q: unknown id mode %q", owner, f.Key, f.Connection.IDMode))
		}
	}

	for _, f := range fields {
		if f.Fetch == nil {
			continue
		}
		conn, ok := keys[f.Fetch.Connection]
		if !ok || conn.Kind != KindConnection {
			errs = append(errs, fmt.Errorf("%s: field %q fetches through %q which is not a connection field", owner, f.Key, f.Fetch.Connection))
		}
	}
	return errs
}
