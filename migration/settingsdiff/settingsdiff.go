// Package settingsdiff computes the migration plan of one settings type. Settings
// are not columns: each declared field is one row of the shared settings table,
// keyed by (settingsType, field), so the diff partitions rows instead of columns.
package settingsdiff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stokaro/schemasync/core/entity"
	"github.com/stokaro/schemasync/dbschema/types"
	"github.com/stokaro/schemasync/migration/plantypes"
)

// Reader is the read-only surface the migrator needs.
type Reader interface {
	TableExists(ctx context.Context, table string) (bool, error)
	GetTableColumns(ctx context.Context, table string) ([]types.DBColumn, error)
	types.SettingsReader
}

// Migrator plans one settings type. Create a fresh one per run.
type Migrator struct {
	reader   Reader
	table    string
	settings *entity.SettingsType
	logger   *slog.Logger
}

// New creates a migrator for the settings type stored in table.
func New(reader Reader, table string, settings *entity.SettingsType) *Migrator {
	return &Migrator{
		reader:   reader,
		table:    table,
		settings: settings,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// Describe names the settings type and its storage table.
func (m *Migrator) Describe() string {
	return fmt.Sprintf("settings type %s (table %s)", m.settings.Name, m.table)
}

// Plan implements the planner's Reconcilable interface.
func (m *Migrator) Plan(ctx context.Context) (plantypes.Plan, error) {
	return m.PlanSettings(ctx)
}

// PlanSettings diffs the declared fields against the stored rows. A missing
// settings table means no rows are stored yet. So does a table lacking one of
// the settings columns: the apply phase repairs it before inserting rows.
func (m *Migrator) PlanSettings(ctx context.Context) (plantypes.SettingsPlan, error) {
	plan := plantypes.SettingsPlan{Type: m.settings.Name}

	exists, err := m.reader.TableExists(ctx, m.table)
	if err != nil {
		return plan, fmt.Errorf("failed to check settings table %s: %w", m.table, err)
	}
	if exists {
		missing, err := m.missingColumns(ctx)
		if err != nil {
			return plan, err
		}
		if len(missing) > 0 {
			m.logger.Warn("settings table is incomplete, stored rows are not read",
				"table", m.table, "settings", m.settings.Name, "missing", missing)
			exists = false
		}
	}
	var rows []types.SettingsRow
	if exists {
		rows, err = m.reader.SelectSettingsRows(ctx, m.table, m.settings.Name)
		if err != nil {
			return plan, fmt.Errorf("failed to read settings rows of %s: %w", m.settings.Name, err)
		}
	}

	stored := make(map[string]types.SettingsRow, len(rows))
	for _, row := range rows {
		_, declared := m.settings.Field(row.Field)
		_, seen := stored[row.Field]
		if !declared || seen {
			// Duplicate rows of a declared field are dropped too; the first one wins.
			plan.Fields.Drop = append(plan.Fields.Drop, plantypes.SettingsFieldDrop{ID: row.ID, Field: row.Field})
			continue
		}
		stored[row.Field] = row
	}

	for _, f := range m.settings.Fields {
		row, ok := stored[f.Key]
		if !ok {
			plan.Fields.Create = append(plan.Fields.Create, plantypes.SettingsFieldCreate{
				SettingsType: m.settings.Name,
				Field:        f.Key,
				Value:        f.Default,
			})
			continue
		}

		current := decode(row.Value)
		intended := IntendedValue(f, current)
		equal, err := sameJSON(current, intended)
		if err != nil {
			return plan, fmt.Errorf("failed to compare value of %s.%s: %w", m.settings.Name, f.Key, err)
		}
		if !equal {
			plan.Fields.Modify = append(plan.Fields.Modify, plantypes.SettingsFieldModify{
				ID:    row.ID,
				Field: f.Key,
				Value: plantypes.Transition[any]{From: current, To: intended},
			})
		}
	}

	m.logger.Debug("planned settings",
		"settings", m.settings.Name,
		"create", len(plan.Fields.Create),
		"drop", len(plan.Fields.Drop),
		"modify", len(plan.Fields.Modify),
	)
	return plan, nil
}

func (m *Migrator) missingColumns(ctx context.Context) ([]string, error) {
	columns, err := m.reader.GetTableColumns(ctx, m.table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of settings table %s: %w", m.table, err)
	}
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c.Name] = true
	}
	var missing []string
	for _, name := range []string{types.SettingsTypeColumn, types.SettingsFieldColumn, types.SettingsValueColumn} {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// IntendedValue returns the value a stored setting should hold: the stored
// value when it is set and fits the field kind, otherwise the field default.
func IntendedValue(f entity.Field, stored any) any {
	if stored != nil && Compatible(f.Kind, stored) {
		return stored
	}
	return f.Default
}

// Compatible reports whether a decoded JSON value can be held by a field of
// the given kind.
func Compatible(kind entity.FieldKind, v any) bool {
	switch kind {
	case entity.KindBoolean:
		_, ok := v.(bool)
		return ok
	case entity.KindInt:
		n, ok := v.(float64)
		return ok && n == float64(int64(n))
	case entity.KindDecimal, entity.KindCurrency:
		switch x := v.(type) {
		case float64:
			return true
		case string:
			_, err := json.Number(x).Float64()
			return err == nil
		}
		return false
	case entity.KindMultiChoice, entity.KindList:
		_, ok := v.([]any)
		return ok
	case entity.KindImage, entity.KindFile:
		switch v.(type) {
		case string, map[string]any, []any:
			return true
		}
		return false
	case entity.KindJSON:
		return true
	case entity.KindData, entity.KindText, entity.KindPassword, entity.KindChoice, entity.KindEmail,
		entity.KindPhone, entity.KindRichText, entity.KindURL, entity.KindDate, entity.KindTimestamp:
		_, ok := v.(string)
		return ok
	default:
		return false
	}
}

func decode(raw json.RawMessage) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Unreadable values are treated as unset and replaced by the default.
		return nil
	}
	return v
}

func sameJSON(a, b any) (bool, error) {
	ja, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ja, jb), nil
}
