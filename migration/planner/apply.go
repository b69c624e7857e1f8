package planner

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/stokaro/schemasync/dbschema/types"
	"github.com/stokaro/schemasync/migration/compare"
	"github.com/stokaro/schemasync/migration/plantypes"
	"github.com/stokaro/schemasync/migration/target"
)

// SettingsColumns returns the fixed columns of the shared settings table.
func SettingsColumns() []plantypes.TargetColumn {
	return []plantypes.TargetColumn{
		{ColumnName: types.SettingsTypeColumn, Type: target.Varchar(target.DefaultStringLength)},
		{ColumnName: types.SettingsFieldColumn, Type: target.Varchar(target.DefaultStringLength)},
		{ColumnName: types.SettingsValueColumn, Type: types.ColumnType{DataType: target.TypeJSONB}, IsNullable: true},
	}
}

// Apply operations reported in ApplyError.
const (
	OpCreateTable       = "create table"
	OpUpdateDescription = "update description"
	OpAddColumn         = "add column"
	OpAddForeignKey     = "add foreign key"
	OpDropForeignKey    = "drop foreign key"
	OpChangeDataType    = "change data type"
	OpSetNullable       = "set nullability"
	OpAddUnique         = "add unique constraint"
	OpDropUnique        = "drop unique constraint"
	OpDropColumn        = "drop column"
	OpCreateIndex       = "create index"
	OpInspect           = "inspect"
	OpInsertSetting     = "insert setting"
	OpUpdateSetting     = "update setting"
	OpDeleteSetting     = "delete setting"
)

// ApplyError identifies the step of the apply phase that failed.
type ApplyError struct {
	Operation string
	Table     string
	Column    string
	Err       error
}

func (e *ApplyError) Error() string {
	where := e.Table
	if e.Column != "" {
		where += "." + e.Column
	}
	return fmt.Sprintf("failed to %s on %s: %v", e.Operation, where, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

type applier struct {
	p       *Planner
	plan    *plantypes.MigrationPlan
	lines   []string
	entropy io.Reader
}

func newApplier(p *Planner, plan *plantypes.MigrationPlan) *applier {
	return &applier{
		p:       p,
		plan:    plan,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (a *applier) emit(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	a.lines = append(a.lines, line)
	a.p.logger.Info(line)
	a.p.sink(line)
}

func (a *applier) newID() string {
	if a.p.newID != nil {
		return a.p.newID()
	}
	return ulid.MustNew(ulid.Timestamp(time.Now()), a.entropy).String()
}

func (a *applier) run(ctx context.Context) error {
	steps := []func(context.Context) error{
		a.createTables,
		a.updateDescriptions,
		a.verifySettingsTable,
		a.applyColumns,
		a.applySettings,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

type tableStep struct {
	table   plantypes.TablePlan
	columns plantypes.ColumnsPlan
}

// tables yields the root and child table plans of every entry, each root
// followed by its children.
func (a *applier) tables() []tableStep {
	var out []tableStep
	for _, e := range a.plan.Entries {
		out = append(out, tableStep{table: e.Table, columns: e.Columns})
		for _, c := range e.Children {
			out = append(out, tableStep{table: c.Table, columns: c.Columns})
		}
	}
	return out
}

func (a *applier) createTables(ctx context.Context) error {
	for _, t := range a.tables() {
		if !t.table.Create {
			continue
		}
		id := target.IDColumn(t.table.IDMode)
		if err := a.p.db.CreateTable(ctx, t.table.Name, id); err != nil {
			return &ApplyError{Operation: OpCreateTable, Table: t.table.Name, Err: err}
		}
		a.emit("Created table %s with %s id", t.table.Name, t.table.IDMode.OrDefault())
	}
	return nil
}

func (a *applier) updateDescriptions(ctx context.Context) error {
	for _, t := range a.tables() {
		d := t.table.UpdateDescription
		if d == nil {
			continue
		}
		if err := a.p.db.AddTableComment(ctx, t.table.Name, d.To); err != nil {
			return &ApplyError{Operation: OpUpdateDescription, Table: t.table.Name, Err: err}
		}
		a.emit("Updated description of table %s: %q -> %q", t.table.Name, d.From, d.To)
	}
	return nil
}

// verifySettingsTable makes sure the shared settings table exists with its
// fixed columns and lookup index. Every check reads first, so an intact table
// costs no writes.
func (a *applier) verifySettingsTable(ctx context.Context) error {
	db := a.p.db
	table := a.p.opts.SettingsTable

	exists, err := db.TableExists(ctx, table)
	if err != nil {
		return &ApplyError{Operation: OpInspect, Table: table, Err: err}
	}
	if !exists {
		if err := db.CreateTable(ctx, table, target.IDColumn("")); err != nil {
			return &ApplyError{Operation: OpCreateTable, Table: table, Err: err}
		}
		a.emit("Created settings table %s", table)
	}

	existing, err := db.GetTableColumns(ctx, table)
	if err != nil {
		return &ApplyError{Operation: OpInspect, Table: table, Err: err}
	}
	have := make(map[string]types.DBColumn, len(existing))
	for _, c := range existing {
		have[c.Name] = c
	}

	for _, col := range SettingsColumns() {
		current, ok := have[col.ColumnName]
		if !ok {
			if err := db.AddColumn(ctx, table, col.Definition()); err != nil {
				return &ApplyError{Operation: OpAddColumn, Table: table, Column: col.ColumnName, Err: err}
			}
			a.emit("Added column %s.%s (%s)", table, col.ColumnName, col.Type)
			continue
		}
		if dt := compare.DataTypes(current, col); dt != nil {
			if err := db.ChangeColumnDataType(ctx, table, col.ColumnName, dt.To); err != nil {
				return &ApplyError{Operation: OpChangeDataType, Table: table, Column: col.ColumnName, Err: err}
			}
			a.emit("Changed data type of %s.%s: %s -> %s", table, col.ColumnName, dt.From, dt.To)
		}
		if n := compare.Nullable(current, col); n != nil {
			if err := db.SetColumnNull(ctx, table, col.ColumnName, n.To); err != nil {
				return &ApplyError{Operation: OpSetNullable, Table: table, Column: col.ColumnName, Err: err}
			}
			a.emit("Changed nullability of %s.%s: %s", table, col.ColumnName, nullability(n.To))
		}
	}

	index := a.p.opts.SettingsIndexName()
	ok, err := db.HasIndex(ctx, table, index)
	if err != nil {
		return &ApplyError{Operation: OpInspect, Table: table, Err: err}
	}
	if !ok {
		spec := types.IndexSpec{Name: index, TableName: table, Columns: []string{types.SettingsTypeColumn}}
		if err := db.CreateIndex(ctx, spec); err != nil {
			return &ApplyError{Operation: OpCreateIndex, Table: table, Column: types.SettingsTypeColumn, Err: err}
		}
		a.emit("Created index %s on %s(%s)", index, table, types.SettingsTypeColumn)
	}
	return nil
}

// applyColumns runs, per table, creates first, then modifications, then drops.
func (a *applier) applyColumns(ctx context.Context) error {
	for _, t := range a.tables() {
		if err := a.createColumns(ctx, t.table.Name, t.columns.Create); err != nil {
			return err
		}
		if err := a.modifyColumns(ctx, t.table.Name, t.columns.Modify); err != nil {
			return err
		}
		if err := a.dropColumns(ctx, t.table.Name, t.columns.Drop); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) createColumns(ctx context.Context, table string, creates []plantypes.ColumnCreate) error {
	for _, cc := range creates {
		if err := a.p.db.AddColumn(ctx, table, cc.Column.Definition()); err != nil {
			return &ApplyError{Operation: OpAddColumn, Table: table, Column: cc.ColumnName, Err: err}
		}
		a.emit("Added column %s.%s (%s)", table, cc.ColumnName, describeColumn(cc.Column))
		if cc.ForeignKey != nil {
			if err := a.addForeignKey(ctx, *cc.ForeignKey); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *applier) modifyColumns(ctx context.Context, table string, mods []plantypes.ColumnModify) error {
	db := a.p.db
	for _, m := range mods {
		if m.ForeignKey != nil && m.ForeignKey.Drop != "" {
			if err := db.DropConstraint(ctx, table, m.ForeignKey.Drop); err != nil {
				return &ApplyError{Operation: OpDropForeignKey, Table: table, Column: m.ColumnName, Err: err}
			}
			a.emit("Dropped foreign key %s from %s.%s", m.ForeignKey.Drop, table, m.ColumnName)
		}
		if m.DataType != nil {
			if err := db.ChangeColumnDataType(ctx, table, m.ColumnName, m.DataType.To); err != nil {
				return &ApplyError{Operation: OpChangeDataType, Table: table, Column: m.ColumnName, Err: err}
			}
			a.emit("Changed data type of %s.%s: %s -> %s", table, m.ColumnName, m.DataType.From, m.DataType.To)
		}
		if m.Nullable != nil {
			if err := db.SetColumnNull(ctx, table, m.ColumnName, m.Nullable.To); err != nil {
				return &ApplyError{Operation: OpSetNullable, Table: table, Column: m.ColumnName, Err: err}
			}
			a.emit("Changed nullability of %s.%s: %s", table, m.ColumnName, nullability(m.Nullable.To))
		}
		if m.Unique != nil {
			if m.Unique.To {
				if err := db.MakeColumnUnique(ctx, table, m.ColumnName); err != nil {
					return &ApplyError{Operation: OpAddUnique, Table: table, Column: m.ColumnName, Err: err}
				}
				a.emit("Added unique constraint on %s.%s", table, m.ColumnName)
			} else {
				if err := db.RemoveColumnUnique(ctx, table, m.ColumnName); err != nil {
					return &ApplyError{Operation: OpDropUnique, Table: table, Column: m.ColumnName, Err: err}
				}
				a.emit("Removed unique constraint on %s.%s", table, m.ColumnName)
			}
		}
		if m.ForeignKey != nil && m.ForeignKey.Create != nil {
			if err := a.addForeignKey(ctx, *m.ForeignKey.Create); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *applier) dropColumns(ctx context.Context, table string, drops []plantypes.ColumnDrop) error {
	for _, d := range drops {
		if err := a.p.db.RemoveColumn(ctx, table, d.ColumnName); err != nil {
			return &ApplyError{Operation: OpDropColumn, Table: table, Column: d.ColumnName, Err: err}
		}
		a.emit("Dropped column %s.%s", table, d.ColumnName)
	}
	return nil
}

func (a *applier) addForeignKey(ctx context.Context, fk types.ForeignKeySpec) error {
	if err := a.p.db.AddForeignKey(ctx, fk); err != nil {
		return &ApplyError{Operation: OpAddForeignKey, Table: fk.TableName, Column: fk.ColumnName, Err: err}
	}
	a.emit("Added foreign key %s on %s.%s -> %s.%s",
		fk.ConstraintName, fk.TableName, fk.ColumnName, fk.ForeignTableName, fk.ForeignColumnName)
	return nil
}

func (a *applier) applySettings(ctx context.Context) error {
	db := a.p.db
	table := a.p.opts.SettingsTable
	for _, sp := range a.plan.Settings {
		for _, f := range sp.Fields.Create {
			value, err := json.Marshal(f.Value)
			if err != nil {
				return &ApplyError{Operation: OpInsertSetting, Table: table, Column: sp.Type + "." + f.Field, Err: err}
			}
			row := types.SettingsRow{ID: a.newID(), SettingsType: f.SettingsType, Field: f.Field, Value: value}
			if err := db.InsertSettingsRow(ctx, table, row); err != nil {
				return &ApplyError{Operation: OpInsertSetting, Table: table, Column: sp.Type + "." + f.Field, Err: err}
			}
			a.emit("Added setting %s.%s = %s", sp.Type, f.Field, value)
		}
		for _, f := range sp.Fields.Modify {
			value, err := json.Marshal(f.Value.To)
			if err != nil {
				return &ApplyError{Operation: OpUpdateSetting, Table: table, Column: sp.Type + "." + f.Field, Err: err}
			}
			if err := db.UpdateSettingsRow(ctx, table, f.ID, value); err != nil {
				return &ApplyError{Operation: OpUpdateSetting, Table: table, Column: sp.Type + "." + f.Field, Err: err}
			}
			a.emit("Updated setting %s.%s = %s", sp.Type, f.Field, value)
		}
		for _, f := range sp.Fields.Drop {
			if err := db.DeleteSettingsRow(ctx, table, f.ID); err != nil {
				return &ApplyError{Operation: OpDeleteSetting, Table: table, Column: sp.Type + "." + f.Field, Err: err}
			}
			a.emit("Removed setting %s.%s", sp.Type, f.Field)
		}
	}
	return nil
}

func describeColumn(c plantypes.TargetColumn) string {
	s := c.Type.String()
	if !c.IsNullable {
		s += ", not null"
	}
	if c.Unique {
		s += ", unique"
	}
	if c.ReadOnly {
		s += ", read-only"
	}
	return s
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}
