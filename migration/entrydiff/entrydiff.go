// Package entrydiff computes the relational migration plan of one entry type and
// its child types by diffing the declared fields against the live table.
//
// The migrator only holds a types.SchemaReader, so computing a plan can never
// write to the database.
package entrydiff

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stokaro/schemasync/core/entity"
	"github.com/stokaro/schemasync/dbschema/types"
	"github.com/stokaro/schemasync/migration/compare"
	"github.com/stokaro/schemasync/migration/plantypes"
	"github.com/stokaro/schemasync/migration/target"
)

// Declarations is the part of the type registry the migrator needs: target
// lookup for connection fields and the full list of entry types to tell child
// tables of different parents apart.
type Declarations interface {
	target.Resolver
	EntryTypes() []*entity.RootType
}

// Migrator plans one entry type. Create a fresh one per run.
type Migrator struct {
	reader types.SchemaReader
	decls  Declarations
	entry  *entity.RootType
	logger *slog.Logger
}

// New creates a migrator for the given entry type.
func New(reader types.SchemaReader, decls Declarations, entry *entity.RootType) *Migrator {
	return &Migrator{
		reader: reader,
		decls:  decls,
		entry:  entry,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the migrator
func (m *Migrator) WithLogger(l *slog.Logger) *Migrator {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// Describe names the type and table the migrator works on.
func (m *Migrator) Describe() string {
	return fmt.Sprintf("entry type %s (table %s)", m.entry.Name, m.entry.TableName())
}

// Plan implements the planner's Reconcilable interface.
func (m *Migrator) Plan(ctx context.Context) (plantypes.Plan, error) {
	return m.PlanEntry(ctx)
}

// tableSpec is what planTable needs to know about a root or child table.
type tableSpec struct {
	name        string
	description string
	idMode      entity.IDMode
	fields      []entity.Field
	// parent is set for child tables.
	parent *target.Owner
}

// PlanEntry computes the plan of the entry table and its child tables.
func (m *Migrator) PlanEntry(ctx context.Context) (plantypes.EntryPlan, error) {
	root := tableSpec{
		name:        m.entry.TableName(),
		description: m.entry.Description,
		idMode:      m.entry.IDMode.OrDefault(),
		fields:      m.entry.Fields,
	}
	tablePlan, columns, err := m.planTable(ctx, root)
	if err != nil {
		return plantypes.EntryPlan{}, err
	}

	plan := plantypes.EntryPlan{
		Type:    m.entry.Name,
		Table:   tablePlan,
		Columns: columns,
	}

	parent := target.Owner{Table: root.name, IDMode: root.idMode}
	declared := make(map[string]bool, len(m.entry.Children))
	for _, child := range m.entry.Children {
		spec := tableSpec{
			name:        m.entry.ChildTableName(child.Name),
			description: child.Description,
			idMode:      root.idMode,
			fields:      child.Fields,
			parent:      &parent,
		}
		declared[spec.name] = true
		childTable, childColumns, err := m.planTable(ctx, spec)
		if err != nil {
			return plantypes.EntryPlan{}, err
		}
		plan.Children = append(plan.Children, plantypes.ChildPlan{
			Type:    child.Name,
			Table:   childTable,
			Columns: childColumns,
		})
	}

	extraneous, err := m.extraneousChildTables(ctx, declared)
	if err != nil {
		return plantypes.EntryPlan{}, err
	}
	plan.ExtraneousChildTables = extraneous
	for _, t := range extraneous {
		m.logger.Warn("child table is no longer declared", "entry", m.entry.Name, "table", t)
	}

	return plan, nil
}

func (m *Migrator) planTable(ctx context.Context, spec tableSpec) (plantypes.TablePlan, plantypes.ColumnsPlan, error) {
	tablePlan := plantypes.TablePlan{Name: spec.name, IDMode: spec.idMode}
	cols, fks := m.targetColumns(spec)

	exists, err := m.reader.TableExists(ctx, spec.name)
	if err != nil {
		return tablePlan, plantypes.ColumnsPlan{}, fmt.Errorf("failed to check table %s: %w", spec.name, err)
	}

	if !exists {
		m.logger.Debug("table missing, planning create", "table", spec.name, "columns", len(cols))
		tablePlan.Create = true
		if spec.description != "" {
			tablePlan.UpdateDescription = &plantypes.Transition[string]{From: "", To: spec.description}
		}
		return tablePlan, plantypes.ColumnsPlan{Create: createAll(cols, fks)}, nil
	}

	comment, err := m.reader.GetTableComment(ctx, spec.name)
	if err != nil {
		return tablePlan, plantypes.ColumnsPlan{}, fmt.Errorf("failed to read comment of table %s: %w", spec.name, err)
	}
	if comment != spec.description {
		tablePlan.UpdateDescription = &plantypes.Transition[string]{From: comment, To: spec.description}
	}

	existing, err := m.reader.GetTableColumns(ctx, spec.name)
	if err != nil {
		return tablePlan, plantypes.ColumnsPlan{}, fmt.Errorf("failed to read columns of table %s: %w", spec.name, err)
	}
	constraints, err := m.reader.GetTableConstraints(ctx, spec.name)
	if err != nil {
		return tablePlan, plantypes.ColumnsPlan{}, fmt.Errorf("failed to read constraints of table %s: %w", spec.name, err)
	}

	columns := diffColumns(existing, compare.IndexConstraints(constraints), cols, fks, spec.parent != nil)
	m.logger.Debug("planned table",
		"table", spec.name,
		"create", len(columns.Create),
		"drop", len(columns.Drop),
		"modify", len(columns.Modify),
	)
	return tablePlan, columns, nil
}

func (m *Migrator) targetColumns(spec tableSpec) ([]plantypes.TargetColumn, map[string]types.ForeignKeySpec) {
	cols, fks := target.Columns(target.Owner{Table: spec.name, IDMode: spec.idMode}, spec.fields, m.decls)
	if spec.parent == nil {
		return cols, fks
	}
	// Child tables never enforce column-level uniqueness.
	for i := range cols {
		cols[i].Unique = false
	}
	parent := target.ParentColumn(spec.name, *spec.parent)
	fks[parent.Column.ColumnName] = *parent.ForeignKey
	return append([]plantypes.TargetColumn{parent.Column}, cols...), fks
}

func createAll(cols []plantypes.TargetColumn, fks map[string]types.ForeignKeySpec) []plantypes.ColumnCreate {
	creates := make([]plantypes.ColumnCreate, 0, len(cols))
	for _, col := range cols {
		creates = append(creates, newColumnCreate(col, fks))
	}
	return creates
}

func newColumnCreate(col plantypes.TargetColumn, fks map[string]types.ForeignKeySpec) plantypes.ColumnCreate {
	cc := plantypes.ColumnCreate{ColumnName: col.ColumnName, Column: col}
	if fk, ok := fks[col.ColumnName]; ok {
		cc.ForeignKey = &fk
	}
	return cc
}

// diffColumns partitions the columns of an existing table. Child tables skip
// the uniqueness axis.
func diffColumns(
	existing []types.DBColumn,
	constraints compare.ColumnConstraints,
	cols []plantypes.TargetColumn,
	fks map[string]types.ForeignKeySpec,
	child bool,
) plantypes.ColumnsPlan {
	var plan plantypes.ColumnsPlan

	wanted := make(map[string]bool, len(cols))
	for _, col := range cols {
		wanted[col.ColumnName] = true
	}
	have := make(map[string]types.DBColumn, len(existing))
	for _, col := range existing {
		have[col.Name] = col
		if col.Name == target.IDColumnName || wanted[col.Name] {
			continue
		}
		plan.Drop = append(plan.Drop, plantypes.ColumnDrop{ColumnName: col.Name})
	}

	for _, col := range cols {
		current, ok := have[col.ColumnName]
		if !ok {
			plan.Create = append(plan.Create, newColumnCreate(col, fks))
			continue
		}

		var fk *types.ForeignKeySpec
		if spec, ok := fks[col.ColumnName]; ok {
			fk = &spec
		}
		mod := plantypes.ColumnModify{
			ColumnName: col.ColumnName,
			DataType:   compare.DataTypes(current, col),
			Nullable:   compare.Nullable(current, col),
			ForeignKey: compare.ForeignKeys(constraints.ForeignKeyOf(col.ColumnName), fk),
		}
		if !child {
			mod.Unique = compare.Unique(constraints.IsUnique(col.ColumnName), col.Unique)
		}
		if !mod.Empty() {
			plan.Modify = append(plan.Modify, mod)
		}
	}
	return plan
}

// extraneousChildTables lists child tables of this entry that are no longer
// declared. Root tables of other entry types, and child tables of an entry
// type whose child prefix is longer than ours, are not ours.
func (m *Migrator) extraneousChildTables(ctx context.Context, declared map[string]bool) ([]string, error) {
	prefix := entity.ChildTablePrefix(m.entry.Name)
	tables, err := m.reader.ListTables(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list child tables of %s: %w", m.entry.Name, err)
	}

	var extraneous []string
	for _, t := range tables {
		if declared[t] || m.ownedByOther(t, prefix) {
			continue
		}
		extraneous = append(extraneous, t)
	}
	return extraneous, nil
}

func (m *Migrator) ownedByOther(table, prefix string) bool {
	for _, other := range m.decls.EntryTypes() {
		if other.TableName() == table {
			return true
		}
		p := entity.ChildTablePrefix(other.Name)
		if other.Name != m.entry.Name && len(p) > len(prefix) && strings.HasPrefix(table, p) {
			return true
		}
	}
	return false
}
