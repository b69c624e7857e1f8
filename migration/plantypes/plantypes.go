// Package plantypes defines the typed migration plan produced by the diff engines
// and consumed by the planner's apply phase.
//
// Plans are values: every diff step builds new fragments and nothing mutates a
// plan once it has been returned.
package plantypes

import (
	"github.com/stokaro/schemasync/core/entity"
	"github.com/stokaro/schemasync/dbschema/types"
)

// Transition records a change of one attribute from its observed value to its
// declared value.
type Transition[T any] struct {
	From T `json:"from"`
	To   T `json:"to"`
}

// TargetColumn is the physical shape a declared field requires.
type TargetColumn struct {
	ColumnName    string             `json:"columnName"`
	Type          types.ColumnType   `json:"type"`
	IsNullable    bool               `json:"isNullable"`
	ColumnDefault any                `json:"columnDefault,omitempty"`
	Unique        bool               `json:"unique"`
	ReadOnly      bool               `json:"readOnly,omitempty"`
	FetchField    *entity.FetchField `json:"fetchField,omitempty"`
}

// Definition converts the target into the shape handed to SchemaWriter.AddColumn.
func (c TargetColumn) Definition() types.ColumnDefinition {
	return types.ColumnDefinition{
		Name:     c.ColumnName,
		Type:     c.Type,
		Nullable: c.IsNullable,
		Default:  c.ColumnDefault,
		Unique:   c.Unique,
	}
}

// TablePlan holds the table-level changes of one relational type.
type TablePlan struct {
	Name              string              `json:"name"`
	Create            bool                `json:"create"`
	IDMode            entity.IDMode       `json:"idMode"`
	UpdateDescription *Transition[string] `json:"updateDescription,omitempty"`
}

// ColumnCreate adds a column, optionally paired with its foreign key.
type ColumnCreate struct {
	ColumnName string                `json:"columnName"`
	Column     TargetColumn          `json:"column"`
	ForeignKey *types.ForeignKeySpec `json:"foreignKey,omitempty"`
}

// ColumnDrop removes an obsolete column.
type ColumnDrop struct {
	ColumnName string `json:"columnName"`
}

// ForeignKeyTransition is either a constraint to drop or one to create.
type ForeignKeyTransition struct {
	Drop   string                `json:"drop,omitempty"`
	Create *types.ForeignKeySpec `json:"create,omitempty"`
}

// ColumnModify merges every attribute change of one existing column.
// Nil fields mean no change along that axis.
type ColumnModify struct {
	ColumnName string                        `json:"columnName"`
	DataType   *Transition[types.ColumnType] `json:"dataType,omitempty"`
	Nullable   *Transition[bool]             `json:"nullable,omitempty"`
	Unique     *Transition[bool]             `json:"unique,omitempty"`
	ForeignKey *ForeignKeyTransition         `json:"foreignKey,omitempty"`
}

// Empty reports whether the modification carries no change.
func (m ColumnModify) Empty() bool {
	return m.DataType == nil && m.Nullable == nil && m.Unique == nil && m.ForeignKey == nil
}

// ColumnsPlan partitions column changes. A column appears in at most one list.
type ColumnsPlan struct {
	Create []ColumnCreate `json:"create"`
	Drop   []ColumnDrop   `json:"drop"`
	Modify []ColumnModify `json:"modify"`
}

// Len returns the number of column changes.
func (p ColumnsPlan) Len() int {
	return len(p.Create) + len(p.Drop) + len(p.Modify)
}

// ChildPlan is the plan of one child-type table. It cannot nest further.
type ChildPlan struct {
	Type    string      `json:"type"`
	Table   TablePlan   `json:"table"`
	Columns ColumnsPlan `json:"columns"`
}

// HasChanges reports whether applying the plan would issue any write.
func (p ChildPlan) HasChanges() bool {
	return p.Table.Create || p.Table.UpdateDescription != nil || p.Columns.Len() > 0
}

// EntryPlan is the plan of one entry type and its child types.
type EntryPlan struct {
	Type     string      `json:"type"`
	Table    TablePlan   `json:"table"`
	Columns  ColumnsPlan `json:"columns"`
	Children []ChildPlan `json:"children,omitempty"`
	// ExtraneousChildTables lists child tables found in the database whose child
	// type is no longer declared. They are reported, never dropped.
	ExtraneousChildTables []string `json:"extraneousChildTables,omitempty"`
}

// HasChanges reports whether applying the plan would issue any write.
func (p EntryPlan) HasChanges() bool {
	if p.Table.Create || p.Table.UpdateDescription != nil || p.Columns.Len() > 0 {
		return true
	}
	for _, c := range p.Children {
		if c.HasChanges() {
			return true
		}
	}
	return false
}

// SettingsFieldCreate is a row to insert into the shared settings table.
type SettingsFieldCreate struct {
	SettingsType string `json:"settingsType"`
	Field        string `json:"field"`
	Value        any    `json:"value"`
}

// SettingsFieldDrop is a row to delete.
type SettingsFieldDrop struct {
	ID    string `json:"id"`
	Field string `json:"field"`
}

// SettingsFieldModify is a row whose value must be replaced.
type SettingsFieldModify struct {
	ID    string          `json:"id"`
	Field string          `json:"field"`
	Value Transition[any] `json:"value"`
}

// SettingsFields partitions settings row changes.
type SettingsFields struct {
	Create []SettingsFieldCreate `json:"create"`
	Drop   []SettingsFieldDrop   `json:"drop"`
	Modify []SettingsFieldModify `json:"modify"`
}

// Len returns the number of row changes.
func (f SettingsFields) Len() int {
	return len(f.Create) + len(f.Drop) + len(f.Modify)
}

// SettingsPlan is the plan of one settings type.
type SettingsPlan struct {
	Type   string         `json:"type"`
	Fields SettingsFields `json:"fields"`
}

// HasChanges reports whether applying the plan would issue any write.
func (p SettingsPlan) HasChanges() bool {
	return p.Fields.Len() > 0
}

// SettingsTablePlan describes the shared settings table itself.
type SettingsTablePlan struct {
	Name   string `json:"name"`
	Create bool   `json:"create"`
}

// Summary counts the changes of an aggregate plan.
type Summary struct {
	TablesCreated          int `json:"tablesCreated"`
	DescriptionsUpdated    int `json:"descriptionsUpdated"`
	ColumnsAdded           int `json:"columnsAdded"`
	ColumnsDropped         int `json:"columnsDropped"`
	ColumnsModified        int `json:"columnsModified"`
	SettingsFieldsAdded    int `json:"settingsFieldsAdded"`
	SettingsFieldsDropped  int `json:"settingsFieldsDropped"`
	SettingsFieldsModified int `json:"settingsFieldsModified"`
}

// Total returns the sum of all counts.
func (s Summary) Total() int {
	return s.TablesCreated + s.DescriptionsUpdated + s.ColumnsAdded + s.ColumnsDropped + s.ColumnsModified +
		s.SettingsFieldsAdded + s.SettingsFieldsDropped + s.SettingsFieldsModified
}

// Add returns the element-wise sum of s and o.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		TablesCreated:          s.TablesCreated + o.TablesCreated,
		DescriptionsUpdated:    s.DescriptionsUpdated + o.DescriptionsUpdated,
		ColumnsAdded:           s.ColumnsAdded + o.ColumnsAdded,
		ColumnsDropped:         s.ColumnsDropped + o.ColumnsDropped,
		ColumnsModified:        s.ColumnsModified + o.ColumnsModified,
		SettingsFieldsAdded:    s.SettingsFieldsAdded + o.SettingsFieldsAdded,
		SettingsFieldsDropped:  s.SettingsFieldsDropped + o.SettingsFieldsDropped,
		SettingsFieldsModified: s.SettingsFieldsModified + o.SettingsFieldsModified,
	}
}

// Plan is what every reconcilable strategy produces. It is implemented by
// EntryPlan and SettingsPlan.
type Plan interface {
	HasChanges() bool
	Summary() Summary
}

func tableSummary(t TablePlan, c ColumnsPlan) Summary {
	s := Summary{
		ColumnsAdded:    len(c.Create),
		ColumnsDropped:  len(c.Drop),
		ColumnsModified: len(c.Modify),
	}
	if t.Create {
		s.TablesCreated = 1
	}
	if t.UpdateDescription != nil {
		s.DescriptionsUpdated = 1
	}
	return s
}

// Summary counts the changes of the child table.
func (p ChildPlan) Summary() Summary {
	return tableSummary(p.Table, p.Columns)
}

// Summary counts the changes of the entry table and its children.
func (p EntryPlan) Summary() Summary {
	s := tableSummary(p.Table, p.Columns)
	for _, c := range p.Children {
		s = s.Add(c.Summary())
	}
	return s
}

// Summary counts the row changes of the settings type.
func (p SettingsPlan) Summary() Summary {
	return Summary{
		SettingsFieldsAdded:    len(p.Fields.Create),
		SettingsFieldsDropped:  len(p.Fields.Drop),
		SettingsFieldsModified: len(p.Fields.Modify),
	}
}

// MigrationPlan aggregates the plans of every declared type.
type MigrationPlan struct {
	Entries       []EntryPlan       `json:"entries"`
	Settings      []SettingsPlan    `json:"settings"`
	SettingsTable SettingsTablePlan `json:"settingsTable"`
	Summary       Summary           `json:"summary"`
}

// HasChanges reports whether applying the plan would issue any write.
func (p *MigrationPlan) HasChanges() bool {
	return p.SettingsTable.Create || p.Summary.Total() > 0
}
