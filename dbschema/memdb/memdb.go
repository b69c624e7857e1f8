// Package memdb is an in-memory implementation of types.Database.
//
// It mimics the catalog behavior of PostgreSQL closely enough to drive the
// reconciler end to end without a server: tables, ordered columns, single-column
// constraints, indexes, table comments and settings rows. Every write is recorded
// so tests can assert exactly which operations a run issued.
package memdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stokaro/schemasync/core/platform"
	"github.com/stokaro/schemasync/dbschema/types"
)

type table struct {
	name        string
	comment     string
	columns     []types.DBColumn
	constraints []types.DBConstraint
	indexes     map[string]types.IndexSpec
	rows        []types.SettingsRow
}

func (t *table) column(name string) (int, bool) {
	for i, c := range t.columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// DB is a concurrency-safe in-memory database.
type DB struct {
	mu     sync.Mutex
	tables map[string]*table
	writes []string
	fail   map[string]error
}

// New returns an empty database.
func New() *DB {
	return &DB{
		tables: make(map[string]*table),
		fail:   make(map[string]error),
	}
}

var _ types.Database = (*DB)(nil)

// Info reports the database as PostgreSQL, whose catalog spelling it mirrors.
func (d *DB) Info() types.DBInfo {
	return types.DBInfo{Dialect: platform.Postgres, Version: "memdb", Schema: "public", URL: "memdb://"}
}

// Writes returns the write operations issued so far, in order.
func (d *DB) Writes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.writes...)
}

// ResetWrites clears the write log.
func (d *DB) ResetWrites() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
}

// FailOn makes the next write of operation op against target return err.
// Target is a table name or "table.column".
func (d *DB) FailOn(op, target string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[op+" "+target] = err
}

// SeedColumn adds a column with an arbitrary catalog shape, creating the table
// when needed. It is not recorded as a write.
func (d *DB) SeedColumn(tableName string, col types.DBColumn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.ensure(tableName)
	if i, ok := t.column(col.Name); ok {
		t.columns[i] = col
		return
	}
	col.OrdinalPosition = len(t.columns) + 1
	t.columns = append(t.columns, col)
}

// SeedConstraint adds a constraint without recording a write.
func (d *DB) SeedConstraint(con types.DBConstraint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.ensure(con.TableName)
	t.constraints = append(t.constraints, con)
}

// SeedComment sets a table comment without recording a write.
func (d *DB) SeedComment(tableName, comment string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensure(tableName).comment = comment
}

// SeedSettingsRow stores a settings row without recording a write.
func (d *DB) SeedSettingsRow(tableName string, row types.SettingsRow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.ensure(tableName)
	if len(t.columns) == 0 {
		t.columns = settingsColumns()
	}
	t.rows = append(t.rows, row)
}

// settingsColumns is the shape a settings table seeded with rows starts with.
func settingsColumns() []types.DBColumn {
	varchar := 255
	id := 26
	return []types.DBColumn{
		{Name: types.SettingsIDColumn, DataType: "character varying", CharacterMaxLength: &id, IsNullable: "NO", OrdinalPosition: 1},
		{Name: types.SettingsTypeColumn, DataType: "character varying", CharacterMaxLength: &varchar, IsNullable: "NO", OrdinalPosition: 2},
		{Name: types.SettingsFieldColumn, DataType: "character varying", CharacterMaxLength: &varchar, IsNullable: "NO", OrdinalPosition: 3},
		{Name: types.SettingsValueColumn, DataType: "jsonb", IsNullable: "YES", OrdinalPosition: 4},
	}
}

func (d *DB) ensure(name string) *table {
	t, ok := d.tables[name]
	if !ok {
		t = &table{name: name, indexes: make(map[string]types.IndexSpec)}
		d.tables[name] = t
	}
	return t
}

func (d *DB) record(op, target, detail string) error {
	if err, ok := d.fail[op+" "+target]; ok {
		delete(d.fail, op+" "+target)
		return err
	}
	line := op + " " + target
	if detail != "" {
		line += " " + detail
	}
	d.writes = append(d.writes, line)
	return nil
}

func (d *DB) lookup(name string) (*table, error) {
	t, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("relation %q does not exist", name)
	}
	return t, nil
}

func (d *DB) TableExists(_ context.Context, name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tables[name]
	return ok, nil
}

func (d *DB) ListTables(_ context.Context, prefix string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var names []string
	for name := range d.tables {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *DB) GetTableColumns(_ context.Context, name string) ([]types.DBColumn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]types.DBColumn(nil), t.columns...), nil
}

func (d *DB) GetTableConstraints(_ context.Context, name string) ([]types.DBConstraint, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]types.DBConstraint(nil), t.constraints...), nil
}

func (d *DB) GetTableComment(_ context.Context, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return "", err
	}
	return t.comment, nil
}

func (d *DB) HasIndex(_ context.Context, tableName, index string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(tableName)
	if err != nil {
		return false, err
	}
	_, ok := t.indexes[index]
	return ok, nil
}

func (d *DB) CreateTable(_ context.Context, name string, id types.ColumnDefinition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tables[name]; ok {
		return fmt.Errorf("relation %q already exists", name)
	}
	if err := d.record("CreateTable", name, id.Type.String()); err != nil {
		return err
	}
	t := d.ensure(name)
	t.columns = append(t.columns, toDBColumn(types.ColumnDefinition{Name: id.Name, Type: id.Type}, 1))
	t.constraints = append(t.constraints, types.DBConstraint{
		Name:       name + "_pkey",
		TableName:  name,
		Type:       types.ConstraintPrimaryKey,
		ColumnName: id.Name,
	})
	return nil
}

func (d *DB) AddTableComment(_ context.Context, name, comment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	if err := d.record("AddTableComment", name, fmt.Sprintf("%q", comment)); err != nil {
		return err
	}
	t.comment = comment
	return nil
}

func (d *DB) AddColumn(_ context.Context, name string, col types.ColumnDefinition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	if _, ok := t.column(col.Name); ok {
		return fmt.Errorf("column %q of relation %q already exists", col.Name, name)
	}
	if err := d.record("AddColumn", name+"."+col.Name, col.Type.String()); err != nil {
		return err
	}
	t.columns = append(t.columns, toDBColumn(col, len(t.columns)+1))
	if col.Unique {
		t.constraints = append(t.constraints, uniqueConstraint(name, col.Name))
	}
	return nil
}

func (d *DB) RemoveColumn(_ context.Context, name, column string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	i, ok := t.column(column)
	if !ok {
		return fmt.Errorf("column %q of relation %q does not exist", column, name)
	}
	if err := d.record("RemoveColumn", name+"."+column, ""); err != nil {
		return err
	}
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	for j := range t.columns {
		t.columns[j].OrdinalPosition = j + 1
	}
	t.constraints = filterConstraints(t.constraints, func(c types.DBConstraint) bool {
		return c.ColumnName != column
	})
	return nil
}

func (d *DB) ChangeColumnDataType(_ context.Context, name, column string, newType types.ColumnType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, i, err := d.lookupColumn(name, column)
	if err != nil {
		return err
	}
	if err := d.record("ChangeColumnDataType", name+"."+column, newType.String()); err != nil {
		return err
	}
	t.columns[i].DataType = newType.DataType
	t.columns[i].CharacterMaxLength = newType.CharacterMaximumLength
	return nil
}

func (d *DB) SetColumnNull(_ context.Context, name, column string, nullable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, i, err := d.lookupColumn(name, column)
	if err != nil {
		return err
	}
	detail := "NOT NULL"
	if nullable {
		detail = "NULL"
	}
	if err := d.record("SetColumnNull", name+"."+column, detail); err != nil {
		return err
	}
	t.columns[i].IsNullable = yesNo(nullable)
	return nil
}

func (d *DB) MakeColumnUnique(_ context.Context, name, column string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, _, err := d.lookupColumn(name, column)
	if err != nil {
		return err
	}
	if err := d.record("MakeColumnUnique", name+"."+column, ""); err != nil {
		return err
	}
	t.constraints = append(t.constraints, uniqueConstraint(name, column))
	return nil
}

func (d *DB) RemoveColumnUnique(_ context.Context, name, column string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, _, err := d.lookupColumn(name, column)
	if err != nil {
		return err
	}
	if err := d.record("RemoveColumnUnique", name+"."+column, ""); err != nil {
		return err
	}
	t.constraints = filterConstraints(t.constraints, func(c types.DBConstraint) bool {
		return c.ColumnName != column || c.Type != types.ConstraintUnique
	})
	return nil
}

func (d *DB) AddForeignKey(_ context.Context, fk types.ForeignKeySpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, _, err := d.lookupColumn(fk.TableName, fk.ColumnName)
	if err != nil {
		return err
	}
	if _, err := d.lookup(fk.ForeignTableName); err != nil {
		return err
	}
	if err := d.record("AddForeignKey", fk.TableName+"."+fk.ColumnName, fk.ConstraintName); err != nil {
		return err
	}
	foreignTable, foreignColumn := fk.ForeignTableName, fk.ForeignColumnName
	con := types.DBConstraint{
		Name:          fk.ConstraintName,
		TableName:     fk.TableName,
		Type:          types.ConstraintForeignKey,
		ColumnName:    fk.ColumnName,
		ForeignTable:  &foreignTable,
		ForeignColumn: &foreignColumn,
	}
	if fk.OnDelete != "" {
		rule := fk.OnDelete
		con.DeleteRule = &rule
	}
	t.constraints = append(t.constraints, con)
	return nil
}

func (d *DB) DropConstraint(_ context.Context, name, constraint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	if err := d.record("DropConstraint", name, constraint); err != nil {
		return err
	}
	t.constraints = filterConstraints(t.constraints, func(c types.DBConstraint) bool {
		return c.Name != constraint
	})
	return nil
}

func (d *DB) CreateIndex(_ context.Context, index types.IndexSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(index.TableName)
	if err != nil {
		return err
	}
	if _, ok := t.indexes[index.Name]; ok {
		return fmt.Errorf("relation %q already exists", index.Name)
	}
	if err := d.record("CreateIndex", index.TableName, index.Name); err != nil {
		return err
	}
	t.indexes[index.Name] = index
	return nil
}

func (d *DB) SelectSettingsRows(_ context.Context, name, settingsType string) ([]types.SettingsRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{types.SettingsTypeColumn, types.SettingsFieldColumn, types.SettingsValueColumn} {
		if _, ok := t.column(col); !ok {
			return nil, fmt.Errorf("column %q of table %q does not exist", col, name)
		}
	}
	var rows []types.SettingsRow
	for _, r := range t.rows {
		if r.SettingsType == settingsType {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

func (d *DB) InsertSettingsRow(_ context.Context, name string, row types.SettingsRow) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	if err := d.record("InsertSettingsRow", name, row.SettingsType+"."+row.Field+"="+string(row.Value)); err != nil {
		return err
	}
	t.rows = append(t.rows, row)
	return nil
}

func (d *DB) UpdateSettingsRow(_ context.Context, name, id string, value json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	for i := range t.rows {
		if t.rows[i].ID != id {
			continue
		}
		if err := d.record("UpdateSettingsRow", name, id+"="+string(value)); err != nil {
			return err
		}
		t.rows[i].Value = value
		return nil
	}
	return fmt.Errorf("settings row %q not found", id)
}

func (d *DB) DeleteSettingsRow(_ context.Context, name, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.lookup(name)
	if err != nil {
		return err
	}
	for i := range t.rows {
		if t.rows[i].ID != id {
			continue
		}
		if err := d.record("DeleteSettingsRow", name, id); err != nil {
			return err
		}
		t.rows = append(t.rows[:i], t.rows[i+1:]...)
		return nil
	}
	return fmt.Errorf("settings row %q not found", id)
}

func (d *DB) lookupColumn(name, column string) (*table, int, error) {
	t, err := d.lookup(name)
	if err != nil {
		return nil, -1, err
	}
	i, ok := t.column(column)
	if !ok {
		return nil, -1, fmt.Errorf("column %q of relation %q does not exist", column, name)
	}
	return t, i, nil
}

func toDBColumn(col types.ColumnDefinition, position int) types.DBColumn {
	c := types.DBColumn{
		Name:               col.Name,
		DataType:           col.Type.DataType,
		UDTName:            col.Type.DataType,
		IsNullable:         yesNo(col.Nullable),
		CharacterMaxLength: col.Type.CharacterMaximumLength,
		OrdinalPosition:    position,
	}
	if col.Default != nil {
		def := fmt.Sprint(col.Default)
		c.ColumnDefault = &def
	}
	return c
}

func uniqueConstraint(tableName, column string) types.DBConstraint {
	return types.DBConstraint{
		Name:       tableName + "_" + column + "_key",
		TableName:  tableName,
		Type:       types.ConstraintUnique,
		ColumnName: column,
	}
}

func filterConstraints(in []types.DBConstraint, keep func(types.DBConstraint) bool) []types.DBConstraint {
	out := in[:0]
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
