// Package compare holds the pure comparators used to diff an existing column
// against its target shape. Every comparator returns nil when no change is
// needed, which keeps modify plans minimal.
package compare

import (
	"github.com/stokaro/schemasync/dbschema/types"
	"github.com/stokaro/schemasync/migration/plantypes"
)

// DataTypes compares the physical types, including the length of bounded
// string types.
func DataTypes(existing types.DBColumn, target plantypes.TargetColumn) *plantypes.Transition[types.ColumnType] {
	if SameType(existing.Type(), target.Type) {
		return nil
	}
	return &plantypes.Transition[types.ColumnType]{
		From: NormalizeType(existing.Type()),
		To:   target.Type,
	}
}

// Nullable compares the nullability of a column.
func Nullable(existing types.DBColumn, target plantypes.TargetColumn) *plantypes.Transition[bool] {
	if existing.Nullable() == target.IsNullable {
		return nil
	}
	return &plantypes.Transition[bool]{From: existing.Nullable(), To: target.IsNullable}
}

// Unique compares the presence of a single-column unique constraint.
func Unique(existing, target bool) *plantypes.Transition[bool] {
	if existing == target {
		return nil
	}
	return &plantypes.Transition[bool]{From: existing, To: target}
}

// ForeignKeys applies the presence rule for foreign keys on one column:
// both present or both absent is no change, only existing means drop it,
// only target means create it.
func ForeignKeys(existing *types.DBConstraint, target *types.ForeignKeySpec) *plantypes.ForeignKeyTransition {
	switch {
	case existing != nil && target == nil:
		return &plantypes.ForeignKeyTransition{Drop: existing.Name}
	case existing == nil && target != nil:
		fk := *target
		return &plantypes.ForeignKeyTransition{Create: &fk}
	default:
		return nil
	}
}

// ColumnConstraints indexes the single-column constraints of a table by column.
type ColumnConstraints struct {
	Unique     map[string]types.DBConstraint
	ForeignKey map[string]types.DBConstraint
	PrimaryKey map[string]types.DBConstraint
}

// IndexConstraints groups constraints by type and column.
func IndexConstraints(constraints []types.DBConstraint) ColumnConstraints {
	idx := ColumnConstraints{
		Unique:     make(map[string]types.DBConstraint),
		ForeignKey: make(map[string]types.DBConstraint),
		PrimaryKey: make(map[string]types.DBConstraint),
	}
	for _, c := range constraints {
		switch c.Type {
		case types.ConstraintUnique:
			idx.Unique[c.ColumnName] = c
		case types.ConstraintForeignKey:
			idx.ForeignKey[c.ColumnName] = c
		case types.ConstraintPrimaryKey:
			idx.PrimaryKey[c.ColumnName] = c
		}
	}
	return idx
}

// ForeignKeyOf returns the existing foreign key on column, or nil.
func (cc ColumnConstraints) ForeignKeyOf(column string) *types.DBConstraint {
	c, ok := cc.ForeignKey[column]
	if !ok {
		return nil
	}
	return &c
}

// IsUnique reports whether column carries a unique constraint.
func (cc ColumnConstraints) IsUnique(column string) bool {
	_, ok := cc.Unique[column]
	return ok
}
