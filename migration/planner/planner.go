// Package planner orchestrates a reconciliation run. It asks every entry type
// and settings type for a plan, aggregates them into one MigrationPlan and then
// applies that plan in a fixed, dependency-safe order.
//
// Planning only reads. Every write happens in the apply phase after the whole
// plan exists, and each write commits on its own: a failed run leaves an
// individually consistent schema and re-running Migrate applies the remainder.
package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stokaro/schemasync/config"
	"github.com/stokaro/schemasync/core/entity"
	"github.com/stokaro/schemasync/dbschema/types"
	"github.com/stokaro/schemasync/migration/entrydiff"
	"github.com/stokaro/schemasync/migration/lock"
	"github.com/stokaro/schemasync/migration/plantypes"
	"github.com/stokaro/schemasync/migration/settingsdiff"
)

// Reconcilable is one reconciliation strategy bound to one declared type.
// Relational entry types and settings types both implement it.
type Reconcilable interface {
	// Plan computes the changes needed without writing anything.
	Plan(ctx context.Context) (plantypes.Plan, error)
	// Describe names what is being reconciled, for logs and errors.
	Describe() string
}

// Planner plans and applies migrations for a registry of declared types.
type Planner struct {
	db       types.Database
	registry *entity.Registry
	opts     *config.ReconcileOptions
	logger   *slog.Logger
	sink     func(string)
	locker   lock.Locker
	newID    func() string
}

// New creates a planner. A nil opts means config.DefaultReconcileOptions.
func New(db types.Database, registry *entity.Registry, opts *config.ReconcileOptions) *Planner {
	if opts == nil {
		opts = config.DefaultReconcileOptions()
	}
	return &Planner{
		db:       db,
		registry: registry,
		opts:     opts,
		logger:   slog.Default(),
		sink:     func(string) {},
	}
}

// WithLogger sets the logger for the planner
func (p *Planner) WithLogger(l *slog.Logger) *Planner {
	tmp := *p
	tmp.logger = l
	return &tmp
}

// WithSink sets a callback receiving every result line as it is applied.
func (p *Planner) WithSink(sink func(string)) *Planner {
	tmp := *p
	tmp.sink = sink
	return &tmp
}

// WithLocker makes Migrate hold the given lock for the whole run.
func (p *Planner) WithLocker(l lock.Locker) *Planner {
	tmp := *p
	tmp.locker = l
	return &tmp
}

// WithIDGenerator replaces the generator of settings row ids.
func (p *Planner) WithIDGenerator(gen func() string) *Planner {
	tmp := *p
	tmp.newID = gen
	return &tmp
}

// Reconcilables returns a fresh migrator per declared type: entry types first,
// then settings types, each in declaration order.
func (p *Planner) Reconcilables() []Reconcilable {
	var rs []Reconcilable
	for _, e := range p.registry.EntryTypes() {
		rs = append(rs, entrydiff.New(p.db, p.registry, e).WithLogger(p.logger))
	}
	for _, s := range p.registry.SettingsTypes() {
		rs = append(rs, settingsdiff.New(p.db, p.opts.SettingsTable, s).WithLogger(p.logger))
	}
	return rs
}

// PlanMigration computes the aggregate plan. It never writes.
func (p *Planner) PlanMigration(ctx context.Context) (*plantypes.MigrationPlan, error) {
	if err := p.opts.Validate(); err != nil {
		return nil, err
	}
	for _, e := range p.registry.EntryTypes() {
		if e.TableName() == p.opts.SettingsTable {
			return nil, fmt.Errorf("entry type %s uses the settings table %s", e.Name, p.opts.SettingsTable)
		}
		for _, child := range e.Children {
			if e.ChildTableName(child.Name) == p.opts.SettingsTable {
				return nil, fmt.Errorf("child type %s.%s uses the settings table %s", e.Name, child.Name, p.opts.SettingsTable)
			}
		}
	}

	plan := &plantypes.MigrationPlan{
		Entries:       []plantypes.EntryPlan{},
		Settings:      []plantypes.SettingsPlan{},
		SettingsTable: plantypes.SettingsTablePlan{Name: p.opts.SettingsTable},
	}

	for _, r := range p.Reconcilables() {
		p.logger.Debug("planning", "target", r.Describe())
		sub, err := r.Plan(ctx)
		if err != nil {
			p.logger.Error("planning failed", "target", r.Describe(), "error", err)
			return nil, fmt.Errorf("failed to plan %s: %w", r.Describe(), err)
		}
		switch sp := sub.(type) {
		case plantypes.EntryPlan:
			plan.Entries = append(plan.Entries, sp)
		case plantypes.SettingsPlan:
			plan.Settings = append(plan.Settings, sp)
		default:
			return nil, fmt.Errorf("unsupported plan type %T from %s", sub, r.Describe())
		}
		plan.Summary = plan.Summary.Add(sub.Summary())
	}

	exists, err := p.db.TableExists(ctx, p.opts.SettingsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to check settings table %s: %w", p.opts.SettingsTable, err)
	}
	plan.SettingsTable.Create = !exists

	p.logger.Info("migration planned",
		"entries", len(plan.Entries),
		"settings", len(plan.Settings),
		"changes", plan.Summary.Total(),
		"createSettingsTable", plan.SettingsTable.Create,
	)
	return plan, nil
}

// Migrate plans and applies the migration. It returns one line per applied
// step, in order. On failure the lines of the steps applied so far are returned
// together with an *ApplyError.
func (p *Planner) Migrate(ctx context.Context) ([]string, error) {
	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, p.opts.LockKey)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		defer release()
	}

	plan, err := p.PlanMigration(ctx)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, plan)
}

// Apply executes a previously computed plan.
func (p *Planner) Apply(ctx context.Context, plan *plantypes.MigrationPlan) ([]string, error) {
	a := newApplier(p, plan)
	err := a.run(ctx)
	if err != nil {
		p.logger.Error("migration failed", "error", err, "applied", len(a.lines))
		return a.lines, err
	}
	p.logger.Info("migration applied", "steps", len(a.lines))
	return a.lines, nil
}
