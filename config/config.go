// Package config provides configuration options for the schemasync reconciler.
//
// ReconcileOptions is the programmatic API used when embedding the reconciler as
// a library. App is the configuration of the command line tool, loaded from
// flags, environment variables, an optional .env file and an optional config file.
package config

import (
	"fmt"
	"regexp"
)

const (
	// DefaultSettingsTable is the shared table holding settings rows.
	DefaultSettingsTable = "settings"

	// DefaultLockKey names the cross-process lock taken around a migration run.
	DefaultLockKey = "schemasync"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReconcileOptions contains configuration options for a reconciliation run.
type ReconcileOptions struct {
	// SettingsTable is the name of the shared key/value table that stores the
	// fields of every settings type as (settingsType, field, value) rows.
	SettingsTable string

	// LockKey identifies the migration lock. Runs using the same key against the
	// same database never overlap when a locker is configured.
	LockKey string
}

// DefaultReconcileOptions returns the default options.
func DefaultReconcileOptions() *ReconcileOptions {
	return &ReconcileOptions{
		SettingsTable: DefaultSettingsTable,
		LockKey:       DefaultLockKey,
	}
}

// WithSettingsTable returns default options using the given settings table.
//
// Example:
//
//	opts := config.WithSettingsTable("app_settings")
func WithSettingsTable(table string) *ReconcileOptions {
	opts := DefaultReconcileOptions()
	opts.SettingsTable = table
	return opts
}

// WithLockKey returns a copy of the options using the given lock key.
func (o *ReconcileOptions) WithLockKey(key string) *ReconcileOptions {
	tmp := *o
	tmp.LockKey = key
	return &tmp
}

// Validate checks that the options can be used to build SQL.
func (o *ReconcileOptions) Validate() error {
	if !identifierPattern.MatchString(o.SettingsTable) {
		return fmt.Errorf("invalid settings table name %q", o.SettingsTable)
	}
	if o.LockKey == "" {
		return fmt.Errorf("lock key must not be empty")
	}
	return nil
}

// SettingsIndexName returns the name of the lookup index on the settingsType
// column of the settings table.
func (o *ReconcileOptions) SettingsIndexName() string {
	return o.SettingsTable + "_settingsType_idx"
}
