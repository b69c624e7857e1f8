// Package cli holds the bootstrap shared by the schemasync subcommands: flag
// registration bound to viper, logger construction and opening a database
// session with a ready planner.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stokaro/schemasync/config"
	"github.com/stokaro/schemasync/core/entity"
	"github.com/stokaro/schemasync/core/platform"
	"github.com/stokaro/schemasync/dbschema"
	"github.com/stokaro/schemasync/migration/lock"
	"github.com/stokaro/schemasync/migration/planner"
	"github.com/stokaro/schemasync/migration/report"
)

const (
	configFlag  = "config"
	envFileFlag = "env-file"
)

// mysqlLockTimeout bounds the wait for a MySQL named lock; GET_LOCK cannot
// wait forever.
const mysqlLockTimeout = 10 * time.Minute

func flagMap() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		configFlag: &cobraflags.StringFlag{
			Name:  configFlag,
			Value: "",
			Usage: "Configuration file (yaml, toml or json)",
		},
		envFileFlag: &cobraflags.StringFlag{
			Name:  envFileFlag,
			Value: ".env",
			Usage: "Environment file loaded before reading the configuration",
		},
		config.KeyDBURL: &cobraflags.StringFlag{
			Name:  config.KeyDBURL,
			Value: "",
			Usage: "Database URL (postgres://, mysql:// or mariadb://)",
		},
		config.KeyDeclarations: &cobraflags.StringFlag{
			Name:  config.KeyDeclarations,
			Value: "",
			Usage: "Declarations file (.yaml, .yml or .toml)",
		},
		config.KeySettingsTable: &cobraflags.StringFlag{
			Name:  config.KeySettingsTable,
			Value: config.DefaultSettingsTable,
			Usage: "Name of the shared settings table",
		},
		config.KeyLock: &cobraflags.BoolFlag{
			Name:  config.KeyLock,
			Value: true,
			Usage: "Hold a database lock while migrating",
		},
		config.KeyLockKey: &cobraflags.StringFlag{
			Name:  config.KeyLockKey,
			Value: config.DefaultLockKey,
			Usage: "Key of the migration lock",
		},
		config.KeyLogLevel: &cobraflags.StringFlag{
			Name:  config.KeyLogLevel,
			Value: "info",
			Usage: "Log level (debug, info, warn, error)",
		},
		config.KeyLogFormat: &cobraflags.StringFlag{
			Name:  config.KeyLogFormat,
			Value: "text",
			Usage: "Log format (text, json)",
		},
		config.KeyOutput: &cobraflags.StringFlag{
			Name:  config.KeyOutput,
			Value: "text",
			Usage: "Report format (text, json)",
		},
	}
}

// Command is a subcommand wired to its own viper instance.
type Command struct {
	Cmd   *cobra.Command
	viper *viper.Viper
	flags map[string]cobraflags.Flag
}

// NewCommand registers the shared flags on cmd and binds them to viper, so
// flags override environment variables which override the config file.
func NewCommand(cmd *cobra.Command) *Command {
	c := &Command{Cmd: cmd, viper: config.NewViper(), flags: flagMap()}
	cobraflags.RegisterMap(cmd, c.flags)
	for name := range c.flags {
		if name == configFlag || name == envFileFlag {
			continue
		}
		_ = c.viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return c
}

// Viper returns the viper instance bound to the command flags.
func (c *Command) Viper() *viper.Viper {
	return c.viper
}

// LoadConfig loads the env file and the configuration.
func (c *Command) LoadConfig() (*config.App, error) {
	if err := config.LoadDotEnv(c.flags[envFileFlag].GetString()); err != nil {
		return nil, err
	}
	return config.Load(c.viper, c.flags[configFlag].GetString())
}

// NewLogger builds the slog logger selected by level and format.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

// Session is an open database with everything a subcommand needs.
type Session struct {
	App     *config.App
	Logger  *slog.Logger
	Conn    *dbschema.DatabaseConnection
	Planner *planner.Planner
	Report  *report.Writer
}

// Open loads the configuration and declarations, connects to the database and
// builds the planner. Logs go to the command's stderr and reports to its stdout.
func (c *Command) Open(ctx context.Context) (*Session, error) {
	app, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(c.Cmd.ErrOrStderr(), app.LogLevel, app.LogFormat)
	if err != nil {
		return nil, err
	}

	registry, err := entity.LoadFile(app.Declarations)
	if err != nil {
		return nil, err
	}
	logger.Debug("declarations loaded",
		"file", app.Declarations,
		"entryTypes", len(registry.EntryTypes()),
		"settingsTypes", len(registry.SettingsTypes()),
	)

	conn, err := dbschema.ConnectToDatabase(ctx, app.DBURL, logger)
	if err != nil {
		return nil, err
	}

	format, err := report.ParseFormat(app.Output)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	p := planner.New(conn.Database(), registry, app.ReconcileOptions()).WithLogger(logger)
	if app.Lock {
		p = p.WithLocker(newLocker(conn))
	}

	return &Session{
		App:     app,
		Logger:  logger,
		Conn:    conn,
		Planner: p,
		Report:  report.New(c.Cmd.OutOrStdout(), format, !color.NoColor),
	}, nil
}

// Close releases the database connection.
func (s *Session) Close() {
	if err := s.Conn.Close(); err != nil {
		s.Logger.Warn("failed to close database connection", "error", err)
	}
}

func newLocker(conn *dbschema.DatabaseConnection) lock.Locker {
	if platform.IsMySQLFamily(conn.Info().Dialect) {
		return lock.NewMySQLLock(conn.DB(), mysqlLockTimeout)
	}
	return lock.NewPostgresLock(conn.DB())
}
