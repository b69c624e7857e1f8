package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by App.
const EnvPrefix = "SCHEMASYNC"

// Configuration keys. Environment variables use the upper-cased key with dashes
// replaced by underscores, e.g. SCHEMASYNC_DB_URL.
const (
	KeyDBURL         = "db-url"
	KeyDeclarations  = "declarations"
	KeySettingsTable = "settings-table"
	KeyLock          = "lock"
	KeyLockKey       = "lock-key"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"
	KeyOutput        = "output"
)

// App is the configuration of the schemasync command.
type App struct {
	DBURL         string
	Declarations  string
	SettingsTable string
	Lock          bool
	LockKey       string
	LogLevel      string
	LogFormat     string
	Output        string
}

// NewViper returns a viper instance with defaults and environment binding set up.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeySettingsTable, DefaultSettingsTable)
	v.SetDefault(KeyLock, true)
	v.SetDefault(KeyLockKey, DefaultLockKey)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyOutput, "text")
	return v
}

// LoadDotEnv loads environment variables from the given .env files. Missing
// files are not an error. With no arguments ".env" in the working directory is
// tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from v. When configFile is not empty it is merged
// first; flags bound to v and environment variables take precedence over it.
func Load(v *viper.Viper, configFile string) (*App, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	app := &App{
		DBURL:         v.GetString(KeyDBURL),
		Declarations:  v.GetString(KeyDeclarations),
		SettingsTable: v.GetString(KeySettingsTable),
		Lock:          v.GetBool(KeyLock),
		LockKey:       v.GetString(KeyLockKey),
		LogLevel:      strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:     strings.ToLower(v.GetString(KeyLogFormat)),
		Output:        strings.ToLower(v.GetString(KeyOutput)),
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// Validate checks required settings and enumerations.
func (a *App) Validate() error {
	if a.DBURL == "" {
		return fmt.Errorf("database url is required (--%s or %s_DB_URL)", KeyDBURL, EnvPrefix)
	}
	if a.Declarations == "" {
		return fmt.Errorf("declarations file is required (--%s or %s_DECLARATIONS)", KeyDeclarations, EnvPrefix)
	}
	switch a.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", a.LogFormat)
	}
	switch a.Output {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported output %q", a.Output)
	}
	return a.ReconcileOptions().Validate()
}

// ReconcileOptions derives the library options from the app configuration.
func (a *App) ReconcileOptions() *ReconcileOptions {
	return WithSettingsTable(a.SettingsTable).WithLockKey(a.LockKey)
}
