package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/schemasync/config"
	"github.com/stokaro/schemasync/core/entity"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a declarations file without connecting to a database",
	Long: `Load and validate a declarations file and print the declared types.

Examples:
  schemasync validate --declarations types.yaml
  SCHEMASYNC_DECLARATIONS=types.toml schemasync validate`,
	Args: cobra.NoArgs,
	RunE: validateCommand,
}

var validateFlags = map[string]cobraflags.Flag{
	config.KeyDeclarations: &cobraflags.StringFlag{
		Name:  config.KeyDeclarations,
		Value: "",
		Usage: "Declarations file (.yaml, .yml or .toml)",
	},
}

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cobraflags.RegisterMap(validateCmd, validateFlags)
	return validateCmd
}

func validateCommand(cmd *cobra.Command, _ []string) error {
	path := validateFlags[config.KeyDeclarations].GetString()
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "_DECLARATIONS")
	}
	if path == "" {
		return fmt.Errorf("declarations file is required (--%s)", config.KeyDeclarations)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("error resolving path: %w", err)
	}

	registry, err := entity.LoadFile(absPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Declarations: %s\n", absPath)
	fmt.Fprintln(out, strings.Repeat("=", len(absPath)+14))

	children := 0
	for _, e := range registry.EntryTypes() {
		children += len(e.Children)
	}
	fmt.Fprintf(out, "Found %d entry types, %d child types, %d settings types\n\n",
		len(registry.EntryTypes()), children, len(registry.SettingsTypes()))

	for _, e := range registry.EntryTypes() {
		fmt.Fprintf(out, "entry %s -> table %s (%s id, %d fields)\n", e.Name, e.TableName(), e.IDMode.OrDefault(), len(e.Fields))
		for _, child := range e.Children {
			fmt.Fprintf(out, "  child %s -> table %s (%d fields)\n", child.Name, e.ChildTableName(child.Name), len(child.Fields))
		}
	}
	for _, s := range registry.SettingsTypes() {
		fmt.Fprintf(out, "settings %s (%d fields)\n", s.Name, len(s.Fields))
	}
	return nil
}
