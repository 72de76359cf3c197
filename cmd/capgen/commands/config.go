package commands

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/capgen/am"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage capgen configuration",
	Long: `Display and manage capgen configuration.

Configuration sources (later overrides earlier):
1. Default values
2. User config (~/.capgen/capgen.toml)
3. Project config (capgen.toml, searched upward from the working directory)
4. Environment variables (CAPGEN_* prefix, e.g. CAPGEN_REGISTRY_PATH)

Examples:
  capgen config show                 # Show current configuration as TOML
  capgen config show --format json   # Show configuration as JSON
  capgen config validate             # Validate current configuration
  capgen config where                # Show which source set each value
  capgen config init                 # Write a default capgen.toml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runConfigValidate,
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	RunE:  runConfigWhere,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default capgen.toml",
	Long:  "Write the default configuration to ./capgen.toml, or to the given path.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var (
	configFormat string
	configForce  bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", FormatTOML, "Output format: toml, json, yaml")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file, keeping a backup")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configWhereCmd)
	ConfigCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigUnchecked(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if configFormat == FormatTOML {
		// The typed encoder keeps the [[lattice.composite]] layout capgen reads back
		data, err = cfg.TOML()
	} else {
		data, err = marshalAs(configFormat, cfg)
	}
	if err != nil {
		return err
	}
	if configFormat != FormatJSON {
		fmt.Fprintln(cmd.OutOrStdout(), "# capgen configuration")
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := LoadConfig(cmd); err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString(ConfigFlag)
	if path == "" {
		intro, err := am.GetConfigIntrospection()
		if err != nil {
			return err
		}
		path = intro.ConfigFile
	}
	if path != "" {
		if err := am.ValidateFile(path); err != nil {
			return err
		}
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runConfigWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(cmd.OutOrStdout(), "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintf(cmd.OutOrStdout(), "  2. [USER]     %s\n", am.UserConfigPath())
	fmt.Fprintf(cmd.OutOrStdout(), "  3. [PROJECT]  ./%s (searches up directories)\n", am.ProjectConfigName)
	fmt.Fprintln(cmd.OutOrStdout(), "  4. [ENV]      CAPGEN_* environment variables")
	fmt.Fprintln(cmd.OutOrStdout())

	if intro.ConfigFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Project config: %s\n\n", intro.ConfigFile)
	}

	settings := intro.Settings
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })

	table := pterm.TableData{{"Key", "Value", "Source"}}
	for _, s := range settings {
		source := string(s.Source)
		if s.SourcePath != "" {
			source += " (" + filepath.Base(s.SourcePath) + ")"
		}
		table = append(table, []string{s.Key, fmt.Sprint(s.Value), source})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).WithWriter(cmd.OutOrStdout()).Render()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := am.ProjectConfigName
	if len(args) == 1 {
		path = args[0]
	}
	if err := am.WriteDefault(path, configForce); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote %s", path)
	return nil
}
