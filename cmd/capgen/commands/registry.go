package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/capgen/registry"
)

// RegistryCmd represents the registry command
var RegistryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the capability registry",
	Long: `Inspect the registry written by capgen extract.

Examples:
  capgen registry show                 # Show the registry as JSON
  capgen registry show --format yaml   # Show the registry as YAML
  capgen registry schema               # Print the registry JSON schema`,
}

var registryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the registry contents",
	RunE:  runRegistryShow,
}

var registrySchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema registry files are validated against",
	RunE:  runRegistrySchema,
}

var registryFormat string

func init() {
	registryShowCmd.Flags().StringVar(&registryFormat, "format", FormatJSON, "Output format: json, yaml, toml")

	RegistryCmd.AddCommand(registryShowCmd)
	RegistryCmd.AddCommand(registrySchemaCmd)
}

func runRegistryShow(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		return err
	}

	data, err := marshalAs(registryFormat, reg.Envelope())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runRegistrySchema(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(registry.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
