package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/capgen/cmd/capgen/commands"
	"github.com/teranos/capgen/logger"
)

var rootCmd = &cobra.Command{
	Use:   "capgen",
	Short: "capgen - capability composition code generator",
	Long: `capgen composes Go types from reusable capability sets.

A capability set is a type marked //capgen:register whose methods take the
abstract self value. A target type marked //capgen:delegate gets forwarding
methods for the capabilities it selects, with results narrowed through the
capability lattice.

Available commands:
  extract   - Record capability sets in the registry
  generate  - Write forwarding methods for delegate targets
  check     - Verify generated files are up to date
  lattice   - Show the capability lattice
  registry  - Inspect the registry
  config    - Manage capgen configuration

Examples:
  capgen extract           # Scan sources and write .capgen/registry.json
  capgen generate          # Write capgen_delegates.go in each target package
  capgen check             # Fail in CI when generated files are stale`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")

		// Config may add verbosity; a broken config is reported by the command
		if cfg := commands.PeekConfig(cmd); cfg != nil {
			jsonLogs = jsonLogs || cfg.Log.JSON
			if cfg.Log.Verbosity > verbosity {
				verbosity = cfg.Log.Verbosity
			}
		}
		return logger.Initialize(jsonLogs, verbosity)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String(commands.ConfigFlag, "", "Config file (default: nearest capgen.toml)")

	rootCmd.AddCommand(commands.ExtractCmd)
	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.LatticeCmd)
	rootCmd.AddCommand(commands.RegistryCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if logger.JSONOutput {
			logger.Errorw("Command failed", logger.FieldError, err)
			logger.Cleanup()
		}
		commands.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
