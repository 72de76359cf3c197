package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/capgen/am"
	"github.com/teranos/capgen/emit"
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/extract"
	"github.com/teranos/capgen/registry"
	"github.com/teranos/capgen/synth"
)

// ErrStale is returned by check when generated files are out of date.
var ErrStale = errors.New("generated files are stale")

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate forwarding methods for capgen:delegate targets",
	Long: `Read the registry and write one generated file per package holding
forwarding methods for every //capgen:delegate type.

A target that fails is reported and skipped; the other targets are still
written and the command exits non-zero.

Examples:
  capgen generate              # Write generated files
  capgen generate --dry-run    # Show which files would change
  capgen generate --emit plan  # Print the synthesized methods as JSON`,
	RunE: runGenerate,
}

// CheckCmd represents the check command
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify generated files are up to date",
	Long: `Render every generated file in memory and compare it with the file on
disk. Exits non-zero and prints a diff for each stale file.`,
	RunE: runCheck,
}

var (
	generateDryRun bool
	generateEmit   string
)

func init() {
	GenerateCmd.Flags().BoolVarP(&generateDryRun, "dry-run", "n", false, "Report changes without writing")
	GenerateCmd.Flags().StringVar(&generateEmit, "emit", "", "Emitter: go or plan (default from config)")
}

func newDriver(cfg *am.Config, format string) (*synth.Driver, error) {
	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}
	lat, err := cfg.BuildLattice()
	if err != nil {
		return nil, err
	}
	loader, err := extract.NewLoader(cfg)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = cfg.Generate.Emitter
	}
	emitter, err := emit.New(format)
	if err != nil {
		return nil, err
	}
	return &synth.Driver{
		Loader:     loader,
		Synth:      synth.New(reg, lat, cfg.Generate.RenamePrefix),
		Emitter:    emitter,
		OutputFile: cfg.Generate.OutputFile,
	}, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	format := generateEmit
	if format == "" {
		format = cfg.Generate.Emitter
	}
	driver, err := newDriver(cfg, format)
	if err != nil {
		return err
	}

	// Plans are for reading, never for writing next to sources
	if format == emit.FormatPlan || generateDryRun {
		plan, err := driver.Render(cmd.Context())
		if err != nil {
			return err
		}
		if format == emit.FormatPlan {
			for _, out := range plan.Outputs {
				if _, err := cmd.OutOrStdout().Write(out.Content); err != nil {
					return err
				}
			}
		} else {
			printDryRun(cmd, cfg, plan)
		}
		return reportFailures(cmd, plan.Failures)
	}

	res, err := driver.Generate(cmd.Context())
	if err != nil && !errors.Is(err, synth.ErrTargetsFailed) {
		return err
	}
	out := cmd.OutOrStdout()
	for _, path := range res.Written {
		fmt.Fprintf(out, "%s %s\n", pterm.Green("✓ wrote"), rel(cfg, path))
	}
	for _, path := range res.Removed {
		fmt.Fprintf(out, "%s %s\n", pterm.Yellow("✗ removed"), rel(cfg, path))
	}
	fmt.Fprintf(out, "%d files written, %d unchanged, %d removed; %d methods in %s\n",
		len(res.Written), len(res.Unchanged), len(res.Removed), res.Methods(), res.Duration.Round(1e6))
	return reportFailures(cmd, res.Failures)
}

func printDryRun(cmd *cobra.Command, cfg *am.Config, plan *synth.Plan) {
	out := cmd.OutOrStdout()
	for _, o := range plan.Outputs {
		current, err := os.ReadFile(o.Path)
		status := pterm.Green("would write")
		if err == nil && bytes.Equal(current, o.Content) {
			status = pterm.Gray("unchanged")
		}
		fmt.Fprintf(out, "%s %s (%d targets, %d methods)\n", status, rel(cfg, o.Path), o.Targets, o.Methods)
	}
	for _, path := range plan.Orphans {
		fmt.Fprintf(out, "%s %s\n", pterm.Yellow("would remove"), rel(cfg, path))
	}
}

// reportFailures prints each failed target with its hints and returns a
// summary error, or nil when every target succeeded.
func reportFailures(cmd *cobra.Command, failures []*synth.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	for _, f := range failures {
		PrintError(cmd.ErrOrStderr(), f)
	}
	return errors.Mark(errors.Newf("%d targets failed", len(failures)), synth.ErrTargetsFailed)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	driver, err := newDriver(cfg, emit.FormatGo)
	if err != nil {
		return err
	}

	stale, plan, err := driver.Check(cmd.Context())
	if err != nil && !errors.Is(err, synth.ErrTargetsFailed) {
		return err
	}
	if err := reportFailures(cmd, plan.Failures); err != nil {
		return err
	}

	if len(stale) == 0 {
		pterm.Success.Printfln("%d generated files up to date", len(plan.Outputs))
		return nil
	}
	for _, s := range stale {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", pterm.Red("stale"), rel(cfg, s.Path), s.Diff)
	}
	return errors.WithHint(
		errors.Wrapf(ErrStale, "%d of %d files", len(stale), len(plan.Outputs)+len(plan.Orphans)),
		"run `capgen generate`",
	)
}

// rel shortens path for display relative to the project directory.
func rel(cfg *am.Config, path string) string {
	if r, err := filepath.Rel(cfg.BaseDir, path); err == nil && !filepath.IsAbs(r) && r != "" && r[0] != '.' {
		return r
	}
	return path
}
