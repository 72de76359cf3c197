package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/capgen/am"
	"github.com/teranos/capgen/extract"
	"github.com/teranos/capgen/logger"
	"github.com/teranos/capgen/version"
)

// ExtractCmd represents the extract command
var ExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Record capability sets in the registry",
	Long: `Scan Go sources for //capgen:register types and write their methods
to the registry file (default .capgen/registry.json).

Any schema violation aborts the run and leaves the previous registry in place.

Examples:
  capgen extract           # Scan once
  capgen extract --watch   # Re-run whenever a .go file changes`,
	RunE: runExtract,
}

var extractWatch bool

func init() {
	ExtractCmd.Flags().BoolVarP(&extractWatch, "watch", "w", false, "Re-run extraction when sources change")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	run := func(ctx context.Context) error {
		return extractOnce(ctx, cmd, cfg)
	}

	if !extractWatch {
		return run(cmd.Context())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		PrintError(cmd.ErrOrStderr(), err)
	}
	w, err := extract.NewWatcher(cfg.ExtractRoot(), func(ctx context.Context) error {
		err := run(ctx)
		if err != nil {
			PrintError(cmd.ErrOrStderr(), err)
			return err
		}
		logger.Infow("Registry refreshed", logger.FieldPath, cfg.RegistryPath())
		return nil
	})
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Watching %s for changes (Ctrl+C to stop)", cfg.ExtractRoot())
	return w.Run(ctx)
}

func extractOnce(ctx context.Context, cmd *cobra.Command, cfg *am.Config) error {
	loader, err := extract.NewLoader(cfg)
	if err != nil {
		return err
	}
	lat, err := cfg.BuildLattice()
	if err != nil {
		return err
	}

	res, err := extract.Run(ctx, extract.Options{
		Loader:       loader,
		Lattice:      lat,
		RegistryPath: cfg.RegistryPath(),
		Generator:    version.Get().Generator(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	table := pterm.TableData{{"Capability", "Methods", "Accessor", "Self"}}
	for _, set := range res.Sets {
		table = append(table, []string{
			set.Name.String(),
			fmt.Sprint(len(set.Methods)),
			set.SelfAccessor,
			set.SelfGeneric,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).WithWriter(out).Render(); err != nil {
		return err
	}

	status := "unchanged"
	if res.Written {
		status = "written"
	}
	fmt.Fprintf(out, "%s %d capability sets, %d methods from %d packages; registry %s (%s) in %s\n",
		pterm.Green("✓"), len(res.Sets), res.Methods(), res.Packages, res.Path, status, res.Duration.Round(1e6))
	return nil
}
