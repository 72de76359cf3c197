package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// LatticeCmd represents the lattice command
var LatticeCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Show the capability lattice",
	Long: `Print every composite capability and the capabilities it subsumes,
least specific first. Stripping a capability from a target's composite
narrows forwarded results to the most specific capability left.

Composites beyond the built-in table come from [[lattice.composite]]
entries in capgen.toml.`,
	RunE: runLattice,
}

func runLattice(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	lat, err := cfg.BuildLattice()
	if err != nil {
		return err
	}

	table := pterm.TableData{{"Composite", "Subsumes"}}
	for _, name := range lat.Names() {
		subsumes, err := lat.Subsumes(name)
		if err != nil {
			return err
		}
		if name == lat.Base() {
			name += " (base)"
		}
		table = append(table, []string{name, strings.Join(subsumes, ", ")})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).WithWriter(cmd.OutOrStdout()).Render()
}
