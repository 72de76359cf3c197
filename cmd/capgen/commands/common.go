package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/capgen/am"
	"github.com/teranos/capgen/errors"
)

// ConfigFlag is the persistent --config flag shared by every command.
const ConfigFlag = "config"

// Output formats for show commands
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// LoadConfig loads the configuration named by --config, or the discovered
// one, and validates it.
func LoadConfig(cmd *cobra.Command) (*am.Config, error) {
	cfg, err := loadConfigUnchecked(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigUnchecked(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString(ConfigFlag)
	if path != "" {
		return am.LoadFromFile(path)
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

// PeekConfig loads the configuration without validating it, for settings
// needed before a command runs. Errors are reported by the command itself.
func PeekConfig(cmd *cobra.Command) *am.Config {
	cfg, err := loadConfigUnchecked(cmd)
	if err != nil {
		return nil
	}
	return cfg
}

// PrintError writes err with its hints and details.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, pterm.Red("Error: ")+err.Error())
	for _, d := range errors.GetAllDetails(err) {
		fmt.Fprintf(w, "  %s %s\n", pterm.Gray("detail:"), d)
	}
	for _, h := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "  %s %s\n", pterm.Yellow("hint:"), h)
	}
}

// marshalAs renders v in one of the show formats. YAML and TOML go through
// the JSON form so every format uses the same snake_case keys.
func marshalAs(format string, v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal to JSON")
	}

	format = strings.ToLower(format)
	switch format {
	case FormatJSON:
		return append(data, '\n'), nil
	case FormatYAML, FormatTOML:
	default:
		return nil, errors.Newf("unsupported format: %s (supported: json, yaml, toml)", format)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, errors.Wrap(err, "failed to re-read JSON")
	}
	if format == FormatYAML {
		out, err := yaml.Marshal(generic)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal to YAML")
		}
		return out, nil
	}
	out, err := toml.Marshal(generic)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal to TOML")
	}
	return out, nil
}
