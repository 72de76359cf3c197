// Package am loads capgen configuration ("am" as in "I am configured as").
//
// Sources, lowest precedence first: built-in defaults, ~/.capgen/capgen.toml,
// the nearest capgen.toml found walking up from the working directory, then
// CAPGEN_* environment variables (CAPGEN_REGISTRY_PATH, CAPGEN_LOG_VERBOSITY, ...).
package am

import (
	"encoding/json"
)

// Config represents the capgen configuration
type Config struct {
	Extract  ExtractConfig  `mapstructure:"extract" toml:"extract" json:"extract"`
	Registry RegistryConfig `mapstructure:"registry" toml:"registry" json:"registry"`
	Generate GenerateConfig `mapstructure:"generate" toml:"generate" json:"generate"`
	Lattice  LatticeConfig  `mapstructure:"lattice" toml:"lattice" json:"lattice"`
	Log      LogConfig      `mapstructure:"log" toml:"log" json:"log"`

	// BaseDir anchors relative paths: the directory of the project config
	// file, or the working directory when there is none.
	BaseDir string `mapstructure:"-" toml:"-" json:"-"`
}

// ExtractConfig controls how source packages are found
type ExtractConfig struct {
	Root string `mapstructure:"root" toml:"root" json:"root" validate:"required"`

	// Loader is "tree" (walk files directly) or "packages" (go/packages)
	Loader   string   `mapstructure:"loader" toml:"loader" json:"loader" validate:"oneof=tree packages"`
	Patterns []string `mapstructure:"patterns" toml:"patterns" json:"patterns" validate:"required_if=Loader packages"`

	// Doublestar globs relative to Root, used by the tree loader
	Include []string `mapstructure:"include" toml:"include" json:"include" validate:"dive,required"`
	Exclude []string `mapstructure:"exclude" toml:"exclude" json:"exclude" validate:"dive,required"`

	// Fail when no go.mod is found at or above Root
	ModuleRequired bool `mapstructure:"module_required" toml:"module_required" json:"module_required"`
}

// RegistryConfig locates the registry file
type RegistryConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" validate:"required"`
}

// GenerateConfig controls generated output
type GenerateConfig struct {
	OutputFile   string `mapstructure:"output_file" toml:"output_file" json:"output_file" validate:"required,endswith=.go,excludes=/"`
	RenamePrefix string `mapstructure:"rename_prefix" toml:"rename_prefix" json:"rename_prefix" validate:"required,goident"`
	Emitter      string `mapstructure:"emitter" toml:"emitter" json:"emitter" validate:"oneof=go plan"`
}

// LatticeConfig extends the built-in capability lattice
type LatticeConfig struct {
	Base       string            `mapstructure:"base" toml:"base" json:"base" validate:"required,goident"`
	Composites []CompositeConfig `mapstructure:"composite" toml:"composite,omitempty" json:"composite,omitempty" validate:"dive"`
}

// CompositeConfig is one [[lattice.composite]] entry. Names are kept in a
// value rather than a table key because keys are case-folded on load.
type CompositeConfig struct {
	Name     string   `mapstructure:"name" toml:"name" json:"name" validate:"required,goident"`
	Subsumes []string `mapstructure:"subsumes" toml:"subsumes" json:"subsumes" validate:"min=1,dive,goident"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json" json:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity" json:"verbosity" validate:"gte=0,lte=3"`
}

// CompositeTable returns the configured composites keyed by name.
func (l LatticeConfig) CompositeTable() map[string][]string {
	if len(l.Composites) == 0 {
		return nil
	}
	table := make(map[string][]string, len(l.Composites))
	for _, c := range l.Composites {
		table[c.Name] = c.Subsumes
	}
	return table
}

// String renders the configuration as indented JSON
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "<invalid config>"
	}
	return string(data)
}
