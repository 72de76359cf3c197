package am

import (
	"github.com/spf13/viper"
)

// File and directory names
const (
	ProjectConfigName = "capgen.toml"
	UserConfigDir     = ".capgen"

	DefaultDirPermissions  = 0750
	DefaultFilePermissions = 0644
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Extraction defaults
	v.SetDefault("extract.root", ".")
	v.SetDefault("extract.loader", "tree")
	v.SetDefault("extract.patterns", []string{"./..."})
	v.SetDefault("extract.include", []string{"**/*.go"})
	v.SetDefault("extract.exclude", []string{"**/*_test.go"})
	v.SetDefault("extract.module_required", true)

	// Registry defaults
	v.SetDefault("registry.path", ".capgen/registry.json")

	// Generation defaults
	v.SetDefault("generate.output_file", "capgen_delegates.go")
	v.SetDefault("generate.rename_prefix", "Forward")
	v.SetDefault("generate.emitter", "go")

	// Lattice defaults; composites extend the built-in table
	v.SetDefault("lattice.base", "Base")

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)
}

// DefaultConfig returns the configuration produced by the defaults alone.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always decode
		panic(err)
	}
	return cfg
}
