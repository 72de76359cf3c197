package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/logger"
)

var globalConfig *Config
var viperInstance *viper.Viper

// ConfigSources records which file set each flattened key, as it was loaded.
var ConfigSources = map[string]SourceInfo{}

// Load reads the capgen configuration using Viper. The result is cached.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() (*viper.Viper, error) {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	config.BaseDir = baseDir(v)
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path. Environment
// variables still override file values.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()

	if err := mergeFile(v, configPath, SourceProject); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	v.SetConfigFile(configPath)

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config from %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// ResolvePath anchors a relative path at the config base directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// RegistryPath returns the resolved registry location.
func (c *Config) RegistryPath() string {
	return c.ResolvePath(c.Registry.Path)
}

// ExtractRoot returns the resolved source root.
func (c *Config) ExtractRoot() string {
	return c.ResolvePath(c.Extract.Root)
}

// newViper returns a Viper with env binding and defaults, without files.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("CAPGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// initViper initializes Viper with configuration sources and defaults
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := newViper()

	// Merge configs in precedence order: user -> project -> env vars
	if err := mergeConfigFiles(v); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// findProjectConfig searches for capgen.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// UserConfigPath returns ~/.capgen/capgen.toml, or empty string when the
// home directory is unknown.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, ProjectConfigName)
}

// mergeConfigFiles merges configuration files in precedence order.
// Precedence (lowest to highest): user < project < env vars
func mergeConfigFiles(v *viper.Viper) error {
	type source struct {
		path string
		kind ConfigSource
	}
	var sources []source
	if p := UserConfigPath(); p != "" {
		sources = append(sources, source{p, SourceUser})
	}
	if p := findProjectConfig(); p != "" {
		sources = append(sources, source{p, SourceProject})
		// The project file anchors relative paths
		v.SetConfigFile(p)
	}

	for _, s := range sources {
		if _, err := os.Stat(s.path); err != nil {
			continue
		}
		if err := mergeFile(v, s.path, s.kind); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", s.path)
		}
		logger.Debugw("Merged config file",
			logger.FieldComponent, "capgen.am",
			logger.FieldPath, s.path)
	}
	return nil
}

// mergeFile reads one TOML file into v and records the source of every key
// it sets.
func mergeFile(v *viper.Viper, path string, kind ConfigSource) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	tmp.SetConfigType("toml")
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}

	settings := tmp.AllSettings()
	if err := v.MergeConfigMap(settings); err != nil {
		return err
	}

	for _, key := range flattenKeys(settings, "") {
		ConfigSources[key] = SourceInfo{Source: kind, Path: path}
	}
	return nil
}

func flattenKeys(settings map[string]interface{}, prefix string) []string {
	var keys []string
	for k, value := range settings {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := value.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(nested, full)...)
			continue
		}
		keys = append(keys, full)
	}
	return keys
}

func baseDir(v *viper.Viper) string {
	if f := v.ConfigFileUsed(); f != "" {
		if abs, err := filepath.Abs(filepath.Dir(f)); err == nil {
			return abs
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
