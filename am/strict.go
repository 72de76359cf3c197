package am

import (
	"github.com/BurntSushi/toml"

	"github.com/teranos/capgen/errors"
)

// UnknownKeys decodes the TOML file at path against Config and returns every
// key that matches no field, e.g. "generate.renmae_prefix". Viper ignores
// such keys silently.
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to decode %s", path), ErrInvalidConfig)
	}

	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown, nil
}

// ValidateFile checks that the file at path only uses known keys.
func ValidateFile(path string) error {
	unknown, err := UnknownKeys(path)
	if err != nil {
		return err
	}
	if len(unknown) == 0 {
		return nil
	}
	return errors.WithHint(
		errors.Mark(errors.Newf("%s: unknown keys %v", path, unknown), ErrInvalidConfig),
		"run `capgen config show` to see every supported key",
	)
}
