package am

import (
	"go/token"
	"reflect"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/lattice"
)

// ErrInvalidConfig is returned for any configuration that fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := configValidate.RegisterValidation("goident", validateGoIdent); err != nil {
		panic(err)
	}
}

// validateGoIdent accepts non-keyword Go identifiers
func validateGoIdent(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return token.IsIdentifier(s)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fieldError(verrs[0])
		}
		return errors.Mark(errors.Wrap(err, "config"), ErrInvalidConfig)
	}

	for _, field := range []struct {
		key      string
		patterns []string
	}{
		{"extract.include", c.Extract.Include},
		{"extract.exclude", c.Extract.Exclude},
	} {
		for _, p := range field.patterns {
			if !doublestar.ValidatePattern(p) {
				return errors.Mark(errors.Newf("%s: invalid glob %q", field.key, p), ErrInvalidConfig)
			}
		}
	}

	seen := make(map[string]bool, len(c.Lattice.Composites))
	for _, comp := range c.Lattice.Composites {
		if seen[comp.Name] {
			return errors.Mark(errors.Newf("lattice.composite: %s defined twice", comp.Name), ErrInvalidConfig)
		}
		seen[comp.Name] = true
	}

	// The lattice applies its own consistency rules
	if _, err := c.BuildLattice(); err != nil {
		return errors.Mark(errors.Wrap(err, "lattice"), ErrInvalidConfig)
	}

	return nil
}

// BuildLattice constructs the capability lattice described by the config.
func (c *Config) BuildLattice() (*lattice.Lattice, error) {
	return lattice.New(c.Lattice.Base, c.Lattice.CompositeTable())
}

func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.<section>.<field>"
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required", "required_if":
		msg = "is required"
	case "oneof":
		msg = "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "goident":
		msg = "must be a Go identifier"
	case "endswith":
		msg = "must end with " + fe.Param()
	case "excludes":
		msg = "must not contain " + fe.Param()
	case "gte", "lte":
		msg = "must be between 0 and 3"
	case "min":
		msg = "must not be empty"
	default:
		msg = "failed " + fe.Tag() + " check"
	}

	return errors.Mark(errors.Newf("%s %s, got %v", key, msg, fe.Value()), ErrInvalidConfig)
}
