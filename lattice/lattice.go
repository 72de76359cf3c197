// Package lattice holds the static table of composite capabilities and the
// return-type policy that narrows a forwarded result after stripping.
//
// The table is domain knowledge. It is never derived from the registry; new
// composites are added in code or in the [lattice] section of capgen.toml.
package lattice

import (
	"sort"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/internal/util"
	"github.com/teranos/capgen/ir"
)

// DefaultBase is the capability every composite subsumes first.
const DefaultBase = "Base"

var (
	// ErrUnknownCapabilityComposite is returned when the target's composite is not in the table
	ErrUnknownCapabilityComposite = errors.Category(errors.ErrSelection, "unknown capability composite")

	// ErrInvalidComposite is returned for a configured composite that is empty or names an unknown capability
	ErrInvalidComposite = errors.Category(errors.ErrSchema, "invalid lattice composite")
)

// Lattice maps each composite capability to the capabilities it subsumes,
// least to most specific.
type Lattice struct {
	base  string
	table map[string][]string
}

// Default returns the built-in table with base "Base".
func Default() *Lattice {
	l, _ := New(DefaultBase, nil)
	return l
}

// New builds the built-in table around base and adds extra composites.
// Extra entries may override built-in ones. Every listed name must itself be
// a composite in the final table.
func New(base string, extra map[string][]string) (*Lattice, error) {
	if base == "" {
		base = DefaultBase
	}
	if !ir.IsIdentifier(base) {
		return nil, errors.Wrapf(ErrInvalidComposite, "base %q is not an identifier", base)
	}

	table := map[string][]string{
		base:               {base},
		"ExactSize":        {base, "ExactSize"},
		"DoubleEnded":      {base, "DoubleEnded"},
		"SizedDoubleEnded": {base, "ExactSize", "DoubleEnded"},
	}
	for name, subsumes := range extra {
		table[name] = append([]string(nil), subsumes...)
	}

	for _, name := range util.SortedKeys(table) {
		subsumes := table[name]
		if !ir.IsIdentifier(name) {
			return nil, errors.Wrapf(ErrInvalidComposite, "composite %q is not an identifier", name)
		}
		if len(subsumes) == 0 {
			return nil, errors.Wrapf(ErrInvalidComposite, "composite %s subsumes nothing", name)
		}
		seen := make(map[string]bool, len(subsumes))
		for _, s := range subsumes {
			if _, ok := table[s]; !ok {
				return nil, errors.WithHint(
					errors.Wrapf(ErrInvalidComposite, "composite %s lists unknown capability %s", name, s),
					"every capability in a composite list needs its own [[lattice.composite]] entry",
				)
			}
			if seen[s] {
				return nil, errors.Wrapf(ErrInvalidComposite, "composite %s lists %s twice", name, s)
			}
			seen[s] = true
		}
	}

	return &Lattice{base: base, table: table}, nil
}

// Base returns the fallback capability.
func (l *Lattice) Base() string {
	return l.base
}

// Known reports whether name is a capability in the table.
func (l *Lattice) Known(name string) bool {
	_, ok := l.table[name]
	return ok
}

// Names lists the capabilities, least specific first, ties broken by name.
func (l *Lattice) Names() []string {
	names := util.SortedKeys(l.table)
	sort.SliceStable(names, func(i, j int) bool {
		return len(l.table[names[i]]) < len(l.table[names[j]])
	})
	return names
}

// Subsumes returns a copy of the composite's list.
func (l *Lattice) Subsumes(composite string) ([]string, error) {
	list, ok := l.table[composite]
	if !ok {
		return nil, l.unknown(composite)
	}
	return append([]string(nil), list...), nil
}

// Resolve drops every stripped capability from the composite's list and
// returns the most specific survivor, or the base capability when none is left.
func (l *Lattice) Resolve(composite string, strips []string) (string, error) {
	list, ok := l.table[composite]
	if !ok {
		return "", l.unknown(composite)
	}

	stripped := make(map[string]bool, len(strips))
	for _, s := range strips {
		stripped[s] = true
	}
	for i := len(list) - 1; i >= 0; i-- {
		if !stripped[list[i]] {
			return list[i], nil
		}
	}
	return l.base, nil
}

func (l *Lattice) unknown(composite string) error {
	err := errors.Wrapf(ErrUnknownCapabilityComposite, "%q", composite)
	if hint := util.DidYouMean(composite, l.Names()); hint != "" {
		err = errors.WithHint(err, hint)
	}
	return errors.WithHint(err, "set composite=<Name> in the capgen:delegate directive or add the composite as a [[lattice.composite]] entry")
}
