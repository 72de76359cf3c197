// Package registry persists extracted capability sets. The registry file is
// the only channel between `capgen extract` and `capgen generate`, so it is
// versioned, validated against a schema on load and fingerprinted.
package registry

import (
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/internal/util"
	"github.com/teranos/capgen/ir"
)

const (
	// SchemaVersion is written into every registry file.
	SchemaVersion = "1.1.0"

	// SupportedVersions is the range of schema versions Load accepts.
	SupportedVersions = "^1.0.0"

	// DefaultPath is where extract writes and generate reads, relative to the project root.
	DefaultPath = ".capgen/registry.json"
)

var (
	ErrRegistryNotFound    = errors.Category(errors.ErrRegistry, "registry not found")
	ErrDecode              = errors.Category(errors.ErrRegistry, "registry decode failed")
	ErrSchemaMismatch      = errors.Category(errors.ErrRegistry, "registry schema version mismatch")
	ErrMissingField        = errors.Category(errors.ErrRegistry, "registry missing field")
	ErrFingerprintMismatch = errors.Category(errors.ErrRegistry, "registry fingerprint mismatch")

	// ErrDuplicateCapability is returned when two sets share a short name;
	// selections address capabilities by short name only.
	ErrDuplicateCapability = errors.Category(errors.ErrSchema, "duplicate capability")
)

// Envelope is the on-disk document.
type Envelope struct {
	SchemaVersion  string             `json:"schema_version"`
	Generator      string             `json:"generator,omitempty"`
	Fingerprint    string             `json:"fingerprint,omitempty"`
	CapabilitySets []ir.CapabilitySet `json:"capability_sets"`
}

// Registry is a loaded, indexed set of capability records. It is read-only.
type Registry struct {
	envelope Envelope
	path     string
	byName   map[string]int
}

// New indexes sets by short name.
func New(sets []ir.CapabilitySet) (*Registry, error) {
	r := &Registry{
		envelope: Envelope{SchemaVersion: SchemaVersion, CapabilitySets: normalize(sets)},
		byName:   make(map[string]int, len(sets)),
	}
	for i := range r.envelope.CapabilitySets {
		set := &r.envelope.CapabilitySets[i]
		short := set.ShortName()
		if j, dup := r.byName[short]; dup {
			return nil, errors.WithHint(
				errors.Wrapf(ErrDuplicateCapability, "%s and %s", r.envelope.CapabilitySets[j].Name, set.Name),
				"rename one of the types; delegate directives select capabilities by type name",
			)
		}
		r.byName[short] = i
	}
	return r, nil
}

// Lookup returns the capability set with the given short name.
func (r *Registry) Lookup(short string) (*ir.CapabilitySet, bool) {
	i, ok := r.byName[short]
	if !ok {
		return nil, false
	}
	return &r.envelope.CapabilitySets[i], true
}

// Names returns every short name, sorted.
func (r *Registry) Names() []string {
	return util.SortedKeys(r.byName)
}

// Sets returns the records in registry order.
func (r *Registry) Sets() []ir.CapabilitySet {
	return r.envelope.CapabilitySets
}

// Envelope returns the document as loaded, including its header.
func (r *Registry) Envelope() Envelope {
	return r.envelope
}

// Path is the file the registry was loaded from, if any.
func (r *Registry) Path() string {
	return r.path
}

// normalize replaces nil slices with empty ones so every required array is
// present in the file and the fingerprint does not depend on nil versus empty.
func normalize(sets []ir.CapabilitySet) []ir.CapabilitySet {
	out := make([]ir.CapabilitySet, len(sets))
	for i, set := range sets {
		if set.Methods == nil {
			set.Methods = []ir.Method{}
		}
		methods := make([]ir.Method, len(set.Methods))
		for j, m := range set.Methods {
			if m.Args == nil {
				m.Args = []ir.Argument{}
			}
			if m.Strips == nil {
				m.Strips = []string{}
			}
			methods[j] = m
		}
		set.Methods = methods
		out[i] = set
	}
	return out
}
