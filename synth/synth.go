// Package synth decides which forwarding methods a target type gets and what
// they return. It reads the registry and never touches source.
package synth

import (
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/internal/util"
	"github.com/teranos/capgen/ir"
	"github.com/teranos/capgen/lattice"
	"github.com/teranos/capgen/logger"
	"github.com/teranos/capgen/registry"
)

// DefaultRenamePrefix is prepended to generated methods that would shadow a
// method the host type declares itself.
const DefaultRenamePrefix = "Forward"

// Synthesizer plans forwarding methods from registry records.
type Synthesizer struct {
	registry     *registry.Registry
	lattice      *lattice.Lattice
	renamePrefix string
	log          *zap.SugaredLogger
}

// New creates a Synthesizer. An empty renamePrefix means DefaultRenamePrefix.
func New(reg *registry.Registry, lat *lattice.Lattice, renamePrefix string) *Synthesizer {
	if lat == nil {
		lat = lattice.Default()
	}
	if renamePrefix == "" {
		renamePrefix = DefaultRenamePrefix
	}
	return &Synthesizer{
		registry:     reg,
		lattice:      lat,
		renamePrefix: renamePrefix,
		log:          logger.ComponentLogger("capgen.synth"),
	}
}

// Synthesize returns every method generated for req, or an error and no
// methods at all.
func (s *Synthesizer) Synthesize(req Request) ([]MethodDefinition, error) {
	log := logger.ChildLogger(s.log, logger.FieldTarget, req.TargetType)

	if len(req.Selections) == 0 {
		return nil, errors.Wrapf(ErrEmptySelection, "target %s", req.TargetType)
	}

	composite := req.TargetComposite()
	generated := map[string]string{} // name -> capability that produced it
	var defs []MethodDefinition

	for _, sel := range req.Selections {
		set, ok := s.registry.Lookup(sel.Capability)
		if !ok {
			err := errors.Wrapf(ErrUnknownCapability, "%s", sel.Capability)
			if hint := util.DidYouMean(sel.Capability, s.registry.Names()); hint != "" {
				err = errors.WithHint(err, hint)
			}
			return nil, err
		}
		if err := validateSet(set); err != nil {
			return nil, err
		}

		excluded := make(map[string]bool, len(sel.Exclude))
		for _, name := range sel.Exclude {
			excluded[name] = true
			if _, ok := set.Method(name); !ok {
				log.Warnw("Excluded method not found",
					logger.FieldCapability, sel.Capability,
					logger.FieldMethod, name)
			}
		}

		accessor := req.Accessor
		if accessor == "" {
			accessor = set.SelfAccessor
		}

		for i := range set.Methods {
			m := &set.Methods[i]
			if m.Name == set.SelfAccessor {
				continue
			}
			if excluded[m.Name] {
				log.Debugw("Excluded", logger.FieldCapability, sel.Capability, logger.FieldMethod, m.Name)
				continue
			}

			def, err := s.define(req, set, m, accessor, composite)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", sel.Capability, m.Name)
			}

			if err := s.resolveName(req, set, &def, generated); err != nil {
				return nil, err
			}
			generated[def.Name] = sel.Capability
			defs = append(defs, def)
		}
	}

	log.Debugw("Synthesized", logger.FieldCount, len(defs))
	return defs, nil
}

func (s *Synthesizer) define(req Request, set *ir.CapabilitySet, m *ir.Method, accessor, composite string) (MethodDefinition, error) {
	if err := validateMethod(m); err != nil {
		return MethodDefinition{}, err
	}

	def := MethodDefinition{
		Target:          req.TargetType,
		Name:            m.Name,
		Doc:             m.Doc,
		Capability:      set,
		CapabilityName:  set.Name.String(),
		Method:          m.Name,
		PointerReceiver: m.PointerReceiver,
		Accessor:        accessor,
		Params:          []Param{},
	}

	// The first plain argument of the self type receives the accessor value.
	// Later ones, and variadic ...Self, are forwarded from the caller.
	selfFilled := false
	for _, a := range m.Args {
		if !selfFilled && !a.Variadic && a.ExpectedType.String() == set.SelfGeneric {
			def.CallArgs = append(def.CallArgs, CallArg{Self: true})
			selfFilled = true
			continue
		}
		def.Params = append(def.Params, Param{Name: a.Name, Type: a.ExpectedType, Variadic: a.Variadic})
		def.CallArgs = append(def.CallArgs, CallArg{Name: a.Name, Variadic: a.Variadic})
	}
	def.Receiver = receiverName(req.TargetType, def.Params)

	ret, err := s.lattice.ResolveReturn(m, composite)
	if err != nil {
		return MethodDefinition{}, err
	}
	def.Result = Result{Kind: ret.Kind, KindName: ret.Kind.String(), Types: ret.Type}

	switch ret.Kind {
	case lattice.ReturnSelf:
		def.Result.Box = &Box{Type: req.TargetType, Constructor: req.TargetConstructor()}
	case lattice.ReturnWrapper:
		box := &Box{Type: ret.Capability, Constructor: lattice.WrapperConstructor(ret.Capability)}
		// The wrapper lives with its registered capability set, else with the target
		if wrapper, ok := s.registry.Lookup(ret.Capability); ok && wrapper.Name.Package() != req.TargetPackage {
			box.Package = wrapper.Name.Package()
			box.PackageName = wrapper.PackageName
		}
		def.Result.Box = box
	}
	return def, nil
}

// resolveName applies the collision policy. A capability hosted by a type of
// the same name may shadow the host's own methods under a prefixed name;
// every other clash is an error.
func (s *Synthesizer) resolveName(req Request, set *ir.CapabilitySet, def *MethodDefinition, generated map[string]string) error {
	name := def.Name
	if req.Existing[name] {
		if set.ShortName() != req.TargetType {
			return errors.WithHint(
				errors.Wrapf(ErrCollision, "%s already declares %s; %s.%s cannot be generated", req.TargetType, name, set.ShortName(), name),
				"exclude it: ("+set.ShortName()+", exclude=("+name+"))",
			)
		}
		renamed := s.renamePrefix + name
		if req.Existing[renamed] {
			return errors.Wrapf(ErrCollision, "%s declares both %s and %s", req.TargetType, name, renamed)
		}
		if other, ok := generated[renamed]; ok {
			return errors.Wrapf(ErrCollision, "renamed %s clashes with %s generated from %s", renamed, renamed, other)
		}
		def.Name = renamed
		def.Bridge = name
		return nil
	}
	if other, ok := generated[name]; ok {
		return errors.WithHint(
			errors.Wrapf(ErrCollision, "%s is provided by both %s and %s", name, other, set.ShortName()),
			"exclude it from one of them",
		)
	}
	return nil
}

// validateSet checks the set-level names a generated file references.
func validateSet(set *ir.CapabilitySet) error {
	for _, name := range []string{set.ShortName(), set.PackageName, set.SelfAccessor} {
		if !ir.IsIdentifier(name) {
			return errors.Wrapf(ErrMethodParseFailure, "capability set %s: %q is not an identifier", set.Name, name)
		}
	}
	return nil
}

// validateMethod re-checks a decoded record: names must be identifiers and
// types must parse.
func validateMethod(m *ir.Method) error {
	if !ir.IsIdentifier(m.Name) {
		return errors.Wrapf(ErrMethodParseFailure, "method name %q", m.Name)
	}
	for _, a := range m.Args {
		if !ir.IsIdentifier(a.Name) || a.Name == "_" {
			return errors.Wrapf(ErrMethodParseFailure, "argument name %q", a.Name)
		}
		if err := a.ExpectedType.ValidateParam(); err != nil {
			return errors.Wrapf(ErrMethodParseFailure, "argument %s: %v", a.Name, err)
		}
	}
	if err := m.ReturnType.ValidateResults(); err != nil {
		return errors.Wrapf(ErrMethodParseFailure, "return type: %v", err)
	}
	if !m.LiteralReturn && m.ReturnType.ResultCount() != 1 {
		return errors.Wrapf(ErrMethodParseFailure, "non-literal method returns %d values", m.ReturnType.ResultCount())
	}
	for _, st := range m.Strips {
		if !ir.IsIdentifier(st) {
			return errors.Wrapf(ErrMethodParseFailure, "stripped capability %q", st)
		}
	}
	return nil
}

// receiverName picks a receiver variable that no parameter shadows.
func receiverName(target string, params []Param) string {
	taken := make(map[string]bool, len(params))
	for _, p := range params {
		taken[p.Name] = true
	}
	candidates := []string{strings.ToLower(target[:1]), "recv"}
	for _, c := range candidates {
		if ir.IsIdentifier(c) && !taken[c] {
			return c
		}
	}
	name := "recv"
	for taken[name] {
		name += "_"
	}
	return name
}
