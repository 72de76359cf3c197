package synth

import (
	"github.com/teranos/capgen/attr"
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/internal/util"
)

// Directive keys accepted at the top level of capgen:delegate.
const (
	KeyAccessor    = "accessor"
	KeyComposite   = "composite"
	KeyConstructor = "constructor"
	KeyExclude     = "exclude"
)

// Selection picks one capability and the methods to leave out.
type Selection struct {
	Capability string   `json:"capability"`
	Exclude    []string `json:"exclude,omitempty"`
}

// Request describes one target type to generate forwarding methods for.
type Request struct {
	TargetType string `json:"target_type"`
	// TargetPackage is the import path of the target's package
	TargetPackage string `json:"target_package"`
	// Accessor returns the target's inner value; empty falls back to the
	// capability's own accessor name
	Accessor string `json:"accessor,omitempty"`
	// Composite is the lattice entry the target represents; empty means
	// TargetType
	Composite string `json:"composite,omitempty"`
	// Constructor boxes results that keep every capability; empty means
	// New<TargetType>
	Constructor string      `json:"constructor,omitempty"`
	Selections  []Selection `json:"selections"`
	// Existing holds the method and field names the target already declares
	Existing map[string]bool `json:"-"`
}

// ParseDirective turns the argument text of a capgen:delegate directive into
// a Request skeleton. Target fields are left for the caller.
func ParseDirective(text string) (Request, error) {
	list, err := attr.Parse(text)
	if err != nil {
		return Request{}, errors.Wrap(err, "capgen:delegate")
	}

	var req Request
	seen := map[string]bool{}
	keys := map[string]*string{
		KeyAccessor:    &req.Accessor,
		KeyComposite:   &req.Composite,
		KeyConstructor: &req.Constructor,
	}

	for _, a := range list {
		switch a := a.(type) {
		case attr.Bare:
			if seen[a.Name] {
				return Request{}, errors.Wrapf(ErrInvalidDirective, "%s selected twice", a.Name)
			}
			seen[a.Name] = true
			req.Selections = append(req.Selections, Selection{Capability: a.Name})

		case attr.Group:
			sel, err := parseGroup(a)
			if err != nil {
				return Request{}, err
			}
			if seen[sel.Capability] {
				return Request{}, errors.Wrapf(ErrInvalidDirective, "%s selected twice", sel.Capability)
			}
			seen[sel.Capability] = true
			req.Selections = append(req.Selections, sel)

		case attr.KeyValue:
			dst, ok := keys[a.Key]
			if !ok {
				err := errors.Wrapf(ErrInvalidDirective, "unknown key %q", a.Key)
				if hint := util.DidYouMean(a.Key, util.SortedKeys(keys)); hint != "" {
					err = errors.WithHint(err, hint)
				}
				return Request{}, err
			}
			ident, ok := a.Value.(attr.Ident)
			if !ok {
				return Request{}, errors.Wrapf(ErrInvalidDirective, "%s wants a single name, got %s", a.Key, a.Value)
			}
			if *dst != "" {
				return Request{}, errors.Wrapf(ErrInvalidDirective, "%s given twice", a.Key)
			}
			*dst = ident.Name
		}
	}

	if len(req.Selections) == 0 {
		return Request{}, errors.WithHint(
			errors.Wrapf(ErrEmptySelection, "%q", text),
			"list at least one capability, e.g. //capgen:delegate Base",
		)
	}
	return req, nil
}

// parseGroup reads (Cap, exclude=(m1, m2)) or (Cap, exclude=m1).
func parseGroup(g attr.Group) (Selection, error) {
	if len(g.Args) == 0 {
		return Selection{}, errors.Wrapf(ErrInvalidDirective, "empty group %s", g)
	}
	first, ok := g.Args[0].(attr.Bare)
	if !ok {
		return Selection{}, errors.Wrapf(ErrInvalidDirective, "group %s must start with a capability name", g)
	}

	sel := Selection{Capability: first.Name}
	excluded := false
	for _, a := range g.Args[1:] {
		kv, ok := a.(attr.KeyValue)
		if !ok || kv.Key != KeyExclude {
			return Selection{}, errors.WithHint(
				errors.Wrapf(ErrInvalidDirective, "unexpected %s in group %s", a, g),
				"groups take the form (Capability, exclude=(Method, ...))",
			)
		}
		if excluded {
			return Selection{}, errors.Wrapf(ErrInvalidDirective, "exclude given twice for %s", first.Name)
		}
		excluded = true
		names, ok := attr.Idents(kv.Value)
		if !ok {
			return Selection{}, errors.Wrapf(ErrInvalidDirective, "exclude for %s must list method names, got %s", first.Name, kv.Value)
		}
		sel.Exclude = names
	}
	return sel, nil
}

// TargetComposite returns the composite the target represents.
func (r *Request) TargetComposite() string {
	if r.Composite != "" {
		return r.Composite
	}
	return r.TargetType
}

// TargetConstructor returns the function that boxes results into the target.
func (r *Request) TargetConstructor() string {
	if r.Constructor != "" {
		return r.Constructor
	}
	return "New" + r.TargetType
}
