package lattice

import (
	"github.com/teranos/capgen/ir"
)

// ReturnKind says how a forwarded result is handed back.
type ReturnKind int

const (
	// ReturnNone forwards a literal method that returns nothing
	ReturnNone ReturnKind = iota
	// ReturnLiteral hands back the recorded result list unchanged
	ReturnLiteral
	// ReturnSelf boxes the result into a new target value
	ReturnSelf
	// ReturnWrapper boxes the result into a narrower capability's wrapper
	ReturnWrapper
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnNone:
		return "none"
	case ReturnLiteral:
		return "literal"
	case ReturnSelf:
		return "self"
	case ReturnWrapper:
		return "wrapper"
	}
	return "unknown"
}

// Return is the resolved result of a forwarded method.
type Return struct {
	Kind ReturnKind
	// Type is the recorded result list for ReturnLiteral
	Type ir.TypeExpression
	// Capability names the wrapper for ReturnWrapper
	Capability string
}

// ResolveReturn applies the return policy to m for a target representing
// composite: a literal result is kept, a result that strips nothing is the
// target itself, anything else is the wrapper of the surviving capability.
// The composite is only consulted for methods that strip.
func (l *Lattice) ResolveReturn(m *ir.Method, composite string) (Return, error) {
	if m.LiteralReturn {
		if m.ReturnType.IsZero() {
			return Return{Kind: ReturnNone}, nil
		}
		return Return{Kind: ReturnLiteral, Type: m.ReturnType}, nil
	}
	if len(m.Strips) == 0 {
		return Return{Kind: ReturnSelf}, nil
	}

	capability, err := l.Resolve(composite, m.Strips)
	if err != nil {
		return Return{}, err
	}
	return Return{Kind: ReturnWrapper, Capability: capability}, nil
}

// WrapperConstructor is the function that boxes a value into capability's wrapper.
func WrapperConstructor(capability string) string {
	return "New" + capability
}
