package synth

import (
	"github.com/teranos/capgen/ir"
	"github.com/teranos/capgen/lattice"
)

// Param is a parameter of a generated method.
type Param struct {
	Name     string            `json:"name"`
	Type     ir.TypeExpression `json:"type"`
	Variadic bool              `json:"variadic,omitempty"`
}

// CallArg is one argument of the forwarded call: either a parameter passed
// through by name, or the target's inner value in a self position.
type CallArg struct {
	Name     string `json:"name,omitempty"`
	Self     bool   `json:"self,omitempty"`
	Variadic bool   `json:"variadic,omitempty"`
}

// Box is the type and constructor a result is wrapped in.
type Box struct {
	// Package is the import path; empty means the target's package
	Package     string `json:"package,omitempty"`
	PackageName string `json:"package_name,omitempty"`
	Type        string `json:"type"`
	Constructor string `json:"constructor"`
}

// Result is how a generated method hands back the forwarded call's value.
type Result struct {
	Kind lattice.ReturnKind `json:"-"`
	// KindName is Kind as text, for plans
	KindName string `json:"kind"`
	// Types is the recorded result list for literal results
	Types ir.TypeExpression `json:"types,omitempty,omitzero"`
	Box   *Box              `json:"box,omitempty"`
}

// MethodDefinition is one forwarding method, independent of how it is rendered.
type MethodDefinition struct {
	Target   string `json:"target"`
	Receiver string `json:"receiver"`
	Name     string `json:"name"`
	// Bridge is the original method name when Name was renamed to avoid a
	// method the target declares itself
	Bridge string `json:"bridge,omitempty"`
	Doc    string `json:"doc,omitempty"`

	// Capability is the set the method comes from
	Capability      *ir.CapabilitySet `json:"-"`
	CapabilityName  string            `json:"capability"`
	Method          string            `json:"method"`
	PointerReceiver bool              `json:"pointer_receiver,omitempty"`

	Params   []Param   `json:"params"`
	Accessor string    `json:"accessor"`
	CallArgs []CallArg `json:"call_args"`
	Result   Result    `json:"result"`
}

// TargetMethods is one target and the methods generated for it.
type TargetMethods struct {
	Request Request            `json:"request"`
	Methods []MethodDefinition `json:"methods"`
}

// File groups the targets of one package.
type File struct {
	Package     string          `json:"package"`
	PackageName string          `json:"package_name"`
	Targets     []TargetMethods `json:"targets"`
}

// Emitter renders a File. Rendering never changes policy decisions.
type Emitter interface {
	Emit(file File) ([]byte, error)
}

// Merger is implemented by emitters that can carry forward the methods a
// previous run generated for targets that fail now. previous is the old
// file; targets names the failed target types.
type Merger interface {
	Merge(content, previous []byte, targets []string) ([]byte, error)
}
