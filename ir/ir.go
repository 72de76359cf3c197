// Package ir is the data model shared by the extractor, the registry and the
// synthesizer. Records are built once by extraction and only read afterwards.
package ir

import (
	"go/token"
	"strings"
)

// Argument is one parameter of a capability method.
type Argument struct {
	Name string `json:"name"`
	// Mutable is set when the method body assigns to the parameter.
	Mutable bool `json:"mutable,omitempty"`
	// Variadic parameters record their element type and are forwarded as name...
	Variadic     bool           `json:"variadic,omitempty"`
	ExpectedType TypeExpression `json:"expected_type"`
}

// Method is one algorithm of a capability set.
type Method struct {
	Name string     `json:"name"`
	Doc  string     `json:"doc,omitempty"`
	Args []Argument `json:"args"`
	// ReturnType is a result list; zero when the method returns nothing.
	ReturnType    TypeExpression `json:"return_type,omitempty,omitzero"`
	LiteralReturn bool           `json:"literal_return"`
	// Strips lists capabilities the result no longer provides.
	Strips          []string `json:"strips"`
	PointerReceiver bool     `json:"pointer_receiver,omitempty"`
}

// Import is an import spec a recorded signature depends on.
type Import struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
}

// CapabilitySet is a registered capability type and its methods.
type CapabilitySet struct {
	Name         QualifiedPath `json:"name"`
	PackageName  string        `json:"package_name"`
	SelfGeneric  string        `json:"self_generic"`
	SelfAccessor string        `json:"self_accessor"`
	Imports      []Import      `json:"imports,omitempty"`
	Methods      []Method      `json:"methods"`
}

// ShortName is the type name selections refer to.
func (c *CapabilitySet) ShortName() string {
	return c.Name.Name()
}

// Method returns the named method.
func (c *CapabilitySet) Method(name string) (*Method, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

// ImportFor returns the import whose package name is qualifier, as used in
// recorded types like "iter.Seq".
func (c *CapabilitySet) ImportFor(qualifier string) (Import, bool) {
	for _, imp := range c.Imports {
		if imp.LocalName() == qualifier {
			return imp, true
		}
	}
	return Import{}, false
}

// LocalName is the identifier the import is referred to by in source.
// Without an explicit name it is the last path element, skipping a major
// version suffix like /v2.
func (i Import) LocalName() string {
	if i.Name != "" {
		return i.Name
	}
	return DefaultPackageName(i.Path)
}

// DefaultPackageName guesses the package name of an import path the way
// goimports does for unnamed imports.
func DefaultPackageName(path string) string {
	elems := strings.Split(path, "/")
	name := elems[len(elems)-1]
	if len(elems) > 1 && isMajorVersion(name) {
		name = elems[len(elems)-2]
	}
	name = strings.TrimPrefix(name, "go-")
	if i := strings.IndexAny(name, ".-"); i >= 0 {
		name = name[:i]
	}
	if name == "" || !token.IsIdentifier(name) {
		return "pkg"
	}
	return name
}

// IsIdentifier reports whether name can be used as a Go identifier.
func IsIdentifier(name string) bool {
	return token.IsIdentifier(name)
}

// IsExported reports whether name starts with an upper-case letter.
func IsExported(name string) bool {
	return token.IsExported(name)
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
