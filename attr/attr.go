// Package attr parses the argument mini-language of capgen directives.
//
//	ArgsList := Arg (',' Arg)*
//	Arg      := Group | KeyValue | Bare
//	Group    := '(' ArgsList ')'
//	KeyValue := Identifier '=' Value
//	Value    := Identifier | Group
//	Bare     := Identifier
//
// A trailing comma is allowed and empty input is an empty list. Identifiers
// follow Go's rules. The parser knows nothing about capability names; it
// only builds the tree.
package attr

import (
	"strings"
)

// Span is a half-open byte range into the parsed input.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Arg is one element of an ArgsList: Bare, KeyValue or Group.
type Arg interface {
	Span() Span
	String() string
	arg()
}

// Value is the right-hand side of a KeyValue: Ident or Group.
type Value interface {
	Span() Span
	String() string
	value()
}

// ArgsList is a comma separated sequence of arguments.
type ArgsList []Arg

// Bare is a lone identifier.
type Bare struct {
	Name string
	Pos  Span
}

// KeyValue is `key=value`.
type KeyValue struct {
	Key   string
	Value Value
	Pos   Span
}

// Ident is an identifier in value position.
type Ident struct {
	Name string
	Pos  Span
}

// Group is a parenthesised ArgsList. It is both an Arg and a Value.
type Group struct {
	Args ArgsList
	Pos  Span
}

func (b Bare) Span() Span { return b.Pos }
func (kv KeyValue) Span() Span { return kv.Pos }
func (i Ident) Span() Span { return i.Pos }
func (g Group) Span() Span { return g.Pos }

func (Bare) arg() {}
func (KeyValue) arg() {}
func (Group) arg() {}
func (Ident) value() {}
func (Group) value() {}

func (b Bare) String() string { return b.Name }
func (i Ident) String() string { return i.Name }
func (kv KeyValue) String() string { return kv.Key + "=" + kv.Value.String() }
func (g Group) String() string { return "(" + g.Args.String() + ")" }

// String renders the canonical form, e.g. `(A, exclude=(x, y))`.
func (l ArgsList) String() string {
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// Idents returns the names of a value that is an identifier or a group of
// bare identifiers. ok is false for any other shape.
func Idents(v Value) (names []string, ok bool) {
	switch v := v.(type) {
	case Ident:
		return []string{v.Name}, true
	case Group:
		for _, a := range v.Args {
			b, isBare := a.(Bare)
			if !isBare {
				return nil, false
			}
			names = append(names, b.Name)
		}
		return names, true
	}
	return nil, false
}
