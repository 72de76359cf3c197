package extract

import (
	"go/ast"
	"go/token"
	"strings"
	"unicode"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/internal/util"
)

// Directive names, written as //capgen:<name> <args>.
const (
	DirectiveRegister = "register"
	DirectiveSelf     = "self"
	DirectiveLiteral  = "literal"
	DirectiveStrips   = "strips"
	DirectiveDelegate = "delegate"
	DirectiveBridge   = "bridge"
)

const directivePrefix = "//capgen:"

var knownDirectives = map[string]bool{
	DirectiveRegister: true,
	DirectiveSelf:     true,
	DirectiveLiteral:  true,
	DirectiveStrips:   true,
	DirectiveDelegate: true,
	DirectiveBridge:   true,
}

// Directive is one //capgen: comment line.
type Directive struct {
	Name string
	Args string
	Pos  token.Pos
}

// DirectiveTable indexes the directives attached to one declaration by name.
// It is built once per declaration so lookups do not rescan comments.
type DirectiveTable map[string][]Directive

// ParseDirectives collects the capgen directives of the given comment groups.
// Nil groups are skipped. Unknown directive names are an error.
func ParseDirectives(groups ...*ast.CommentGroup) (DirectiveTable, error) {
	table := DirectiveTable{}
	for _, g := range groups {
		if g == nil {
			continue
		}
		for _, c := range g.List {
			if !strings.HasPrefix(c.Text, directivePrefix) {
				continue
			}
			rest := strings.TrimSpace(c.Text[len(directivePrefix):])
			name, args := rest, ""
			if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
				name, args = rest[:i], rest[i:]
			}
			if !knownDirectives[name] {
				err := errors.Wrapf(ErrUnknownDirective, "capgen:%s", name)
				if hint := util.DidYouMean(name, util.SortedKeys(knownDirectives)); hint != "" {
					err = errors.WithHint(err, hint)
				}
				return nil, err
			}
			table[name] = append(table[name], Directive{
				Name: name,
				Args: strings.TrimSpace(args),
				Pos:  c.Pos(),
			})
		}
	}
	return table, nil
}

// Has reports whether the directive is present.
func (t DirectiveTable) Has(name string) bool {
	return len(t[name]) > 0
}

// First returns the first directive with the given name.
func (t DirectiveTable) First(name string) (Directive, bool) {
	ds := t[name]
	if len(ds) == 0 {
		return Directive{}, false
	}
	return ds[0], true
}

// Empty reports whether no directive was found.
func (t DirectiveTable) Empty() bool {
	return len(t) == 0
}

// only returns the first directive not in allowed, if any.
func (t DirectiveTable) only(allowed ...string) (Directive, bool) {
	var bad []Directive
	for name, ds := range t {
		ok := false
		for _, a := range allowed {
			if name == a {
				ok = true
				break
			}
		}
		if !ok {
			bad = append(bad, ds...)
		}
	}
	if len(bad) == 0 {
		return Directive{}, false
	}
	first := bad[0]
	for _, d := range bad[1:] {
		if d.Pos < first.Pos {
			first = d
		}
	}
	return first, true
}

// TypeDirectives collects the directives of one type spec. An ungrouped
// declaration carries its doc comment on the GenDecl, so both are read.
func TypeDirectives(d *ast.GenDecl, ts *ast.TypeSpec) (DirectiveTable, error) {
	groups := []*ast.CommentGroup{ts.Doc}
	if len(d.Specs) == 1 {
		groups = append(groups, d.Doc)
	}
	return ParseDirectives(groups...)
}

// placement builds an ErrMarkerPlacement for d.
func placement(d Directive, where string) error {
	return errors.Wrapf(ErrMarkerPlacement, "capgen:%s on %s", d.Name, where)
}
