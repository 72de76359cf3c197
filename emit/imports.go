package emit

import (
	"go/ast"
	"go/types"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/ir"
)

// importSet assigns each imported path a local name. Names are handed out in
// path order so the same input always produces the same aliases.
type importSet struct {
	// preferred name and real package name per path
	preferred map[string]string
	pkgName   map[string]string
	reserved  map[string]bool

	names map[string]string
}

func newImportSet() *importSet {
	return &importSet{
		preferred: map[string]string{},
		pkgName:   map[string]string{},
		reserved:  map[string]bool{},
	}
}

// reserve keeps name free of imports, e.g. a parameter or receiver name.
func (s *importSet) reserve(name string) {
	s.reserved[name] = true
}

// add registers path. pkgName is the package clause name when known.
func (s *importSet) add(path, preferred, pkgName string) {
	if _, ok := s.preferred[path]; ok {
		return
	}
	if preferred == "" || preferred == "_" || preferred == "." {
		preferred = ir.DefaultPackageName(path)
	}
	if pkgName == "" {
		pkgName = ir.DefaultPackageName(path)
	}
	s.preferred[path] = preferred
	s.pkgName[path] = pkgName
}

// assign fixes the local names. It must run after every add and reserve.
func (s *importSet) assign() {
	paths := s.paths()
	s.names = make(map[string]string, len(paths))
	taken := map[string]bool{}
	for name := range s.reserved {
		taken[name] = true
	}
	for _, path := range paths {
		base := s.preferred[path]
		name := base
		for i := 2; taken[name] || types.Universe.Lookup(name) != nil; i++ {
			name = base + strconv.Itoa(i)
		}
		taken[name] = true
		s.names[path] = name
	}
}

func (s *importSet) paths() []string {
	paths := make([]string, 0, len(s.preferred))
	for p := range s.preferred {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// name returns the local name of path.
func (s *importSet) name(path string) string {
	return s.names[path]
}

// specs returns the import lines grouped as goimports does, standard
// library first. Lines are aliased where the local name differs from the
// package name.
func (s *importSet) specs() (std, other []string) {
	for _, path := range s.paths() {
		spec := strconv.Quote(path)
		if s.names[path] != s.pkgName[path] {
			spec = s.names[path] + " " + spec
		}
		if first, _, _ := strings.Cut(path, "/"); strings.Contains(first, ".") {
			other = append(other, spec)
		} else {
			std = append(std, spec)
		}
	}
	return std, other
}

// qualifier rewrites type expressions recorded in a capability's package so
// they are valid in the target's package.
type qualifier struct {
	set     *ir.CapabilitySet
	imports *importSet
	// local is set when the target shares the capability's package
	local bool
}

// rewrite qualifies node in place and returns it. Package qualifiers are
// mapped to the file's import names; when the target lives elsewhere,
// exported identifiers declared in the capability's package gain its
// qualifier and unexported ones are rejected.
func (q *qualifier) rewrite(node ast.Node) (ast.Node, error) {
	var err error
	out := astutil.Apply(node, func(c *astutil.Cursor) bool {
		if err != nil {
			return false
		}
		switch n := c.Node().(type) {
		case *ast.SelectorExpr:
			x, ok := n.X.(*ast.Ident)
			if !ok {
				return true
			}
			imp, ok := q.set.ImportFor(x.Name)
			if !ok {
				err = errors.Newf("%s: qualifier %s has no recorded import", q.set.Name, x.Name)
				return false
			}
			c.Replace(&ast.SelectorExpr{X: ast.NewIdent(q.imports.name(imp.Path)), Sel: ast.NewIdent(n.Sel.Name)})
			return false

		case *ast.Ident:
			// Field and parameter names inside type literals
			if c.Name() == "Names" {
				return false
			}
			if q.local || types.Universe.Lookup(n.Name) != nil {
				return false
			}
			if !ir.IsExported(n.Name) {
				err = errors.WithHint(
					errors.Newf("%s: unexported type %s cannot be used outside %s", q.set.Name, n.Name, q.set.Name.Package()),
					"export the type or place the target in the capability's package",
				)
				return false
			}
			c.Replace(&ast.SelectorExpr{
				X:   ast.NewIdent(q.imports.name(q.set.Name.Package())),
				Sel: ast.NewIdent(n.Name),
			})
			return false
		}
		return true
	}, nil)
	return out, err
}

// collect registers every import a type expression needs.
func (q *qualifier) collect(node ast.Node) {
	ast.Inspect(node, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			if x, ok := n.X.(*ast.Ident); ok {
				if imp, ok := q.set.ImportFor(x.Name); ok {
					q.imports.add(imp.Path, imp.LocalName(), "")
				}
			}
			return false
		case *ast.Field:
			if n.Type != nil {
				q.collect(n.Type)
			}
			return false
		case *ast.Ident:
			if !q.local && ir.IsExported(n.Name) && types.Universe.Lookup(n.Name) == nil {
				q.imports.add(q.set.Name.Package(), q.set.PackageName, q.set.PackageName)
			}
		}
		return true
	})
}
