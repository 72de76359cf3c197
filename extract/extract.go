// Package extract finds capability-set declarations in Go source and turns
// them into registry records.
package extract

import (
	"go/ast"
	"go/token"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/capgen/attr"
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/internal/util"
	"github.com/teranos/capgen/ir"
	"github.com/teranos/capgen/lattice"
	"github.com/teranos/capgen/logger"
	"github.com/teranos/capgen/registry"
)

const selfGenericKey = "self_generic"

type typeDecl struct {
	file *File
	spec *ast.TypeSpec
	dirs DirectiveTable
}

type methodDecl struct {
	file     *File
	fn       *ast.FuncDecl
	dirs     DirectiveTable
	receiver string
	pointer  bool
}

type extractor struct {
	prog *Program
	lat  *lattice.Lattice
	log  *zap.SugaredLogger
}

// Extract builds a capability set for every capgen:register type in prog.
// Any violation aborts the whole extraction.
func Extract(prog *Program, lat *lattice.Lattice) ([]ir.CapabilitySet, error) {
	if lat == nil {
		lat = lattice.Default()
	}
	e := &extractor{prog: prog, lat: lat, log: logger.ComponentLogger("capgen.extract")}

	var sets []ir.CapabilitySet
	for _, pkg := range prog.Packages {
		pkgSets, err := e.scanPackage(pkg)
		if err != nil {
			return nil, err
		}
		sets = append(sets, pkgSets...)
	}

	if len(sets) == 0 {
		return nil, errors.WithHint(
			errors.Wrapf(ErrNoCapabilitySets, "scanned %d packages", len(prog.Packages)),
			"annotate a type with //capgen:register self_generic=<Type>",
		)
	}

	// Short names must be unique across the scan
	if _, err := registry.New(sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func (e *extractor) scanPackage(pkg *Package) ([]ir.CapabilitySet, error) {
	var registered []typeDecl
	var methods []methodDecl

	for _, f := range pkg.Files {
		if IsCapgenOutput(f.AST) {
			continue
		}
		for _, decl := range f.AST.Decls {
			switch d := decl.(type) {
			case *ast.GenDecl:
				tds, err := e.scanGenDecl(f, d)
				if err != nil {
					return nil, err
				}
				registered = append(registered, tds...)
			case *ast.FuncDecl:
				md, ok, err := e.scanFuncDecl(f, d)
				if err != nil {
					return nil, err
				}
				if ok {
					methods = append(methods, md)
				}
			}
		}
	}

	isRegistered := make(map[string]bool, len(registered))
	for _, td := range registered {
		isRegistered[td.spec.Name.Name] = true
	}
	for _, md := range methods {
		if isRegistered[md.receiver] {
			continue
		}
		for _, name := range []string{DirectiveLiteral, DirectiveStrips} {
			if d, ok := md.dirs.First(name); ok {
				return nil, e.at(d.Pos, placement(d, "method "+md.receiver+"."+md.fn.Name.Name+" of a type without capgen:register"))
			}
		}
	}

	sets := make([]ir.CapabilitySet, 0, len(registered))
	for _, td := range registered {
		var own []methodDecl
		for _, md := range methods {
			if md.receiver == td.spec.Name.Name {
				own = append(own, md)
			}
		}
		set, err := e.buildSet(pkg, td, own)
		if err != nil {
			return nil, errors.Wrapf(err, "capability set %s", ir.NewQualifiedPath(pkg.Path, td.spec.Name.Name))
		}
		e.log.Debugw("Extracted capability set",
			logger.FieldCapability, set.Name.String(),
			logger.FieldMethods, len(set.Methods))
		sets = append(sets, set)
	}
	return sets, nil
}

func (e *extractor) scanGenDecl(f *File, d *ast.GenDecl) ([]typeDecl, error) {
	if d.Tok != token.TYPE {
		dirs, err := ParseDirectives(d.Doc)
		if err != nil {
			return nil, e.at(d.Pos(), err)
		}
		if bad, ok := dirs.only(); ok {
			return nil, e.at(bad.Pos, placement(bad, d.Tok.String()+" declaration"))
		}
		return nil, nil
	}

	declDirs, err := ParseDirectives(d.Doc)
	if err != nil {
		return nil, e.at(d.Pos(), err)
	}
	if len(d.Specs) > 1 && !declDirs.Empty() {
		bad, _ := declDirs.only()
		return nil, e.at(bad.Pos, errors.WithHint(
			placement(bad, "a grouped type declaration"),
			"move the directive onto the type inside the group",
		))
	}

	var out []typeDecl
	for _, spec := range d.Specs {
		ts := spec.(*ast.TypeSpec)
		dirs, err := TypeDirectives(d, ts)
		if err != nil {
			return nil, e.at(ts.Pos(), err)
		}
		if bad, ok := dirs.only(DirectiveRegister, DirectiveDelegate); ok {
			return nil, e.at(bad.Pos, placement(bad, "type "+ts.Name.Name))
		}
		if !dirs.Has(DirectiveRegister) {
			continue
		}
		if regs := dirs[DirectiveRegister]; len(regs) > 1 {
			return nil, e.at(regs[1].Pos, errors.Wrapf(ErrMarkerPlacement, "capgen:register repeated on type %s", ts.Name.Name))
		}
		if ts.TypeParams != nil {
			d, _ := dirs.First(DirectiveRegister)
			return nil, e.at(d.Pos, errors.WithHint(
				placement(d, "generic type "+ts.Name.Name),
				"generated code calls the capability as a plain value; bind the element type through self_generic instead",
			))
		}
		if ts.Assign.IsValid() {
			d, _ := dirs.First(DirectiveRegister)
			return nil, e.at(d.Pos, placement(d, "type alias "+ts.Name.Name))
		}
		if _, ok := ts.Type.(*ast.StructType); !ok {
			d, _ := dirs.First(DirectiveRegister)
			return nil, e.at(d.Pos, errors.WithHint(
				placement(d, "non-struct type "+ts.Name.Name),
				"generated code calls capability methods on a zero value, Base{}.Map(...)",
			))
		}
		out = append(out, typeDecl{file: f, spec: ts, dirs: dirs})
	}
	return out, nil
}

func (e *extractor) scanFuncDecl(f *File, fn *ast.FuncDecl) (methodDecl, bool, error) {
	dirs, err := ParseDirectives(fn.Doc)
	if err != nil {
		return methodDecl{}, false, e.at(fn.Pos(), err)
	}
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		if bad, ok := dirs.only(); ok {
			return methodDecl{}, false, e.at(bad.Pos, placement(bad, "function "+fn.Name.Name+", not a method"))
		}
		return methodDecl{}, false, nil
	}
	if bad, ok := dirs.only(DirectiveSelf, DirectiveLiteral, DirectiveStrips, DirectiveBridge); ok {
		return methodDecl{}, false, e.at(bad.Pos, placement(bad, "method "+fn.Name.Name))
	}
	recv, ptr := ReceiverBase(fn)
	return methodDecl{file: f, fn: fn, dirs: dirs, receiver: recv, pointer: ptr}, true, nil
}

func (e *extractor) buildSet(pkg *Package, td typeDecl, methods []methodDecl) (ir.CapabilitySet, error) {
	name := ir.NewQualifiedPath(pkg.Path, td.spec.Name.Name)
	if err := name.Validate(e.prog.Module); err != nil {
		return ir.CapabilitySet{}, e.at(td.spec.Pos(), err)
	}

	reg, _ := td.dirs.First(DirectiveRegister)
	selfGeneric, err := parseRegister(reg.Args)
	if err != nil {
		return ir.CapabilitySet{}, e.at(reg.Pos, err)
	}

	accessor, err := e.selfAccessor(td, methods)
	if err != nil {
		return ir.CapabilitySet{}, err
	}

	set := ir.CapabilitySet{
		Name:         name,
		PackageName:  pkg.Name,
		SelfGeneric:  selfGeneric,
		SelfAccessor: accessor,
		Methods:      []ir.Method{},
	}

	imports := newImportSet()
	for _, md := range methods {
		if !md.fn.Name.IsExported() {
			e.log.Debugw("Skipping unexported method",
				logger.FieldCapability, name.String(),
				logger.FieldMethod, md.fn.Name.Name)
			continue
		}
		m, err := e.buildMethod(md, imports)
		if err != nil {
			return ir.CapabilitySet{}, e.at(md.fn.Pos(), errors.Wrapf(err, "method %s", md.fn.Name.Name))
		}
		set.Methods = append(set.Methods, m)
	}
	set.Imports = imports.sorted()
	return set, nil
}

// parseRegister returns the self_generic binding of a capgen:register
// argument list.
func parseRegister(args string) (string, error) {
	list, err := attr.Parse(args)
	if err != nil {
		return "", errors.Wrap(err, "capgen:register")
	}

	generic := ""
	found := false
	for _, a := range list {
		kv, ok := a.(attr.KeyValue)
		if !ok {
			return "", errors.WithHint(
				errors.Wrapf(ErrUnknownRegisterKey, "%s", a),
				"capgen:register takes self_generic=<Type>",
			)
		}
		if kv.Key != selfGenericKey {
			err := errors.Wrapf(ErrUnknownRegisterKey, "%s", kv.Key)
			if hint := util.DidYouMean(kv.Key, []string{selfGenericKey}); hint != "" {
				err = errors.WithHint(err, hint)
			}
			return "", err
		}
		if found {
			return "", errors.Wrapf(ErrDuplicateSelfGeneric, "%s", list)
		}
		found = true
		ident, ok := kv.Value.(attr.Ident)
		if !ok {
			return "", errors.Wrapf(ErrMalformedSelfGeneric, "%s is a group, want a single type name", kv.Value)
		}
		generic = ident.Name
	}
	if !found {
		return "", errors.WithHint(ErrMissingSelfGeneric, "add self_generic=<Type> naming the type the methods take as self")
	}
	return generic, nil
}

func (e *extractor) selfAccessor(td typeDecl, methods []methodDecl) (string, error) {
	typeName := td.spec.Name.Name
	var marked []methodDecl
	for _, md := range methods {
		if md.dirs.Has(DirectiveSelf) {
			marked = append(marked, md)
		}
	}
	if len(marked) != 1 {
		names := make([]string, len(marked))
		for i, md := range marked {
			names[i] = md.fn.Name.Name
		}
		err := errors.Wrapf(ErrNotExactlyOneSelfAccessor, "found %d", len(marked))
		if len(marked) > 1 {
			err = errors.WithDetailf(err, "marked: %s", strings.Join(names, ", "))
			return "", e.at(marked[1].fn.Pos(), err)
		}
		return "", e.at(td.spec.Pos(), errors.WithHint(err, "mark the method returning the inner value with //capgen:self"))
	}

	md := marked[0]
	if d, _ := md.dirs.First(DirectiveSelf); d.Args != "" {
		return "", e.at(d.Pos, errors.Wrapf(ErrDirectiveArguments, "capgen:self %s", d.Args))
	}
	fn := md.fn
	var problem string
	switch {
	case fn.Type.Params.NumFields() != 0:
		problem = "must take no parameters"
	case fn.Type.Results.NumFields() != 1:
		problem = "must return exactly one value"
	}
	if problem != "" {
		return "", e.at(fn.Pos(), errors.Wrapf(ErrMalformedSelfAccessor, "%s.%s %s", typeName, fn.Name.Name, problem))
	}
	return fn.Name.Name, nil
}

func (e *extractor) buildMethod(md methodDecl, imports *importSet) (ir.Method, error) {
	fn := md.fn
	m := ir.Method{
		Name:            fn.Name.Name,
		Doc:             strings.TrimSpace(fn.Doc.Text()),
		Args:            []ir.Argument{},
		Strips:          []string{},
		PointerReceiver: md.pointer,
	}

	for i, field := range fn.Type.Params.List {
		typ := field.Type
		variadic := false
		if el, ok := typ.(*ast.Ellipsis); ok {
			typ = el.Elt
			variadic = true
		}
		if len(field.Names) == 0 {
			return ir.Method{}, errors.WithHint(
				errors.Wrapf(ErrPatternParameter, "parameter %d has no name", i+1),
				"name every parameter; generated methods forward arguments by name",
			)
		}
		expected, err := ir.ParseTypeExpression(e.render(typ))
		if err != nil {
			return ir.Method{}, errors.Wrapf(err, "parameter %d", i+1)
		}
		imports.collect(typ, md.file.AST)
		for _, n := range field.Names {
			if n.Name == "_" {
				return ir.Method{}, errors.WithHint(
					errors.Wrapf(ErrPatternParameter, "parameter %d is blank", i+1),
					"name every parameter; generated methods forward arguments by name",
				)
			}
			m.Args = append(m.Args, ir.Argument{
				Name:         n.Name,
				Mutable:      assigns(fn.Body, n.Name),
				Variadic:     variadic,
				ExpectedType: expected,
			})
		}
	}

	if fn.Type.Results != nil {
		rt, err := ir.ParseResultList(e.renderResults(fn.Type.Results))
		if err != nil {
			return ir.Method{}, err
		}
		m.ReturnType = rt
		for _, field := range fn.Type.Results.List {
			imports.collect(field.Type, md.file.AST)
		}
	}

	if d, ok := md.dirs.First(DirectiveLiteral); ok {
		if d.Args != "" {
			return ir.Method{}, e.at(d.Pos, errors.Wrapf(ErrDirectiveArguments, "capgen:literal %s", d.Args))
		}
		m.LiteralReturn = true
	}

	for _, d := range md.dirs[DirectiveStrips] {
		strips, err := e.parseStrips(d.Args)
		if err != nil {
			return ir.Method{}, e.at(d.Pos, err)
		}
		for _, s := range strips {
			if !contains(m.Strips, s) {
				m.Strips = append(m.Strips, s)
			}
		}
	}

	if !m.LiteralReturn && m.ReturnType.ResultCount() != 1 {
		return ir.Method{}, errors.WithHint(
			errors.Wrapf(ErrUnboxableReturn, "returns %d values", m.ReturnType.ResultCount()),
			"mark the method //capgen:literal to forward its results unchanged",
		)
	}
	return m, nil
}

func (e *extractor) parseStrips(args string) ([]string, error) {
	list, err := attr.Parse(args)
	if err != nil {
		return nil, errors.Wrap(err, "capgen:strips")
	}
	if len(list) == 0 {
		return nil, errors.Wrap(ErrMalformedStrips, "no capabilities listed")
	}
	names := make([]string, 0, len(list))
	for _, a := range list {
		b, ok := a.(attr.Bare)
		if !ok {
			return nil, errors.Wrapf(ErrMalformedStrips, "%s is not a capability name", a)
		}
		if !e.lat.Known(b.Name) {
			err := errors.Wrapf(ErrUnknownStrippedCapability, "%s", b.Name)
			if hint := util.DidYouMean(b.Name, e.lat.Names()); hint != "" {
				err = errors.WithHint(err, hint)
			}
			return nil, err
		}
		names = append(names, b.Name)
	}
	return names, nil
}

func (e *extractor) render(expr ast.Expr) string {
	return Render(e.prog.Fset, expr)
}

func (e *extractor) renderResults(results *ast.FieldList) string {
	if len(results.List) == 1 && len(results.List[0].Names) == 0 {
		return e.render(results.List[0].Type)
	}
	parts := make([]string, 0, len(results.List))
	for _, field := range results.List {
		typ := e.render(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		names := make([]string, len(field.Names))
		for i, n := range field.Names {
			names[i] = n.Name
		}
		parts = append(parts, strings.Join(names, ", ")+" "+typ)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// at prefixes err with a source position.
func (e *extractor) at(pos token.Pos, err error) error {
	if !pos.IsValid() {
		return err
	}
	return errors.WithDetailf(err, "at %s", e.prog.Position(pos))
}

// ReceiverBase returns the base type name of a method receiver and whether
// the receiver is a pointer.
func ReceiverBase(fn *ast.FuncDecl) (string, bool) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return "", false
	}
	typ := fn.Recv.List[0].Type
	ptr := false
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
		ptr = true
	}
	switch t := typ.(type) {
	case *ast.IndexExpr:
		typ = t.X
	case *ast.IndexListExpr:
		typ = t.X
	}
	if id, ok := typ.(*ast.Ident); ok {
		return id.Name, ptr
	}
	return "", ptr
}

// assigns reports whether body writes to name or takes its address.
func assigns(body *ast.BlockStmt, name string) bool {
	if body == nil {
		return false
	}
	isName := func(x ast.Expr) bool {
		id, ok := x.(*ast.Ident)
		return ok && id.Name == name
	}
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		if found {
			return false
		}
		switch s := n.(type) {
		case *ast.AssignStmt:
			if s.Tok == token.DEFINE {
				return true
			}
			for _, lhs := range s.Lhs {
				if isName(lhs) {
					found = true
				}
			}
		case *ast.IncDecStmt:
			found = isName(s.X)
		case *ast.RangeStmt:
			if s.Tok == token.ASSIGN && (isName(s.Key) || isName(s.Value)) {
				found = true
			}
		case *ast.UnaryExpr:
			if s.Op == token.AND && isName(s.X) {
				found = true
			}
		}
		return !found
	})
	return found
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// importSet records the imports referenced by recorded signatures.
type importSet struct {
	byPath map[string]ir.Import
}

func newImportSet() *importSet {
	return &importSet{byPath: map[string]ir.Import{}}
}

func (s *importSet) collect(expr ast.Expr, f *ast.File) {
	ast.Inspect(expr, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		for _, spec := range f.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				continue
			}
			local := ir.DefaultPackageName(path)
			if spec.Name != nil {
				local = spec.Name.Name
			}
			if local != id.Name {
				continue
			}
			if _, seen := s.byPath[path]; seen {
				break
			}
			imp := ir.Import{Path: path}
			if id.Name != ir.DefaultPackageName(path) {
				imp.Name = id.Name
			}
			s.byPath[path] = imp
			break
		}
		return false
	})
}

func (s *importSet) sorted() []ir.Import {
	if len(s.byPath) == 0 {
		return nil
	}
	out := make([]ir.Import, 0, len(s.byPath))
	for _, path := range util.SortedKeys(s.byPath) {
		out = append(out, s.byPath[path])
	}
	return out
}
