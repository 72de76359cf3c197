package emit

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/tools/imports"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/extract"
	"github.com/teranos/capgen/lattice"
	"github.com/teranos/capgen/logger"
	"github.com/teranos/capgen/synth"
)

// GoEmitter renders forwarding methods as a Go source file.
type GoEmitter struct {
	log *zap.SugaredLogger
}

// NewGoEmitter creates a GoEmitter.
func NewGoEmitter() *GoEmitter {
	return &GoEmitter{log: logger.ComponentLogger("capgen.emit")}
}

// method is a MethodDefinition with its types already qualified.
type method struct {
	def     synth.MethodDefinition
	params  []string
	results string
	call    string
}

// Emit implements Emitter.
func (e *GoEmitter) Emit(file synth.File) ([]byte, error) {
	imps := newImportSet()
	for _, t := range file.Targets {
		imps.reserve(t.Request.TargetType)
		for _, def := range t.Methods {
			imps.reserve(def.Receiver)
			for _, p := range def.Params {
				imps.reserve(p.Name)
			}
			if def.Result.Box != nil && def.Result.Box.Package == "" {
				imps.reserve(def.Result.Box.Constructor)
			}
		}
	}

	// Collect every import before names are assigned
	for _, t := range file.Targets {
		for _, def := range t.Methods {
			if err := e.collect(file, def, imps); err != nil {
				return nil, errors.Wrapf(err, "%s.%s", def.Target, def.Name)
			}
		}
	}
	imps.assign()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n\npackage %s\n", GeneratedHeader, file.PackageName)
	if std, other := imps.specs(); len(std)+len(other) > 0 {
		buf.WriteString("\nimport (\n")
		for _, s := range std {
			fmt.Fprintf(&buf, "\t%s\n", s)
		}
		if len(std) > 0 && len(other) > 0 {
			buf.WriteByte('\n')
		}
		for _, s := range other {
			fmt.Fprintf(&buf, "\t%s\n", s)
		}
		buf.WriteString(")\n")
	}

	for _, t := range file.Targets {
		for _, def := range t.Methods {
			m, err := e.prepare(file, def, imps)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", def.Target, def.Name)
			}
			buf.WriteByte('\n')
			writeMethod(&buf, m)
		}
	}

	out, err := imports.Process(file.PackageName+".go", buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "generated source for %s does not parse", file.Package)
	}

	e.log.Debugw("Emitted", logger.FieldPackage, file.Package, logger.FieldCount, len(file.Targets))
	return out, nil
}

func (e *GoEmitter) qualifier(file synth.File, def synth.MethodDefinition, imps *importSet) (*qualifier, error) {
	if def.Capability == nil {
		return nil, errors.AssertionFailedf("method %s has no capability record", def.Name)
	}
	return &qualifier{
		set:     def.Capability,
		imports: imps,
		local:   def.Capability.Name.Package() == file.Package,
	}, nil
}

func (e *GoEmitter) collect(file synth.File, def synth.MethodDefinition, imps *importSet) error {
	q, err := e.qualifier(file, def, imps)
	if err != nil {
		return err
	}
	if !q.local {
		imps.add(q.set.Name.Package(), q.set.PackageName, q.set.PackageName)
	}
	for _, p := range def.Params {
		expr, err := p.Type.Expr()
		if err != nil {
			return err
		}
		q.collect(expr)
	}
	if def.Result.Kind == lattice.ReturnLiteral {
		results, err := def.Result.Types.Results()
		if err != nil {
			return err
		}
		q.collect(results)
	}
	if box := def.Result.Box; box != nil && box.Package != "" && box.Package != file.Package {
		imps.add(box.Package, box.PackageName, box.PackageName)
	}
	return nil
}

func (e *GoEmitter) prepare(file synth.File, def synth.MethodDefinition, imps *importSet) (method, error) {
	q, err := e.qualifier(file, def, imps)
	if err != nil {
		return method{}, err
	}
	fset := token.NewFileSet()
	m := method{def: def}

	for _, p := range def.Params {
		expr, err := p.Type.Expr()
		if err != nil {
			return method{}, err
		}
		node, err := q.rewrite(expr)
		if err != nil {
			return method{}, err
		}
		typ := extract.Render(fset, node)
		if p.Variadic {
			typ = "..." + typ
		}
		m.params = append(m.params, p.Name+" "+typ)
	}

	capType := q.set.ShortName()
	if !q.local {
		capType = imps.name(q.set.Name.Package()) + "." + capType
	}
	recv := capType + "{}"
	if def.PointerReceiver {
		recv = "(&" + recv + ")"
	}
	args := make([]string, len(def.CallArgs))
	for i, a := range def.CallArgs {
		switch {
		case a.Self:
			args[i] = def.Receiver + "." + def.Accessor + "()"
		case a.Variadic:
			args[i] = a.Name + "..."
		default:
			args[i] = a.Name
		}
	}
	call := fmt.Sprintf("%s.%s(%s)", recv, def.Method, strings.Join(args, ", "))

	switch def.Result.Kind {
	case lattice.ReturnNone:
		m.call = call
	case lattice.ReturnLiteral:
		results, err := def.Result.Types.Results()
		if err != nil {
			return method{}, err
		}
		node, err := q.rewrite(results)
		if err != nil {
			return method{}, err
		}
		m.results = renderResults(fset, node.(*ast.FieldList))
		m.call = "return " + call
	case lattice.ReturnSelf, lattice.ReturnWrapper:
		box := def.Result.Box
		if box == nil {
			return method{}, errors.AssertionFailedf("%s result without a box", def.Result.Kind)
		}
		typ, ctor := box.Type, box.Constructor
		if box.Package != "" && box.Package != file.Package {
			typ = imps.name(box.Package) + "." + typ
			ctor = imps.name(box.Package) + "." + ctor
		}
		m.results = "*" + typ
		m.call = "return " + ctor + "(" + call + ")"
	default:
		return method{}, errors.AssertionFailedf("unknown return kind %d", def.Result.Kind)
	}
	return m, nil
}

// renderResults prints a result list the way it appears after a parameter list.
func renderResults(fset *token.FileSet, fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	if len(fl.List) == 1 && len(fl.List[0].Names) == 0 {
		return extract.Render(fset, fl.List[0].Type)
	}
	fields := make([]string, len(fl.List))
	for i, f := range fl.List {
		typ := extract.Render(fset, f.Type)
		if len(f.Names) == 0 {
			fields[i] = typ
			continue
		}
		names := make([]string, len(f.Names))
		for j, n := range f.Names {
			names[j] = n.Name
		}
		fields[i] = strings.Join(names, ", ") + " " + typ
	}
	return "(" + strings.Join(fields, ", ") + ")"
}

func writeMethod(buf *bytes.Buffer, m method) {
	def := m.def
	doc := strings.TrimSpace(def.Doc)
	if doc != "" {
		for _, line := range strings.Split(doc, "\n") {
			if line == "" {
				buf.WriteString("//\n")
				continue
			}
			fmt.Fprintf(buf, "// %s\n", line)
		}
	}
	if def.Bridge != "" {
		if doc != "" {
			buf.WriteString("//\n")
		}
		fmt.Fprintf(buf, "//capgen:%s %s\n", extract.DirectiveBridge, def.Bridge)
	}

	fmt.Fprintf(buf, "func (%s *%s) %s(%s)", def.Receiver, def.Target, def.Name, strings.Join(m.params, ", "))
	if m.results != "" {
		buf.WriteString(" " + m.results)
	}
	fmt.Fprintf(buf, " {\n\t%s\n}\n", m.call)
}
