package emit

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/imports"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/extract"
	"github.com/teranos/capgen/ir"
)

// Merge implements Merger. Methods of the failed targets are copied from
// previous, with their doc comments, after the freshly emitted ones, and the
// imports they use are added. A previous import whose name is now bound to a
// different path is an error.
func (e *GoEmitter) Merge(content, previous []byte, targets []string) ([]byte, error) {
	failed := make(map[string]bool, len(targets))
	for _, t := range targets {
		failed[t] = true
	}

	fset := token.NewFileSet()
	old, err := parser.ParseFile(fset, "previous.go", previous, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrap(err, "previous output does not parse")
	}
	tf := fset.File(old.Pos())

	var kept [][]byte
	used := map[string]bool{}
	for _, decl := range old.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		recv, _ := extract.ReceiverBase(fn)
		if !failed[recv] {
			continue
		}
		start := fn.Pos()
		if fn.Doc != nil {
			start = fn.Doc.Pos()
		}
		kept = append(kept, previous[tf.Offset(start):tf.Offset(fn.End())])
		ast.Inspect(fn, func(n ast.Node) bool {
			if sel, ok := n.(*ast.SelectorExpr); ok {
				if id, ok := sel.X.(*ast.Ident); ok {
					used[id.Name] = true
				}
			}
			return true
		})
	}
	if len(kept) == 0 {
		return content, nil
	}

	var buf bytes.Buffer
	buf.Write(bytes.TrimRight(content, "\n"))
	buf.WriteByte('\n')
	for _, k := range kept {
		buf.WriteByte('\n')
		buf.Write(k)
		buf.WriteByte('\n')
	}

	fset = token.NewFileSet()
	merged, err := parser.ParseFile(fset, "merged.go", buf.Bytes(), parser.ParseComments)
	if err != nil {
		return nil, errors.Wrap(err, "merged output does not parse")
	}

	bound := map[string]string{}
	for _, spec := range merged.Imports {
		path, _ := strconv.Unquote(spec.Path.Value)
		bound[importName(spec, path)] = path
	}
	for _, spec := range old.Imports {
		path, _ := strconv.Unquote(spec.Path.Value)
		name := importName(spec, path)
		if !used[name] {
			continue
		}
		if have, ok := bound[name]; ok {
			if have != path {
				return nil, errors.Newf("import name %s is bound to both %s and %s", name, have, path)
			}
			continue
		}
		alias := ""
		if spec.Name != nil {
			alias = spec.Name.Name
		}
		astutil.AddNamedImport(fset, merged, alias, path)
		bound[name] = path
	}

	var out bytes.Buffer
	if err := format.Node(&out, fset, merged); err != nil {
		return nil, errors.Wrap(err, "formatting merged output")
	}
	return imports.Process("merged.go", out.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
}

// importName is the name an import binds in the file.
func importName(spec *ast.ImportSpec, path string) string {
	if spec.Name != nil {
		return spec.Name.Name
	}
	return ir.DefaultPackageName(path)
}
