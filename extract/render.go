package extract

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/token"
)

// Render prints an AST node in gofmt form. Nodes that fail to print render
// as an empty string, which type validation then rejects.
func Render(fset *token.FileSet, node ast.Node) string {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, node); err != nil {
		return ""
	}
	return buf.String()
}
