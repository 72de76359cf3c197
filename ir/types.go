package ir

import (
	"bytes"
	"encoding/json"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strings"

	"github.com/teranos/capgen/errors"
)

// ErrInvalidType is returned for text that is not a Go type expression.
var ErrInvalidType = errors.Category(errors.ErrSchema, "invalid type expression")

// TypeExpression is the canonical source text of a Go type, or of a result
// list for return types. The zero value means "no type".
type TypeExpression struct {
	text string
}

// ParseTypeExpression validates s as a parameter type and returns it in
// gofmt form. Variadic `...T` is rejected; record T with Argument.Variadic.
func ParseTypeExpression(s string) (TypeExpression, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeExpression{}, errors.Wrap(ErrInvalidType, "empty type")
	}

	fset := token.NewFileSet()
	ft, err := parseFuncType(fset, "func(_ "+s+")")
	if err != nil || ft.Results != nil || len(ft.Params.List) != 1 || len(ft.Params.List[0].Names) != 1 {
		return TypeExpression{}, errors.Wrapf(ErrInvalidType, "%q", s)
	}
	typ := ft.Params.List[0].Type
	if _, variadic := typ.(*ast.Ellipsis); variadic {
		return TypeExpression{}, errors.Wrapf(ErrInvalidType, "%q: variadic marker in type", s)
	}

	text, err := render(fset, typ)
	if err != nil {
		return TypeExpression{}, errors.Wrapf(ErrInvalidType, "%q", s)
	}
	return TypeExpression{text: text}, nil
}

// ParseResultList validates s as a function result list, e.g. "int" or
// "(Seq, error)". Empty input is the zero TypeExpression.
func ParseResultList(s string) (TypeExpression, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeExpression{}, nil
	}

	fset := token.NewFileSet()
	ft, err := parseFuncType(fset, "func() "+s)
	if err != nil || len(ft.Params.List) != 0 || ft.Results == nil {
		return TypeExpression{}, errors.Wrapf(ErrInvalidType, "result list %q", s)
	}

	text, err := render(fset, ft)
	if err != nil {
		return TypeExpression{}, errors.Wrapf(ErrInvalidType, "result list %q", s)
	}
	return TypeExpression{text: strings.TrimPrefix(text, "func() ")}, nil
}

// MustParseType is ParseTypeExpression for literals; it panics on error.
func MustParseType(s string) TypeExpression {
	t, err := ParseTypeExpression(s)
	if err != nil {
		panic(err)
	}
	return t
}

// MustParseResults is ParseResultList for literals; it panics on error.
func MustParseResults(s string) TypeExpression {
	t, err := ParseResultList(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseFuncType(fset *token.FileSet, src string) (*ast.FuncType, error) {
	expr, err := parser.ParseExprFrom(fset, "", src, 0)
	if err != nil {
		return nil, err
	}
	ft, ok := expr.(*ast.FuncType)
	if !ok {
		return nil, errors.Newf("%q is not a function type", src)
	}
	return ft, nil
}

func render(fset *token.FileSet, node ast.Node) (string, error) {
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, node); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (t TypeExpression) String() string { return t.text }

// IsZero reports whether t holds no type.
func (t TypeExpression) IsZero() bool { return t.text == "" }

// ValidateParam re-parses t as a parameter type. Used on decoded records,
// which skip validation.
func (t TypeExpression) ValidateParam() error {
	_, err := ParseTypeExpression(t.text)
	return err
}

// ValidateResults re-parses t as a result list.
func (t TypeExpression) ValidateResults() error {
	_, err := ParseResultList(t.text)
	return err
}

// Expr parses t as a type and returns its AST.
func (t TypeExpression) Expr() (ast.Expr, error) {
	ft, err := parseFuncType(token.NewFileSet(), "func(_ "+t.text+")")
	if err != nil || len(ft.Params.List) != 1 {
		return nil, errors.Wrapf(ErrInvalidType, "%q", t.text)
	}
	return ft.Params.List[0].Type, nil
}

// Results parses t as a result list and returns its fields.
func (t TypeExpression) Results() (*ast.FieldList, error) {
	if t.IsZero() {
		return nil, nil
	}
	ft, err := parseFuncType(token.NewFileSet(), "func() "+t.text)
	if err != nil || ft.Results == nil {
		return nil, errors.Wrapf(ErrInvalidType, "result list %q", t.text)
	}
	return ft.Results, nil
}

// ResultCount returns how many values a result list produces.
func (t TypeExpression) ResultCount() int {
	results, err := t.Results()
	if err != nil || results == nil {
		return 0
	}
	return results.NumFields()
}

// MarshalJSON writes the type text as a JSON string.
func (t TypeExpression) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.text)
}

// UnmarshalJSON reads the text as is. Consumers validate it with
// ValidateParam or ValidateResults so failures carry method context.
func (t *TypeExpression) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.text = s
	return nil
}
