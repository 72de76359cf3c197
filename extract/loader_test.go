package extract

import (
	"context"
	"go/parser"
	"go/token"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/capgen/am"
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/lattice"
)

func packagePaths(p *Program) []string {
	var paths []string
	for _, pkg := range p.Packages {
		paths = append(paths, pkg.Path)
	}
	return paths
}

func TestTreeLoader(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"go.mod":         goMod,
		"root.go":        "package acme\n",
		"b/b.go":         "package b\n",
		"a/z.go":         "package a\n",
		"a/y.go":         "package a\n",
		"a/a_test.go":    "package a_test\n",
		"a/gen/skip.go":  "package gen\n",
		"vendor/v/v.go":  "package v\n",
		"testdata/t.go":  "package t\n",
		".hidden/h.go":   "package h\n",
		"_old/o.go":      "package o\n",
		"nested/go.mod":  "module example.com/nested\n",
		"nested/n.go":    "package nested\n",
		"docs/readme.md": "# not go\n",
	})

	l := treeLoader(dir)
	l.Exclude = append(l.Exclude, "a/gen/**")
	prog, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "example.com/acme", prog.Module)
	assert.Equal(t, []string{"example.com/acme", "example.com/acme/a", "example.com/acme/b"}, packagePaths(prog))

	a, ok := prog.Package("example.com/acme/a")
	require.True(t, ok)
	assert.Equal(t, "a", a.Name)
	require.Len(t, a.Files, 2)
	assert.Contains(t, a.Files[0].Path, "y.go", "files sorted by name")
	assert.Contains(t, a.Files[1].Path, "z.go")
}

func TestTreeLoader_Include(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"go.mod":      goMod,
		"lib/cap.go":  "package lib\n",
		"app/main.go": "package main\n",
	})
	l := treeLoader(dir)
	l.Include = []string{"lib/**/*.go"}

	prog, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com/acme/lib"}, packagePaths(prog))
}

func TestTreeLoader_Subdirectory(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"go.mod":          goMod,
		"pkg/stream/s.go": "package stream\n",
	})
	l := treeLoader(dir + "/pkg")

	prog, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com/acme/pkg/stream"}, packagePaths(prog))
}

func TestTreeLoader_NoModule(t *testing.T) {
	dir := writeTree(t, map[string]string{"stream/s.go": "package stream\n"})

	_, err := treeLoader(dir).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoModule))

	l := treeLoader(dir)
	l.ModuleRequired = false
	prog, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", prog.Module)
	assert.Equal(t, []string{"stream"}, packagePaths(prog))
}

func TestTreeLoader_Errors(t *testing.T) {
	t.Run("mixed packages", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"go.mod": goMod,
			"x/a.go": "package a\n",
			"x/b.go": "package b\n",
		})
		_, err := treeLoader(dir).Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "found packages a and b")
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := writeTree(t, map[string]string{
			"go.mod": goMod,
			"x/a.go": "package a\n\nfunc {\n",
		})
		_, err := treeLoader(dir).Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})

	t.Run("bad pattern", func(t *testing.T) {
		dir := writeTree(t, map[string]string{"go.mod": goMod, "x/a.go": "package a\n"})
		l := treeLoader(dir)
		l.Include = []string{"[x"}
		_, err := l.Load(context.Background())
		require.Error(t, err)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := treeLoader(t.TempDir() + "/nope").Load(context.Background())
		require.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		dir := writeTree(t, map[string]string{"go.mod": goMod, "x/a.go": "package a\n"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := treeLoader(dir).Load(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestNewLoader(t *testing.T) {
	cfg := am.DefaultConfig()
	cfg.BaseDir = "/work"

	l, err := NewLoader(cfg)
	require.NoError(t, err)
	tree, ok := l.(*TreeLoader)
	require.True(t, ok)
	assert.Equal(t, "/work", tree.Root)
	assert.Equal(t, []string{"**/*.go"}, tree.Include)

	cfg.Extract.Loader = "packages"
	l, err = NewLoader(cfg)
	require.NoError(t, err)
	pl, ok := l.(*PackagesLoader)
	require.True(t, ok)
	assert.Equal(t, []string{"./..."}, pl.Patterns)

	cfg.Extract.Loader = "bazel"
	_, err = NewLoader(cfg)
	require.Error(t, err)
}

func TestParseDirectives(t *testing.T) {
	src := `package p

// Doc line.
//
//capgen:delegate Base, (DoubleEnded, exclude=(Rev))
//capgen:strips ExactSize
//capgen:strips DoubleEnded
// capgen:literal is prose, not a directive
type T struct{}
`
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "p.go", src, parser.ParseComments)
	require.NoError(t, err)

	table, err := ParseDirectives(f.Comments...)
	require.NoError(t, err)

	d, ok := table.First(DirectiveDelegate)
	require.True(t, ok)
	assert.Equal(t, "Base, (DoubleEnded, exclude=(Rev))", d.Args)
	assert.Len(t, table[DirectiveStrips], 2)
	assert.False(t, table.Has(DirectiveLiteral))
	assert.False(t, table.Empty())

	none, err := ParseDirectives(nil)
	require.NoError(t, err)
	assert.True(t, none.Empty())
}

func TestParseDirectives_Whitespace(t *testing.T) {
	src := "package p\n\n//capgen:delegate\tBase,  DoubleEnded \n//capgen:self\ntype T struct{}\n"
	f, err := parser.ParseFile(token.NewFileSet(), "p.go", src, parser.ParseComments)
	require.NoError(t, err)

	table, err := ParseDirectives(f.Comments...)
	require.NoError(t, err)
	d, ok := table.First(DirectiveDelegate)
	require.True(t, ok)
	assert.Equal(t, "Base,  DoubleEnded", d.Args)
	d, ok = table.First(DirectiveSelf)
	require.True(t, ok)
	assert.Empty(t, d.Args)
}

func TestIsCapgenOutput(t *testing.T) {
	parse := func(src string) bool {
		f, err := parser.ParseFile(token.NewFileSet(), "x.go", src, parser.ParseComments)
		require.NoError(t, err)
		return IsCapgenOutput(f)
	}
	assert.True(t, parse("// Code generated by capgen. DO NOT EDIT.\n\npackage p\n"))
	assert.False(t, parse("// Code generated by stringer. DO NOT EDIT.\n\npackage p\n"))
	assert.False(t, parse("package p\n\n// Code generated by capgen. DO NOT EDIT.\n"))
}

func TestPackagesLoader(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	t.Setenv("GOWORK", "off")
	t.Setenv("GOFLAGS", "-mod=mod")
	t.Setenv("GOPROXY", "off")

	files := map[string]string{
		"go.mod":           goMod,
		"stream/base.go":   baseSource,
		"stream/doc.go":    "// Package stream holds the capabilities.\npackage stream\n",
		"app/app.go":       "package app\n\ntype Stream struct{}\n",
		"stream/x_test.go": "package stream\n",
	}
	dir := writeTree(t, files)

	l := &PackagesLoader{Dir: dir, Patterns: []string{"./..."}}
	prog, err := l.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "example.com/acme", prog.Module)
	assert.Equal(t, []string{"example.com/acme/app", "example.com/acme/stream"}, packagePaths(prog))

	stream, ok := prog.Package("example.com/acme/stream")
	require.True(t, ok)
	assert.Equal(t, "stream", stream.Name)
	require.Len(t, stream.Files, 2, "test files are not loaded")
	assert.Contains(t, stream.Files[0].Path, "base.go")
	assert.Contains(t, stream.Files[1].Path, "doc.go")

	sets, err := Extract(prog, lattice.Default())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "example.com/acme/stream.Base", sets[0].Name.String())
	assert.Len(t, sets[0].Methods, 7)

	// Both loaders see the same capability sets
	fromTree, err := extractTree(t, files)
	require.NoError(t, err)
	assert.Equal(t, fromTree, sets)
}

func TestPackagesLoader_BrokenPackage(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}
	t.Setenv("GOWORK", "off")
	t.Setenv("GOFLAGS", "-mod=mod")
	t.Setenv("GOPROXY", "off")

	dir := writeTree(t, map[string]string{
		"go.mod":         goMod,
		"stream/base.go": "package stream\n\nfunc (\n",
	})

	_, err := (&PackagesLoader{Dir: dir}).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "package errors")
}
