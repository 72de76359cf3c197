package commands

import (
	"bytes"
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/capgen/am"
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/registry"
	"github.com/teranos/capgen/synth"
)

const streamSource = `package stream

// Seq is the abstract self value.
type Seq interface{ Next() (any, bool) }

// Base holds the algorithms every stream supports.
//
//capgen:register self_generic=Seq
type Base struct{ inner Seq }

func NewBase(s Seq) *Base { return &Base{inner: s} }

//capgen:self
func (b *Base) TakeInner() Seq { return b.inner }

// Map applies f to every element.
func (Base) Map(s Seq, f func(any) any) Seq { return s }

//capgen:strips ExactSize
func (Base) Filter(s Seq, keep func(any) bool) Seq { return s }

//capgen:literal
func (Base) Count(s Seq) int { return 0 }
`

const appSource = `package app

import "example.com/acme/stream"

//capgen:delegate Base, composite=Base
type Stream struct{ inner stream.Seq }

func NewStream(s stream.Seq) *Stream { return &Stream{inner: s} }

//capgen:self
func (s *Stream) Inner() stream.Seq { return s.inner }
`

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	pterm.SetDefaultOutput(&bytes.Buffer{})
	os.Exit(m.Run())
}

// project writes a module into a temp dir and makes it the working directory.
func project(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	all := map[string]string{
		"go.mod":           "module example.com/acme\n\ngo 1.22\n",
		"stream/stream.go": streamSource,
		"app/app.go":       appSource,
	}
	for name, body := range files {
		all[name] = body
	}
	for name, body := range all {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	t.Setenv("HOME", t.TempDir())
	t.Chdir(dir)
	t.Cleanup(am.Reset)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	generateDryRun, generateEmit, extractWatch = false, "", false
	configFormat, configForce, registryFormat = FormatTOML, false, FormatJSON
	am.Reset()

	root := &cobra.Command{Use: "capgen", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String(ConfigFlag, "", "")
	root.AddCommand(ExtractCmd, GenerateCmd, CheckCmd, LatticeCmd, RegistryCmd, ConfigCmd, VersionCmd)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtractGenerateCheck(t *testing.T) {
	dir := project(t, nil)
	generated := filepath.Join(dir, "app", synth.DefaultOutputFile)

	out, err := execute(t, "extract")
	require.NoError(t, err)
	assert.Contains(t, out, "example.com/acme/stream.Base")
	assert.FileExists(t, filepath.Join(dir, registry.DefaultPath))

	_, err = execute(t, "check")
	assert.True(t, errors.Is(err, ErrStale), "nothing generated yet")

	out, err = execute(t, "generate")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join("app", synth.DefaultOutputFile))

	data, err := os.ReadFile(generated)
	require.NoError(t, err)
	src := string(data)
	assert.True(t, strings.HasPrefix(src, "// Code generated by capgen. DO NOT EDIT.\n"))
	assert.Contains(t, src, "func (s *Stream) Map(f func(any) any) *Stream {\n\treturn NewStream(stream.Base{}.Map(s.Inner(), f))\n}")
	assert.Contains(t, src, "func (s *Stream) Filter(keep func(any) bool) *stream.Base {")
	assert.Contains(t, src, "func (s *Stream) Count() int {")

	_, err = execute(t, "check")
	require.NoError(t, err)

	// Re-extracting sees the generated file and must ignore it
	_, err = execute(t, "extract")
	require.NoError(t, err)
	_, err = execute(t, "generate")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(generated, []byte(strings.Replace(src, "Count", "Total", 1)), 0644))
	out, err = execute(t, "check")
	assert.True(t, errors.Is(err, ErrStale))
	assert.Contains(t, out, "Total")
}

func TestGenerate_DryRunAndPlan(t *testing.T) {
	dir := project(t, nil)
	_, err := execute(t, "extract")
	require.NoError(t, err)

	out, err := execute(t, "generate", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would write")
	assert.NoFileExists(t, filepath.Join(dir, "app", synth.DefaultOutputFile))

	out, err = execute(t, "generate", "--emit", "plan")
	require.NoError(t, err)
	assert.Contains(t, out, `"target_type": "Stream"`)
	assert.Contains(t, out, `"kind": "wrapper"`)
	assert.NoFileExists(t, filepath.Join(dir, "app", synth.DefaultOutputFile))
}

func TestGenerate_WithoutRegistry(t *testing.T) {
	project(t, nil)
	_, err := execute(t, "generate")
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrRegistryNotFound))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestGenerate_FailingTarget(t *testing.T) {
	dir := project(t, map[string]string{
		"app/broken.go": "package app\n\n//capgen:delegate Bsae\ntype Broken struct{}\n",
	})
	_, err := execute(t, "extract")
	require.NoError(t, err)

	out, err := execute(t, "generate")
	require.Error(t, err)
	assert.True(t, errors.Is(err, synth.ErrTargetsFailed))
	assert.Contains(t, out, "did you mean Base?")
	assert.FileExists(t, filepath.Join(dir, "app", synth.DefaultOutputFile), "healthy targets are still written")
}

func TestExtract_SchemaError(t *testing.T) {
	dir := project(t, map[string]string{
		"stream/stream.go": strings.Replace(streamSource, "//capgen:register self_generic=Seq", "//capgen:register", 1),
	})
	_, err := execute(t, "extract")
	require.Error(t, err)
	assert.True(t, errors.IsSchemaError(err))
	assert.NoFileExists(t, filepath.Join(dir, registry.DefaultPath))
}

func TestLattice(t *testing.T) {
	project(t, map[string]string{
		am.ProjectConfigName: "[[lattice.composite]]\nname = \"Random\"\nsubsumes = [\"Base\", \"DoubleEnded\", \"Random\"]\n",
	})
	out, err := execute(t, "lattice")
	require.NoError(t, err)
	assert.Contains(t, out, "Base (base)")
	assert.Contains(t, out, "SizedDoubleEnded")
	assert.Contains(t, out, "Base, DoubleEnded, Random")
}

func TestRegistryShow(t *testing.T) {
	project(t, nil)
	_, err := execute(t, "extract")
	require.NoError(t, err)

	out, err := execute(t, "registry", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"self_generic": "Seq"`)

	out, err = execute(t, "registry", "show", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "self_generic: Seq")

	out, err = execute(t, "registry", "show", "--format", "toml")
	require.NoError(t, err)
	assert.Contains(t, out, "self_generic")
	assert.Contains(t, out, "[[capability_sets]]")

	_, err = execute(t, "registry", "show", "--format", "xml")
	assert.Error(t, err)

	out, err = execute(t, "registry", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "capability_sets")
}

func TestConfigCommands(t *testing.T) {
	dir := project(t, nil)

	_, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, am.ProjectConfigName))

	_, err = execute(t, "config", "init")
	assert.True(t, errors.Is(err, am.ErrConfigExists))

	_, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, am.ProjectConfigName+".back1"))

	out, err := execute(t, "config", "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"rename_prefix": "Forward"`)

	_, err = execute(t, "config", "validate")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, am.ProjectConfigName), []byte("[generate]\nrenmae_prefix = \"Via\"\n"), 0644))
	_, err = execute(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate.renmae_prefix")

	require.NoError(t, os.WriteFile(filepath.Join(dir, am.ProjectConfigName), []byte("[extract]\nloader = \"bazel\"\n"), 0644))
	_, err = execute(t, "config", "validate")
	require.Error(t, err)
	assert.True(t, errors.Is(err, am.ErrInvalidConfig))
}

func TestConfigFlag(t *testing.T) {
	dir := project(t, nil)
	custom := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(custom, []byte("[registry]\npath = \"build/caps.json\"\n"), 0644))

	_, err := execute(t, "extract", "--config", custom)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "build", "caps.json"))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
}

func TestMarshalAs(t *testing.T) {
	v := map[string]interface{}{"name": "Base", "methods": []string{"Map"}}

	data, err := marshalAs("YAML", v)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Base")

	_, err = marshalAs("ini", v)
	assert.Error(t, err)
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	err := errors.WithHint(errors.WithDetail(errors.New("boom"), "at app/app.go:3:1"), "fix it")
	PrintError(&buf, err)

	assert.Contains(t, buf.String(), "Error: boom")
	assert.Contains(t, buf.String(), "detail: at app/app.go:3:1")
	assert.Contains(t, buf.String(), "hint: fix it")
}

const codecCompileSource = `package codec

// Writer collects encoded elements.
type Writer struct{ n int }
`

const streamCompileSource = `package stream

import enc "example.com/acme/codec"

type Seq interface{ Next() (any, bool) }

//capgen:register self_generic=Seq
type Base struct{ inner Seq }

func NewBase(s Seq) *Base { return &Base{inner: s} }

//capgen:self
func (b *Base) TakeInner() Seq { return b.inner }

func (Base) Map(s Seq, f func(any) any) Seq { return s }

//capgen:strips ExactSize
func (Base) Filter(s Seq, keep func(any) bool) Seq { return s }

func (Base) Chain(s Seq, more ...Seq) Seq { return s }

//capgen:literal
func (Base) Encode(s Seq, w *enc.Writer) (int, error) { return 0, nil }

//capgen:register self_generic=Seq
type DoubleEnded struct{ inner Seq }

func NewDoubleEnded(s Seq) *DoubleEnded { return &DoubleEnded{inner: s} }

//capgen:self
func (d *DoubleEnded) TakeInner() Seq { return d.inner }

//capgen:strips ExactSize
func (DoubleEnded) Rev(s Seq) Seq { return s }
`

const appCompileSource = `package app

import "example.com/acme/stream"

//capgen:delegate Base, DoubleEnded, composite=SizedDoubleEnded
type Stream struct{ inner stream.Seq }

func NewStream(s stream.Seq) *Stream { return &Stream{inner: s} }

//capgen:self
func (s *Stream) Inner() stream.Seq { return s.inner }

//capgen:delegate (Base, exclude=(Encode))
type Base struct{ inner stream.Seq }

func NewBase(s stream.Seq) *Base { return &Base{inner: s} }

//capgen:self
func (b *Base) Inner() stream.Seq { return b.inner }

// Map is the host's own version.
func (b *Base) Map(f func(any) any) *Base { return b }
`

// packageImporter resolves imports from packages already checked.
type packageImporter map[string]*types.Package

func (m packageImporter) Import(path string) (*types.Package, error) {
	if pkg, ok := m[path]; ok {
		return pkg, nil
	}
	return nil, errors.Newf("package %s not checked yet", path)
}

// typeCheck checks the packages under dir in dependency order.
func typeCheck(t *testing.T, dir string, pkgs ...string) {
	t.Helper()
	imported := packageImporter{}
	for _, rel := range pkgs {
		fset := token.NewFileSet()
		entries, err := os.ReadDir(filepath.Join(dir, rel))
		require.NoError(t, err)

		var files []*ast.File
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".go") {
				continue
			}
			f, err := parser.ParseFile(fset, filepath.Join(dir, rel, e.Name()), nil, parser.ParseComments)
			require.NoError(t, err)
			files = append(files, f)
		}

		conf := types.Config{Importer: imported}
		path := "example.com/acme/" + rel
		pkg, err := conf.Check(path, fset, files, nil)
		require.NoError(t, err, "package %s", rel)
		imported[path] = pkg
	}
}

func TestGenerate_OutputTypeChecks(t *testing.T) {
	dir := project(t, map[string]string{
		"codec/codec.go":   codecCompileSource,
		"stream/stream.go": streamCompileSource,
		"app/app.go":       appCompileSource,
	})

	_, err := execute(t, "extract")
	require.NoError(t, err)
	_, err = execute(t, "generate")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "app", synth.DefaultOutputFile))
	require.NoError(t, err)
	src := string(data)

	// Canonical host renamed with a bridge
	assert.Contains(t, src, "//capgen:bridge Map\nfunc (b *Base) ForwardMap(f func(any) any) *Base {")
	// Strip degraded to the DoubleEnded wrapper
	assert.Contains(t, src, "func (s *Stream) Filter(keep func(any) bool) *stream.DoubleEnded {\n\treturn stream.NewDoubleEnded(")
	// Aliased import carried into the literal signature
	assert.Contains(t, src, `enc "example.com/acme/codec"`)
	assert.Contains(t, src, "func (s *Stream) Encode(w *enc.Writer) (int, error) {")
	// Variadic self arguments come from the caller
	assert.Contains(t, src, "func (s *Stream) Chain(more ...stream.Seq) *Stream {\n\treturn NewStream(stream.Base{}.Chain(s.Inner(), more...))\n}")

	typeCheck(t, dir, "codec", "stream", "app")
}
