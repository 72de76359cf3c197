package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/extract"
	"github.com/teranos/capgen/registry"
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

//capgen:delegate (Base, exclude=(Map, Filter))
type Counter struct{ inner stream.Seq }

func (c *Counter) TakeInner() stream.Seq { return c.inner }
`

const brokenSource = `package app

//capgen:delegate Bsae
type Broken struct{}
`

// stubEmitter writes one empty method per definition so generated files
// declare the same names real output would.
type stubEmitter struct {
	files []File
}

func (e *stubEmitter) Emit(file File) ([]byte, error) {
	e.files = append(e.files, file)
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by capgen. DO NOT EDIT.\n\npackage %s\n", file.PackageName)
	for _, t := range file.Targets {
		for _, m := range t.Methods {
			fmt.Fprintf(&b, "\nfunc (%s *%s) %s() {}\n", m.Receiver, m.Target, m.Name)
		}
	}
	return []byte(b.String()), nil
}

// mergingEmitter keeps every previous line declaring a method of a failed
// target.
type mergingEmitter struct {
	stubEmitter
	merged []string
}

func (e *mergingEmitter) Merge(content, previous []byte, targets []string) ([]byte, error) {
	e.merged = append(e.merged, targets...)
	out := string(content)
	for _, line := range strings.Split(string(previous), "\n") {
		for _, t := range targets {
			if strings.Contains(line, " *"+t+") ") {
				out += "\n" + line + "\n"
			}
		}
	}
	return []byte(out), nil
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
}

func newDriver(t *testing.T, files map[string]string) (*Driver, *stubEmitter, string) {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"go.mod":           "module example.com/acme\n\ngo 1.22\n",
		"stream/stream.go": streamSource,
	})
	writeFiles(t, dir, files)

	loader := &extract.TreeLoader{
		Root:           dir,
		Include:        []string{"**/*.go"},
		Exclude:        []string{"**/*_test.go"},
		ModuleRequired: true,
	}
	prog, err := loader.Load(context.Background())
	require.NoError(t, err)
	sets, err := extract.Extract(prog, nil)
	require.NoError(t, err)
	reg, err := registry.New(sets)
	require.NoError(t, err)

	em := &stubEmitter{}
	return &Driver{Loader: loader, Synth: New(reg, nil, ""), Emitter: em}, em, dir
}

func TestDriver_Render(t *testing.T) {
	d, em, dir := newDriver(t, map[string]string{"app/app.go": appSource})

	plan, err := d.Render(context.Background())
	require.NoError(t, err)
	require.NoError(t, plan.Err())

	require.Len(t, plan.Outputs, 1)
	out := plan.Outputs[0]
	assert.Equal(t, filepath.Join(dir, "app", DefaultOutputFile), out.Path)
	assert.Equal(t, "example.com/acme/app", out.Package)
	assert.Equal(t, 2, out.Targets)
	assert.Equal(t, 3+1, out.Methods)

	require.Len(t, em.files, 1)
	file := em.files[0]
	assert.Equal(t, "app", file.PackageName)
	require.Len(t, file.Targets, 2)
	assert.Equal(t, "Counter", file.Targets[0].Request.TargetType, "targets sorted by name")
	assert.Equal(t, "Stream", file.Targets[1].Request.TargetType)

	counter := file.Targets[0]
	require.Len(t, counter.Methods, 1)
	assert.Equal(t, "Count", counter.Methods[0].Name)
	assert.Equal(t, "TakeInner", counter.Methods[0].Accessor, "falls back to the capability's accessor")

	stream := file.Targets[1]
	assert.Equal(t, "Inner", stream.Request.Accessor, "taken from the target's capgen:self method")
	assert.Equal(t, "example.com/acme/app", stream.Request.TargetPackage)
	assert.True(t, stream.Request.Existing["Inner"])
	assert.True(t, stream.Request.Existing["inner"])
}

func TestDriver_FailingTargetDoesNotBlockOthers(t *testing.T) {
	d, _, _ := newDriver(t, map[string]string{
		"app/app.go":    appSource,
		"app/broken.go": brokenSource,
	})

	res, err := d.Generate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCapability))
	assert.Contains(t, errors.GetAllHints(err), "did you mean Base?")

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Broken", res.Failures[0].Target)
	assert.Contains(t, res.Failures[0].Pos, filepath.Join("app", "broken.go"))

	require.Len(t, res.Written, 1, "the healthy targets are still written")
}

func TestDriver_Generate(t *testing.T) {
	d, _, dir := newDriver(t, map[string]string{"app/app.go": appSource})
	ctx := context.Background()
	output := filepath.Join(dir, "app", DefaultOutputFile)

	res, err := d.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{output}, res.Written)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func (s *Stream) Map() {}")

	// The previous output declares Map on Stream; it must not count as existing
	res, err = d.Generate(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Written)
	assert.Equal(t, []string{output}, res.Unchanged)
}

func TestDriver_FailedTargetKeepsPreviousMethods(t *testing.T) {
	d, _, dir := newDriver(t, map[string]string{"app/app.go": appSource})
	em := &mergingEmitter{}
	d.Emitter = em
	ctx := context.Background()
	output := filepath.Join(dir, "app", DefaultOutputFile)

	_, err := d.Generate(ctx)
	require.NoError(t, err)
	assert.Empty(t, em.merged, "nothing failed")

	broken := strings.Replace(appSource, "(Base, exclude", "(Bsae, exclude", 1)
	broken = strings.Replace(broken, "delegate Base, composite", "delegate (Base, exclude=(Count)), composite", 1)
	writeFiles(t, dir, map[string]string{"app/app.go": broken})

	res, err := d.Generate(ctx)
	require.Error(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "Counter", res.Failures[0].Target)
	assert.Equal(t, []string{"Counter"}, em.merged)
	assert.Equal(t, []string{output}, res.Written)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func (c *Counter) Count() {}", "kept from the previous run")
	assert.Contains(t, string(data), "func (s *Stream) Map() {}")
	assert.NotContains(t, string(data), "func (s *Stream) Count() {}", "healthy target regenerated")
}

func TestDriver_FailedTargetWithoutMerger(t *testing.T) {
	d, _, dir := newDriver(t, map[string]string{"app/app.go": appSource})
	ctx := context.Background()
	output := filepath.Join(dir, "app", DefaultOutputFile)

	_, err := d.Generate(ctx)
	require.NoError(t, err)

	writeFiles(t, dir, map[string]string{"app/app.go": strings.Replace(appSource, "(Base, exclude", "(Bsae, exclude", 1)})
	_, err = d.Generate(ctx)
	require.Error(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Counter")
}

func TestDriver_RemovesOrphanedOutput(t *testing.T) {
	d, _, dir := newDriver(t, map[string]string{"app/app.go": appSource})
	ctx := context.Background()
	output := filepath.Join(dir, "app", DefaultOutputFile)

	_, err := d.Generate(ctx)
	require.NoError(t, err)
	require.FileExists(t, output)

	writeFiles(t, dir, map[string]string{"app/app.go": "package app\n\ntype Stream struct{}\n"})

	stale, _, err := d.Check(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, output, stale[0].Path)

	res, err := d.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{output}, res.Removed)
	assert.NoFileExists(t, output)
}

func TestDriver_Check(t *testing.T) {
	d, _, dir := newDriver(t, map[string]string{"app/app.go": appSource})
	ctx := context.Background()
	output := filepath.Join(dir, "app", DefaultOutputFile)

	stale, _, err := d.Check(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "missing", stale[0].Diff)

	_, err = d.Generate(ctx)
	require.NoError(t, err)

	stale, _, err = d.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "Map", "Mop", 1)
	require.NoError(t, os.WriteFile(output, []byte(edited), 0644))

	stale, _, err = d.Check(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Contains(t, stale[0].Diff, "Mop")
	assert.Contains(t, stale[0].Diff, "Map")
}

func TestDriver_FieldCollision(t *testing.T) {
	d, _, _ := newDriver(t, map[string]string{"app/app.go": `package app

import "example.com/acme/stream"

//capgen:delegate Base, composite=Base
type Stream struct {
	stream.Seq
	Map func()
}
`})

	plan, err := d.Render(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Failures, 1)
	assert.True(t, errors.Is(plan.Err(), ErrCollision))
	assert.Empty(t, plan.Outputs)
}

func TestDriver_DirectiveErrors(t *testing.T) {
	d, _, _ := newDriver(t, map[string]string{"app/app.go": `package app

//capgen:delegate
type Empty struct{}

//capgen:delegate Base
//capgen:delegate Base
type Twice struct{}

//capgen:delegate Base, (
type Grammar struct{}
`})

	plan, err := d.Render(context.Background())
	require.NoError(t, err)
	require.Len(t, plan.Failures, 3)

	byTarget := map[string]error{}
	for _, f := range plan.Failures {
		byTarget[f.Target] = f
	}
	assert.True(t, errors.Is(byTarget["Empty"], ErrEmptySelection))
	assert.True(t, errors.Is(byTarget["Twice"], ErrInvalidDirective))
	assert.True(t, errors.IsGrammarError(byTarget["Grammar"]))

	err = plan.Err()
	assert.Contains(t, err.Error(), "3 targets failed")
	assert.True(t, errors.IsSelectionError(err))
	assert.True(t, errors.IsGrammarError(err))
}

func TestDriver_NotConfigured(t *testing.T) {
	_, err := (&Driver{}).Render(context.Background())
	assert.Error(t, err)
}
