package synth

import (
	"bytes"
	"context"
	"go/ast"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/extract"
	"github.com/teranos/capgen/logger"
	"github.com/teranos/capgen/registry"
)

// DefaultOutputFile is the generated file written into each target package.
const DefaultOutputFile = "capgen_delegates.go"

// Driver runs generation over a source tree: it finds capgen:delegate
// targets, synthesizes their methods and renders one file per package.
type Driver struct {
	Loader     extract.Loader
	Synth      *Synthesizer
	Emitter    Emitter
	OutputFile string

	log *zap.SugaredLogger
}

// Output is the rendered file for one package.
type Output struct {
	Path    string
	Package string
	Content []byte
	Targets int
	Methods int
}

// Failure is a target that could not be generated.
type Failure struct {
	Package string
	Target  string
	Pos     string
	Err     error
}

func (f *Failure) Error() string {
	return f.Package + "." + f.Target + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Plan is the outcome of Render. Outputs holds every package with at least
// one target that succeeded; when the emitter is a Merger, failed targets keep
// the methods of the previous file. A package where every target failed gets
// no output, so its previous file stays as it is. Orphans are previously
// generated files whose package no longer has any target.
type Plan struct {
	Outputs  []Output
	Orphans  []string
	Failures []*Failure
	Duration time.Duration
}

// Methods counts the generated methods across all outputs.
func (p *Plan) Methods() int {
	n := 0
	for _, o := range p.Outputs {
		n += o.Methods
	}
	return n
}

// Err combines the failures into one error marked ErrTargetsFailed, or nil.
func (p *Plan) Err() error {
	if len(p.Failures) == 0 {
		return nil
	}
	if len(p.Failures) == 1 {
		return errors.Mark(p.Failures[0], ErrTargetsFailed)
	}
	msgs := make([]string, len(p.Failures))
	for i, f := range p.Failures {
		msgs[i] = f.Error()
	}
	err := errors.Mark(errors.Newf("%d targets failed:\n  %s", len(p.Failures), strings.Join(msgs, "\n  ")), ErrTargetsFailed)
	for _, f := range p.Failures {
		if c := errors.CategoryOf(f.Err); c != nil {
			err = errors.Mark(err, c)
		}
	}
	return err
}

// GenerateResult reports what Generate changed on disk.
type GenerateResult struct {
	*Plan
	Written   []string
	Unchanged []string
	Removed   []string
}

// Stale is a generated file that differs from what Render produces.
type Stale struct {
	Path string
	Diff string
}

func (d *Driver) logger() *zap.SugaredLogger {
	if d.log == nil {
		d.log = logger.ComponentLogger("capgen.generate")
	}
	return d.log
}

func (d *Driver) outputFile() string {
	if d.OutputFile == "" {
		return DefaultOutputFile
	}
	return d.OutputFile
}

// Render loads the sources and renders every package in memory. Target
// failures are collected in the plan; only loading errors are returned.
func (d *Driver) Render(ctx context.Context) (*Plan, error) {
	if d.Loader == nil || d.Synth == nil || d.Emitter == nil {
		return nil, errors.AssertionFailedf("generation driver is not fully configured")
	}
	start := time.Now()

	prog, err := d.Loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, pkg := range prog.Packages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, hadTargets, err := d.renderPackage(prog, pkg, plan)
		if err != nil {
			return nil, err
		}
		if out != nil {
			plan.Outputs = append(plan.Outputs, *out)
			continue
		}
		if !hadTargets {
			if orphan, ok := d.previousOutput(pkg); ok {
				plan.Orphans = append(plan.Orphans, orphan)
			}
		}
	}
	plan.Duration = time.Since(start)

	d.logger().Infow("Generation planned",
		logger.FieldFiles, len(plan.Outputs),
		logger.FieldMethods, plan.Methods(),
		"failures", len(plan.Failures),
		logger.FieldDurationMS, plan.Duration.Milliseconds())
	return plan, nil
}

type target struct {
	req Request
	pos token.Pos
}

// renderPackage returns nil output when the package has no target that
// succeeded. hadTargets reports whether any delegate directive was found.
func (d *Driver) renderPackage(prog *extract.Program, pkg *extract.Package, plan *Plan) (*Output, bool, error) {
	log := logger.ChildLogger(d.logger(), logger.FieldPackage, pkg.Path)

	targets, failures := d.findTargets(prog, pkg)
	plan.Failures = append(plan.Failures, failures...)
	if len(targets) == 0 {
		return nil, len(failures) > 0, nil
	}
	var failed []string
	for _, f := range failures {
		failed = append(failed, f.Target)
	}

	existing := declaredNames(pkg)
	accessors := selfAccessors(pkg)

	file := File{Package: pkg.Path, PackageName: pkg.Name}
	methods := 0
	for _, t := range targets {
		t.req.TargetPackage = pkg.Path
		t.req.Existing = existing[t.req.TargetType]
		if t.req.Accessor == "" {
			t.req.Accessor = accessors[t.req.TargetType]
		}

		defs, err := d.Synth.Synthesize(t.req)
		if err != nil {
			plan.Failures = append(plan.Failures, &Failure{
				Package: pkg.Path,
				Target:  t.req.TargetType,
				Pos:     prog.Position(t.pos),
				Err:     errors.WithDetailf(err, "at %s", prog.Position(t.pos)),
			})
			log.Debugw("Target failed", logger.FieldTarget, t.req.TargetType, logger.FieldError, err)
			failed = append(failed, t.req.TargetType)
			continue
		}
		file.Targets = append(file.Targets, TargetMethods{Request: t.req, Methods: defs})
		methods += len(defs)
	}
	if len(file.Targets) == 0 {
		return nil, true, nil
	}

	content, err := d.Emitter.Emit(file)
	if err != nil {
		return nil, true, errors.Wrapf(err, "rendering %s", pkg.Path)
	}
	if len(failed) > 0 {
		content = d.keepPrevious(pkg, content, failed, log)
	}
	return &Output{
		Path:    filepath.Join(pkg.Dir, d.outputFile()),
		Package: pkg.Path,
		Content: content,
		Targets: len(file.Targets),
		Methods: methods,
	}, true, nil
}

// keepPrevious merges the previous file's methods of failed targets into
// content. When that is not possible the failed targets simply lose them.
func (d *Driver) keepPrevious(pkg *extract.Package, content []byte, failed []string, log *zap.SugaredLogger) []byte {
	merger, ok := d.Emitter.(Merger)
	if !ok {
		return content
	}
	path, ok := d.previousOutput(pkg)
	if !ok {
		return content
	}
	previous, err := os.ReadFile(path)
	if err != nil {
		log.Warnw("Previous methods of failed targets dropped", logger.FieldFile, path, logger.FieldError, err)
		return content
	}
	merged, err := merger.Merge(content, previous, failed)
	if err != nil {
		log.Warnw("Previous methods of failed targets dropped", logger.FieldFile, path, logger.FieldError, err)
		return content
	}
	log.Debugw("Kept previous methods", logger.FieldFile, path, "targets", failed)
	return merged
}

// findTargets returns the package's delegate targets sorted by type name.
func (d *Driver) findTargets(prog *extract.Program, pkg *extract.Package) ([]target, []*Failure) {
	var targets []target
	var failures []*Failure
	fail := func(name string, pos token.Pos, err error) {
		failures = append(failures, &Failure{
			Package: pkg.Path,
			Target:  name,
			Pos:     prog.Position(pos),
			Err:     errors.WithDetailf(err, "at %s", prog.Position(pos)),
		})
	}

	for _, f := range pkg.Files {
		if extract.IsCapgenOutput(f.AST) {
			continue
		}
		for _, decl := range f.AST.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				dirs, err := extract.TypeDirectives(gd, ts)
				if err != nil {
					fail(ts.Name.Name, ts.Pos(), err)
					continue
				}
				ds := dirs[extract.DirectiveDelegate]
				if len(ds) == 0 {
					continue
				}
				if len(ds) > 1 {
					fail(ts.Name.Name, ds[1].Pos, errors.Wrapf(ErrInvalidDirective, "capgen:delegate repeated on %s", ts.Name.Name))
					continue
				}
				if ts.TypeParams != nil || ts.Assign.IsValid() {
					fail(ts.Name.Name, ds[0].Pos, errors.Wrapf(ErrInvalidDirective, "capgen:delegate on generic type or alias %s", ts.Name.Name))
					continue
				}
				req, err := ParseDirective(ds[0].Args)
				if err != nil {
					fail(ts.Name.Name, ds[0].Pos, err)
					continue
				}
				req.TargetType = ts.Name.Name
				targets = append(targets, target{req: req, pos: ds[0].Pos})
			}
		}
	}

	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].req.TargetType < targets[j].req.TargetType
	})
	return targets, failures
}

// declaredNames maps each type to the method and field names it declares in
// hand-written files. Generated output is ignored so a previous run never
// collides with itself.
func declaredNames(pkg *extract.Package) map[string]map[string]bool {
	names := map[string]map[string]bool{}
	add := func(typ, name string) {
		if names[typ] == nil {
			names[typ] = map[string]bool{}
		}
		names[typ][name] = true
	}

	for _, f := range pkg.Files {
		if extract.IsCapgenOutput(f.AST) {
			continue
		}
		for _, decl := range f.AST.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if recv, _ := extract.ReceiverBase(d); recv != "" {
					add(recv, d.Name.Name)
				}
			case *ast.GenDecl:
				if d.Tok != token.TYPE {
					continue
				}
				for _, spec := range d.Specs {
					ts := spec.(*ast.TypeSpec)
					st, ok := ts.Type.(*ast.StructType)
					if !ok {
						continue
					}
					for _, field := range st.Fields.List {
						for _, n := range field.Names {
							add(ts.Name.Name, n.Name)
						}
						if len(field.Names) == 0 {
							add(ts.Name.Name, embeddedName(field.Type))
						}
					}
				}
			}
		}
	}
	return names
}

func embeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// selfAccessors maps each type to the method it marks with capgen:self.
func selfAccessors(pkg *extract.Package) map[string]string {
	out := map[string]string{}
	for _, f := range pkg.Files {
		if extract.IsCapgenOutput(f.AST) {
			continue
		}
		for _, decl := range f.AST.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			recv, _ := extract.ReceiverBase(fn)
			if recv == "" {
				continue
			}
			dirs, err := extract.ParseDirectives(fn.Doc)
			if err != nil || !dirs.Has(extract.DirectiveSelf) {
				continue
			}
			if _, dup := out[recv]; !dup {
				out[recv] = fn.Name.Name
			}
		}
	}
	return out
}

// previousOutput returns the path of a generated file left in pkg.
func (d *Driver) previousOutput(pkg *extract.Package) (string, bool) {
	for _, f := range pkg.Files {
		if filepath.Base(f.Path) == d.outputFile() && extract.IsCapgenOutput(f.AST) {
			return f.Path, true
		}
	}
	return "", false
}

// Generate renders and writes every output whose content changed, and
// removes generated files whose package has no targets left. Outputs are
// written even when some targets fail; the failures are returned as the error.
func (d *Driver) Generate(ctx context.Context) (*GenerateResult, error) {
	plan, err := d.Render(ctx)
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{Plan: plan}
	for _, out := range plan.Outputs {
		current, err := os.ReadFile(out.Path)
		if err == nil && bytes.Equal(current, out.Content) {
			res.Unchanged = append(res.Unchanged, out.Path)
			continue
		}
		if err := registry.WriteFileAtomic(out.Path, out.Content, 0o644); err != nil {
			return res, err
		}
		d.logger().Infow("Wrote generated file",
			logger.FieldFile, out.Path,
			logger.FieldCount, out.Targets,
			logger.FieldMethods, out.Methods)
		res.Written = append(res.Written, out.Path)
	}
	for _, path := range plan.Orphans {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return res, errors.Wrapf(err, "failed to remove %s", path)
		}
		d.logger().Infow("Removed stale generated file", logger.FieldFile, path)
		res.Removed = append(res.Removed, path)
	}
	return res, plan.Err()
}

// Check renders in memory and compares with the files on disk. It returns
// the stale files with a diff each; missing and orphaned files count as stale.
func (d *Driver) Check(ctx context.Context) ([]Stale, *Plan, error) {
	plan, err := d.Render(ctx)
	if err != nil {
		return nil, nil, err
	}

	var stale []Stale
	for _, out := range plan.Outputs {
		current, err := os.ReadFile(out.Path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, plan, errors.Wrapf(err, "failed to read %s", out.Path)
			}
			stale = append(stale, Stale{Path: out.Path, Diff: "missing"})
			continue
		}
		if !bytes.Equal(current, out.Content) {
			stale = append(stale, Stale{Path: out.Path, Diff: cmp.Diff(lines(current), lines(out.Content))})
		}
	}
	for _, path := range plan.Orphans {
		stale = append(stale, Stale{Path: path, Diff: "no targets left; file would be removed"})
	}
	return stale, plan, plan.Err()
}

func lines(b []byte) []string {
	return strings.Split(string(b), "\n")
}
