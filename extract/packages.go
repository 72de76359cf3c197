package extract

import (
	"context"
	"go/token"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/logger"
)

// PackagesLoader loads packages through the go command, so build tags,
// replace directives and workspaces are honoured.
type PackagesLoader struct {
	Dir        string
	Patterns   []string
	BuildFlags []string
}

// Load runs go/packages over Patterns.
func (l *PackagesLoader) Load(ctx context.Context) (*Program, error) {
	log := logger.ComponentLogger("capgen.extract")

	patterns := l.Patterns
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	prog := &Program{Fset: token.NewFileSet()}
	cfg := &packages.Config{
		Mode:       packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedModule,
		Context:    ctx,
		Dir:        l.Dir,
		Fset:       prog.Fset,
		BuildFlags: l.BuildFlags,
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load packages %s", strings.Join(patterns, " "))
	}
	if len(pkgs) == 0 {
		return nil, errors.Newf("no packages found for %s", strings.Join(patterns, " "))
	}

	var loadErrs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e.Error())
		}
	}
	if len(loadErrs) > 0 {
		err := errors.Newf("package errors: %s", loadErrs[0])
		if len(loadErrs) > 1 {
			err = errors.WithDetailf(err, "%d more: %s", len(loadErrs)-1, strings.Join(loadErrs[1:], "; "))
		}
		return nil, err
	}

	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].PkgPath < pkgs[j].PkgPath })

	for _, p := range pkgs {
		if p.Module != nil && prog.Module == "" {
			prog.Module = p.Module.Path
			prog.ModuleDir = p.Module.Dir
		}

		pkg := &Package{Path: p.PkgPath, Name: p.Name}
		for _, f := range p.Syntax {
			path := prog.Fset.Position(f.Package).Filename
			pkg.Files = append(pkg.Files, &File{Path: path, AST: f})
		}
		sort.Slice(pkg.Files, func(i, j int) bool { return pkg.Files[i].Path < pkg.Files[j].Path })
		if len(pkg.Files) > 0 {
			pkg.Dir = filepath.Dir(pkg.Files[0].Path)
		}
		prog.Packages = append(prog.Packages, pkg)
	}

	log.Debugw("Loaded packages",
		logger.FieldModule, prog.Module,
		logger.FieldPackages, len(prog.Packages))
	return prog, nil
}
