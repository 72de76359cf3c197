package extract

import (
	"context"
	"go/ast"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/teranos/capgen/am"
	"github.com/teranos/capgen/errors"
)

// Program is a set of parsed packages sharing one FileSet.
type Program struct {
	// Module is the enclosing module path, empty when there is none
	Module    string
	ModuleDir string
	Fset      *token.FileSet
	Packages  []*Package
}

// Package is one parsed Go package.
type Package struct {
	Path  string // import path
	Name  string
	Dir   string
	Files []*File
}

// File is a parsed source file.
type File struct {
	Path string
	AST  *ast.File
}

// Loader produces the packages to scan, in a deterministic order: packages
// by import path, files by name.
type Loader interface {
	Load(ctx context.Context) (*Program, error)
}

// NewLoader returns the loader selected by the extract configuration.
func NewLoader(cfg *am.Config) (Loader, error) {
	switch cfg.Extract.Loader {
	case "", "tree":
		return &TreeLoader{
			Root:           cfg.ExtractRoot(),
			Include:        cfg.Extract.Include,
			Exclude:        cfg.Extract.Exclude,
			ModuleRequired: cfg.Extract.ModuleRequired,
		}, nil
	case "packages":
		return &PackagesLoader{
			Dir:      cfg.ExtractRoot(),
			Patterns: cfg.Extract.Patterns,
		}, nil
	default:
		return nil, errors.Newf("unknown loader %q", cfg.Extract.Loader)
	}
}

// Position renders pos relative to the module directory when possible.
func (p *Program) Position(pos token.Pos) string {
	position := p.Fset.Position(pos)
	if p.ModuleDir != "" {
		if rel, err := filepath.Rel(p.ModuleDir, position.Filename); err == nil && !strings.HasPrefix(rel, "..") {
			position.Filename = rel
		}
	}
	return position.String()
}

// Package returns the package with the given import path.
func (p *Program) Package(path string) (*Package, bool) {
	for _, pkg := range p.Packages {
		if pkg.Path == path {
			return pkg, true
		}
	}
	return nil, false
}

// IsCapgenOutput reports whether f was written by capgen generate.
func IsCapgenOutput(f *ast.File) bool {
	if !ast.IsGenerated(f) {
		return false
	}
	for _, g := range f.Comments {
		if g.Pos() > f.Package {
			break
		}
		for _, c := range g.List {
			if strings.HasPrefix(c.Text, "// Code generated by capgen") {
				return true
			}
		}
	}
	return false
}
