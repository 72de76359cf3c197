package extract

import (
	"context"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/mod/modfile"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/logger"
)

// TreeLoader parses Go files straight from a directory tree. It needs no go
// command; import paths come from the enclosing go.mod.
type TreeLoader struct {
	Root string
	// Doublestar globs matched against slash-separated paths relative to Root.
	// An empty Include matches every .go file.
	Include        []string
	Exclude        []string
	ModuleRequired bool
}

// Load walks Root and parses every matching file.
func (l *TreeLoader) Load(ctx context.Context) (*Program, error) {
	log := logger.ComponentLogger("capgen.extract")

	root, err := filepath.Abs(l.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", l.Root)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errors.Newf("source root %s is not a directory", l.Root)
	}

	modDir, modPath, err := findModule(root)
	if err != nil {
		return nil, err
	}
	if modPath == "" && l.ModuleRequired {
		return nil, errors.WithHint(
			errors.Wrapf(ErrNoModule, "at or above %s", root),
			"capability paths are import paths; run `go mod init` or set extract.module_required = false",
		)
	}

	byDir := map[string][]string{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			// Nested modules are scanned on their own
			if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ok, err := l.matches(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			byDir[filepath.Dir(path)] = append(byDir[filepath.Dir(path)], path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", root)
	}

	prog := &Program{Module: modPath, ModuleDir: modDir, Fset: token.NewFileSet()}
	base := modDir
	if base == "" {
		base = root
	}

	for _, dir := range sortedDirs(byDir) {
		files := byDir[dir]
		sort.Strings(files)

		pkg := &Package{Dir: dir, Path: importPath(modPath, base, dir)}
		for _, path := range files {
			f, err := parser.ParseFile(prog.Fset, path, nil, parser.ParseComments|parser.SkipObjectResolution)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse %s", path)
			}
			name := f.Name.Name
			if strings.HasSuffix(name, "_test") {
				continue
			}
			if pkg.Name == "" {
				pkg.Name = name
			} else if pkg.Name != name {
				return nil, errors.WithHint(
					errors.Newf("%s: found packages %s and %s", dir, pkg.Name, name),
					"exclude one of the files with extract.exclude",
				)
			}
			pkg.Files = append(pkg.Files, &File{Path: path, AST: f})
		}
		if len(pkg.Files) > 0 {
			prog.Packages = append(prog.Packages, pkg)
		}
	}

	sort.Slice(prog.Packages, func(i, j int) bool {
		return prog.Packages[i].Path < prog.Packages[j].Path
	})

	log.Debugw("Loaded source tree",
		logger.FieldPath, root,
		logger.FieldModule, modPath,
		logger.FieldPackages, len(prog.Packages))
	return prog, nil
}

func (l *TreeLoader) matches(rel string) (bool, error) {
	included := len(l.Include) == 0
	for _, p := range l.Include {
		ok, err := doublestar.Match(p, rel)
		if err != nil {
			return false, errors.Wrapf(err, "include pattern %q", p)
		}
		if ok {
			included = true
			break
		}
	}
	if !included {
		return false, nil
	}
	for _, p := range l.Exclude {
		ok, err := doublestar.Match(p, rel)
		if err != nil {
			return false, errors.Wrapf(err, "exclude pattern %q", p)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

// SkipDir reports whether a directory is ignored by the go tool.
func SkipDir(name string) bool {
	return name == "vendor" || name == "testdata" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// findModule returns the directory and module path of the nearest go.mod at
// or above dir, or empty strings when there is none.
func findModule(dir string) (string, string, error) {
	for {
		path := filepath.Join(dir, "go.mod")
		data, err := os.ReadFile(path)
		if err == nil {
			mod := modfile.ModulePath(data)
			if mod == "" {
				return "", "", errors.Newf("%s has no module directive", path)
			}
			return dir, mod, nil
		}
		if !os.IsNotExist(err) {
			return "", "", errors.Wrapf(err, "failed to read %s", path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", nil
		}
		dir = parent
	}
}

// importPath derives the import path of dir. Without a module the path is
// relative to base, which Validate rejects for the root package.
func importPath(module, base, dir string) string {
	rel, err := filepath.Rel(base, dir)
	if err != nil {
		return filepath.ToSlash(dir)
	}
	rel = filepath.ToSlash(rel)
	switch {
	case module == "":
		return rel
	case rel == ".":
		return module
	default:
		return module + "/" + rel
	}
}

func sortedDirs(m map[string][]string) []string {
	dirs := make([]string, 0, len(m))
	for d := range m {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}
