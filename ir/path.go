package ir

import (
	"encoding/json"
	"go/token"
	"strings"

	"github.com/teranos/capgen/errors"
)

// ErrUnqualifiedPath is returned for a capability-set name that cannot be
// spliced back into an import spec and a selector expression.
var ErrUnqualifiedPath = errors.Category(errors.ErrSchema, "unqualified capability path")

// QualifiedPath names a capability set: the segments of its package import
// path followed by the type name, e.g. [github.com acme stream Base].
type QualifiedPath []string

// NewQualifiedPath builds a path from an import path and a type name.
func NewQualifiedPath(importPath, name string) QualifiedPath {
	var segs []string
	if importPath != "" {
		segs = strings.Split(importPath, "/")
	}
	return append(segs, name)
}

// ParseQualifiedPath parses the String form, "import/path.Name".
func ParseQualifiedPath(s string) (QualifiedPath, error) {
	slash := strings.LastIndex(s, "/")
	dot := strings.LastIndex(s, ".")
	if dot <= slash || dot == len(s)-1 {
		return nil, errors.Wrapf(ErrUnqualifiedPath, "%q has no type name", s)
	}
	return NewQualifiedPath(s[:dot], s[dot+1:]), nil
}

// Package returns the import path.
func (p QualifiedPath) Package() string {
	if len(p) < 2 {
		return ""
	}
	return strings.Join(p[:len(p)-1], "/")
}

// Name returns the type name, the last segment.
func (p QualifiedPath) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p QualifiedPath) String() string {
	if len(p) < 2 {
		return p.Name()
	}
	return p.Package() + "." + p.Name()
}

// Equal reports whether both paths have the same segments.
func (p QualifiedPath) Equal(o QualifiedPath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Validate checks that the path is absolute and free of relative segments.
// When module is non-empty the package must be the module or live below it.
func (p QualifiedPath) Validate(module string) error {
	if len(p) < 2 {
		return errors.Wrapf(ErrUnqualifiedPath, "%q has no package", p.String())
	}
	if !token.IsIdentifier(p.Name()) {
		return errors.Wrapf(ErrUnqualifiedPath, "%q: type name %q is not an identifier", p.String(), p.Name())
	}
	for _, seg := range p[:len(p)-1] {
		switch {
		case seg == "", seg == ".", seg == "..":
			return errors.Wrapf(ErrUnqualifiedPath, "%q: relative segment %q", p.String(), seg)
		case strings.HasPrefix(seg, "_"):
			return errors.Wrapf(ErrUnqualifiedPath, "%q: segment %q is ignored by the go tool", p.String(), seg)
		case seg == "command-line-arguments":
			return errors.WithHint(
				errors.Wrapf(ErrUnqualifiedPath, "%q: package loaded from files, not an import path", p.String()),
				"run capgen from inside a module so packages have real import paths",
			)
		}
	}
	if module != "" {
		pkg := p.Package()
		if pkg != module && !strings.HasPrefix(pkg, module+"/") {
			return errors.Wrapf(ErrUnqualifiedPath, "%q is not rooted at module %s", p.String(), module)
		}
	}
	return nil
}

// MarshalJSON writes the String form.
func (p QualifiedPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON reads the String form without validating it; the registry
// validates after decoding so errors can name the record.
func (p *QualifiedPath) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	q, err := ParseQualifiedPath(s)
	if err != nil {
		*p = QualifiedPath{s}
		return nil
	}
	*p = q
	return nil
}
