package extract

import (
	"context"
	"time"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/ir"
	"github.com/teranos/capgen/lattice"
	"github.com/teranos/capgen/logger"
	"github.com/teranos/capgen/registry"
)

// Options configures one extraction run.
type Options struct {
	Loader       Loader
	Lattice      *lattice.Lattice
	RegistryPath string
	// Generator is recorded in the registry envelope, e.g. "capgen v0.3.0"
	Generator string
}

// Result summarises an extraction run.
type Result struct {
	Sets     []ir.CapabilitySet
	Path     string
	Written  bool
	Packages int
	Duration time.Duration
}

// Methods counts the methods across all sets.
func (r *Result) Methods() int {
	n := 0
	for _, s := range r.Sets {
		n += len(s.Methods)
	}
	return n
}

// Run loads sources, extracts capability sets and writes the registry. On
// any error the existing registry file is left untouched.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := logger.ComponentLogger("capgen.extract")
	start := time.Now()

	if opts.Loader == nil {
		return nil, errors.AssertionFailedf("extract.Run without a loader")
	}
	path := opts.RegistryPath
	if path == "" {
		path = registry.DefaultPath
	}

	prog, err := opts.Loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	sets, err := Extract(prog, opts.Lattice)
	if err != nil {
		return nil, err
	}

	written, err := registry.Write(path, sets, opts.Generator)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Sets:     sets,
		Path:     path,
		Written:  written,
		Packages: len(prog.Packages),
		Duration: time.Since(start),
	}
	log.Infow("Extraction complete",
		logger.FieldCount, len(sets),
		logger.FieldMethods, res.Methods(),
		logger.FieldRegistry, path,
		logger.FieldDurationMS, res.Duration.Milliseconds())
	return res, nil
}
