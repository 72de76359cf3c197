// Package emit renders synthesized forwarding methods. Every decision about
// which methods exist and what they return is made in synth; emitters only
// print the result.
package emit

import (
	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/synth"
)

// Emitter formats names.
const (
	FormatGo   = "go"
	FormatPlan = "plan"
)

// Emitter renders one package's synthesized methods.
type Emitter = synth.Emitter

// GeneratedHeader opens every Go file capgen writes. It satisfies the
// standard generated-code convention, so tools and capgen itself skip the file.
const GeneratedHeader = "// Code generated by capgen. DO NOT EDIT."

// New returns the emitter for a format name.
func New(format string) (Emitter, error) {
	switch format {
	case FormatGo, "":
		return NewGoEmitter(), nil
	case FormatPlan:
		return NewPlanEmitter(), nil
	}
	return nil, errors.WithHintf(
		errors.Newf("unknown emitter %q", format),
		"use %q or %q", FormatGo, FormatPlan,
	)
}
