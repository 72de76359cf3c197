package emit

import (
	"encoding/json"

	"github.com/teranos/capgen/errors"
	"github.com/teranos/capgen/synth"
)

// PlanEmitter renders the synthesized methods as indented JSON, for
// inspecting what generation would produce.
type PlanEmitter struct {
	Indent string
}

// NewPlanEmitter creates a PlanEmitter indenting with two spaces.
func NewPlanEmitter() *PlanEmitter {
	return &PlanEmitter{Indent: "  "}
}

// Emit implements Emitter.
func (e *PlanEmitter) Emit(file synth.File) ([]byte, error) {
	data, err := json.MarshalIndent(file, "", e.Indent)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal plan for %s", file.Package)
	}
	return append(data, '\n'), nil
}
