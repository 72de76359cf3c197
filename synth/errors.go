package synth

import "github.com/teranos/capgen/errors"

var (
	ErrUnknownCapability  = errors.Category(errors.ErrSelection, "unknown capability")
	ErrEmptySelection     = errors.Category(errors.ErrSelection, "empty selection")
	ErrMethodParseFailure = errors.Category(errors.ErrSelection, "recorded method does not parse")
	ErrInvalidDirective   = errors.Category(errors.ErrSelection, "invalid capgen:delegate directive")

	ErrCollision = errors.Category(errors.ErrCollision, "method name collision")

	// ErrTargetsFailed marks the combined error of a generation run in which
	// some targets failed
	ErrTargetsFailed = errors.New("targets failed")
)
