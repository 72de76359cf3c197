package extract

import "github.com/teranos/capgen/errors"

// Schema errors: a capability-set definition breaks the source contract.
var (
	ErrMarkerPlacement           = errors.Category(errors.ErrSchema, "misplaced capgen directive")
	ErrUnknownDirective          = errors.Category(errors.ErrSchema, "unknown capgen directive")
	ErrDirectiveArguments        = errors.Category(errors.ErrSchema, "unexpected directive arguments")
	ErrMissingSelfGeneric        = errors.Category(errors.ErrSchema, "missing self_generic binding")
	ErrDuplicateSelfGeneric      = errors.Category(errors.ErrSchema, "duplicate self_generic binding")
	ErrMalformedSelfGeneric      = errors.Category(errors.ErrSchema, "malformed self_generic binding")
	ErrUnknownRegisterKey        = errors.Category(errors.ErrSchema, "unknown capgen:register key")
	ErrNotExactlyOneSelfAccessor = errors.Category(errors.ErrSchema, "not exactly one self accessor")
	ErrMalformedSelfAccessor     = errors.Category(errors.ErrSchema, "malformed self accessor")
	ErrPatternParameter          = errors.Category(errors.ErrSchema, "parameter cannot be forwarded by name")
	ErrMalformedStrips           = errors.Category(errors.ErrSchema, "malformed capgen:strips")
	ErrUnknownStrippedCapability = errors.Category(errors.ErrSchema, "unknown stripped capability")
	ErrUnboxableReturn           = errors.Category(errors.ErrSchema, "non-literal method must return exactly one value")
	ErrNoCapabilitySets          = errors.Category(errors.ErrSchema, "no capability sets found")
)

// ErrNoModule is returned when a module is required and no go.mod encloses the source root.
var ErrNoModule = errors.New("no go.mod found")
