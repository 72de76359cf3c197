package logger

import (
	"go.uber.org/zap"
)

// Standard field names for structured logging across capgen.
// Use these constants instead of raw strings.
const (
	// Components
	FieldComponent = "component"
	FieldOperation = "operation"

	// Capability sets and targets
	FieldCapability = "capability"
	FieldMethod     = "method"
	FieldTarget     = "target"
	FieldPackage    = "package"
	FieldComposite  = "composite"
	FieldExcluded   = "excluded"

	// Files and paths
	FieldFile     = "file"
	FieldPath     = "path"
	FieldRegistry = "registry"
	FieldModule   = "module"

	// Counts
	FieldCount    = "count"
	FieldMethods  = "methods"
	FieldFiles    = "files"
	FieldPackages = "packages"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
)

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	type Extractor struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewExtractor() *Extractor {
//	    return &Extractor{logger: logger.ComponentLogger("capgen.extract")}
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context fields.
//
//	targetLogger := logger.ChildLogger(base, logger.FieldTarget, target.Name)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
