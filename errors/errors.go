// Package errors provides error handling for capgen.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints that tell the user how to fix the source
//   - Marks, so a named error can also be checked by its category
//
// Usage:
//
//	// Named errors belong to one category
//	var ErrMissingSelfGeneric = errors.Category(errors.ErrSchema, "missing self_generic binding")
//
//	// Wrap with context (capability set, method, path)
//	return errors.Wrapf(ErrMissingSelfGeneric, "capability set %s", name)
//
//	// Check by name or by category
//	errors.Is(err, ErrMissingSelfGeneric) // true
//	errors.Is(err, errors.ErrSchema)      // true
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Error categories. Every named error in capgen is marked with exactly one
// of these, so callers can branch on the category without knowing every name.
var (
	// ErrGrammar indicates malformed directive argument syntax
	ErrGrammar = New("grammar error")

	// ErrSchema indicates a capability-set definition that violates the source contract
	ErrSchema = New("schema error")

	// ErrRegistry indicates a missing, unreadable or incompatible registry file
	ErrRegistry = New("registry error")

	// ErrSelection indicates a generation request that cannot be satisfied
	ErrSelection = New("selection error")

	// ErrCollision indicates a generated method name that clashes and cannot be renamed away
	ErrCollision = New("collision error")
)

// Category creates a named error that also matches its category with Is.
func Category(category error, msg string) error {
	return Mark(New(msg), category)
}

// MarkAs marks err as the named error and as the named error's category, so
// both Is(err, named) and Is(err, category) hold while err keeps its own type
// for As.
func MarkAs(err, named error) error {
	if err == nil {
		return nil
	}
	out := Mark(err, named)
	if c := CategoryOf(named); c != nil {
		out = Mark(out, c)
	}
	return out
}

// CategoryOf returns the category an error belongs to, or nil.
func CategoryOf(err error) error {
	for _, c := range []error{ErrGrammar, ErrSchema, ErrRegistry, ErrSelection, ErrCollision} {
		if Is(err, c) {
			return c
		}
	}
	return nil
}

// IsGrammarError checks if an error is or wraps ErrGrammar
func IsGrammarError(err error) bool {
	return err != nil && Is(err, ErrGrammar)
}

// IsSchemaError checks if an error is or wraps ErrSchema
func IsSchemaError(err error) bool {
	return err != nil && Is(err, ErrSchema)
}

// IsRegistryError checks if an error is or wraps ErrRegistry
func IsRegistryError(err error) bool {
	return err != nil && Is(err, ErrRegistry)
}

// IsSelectionError checks if an error is or wraps ErrSelection
func IsSelectionError(err error) bool {
	return err != nil && Is(err, ErrSelection)
}

// IsCollisionError checks if an error is or wraps ErrCollision
func IsCollisionError(err error) bool {
	return err != nil && Is(err, ErrCollision)
}
