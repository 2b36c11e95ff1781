package models

import (
	"errors"
	"fmt"
)

// ValidationError represents a data validation error for a single cell or row
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// SchemaError reports a required column or key absent from an input table.
// It aborts the stage that detects it.
type SchemaError struct {
	Table   string
	Column  string
	Message string
}

func (e *SchemaError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "required column missing"
	}
	if e.Table == "" {
		return fmt.Sprintf("schema error: %s: %s", msg, e.Column)
	}
	return fmt.Sprintf("schema error in %s: %s: %s", e.Table, msg, e.Column)
}

// IsTransient returns false as a malformed table stays malformed
func (e *SchemaError) IsTransient() bool {
	return false
}

// LookupMissError reports a key with no match in a reference table.
// Callers decide whether to skip or abort.
type LookupMissError struct {
	Variable   string
	Scenario   string
	Percentile int
	// Year is zero for whole-series lookups
	Year int
	// File names the expected source file when a whole file is absent
	File string
}

func (e *LookupMissError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("no uncertainty file %q for scenario=%q percentile=%d",
			e.File, e.Scenario, e.Percentile)
	}
	if e.Year != 0 {
		return fmt.Sprintf("no uncertainty value for variable=%q scenario=%q percentile=%d year=%d",
			e.Variable, e.Scenario, e.Percentile, e.Year)
	}
	return fmt.Sprintf("no uncertainty series for variable=%q scenario=%q percentile=%d",
		e.Variable, e.Scenario, e.Percentile)
}

// IsTransient returns false; reference data is loaded once
func (e *LookupMissError) IsTransient() bool {
	return false
}

// IsSchemaError reports whether err wraps a SchemaError
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsLookupMiss reports whether err wraps a LookupMissError
func IsLookupMiss(err error) bool {
	var lm *LookupMissError
	return errors.As(err, &lm)
}
