package domain

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

var (
	ErrVersionExists      = errors.New("domain: version already published")
	ErrVersionNotNewer    = errors.New("domain: version predates the current version")
	ErrAlreadyRevoked     = errors.New("domain: acceptance already revoked")
	ErrAcceptanceNotFound = errors.New("domain: acceptance not found")
)

// ValidationError lists the fields that failed validation, keyed by field
// name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// fieldErrors accumulates failures and yields a *ValidationError only if any
// were recorded.
type fieldErrors map[string]string

func (f fieldErrors) require(cond bool, field, msg string) {
	if !cond {
		if _, seen := f[field]; !seen {
			f[field] = msg
		}
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(f)}
}
