package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConsolidationConflict indicates that a consolidation commit found
	// its source batch changed since selection (a record was consolidated
	// by another caller or pruned by the sweeper). The transaction was
	// rolled back; the batch can be re-selected and retried.
	ErrConsolidationConflict = errors.New("consolidation batch conflict")
)

// NormalizeLimit applies a default and cap to list limits.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}
