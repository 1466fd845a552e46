package minivec

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when the requested result count is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyQuery is returned when SearchText is called with blank or
	// whitespace-only text. It is raised before the embedder is invoked.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrAlreadyCompressed is returned when Compress is called on a store
	// whose vectors were already re-encoded. Compression is irreversible;
	// there is no promotion back to full precision.
	ErrAlreadyCompressed = errors.New("vectors already compressed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
// It is raised before any mutation; the collection is left unchanged.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid (empty) vector where the
// collection dimension is not yet fixed.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrDuplicateID indicates a caller-supplied record ID that already exists
// in the collection. IDs are unique; reusing one would create ambiguous
// lookups.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %q", e.ID)
}

// OperationError wraps lower-level I/O or serialization failures during
// persistence with the failing operation name.
//
// The underlying error can be accessed via errors.Unwrap.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("minivec: %s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
