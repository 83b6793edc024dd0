package linalg

import (
	"errors"
	"fmt"
)

var (
	// ErrDimension matches any *DimensionError via errors.Is.
	ErrDimension = errors.New("dimension mismatch")
	// ErrNumericDegeneracy matches any *NumericDegeneracyError via errors.Is.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

// DimensionError reports a shape mismatch in a vector or matrix operation.
type DimensionError struct {
	Op    string
	Left  string
	Right string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch %s vs %s", e.Op, e.Left, e.Right)
}

// Is makes errors.Is(err, ErrDimension) true.
func (e *DimensionError) Is(target error) bool { return target == ErrDimension }

// NumericDegeneracyError reports a computation that would otherwise yield NaN or Inf.
type NumericDegeneracyError struct {
	Op     string
	Reason string
}

func (e *NumericDegeneracyError) Error() string {
	return fmt.Sprintf("%s: numeric degeneracy: %s", e.Op, e.Reason)
}

// Is makes errors.Is(err, ErrNumericDegeneracy) true.
func (e *NumericDegeneracyError) Is(target error) bool { return target == ErrNumericDegeneracy }

func vecShape(n int) string { return fmt.Sprintf("[%d]", n) }

func matShape(r, c int) string { return fmt.Sprintf("%dx%d", r, c) }

func dimErr(op, left, right string) error {
	return &DimensionError{Op: op, Left: left, Right: right}
}
