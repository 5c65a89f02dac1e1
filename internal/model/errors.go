package model

import "errors"

var (
	// ErrDimensionMismatch marks per-node arrays of inconsistent length.
	ErrDimensionMismatch = errors.New("per-node arrays differ in length")
	ErrEmptyBatch        = errors.New("batch has no nodes")
	// ErrNonFinite marks a NaN or Inf output for finite inputs. It signals a gap
	// in the numerical safeguards rather than a recoverable condition.
	ErrNonFinite = errors.New("non-finite evaluation output")
)
