// Package linop defines the linear-operator contract shared by the
// tomographic projector, the regularizers and the iterative solvers.
//
// An Operator maps a domain vector of length cols to a codomain vector of
// length rows. Solvers size their buffers from Dims and only ever call Apply
// and ApplyAdjoint, so any pair of methods that satisfies
// <Apply(u), v> == <u, ApplyAdjoint(v)> can be plugged in.
package linop

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a vector length does not match the
// declared domain or codomain of an operator.
var ErrShapeMismatch = errors.New("linop: shape mismatch")

// DType is the element precision an operator declares.
type DType int

const (
	// Float64 keeps full double precision.
	Float64 DType = iota
	// Float32 rounds every output element to single precision.
	Float32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DType(%d)", int(d))
	}
}

// ParseDType converts "float32" or "float64" to a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64", "":
		return Float64, nil
	default:
		return Float64, fmt.Errorf("linop: unknown precision %q", s)
	}
}

// Round truncates v in place to the precision of d.
func (d DType) Round(v []float64) {
	if d != Float32 {
		return
	}
	for i, x := range v {
		v[i] = float64(float32(x))
	}
}

// Operator is a linear map A: R^cols -> R^rows with its adjoint.
type Operator interface {
	// Dims returns the codomain and domain lengths. They never change.
	Dims() (rows, cols int)

	// DType returns the declared element precision.
	DType() DType

	// Apply computes dst = A x. len(dst) must be rows and len(x) cols.
	Apply(dst, x []float64) error

	// ApplyAdjoint computes dst = Aᵀ y. len(dst) must be cols and len(y) rows.
	ApplyAdjoint(dst, y []float64) error
}

// CheckApply validates the argument lengths of a forward application.
func CheckApply(op Operator, dst, x []float64) error {
	rows, cols := op.Dims()
	if len(x) != cols {
		return fmt.Errorf("%w: input length %d, domain length %d", ErrShapeMismatch, len(x), cols)
	}
	if len(dst) != rows {
		return fmt.Errorf("%w: output length %d, codomain length %d", ErrShapeMismatch, len(dst), rows)
	}
	return nil
}

// CheckAdjoint validates the argument lengths of an adjoint application.
func CheckAdjoint(op Operator, dst, y []float64) error {
	rows, cols := op.Dims()
	if len(y) != rows {
		return fmt.Errorf("%w: input length %d, codomain length %d", ErrShapeMismatch, len(y), rows)
	}
	if len(dst) != cols {
		return fmt.Errorf("%w: output length %d, domain length %d", ErrShapeMismatch, len(dst), cols)
	}
	return nil
}

// Forward allocates the result of A x.
func Forward(op Operator, x []float64) ([]float64, error) {
	rows, _ := op.Dims()
	dst := make([]float64, rows)
	if err := op.Apply(dst, x); err != nil {
		return nil, err
	}
	return dst, nil
}

// Adjoint allocates the result of Aᵀ y.
func Adjoint(op Operator, y []float64) ([]float64, error) {
	_, cols := op.Dims()
	dst := make([]float64, cols)
	if err := op.ApplyAdjoint(dst, y); err != nil {
		return nil, err
	}
	return dst, nil
}
