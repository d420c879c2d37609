// Package regularization provides the derivative operators used to penalise
// high-frequency structure in a reconstruction.
package regularization

import (
	"fmt"

	"solartom/internal/models"
	"solartom/pkg/linop"
)

// DefaultWeight is the regularization weight λ used when none is configured.
const DefaultWeight = 1.0

// FirstDerivative is the backward first difference along one axis of a
// flattened grid: y[i] = x[i] - x[i-1], and y = 0 on the first slice along
// the axis. Nothing wraps around to the opposite edge.
type FirstDerivative struct {
	shape  [3]int
	axis   int
	stride int
	dtype  linop.DType
}

// NewFirstDerivative returns the backward difference along axis (0, 1 or 2)
// of a grid with the given shape, x slowest.
func NewFirstDerivative(shape [3]int, axis int) (*FirstDerivative, error) {
	for a, n := range shape {
		if n <= 0 {
			return nil, fmt.Errorf("%w: shape[%d] = %d", models.ErrInvalidGrid, a, n)
		}
	}
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("%w: axis %d", models.ErrInvalidGrid, axis)
	}
	stride := 1
	for a := 2; a > axis; a-- {
		stride *= shape[a]
	}
	return &FirstDerivative{shape: shape, axis: axis, stride: stride, dtype: linop.Float64}, nil
}

// PerAxis returns one backward difference per spatial axis.
func PerAxis(shape [3]int) ([]*FirstDerivative, error) {
	ops := make([]*FirstDerivative, 3)
	for axis := range ops {
		d, err := NewFirstDerivative(shape, axis)
		if err != nil {
			return nil, err
		}
		ops[axis] = d
	}
	return ops, nil
}

// Axis returns the differentiated axis.
func (d *FirstDerivative) Axis() int { return d.axis }

func (d *FirstDerivative) Dims() (int, int) {
	n := d.shape[0] * d.shape[1] * d.shape[2]
	return n, n
}

func (d *FirstDerivative) DType() linop.DType { return d.dtype }

// position returns the coordinate of flat index i along the axis.
func (d *FirstDerivative) position(i int) int {
	return (i / d.stride) % d.shape[d.axis]
}

func (d *FirstDerivative) Apply(dst, x []float64) error {
	if err := linop.CheckApply(d, dst, x); err != nil {
		return err
	}
	for i := range dst {
		if d.position(i) == 0 {
			dst[i] = 0
			continue
		}
		dst[i] = x[i] - x[i-d.stride]
	}
	return nil
}

func (d *FirstDerivative) ApplyAdjoint(dst, y []float64) error {
	if err := linop.CheckAdjoint(d, dst, y); err != nil {
		return err
	}
	clear(dst)
	for i, v := range y {
		if d.position(i) == 0 {
			continue
		}
		dst[i] += v
		dst[i-d.stride] -= v
	}
	return nil
}

// Term pairs a regularization operator with its weight λ, contributing
// λ‖D x‖² to the objective.
type Term struct {
	Op     linop.Operator
	Weight float64
}

// AxisTerms returns one weighted term per axis of shape.
func AxisTerms(shape [3]int, weight float64) ([]Term, error) {
	ops, err := PerAxis(shape)
	if err != nil {
		return nil, err
	}
	terms := make([]Term, len(ops))
	for i, op := range ops {
		terms[i] = Term{Op: op, Weight: weight}
	}
	return terms, nil
}
