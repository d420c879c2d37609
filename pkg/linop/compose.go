package linop

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Scaled multiplies the output of an operator by a constant.
type Scaled struct {
	Op    Operator
	Alpha float64
}

// Scale returns alpha·op.
func Scale(op Operator, alpha float64) *Scaled {
	return &Scaled{Op: op, Alpha: alpha}
}

func (s *Scaled) Dims() (int, int) { return s.Op.Dims() }
func (s *Scaled) DType() DType      { return s.Op.DType() }

func (s *Scaled) Apply(dst, x []float64) error {
	if err := s.Op.Apply(dst, x); err != nil {
		return err
	}
	floats.Scale(s.Alpha, dst)
	return nil
}

func (s *Scaled) ApplyAdjoint(dst, y []float64) error {
	if err := s.Op.ApplyAdjoint(dst, y); err != nil {
		return err
	}
	floats.Scale(s.Alpha, dst)
	return nil
}

// Stacked concatenates the outputs of operators sharing one domain:
// [A; B; ...] x = [A x; B x; ...].
type Stacked struct {
	ops     []Operator
	offsets []int
	cols    int
}

// VStack stacks ops vertically. All operators must have the same domain.
func VStack(ops ...Operator) (*Stacked, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrShapeMismatch)
	}
	_, cols := ops[0].Dims()
	offsets := make([]int, len(ops)+1)
	for i, op := range ops {
		r, c := op.Dims()
		if c != cols {
			return nil, fmt.Errorf("%w: operator %d has domain %d, expected %d", ErrShapeMismatch, i, c, cols)
		}
		offsets[i+1] = offsets[i] + r
	}
	return &Stacked{ops: ops, offsets: offsets, cols: cols}, nil
}

func (s *Stacked) Dims() (int, int) { return s.offsets[len(s.ops)], s.cols }
func (s *Stacked) DType() DType      { return s.ops[0].DType() }

func (s *Stacked) Apply(dst, x []float64) error {
	if err := CheckApply(s, dst, x); err != nil {
		return err
	}
	for i, op := range s.ops {
		if err := op.Apply(dst[s.offsets[i]:s.offsets[i+1]], x); err != nil {
			return fmt.Errorf("stacked operator %d: %w", i, err)
		}
	}
	return nil
}

func (s *Stacked) ApplyAdjoint(dst, y []float64) error {
	if err := CheckAdjoint(s, dst, y); err != nil {
		return err
	}
	clear(dst)
	part := make([]float64, s.cols)
	for i, op := range s.ops {
		if err := op.ApplyAdjoint(part, y[s.offsets[i]:s.offsets[i+1]]); err != nil {
			return fmt.Errorf("stacked operator %d: %w", i, err)
		}
		floats.Add(dst, part)
	}
	return nil
}

// Dense wraps an explicit matrix as an Operator. It is meant for small
// problems and for checking matrix-free operators against their matrix.
type Dense struct {
	M *mat.Dense
}

// NewDense wraps m.
func NewDense(m *mat.Dense) *Dense {
	return &Dense{M: m}
}

// Materialize builds the explicit matrix of op by applying it to every unit
// vector of its domain. Cost is cols applications.
func Materialize(op Operator) (*mat.Dense, error) {
	rows, cols := op.Dims()
	m := mat.NewDense(rows, cols, nil)
	e := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		e[j] = 1
		if err := op.Apply(col, e); err != nil {
			return nil, err
		}
		e[j] = 0
		m.SetCol(j, col)
	}
	return m, nil
}

func (d *Dense) Dims() (int, int) { return d.M.Dims() }
func (d *Dense) DType() DType      { return Float64 }

func (d *Dense) Apply(dst, x []float64) error {
	if err := CheckApply(d, dst, x); err != nil {
		return err
	}
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(d.M, mat.NewVecDense(len(x), x))
	return nil
}

func (d *Dense) ApplyAdjoint(dst, y []float64) error {
	if err := CheckAdjoint(d, dst, y); err != nil {
		return err
	}
	out := mat.NewVecDense(len(dst), dst)
	out.MulVec(d.M.T(), mat.NewVecDense(len(y), y))
	return nil
}
