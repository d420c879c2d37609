// Package solver implements iterative least-squares solvers that see a
// problem only through linop.Operator. Each solver minimises ‖A x - b‖²
// starting from an optional initial estimate and stops after a fixed number
// of iterations at the latest. Hitting that bound is a normal outcome: the
// best estimate so far is returned with Converged unset.
package solver

import (
	"errors"
	"fmt"
	"strings"

	"solartom/pkg/linop"
)

// ErrUnknownMethod is returned by New for an unsupported method name.
var ErrUnknownMethod = errors.New("solver: unknown method")

// Status values reported in Result.Status.
const (
	StatusConverged      = "converged"
	StatusIterationLimit = "iteration limit"
	StatusExactStart     = "initial estimate is exact"
	StatusBreakdown      = "search direction vanished"
)

// Solver solves min ‖A x - b‖² for x.
type Solver interface {
	// Solve runs the solver. x0 may be nil for a zero start; it is not modified.
	Solve(op linop.Operator, b, x0 []float64) (*Result, error)
}

// Result holds the estimate and the iteration diagnostics.
type Result struct {
	// X is the final estimate
	X []float64

	// Iterations is the number of completed iterations
	Iterations int

	// ResidualNorm is ‖A X - b‖
	ResidualNorm float64

	// NormalResidual is ‖Aᵀ(A X - b)‖, the gradient norm of the objective
	NormalResidual float64

	// History holds ResidualNorm after each iteration
	History []float64

	// Converged reports whether the tolerance was met before the bound
	Converged bool

	// Status describes why the solver stopped
	Status string
}

// New returns the solver for a method name: "cgls", "lsqr" or "cg".
func New(method string, maxIterations int, tolerance float64) (Solver, error) {
	switch strings.ToLower(method) {
	case "cgls", "":
		return &CGLS{MaxIterations: maxIterations, Tolerance: tolerance}, nil
	case "lsqr":
		return &LSQR{MaxIterations: maxIterations, Tolerance: tolerance}, nil
	case "cg", "optimize":
		return &Minimizer{MaxIterations: maxIterations, GradientThreshold: tolerance}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// start validates b and x0 against op and returns a working copy of x0.
func start(op linop.Operator, b, x0 []float64) ([]float64, error) {
	rows, cols := op.Dims()
	if len(b) != rows {
		return nil, fmt.Errorf("%w: data length %d, codomain length %d", linop.ErrShapeMismatch, len(b), rows)
	}
	x := make([]float64, cols)
	if x0 != nil {
		if len(x0) != cols {
			return nil, fmt.Errorf("%w: initial estimate length %d, domain length %d", linop.ErrShapeMismatch, len(x0), cols)
		}
		copy(x, x0)
	}
	return x, nil
}
