// Package inversion drives the regularized least-squares reconstruction
//
//	minimise ‖A x - d‖² + Σₖ λₖ ‖Dₖ x‖²
//
// by stacking [A; √λ₁ D₁; …] against [d; 0; …] and handing the stack to an
// iterative solver. Operators are only ever used through Apply and
// ApplyAdjoint.
package inversion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"solartom/internal/logging"
	"solartom/internal/models"
	"solartom/pkg/filter"
	"solartom/pkg/linop"
	"solartom/pkg/regularization"
	"solartom/pkg/solver"
	"solartom/pkg/tomo"
)

// DefaultIterations is the iteration bound used when Params leaves it unset.
const DefaultIterations = 10

// Params configures one inversion.
type Params struct {
	// Iterations bounds the solver. Zero means DefaultIterations.
	Iterations int

	// Tolerance is the relative normal-equation residual at which the
	// solver may stop early. Zero runs every iteration.
	Tolerance float64

	// Solver overrides the default CGLS solver built from Iterations and
	// Tolerance.
	Solver solver.Solver

	// X0 is an optional initial estimate over the operator's domain.
	X0 []float64
}

// Result is the outcome of an inversion.
type Result struct {
	// Solver holds the raw solver diagnostics on the stacked system
	Solver *solver.Result

	// DataResidual is ‖A x - d‖ for the final estimate
	DataResidual float64

	// Penalties holds λₖ‖Dₖ x‖² per regularization term
	Penalties []float64
}

// Invert solves the regularized problem for op and data and returns the flat
// estimate in Result.Solver.X.
func Invert(op linop.Operator, data []float64, terms []regularization.Term, p Params) (*Result, error) {
	rows, cols := op.Dims()
	if len(data) != rows {
		return nil, fmt.Errorf("%w: data length %d, codomain length %d", linop.ErrShapeMismatch, len(data), rows)
	}

	stack := []linop.Operator{op}
	rhsLen := rows
	for i, term := range terms {
		if term.Op == nil {
			return nil, fmt.Errorf("inversion: regularization term %d has no operator", i)
		}
		if !(term.Weight >= 0) || math.IsInf(term.Weight, 0) {
			return nil, fmt.Errorf("inversion: regularization term %d has weight %v", i, term.Weight)
		}
		r, c := term.Op.Dims()
		if c != cols {
			return nil, fmt.Errorf("%w: regularization term %d has domain %d, expected %d", linop.ErrShapeMismatch, i, c, cols)
		}
		stack = append(stack, linop.Scale(term.Op, math.Sqrt(term.Weight)))
		rhsLen += r
	}

	system, err := linop.VStack(stack...)
	if err != nil {
		return nil, err
	}
	rhs := make([]float64, rhsLen)
	copy(rhs, data)

	s := p.Solver
	if s == nil {
		iterations := p.Iterations
		if iterations <= 0 {
			iterations = DefaultIterations
		}
		s = &solver.CGLS{MaxIterations: iterations, Tolerance: p.Tolerance}
	}

	log := logging.Logger()
	log.Info("starting inversion", "domain", cols, "codomain", rows, "regularizers", len(terms))

	sol, err := s.Solve(system, rhs, p.X0)
	if err != nil {
		return nil, fmt.Errorf("inversion: %w", err)
	}

	res := &Result{Solver: sol, Penalties: make([]float64, len(terms))}
	fit, err := linop.Forward(op, sol.X)
	if err != nil {
		return nil, err
	}
	floats.Sub(fit, data)
	res.DataResidual = floats.Norm(fit, 2)
	for i, term := range terms {
		dx, err := linop.Forward(term.Op, sol.X)
		if err != nil {
			return nil, err
		}
		res.Penalties[i] = term.Weight * floats.Dot(dx, dx)
	}

	log.Info("inversion finished",
		"iterations", sol.Iterations,
		"converged", sol.Converged,
		"data_residual", res.DataResidual)
	return res, nil
}

// Reconstruct inverts a projection set and reshapes the estimate onto the
// operator's voxel grid.
func Reconstruct(op *tomo.Operator, data *models.ProjectionSet, terms []regularization.Term, p Params) (*models.VoxelGrid, *Result, error) {
	h, w := op.DetectorSize()
	if data.NumViews != len(op.Views()) || data.Height != h || data.Width != w {
		return nil, nil, fmt.Errorf("%w: projections %dx%dx%d, operator %dx%dx%d", linop.ErrShapeMismatch,
			data.NumViews, data.Height, data.Width, len(op.Views()), h, w)
	}
	res, err := Invert(op, data.Data, terms, p)
	if err != nil {
		return nil, nil, err
	}
	grid, err := models.WrapVoxelGrid(op.Grid(), res.Solver.X)
	if err != nil {
		return nil, nil, err
	}
	return grid, res, nil
}

// WarmStart returns a ramp-filtered backprojection of data scaled by the
// factor α = <A z, d> / ‖A z‖² that minimises ‖α A z - d‖. It is a cheap
// initial estimate for Params.X0.
func WarmStart(op *tomo.Operator, data *models.ProjectionSet) ([]float64, error) {
	filtered, err := filter.Apply(data)
	if err != nil {
		return nil, err
	}
	z, err := linop.Adjoint(op, filtered.Data)
	if err != nil {
		return nil, err
	}
	az, err := linop.Forward(op, z)
	if err != nil {
		return nil, err
	}
	den := floats.Dot(az, az)
	if den == 0 {
		clear(z)
		return z, nil
	}
	floats.Scale(floats.Dot(az, data.Data)/den, z)
	return z, nil
}
