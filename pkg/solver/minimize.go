package solver

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"solartom/internal/logging"
	"solartom/pkg/linop"
)

// Minimizer hands f(x) = ½‖A x - b‖² and its gradient Aᵀ(A x - b) to the
// nonlinear conjugate gradient method of gonum/optimize. It is slower than
// CGLS per iteration because of the line search, but any objective change
// (weights, constraints) only touches Func and Grad.
type Minimizer struct {
	// MaxIterations bounds the number of major iterations
	MaxIterations int

	// GradientThreshold stops the solver once ‖∇f‖∞ drops below it.
	// Zero keeps gonum's default.
	GradientThreshold float64
}

// Solve implements Solver.
func (s *Minimizer) Solve(op linop.Operator, b, x0 []float64) (*Result, error) {
	x, err := start(op, b, x0)
	if err != nil {
		return nil, err
	}
	log := logging.Logger().With("solver", "optimize-cg")

	rows, _ := op.Dims()
	r := make([]float64, rows)
	var opErr error

	residual := func(x []float64) bool {
		if opErr != nil {
			return false
		}
		if err := op.Apply(r, x); err != nil {
			opErr = err
			return false
		}
		floats.Sub(r, b)
		return true
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if !residual(x) {
				return 0
			}
			return 0.5 * floats.Dot(r, r)
		},
		Grad: func(grad, x []float64) {
			if !residual(x) {
				return
			}
			if err := op.ApplyAdjoint(grad, r); err != nil {
				opErr = err
			}
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   s.MaxIterations,
		GradientThreshold: s.GradientThreshold,
	}

	result, err := optimize.Minimize(problem, x, settings, &optimize.CG{})
	if opErr != nil {
		return nil, opErr
	}
	if result == nil {
		return nil, fmt.Errorf("solver: optimize: %w", err)
	}
	if err != nil {
		log.Debug("optimizer stopped early", "error", err)
	}

	out := &Result{
		X:          result.X,
		Iterations: result.Stats.MajorIterations,
		Status:     result.Status.String(),
	}
	switch result.Status {
	case optimize.GradientThreshold, optimize.FunctionConvergence, optimize.Success, optimize.StepConvergence, optimize.MethodConverge:
		out.Converged = true
	}

	if !residual(out.X) {
		return nil, opErr
	}
	out.ResidualNorm = floats.Norm(r, 2)
	grad, err := linop.Adjoint(op, r)
	if err != nil {
		return nil, err
	}
	out.NormalResidual = floats.Norm(grad, 2)
	out.History = []float64{out.ResidualNorm}

	log.Info("finished", "iterations", out.Iterations, "residual", out.ResidualNorm, "status", out.Status)
	return out, nil
}
