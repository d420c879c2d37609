package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"solartom/internal/logging"
	"solartom/pkg/linop"
)

// CGLS is the conjugate gradient method applied to the normal equations
// AᵀA x = Aᵀb without forming AᵀA.
type CGLS struct {
	// MaxIterations bounds the number of iterations
	MaxIterations int

	// Tolerance stops the solver once ‖Aᵀr‖ <= Tolerance·‖Aᵀr₀‖.
	// Zero runs every iteration.
	Tolerance float64
}

// Solve implements Solver.
func (s *CGLS) Solve(op linop.Operator, b, x0 []float64) (*Result, error) {
	x, err := start(op, b, x0)
	if err != nil {
		return nil, err
	}
	log := logging.Logger().With("solver", "cgls")

	// r = b - A x
	r, err := linop.Forward(op, x)
	if err != nil {
		return nil, err
	}
	floats.SubTo(r, b, r)

	g, err := linop.Adjoint(op, r)
	if err != nil {
		return nil, err
	}
	p := make([]float64, len(g))
	copy(p, g)
	q := make([]float64, len(r))

	gamma := floats.Dot(g, g)
	normG0 := math.Sqrt(gamma)
	res := &Result{X: x, ResidualNorm: floats.Norm(r, 2), NormalResidual: normG0, Status: StatusIterationLimit}
	if normG0 == 0 {
		res.Converged = true
		res.Status = StatusExactStart
		return res, nil
	}

	for k := 0; k < s.MaxIterations; k++ {
		if err := op.Apply(q, p); err != nil {
			return nil, err
		}
		qq := floats.Dot(q, q)
		if qq == 0 {
			res.Status = StatusBreakdown
			break
		}
		alpha := gamma / qq
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, q)

		if err := op.ApplyAdjoint(g, r); err != nil {
			return nil, err
		}
		gammaNext := floats.Dot(g, g)

		res.Iterations = k + 1
		res.ResidualNorm = floats.Norm(r, 2)
		res.NormalResidual = math.Sqrt(gammaNext)
		res.History = append(res.History, res.ResidualNorm)
		log.Debug("iteration", "k", res.Iterations, "residual", res.ResidualNorm, "normal_residual", res.NormalResidual)

		if res.NormalResidual <= s.Tolerance*normG0 {
			res.Converged = true
			res.Status = StatusConverged
			break
		}

		floats.AddScaledTo(p, g, gammaNext/gamma, p)
		gamma = gammaNext
	}

	log.Info("finished", "iterations", res.Iterations, "residual", res.ResidualNorm, "status", res.Status)
	return res, nil
}
