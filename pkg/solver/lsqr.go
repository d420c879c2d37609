package solver

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"solartom/internal/logging"
	"solartom/pkg/linop"
)

// LSQR is the Paige–Saunders algorithm based on Golub–Kahan
// bidiagonalisation. In exact arithmetic it produces the same iterates as
// CGLS but is better behaved on ill-conditioned problems.
type LSQR struct {
	// MaxIterations bounds the number of iterations
	MaxIterations int

	// Tolerance stops the solver once ‖Aᵀr‖ <= Tolerance·‖Aᵀr₀‖.
	// Zero runs every iteration.
	Tolerance float64
}

// Solve implements Solver.
func (s *LSQR) Solve(op linop.Operator, b, x0 []float64) (*Result, error) {
	x, err := start(op, b, x0)
	if err != nil {
		return nil, err
	}
	log := logging.Logger().With("solver", "lsqr")

	// Solve for the correction dx of A dx ≈ b - A x0.
	u, err := linop.Forward(op, x)
	if err != nil {
		return nil, err
	}
	floats.SubTo(u, b, u)
	beta := floats.Norm(u, 2)
	res := &Result{X: x, ResidualNorm: beta, Status: StatusIterationLimit}
	if beta == 0 {
		res.Converged = true
		res.Status = StatusExactStart
		return res, nil
	}
	floats.Scale(1/beta, u)

	v, err := linop.Adjoint(op, u)
	if err != nil {
		return nil, err
	}
	alpha := floats.Norm(v, 2)
	res.NormalResidual = alpha * beta
	if alpha == 0 {
		res.Converged = true
		res.Status = StatusExactStart
		return res, nil
	}
	floats.Scale(1/alpha, v)
	normalResidual0 := alpha * beta

	w := make([]float64, len(v))
	copy(w, v)
	phiBar, rhoBar := beta, alpha
	av := make([]float64, len(u))
	atu := make([]float64, len(v))

	for k := 0; k < s.MaxIterations; k++ {
		// beta u = A v - alpha u
		if err := op.Apply(av, v); err != nil {
			return nil, err
		}
		floats.AddScaledTo(u, av, -alpha, u)
		beta = floats.Norm(u, 2)
		if beta > 0 {
			floats.Scale(1/beta, u)
		}

		// alpha v = Aᵀ u - beta v
		if err := op.ApplyAdjoint(atu, u); err != nil {
			return nil, err
		}
		floats.AddScaledTo(v, atu, -beta, v)
		alpha = floats.Norm(v, 2)
		if alpha > 0 {
			floats.Scale(1/alpha, v)
		}

		rho := math.Hypot(rhoBar, beta)
		c := rhoBar / rho
		sn := beta / rho
		theta := sn * alpha
		rhoBar = -c * alpha
		phi := c * phiBar
		phiBar = sn * phiBar

		floats.AddScaled(x, phi/rho, w)
		floats.AddScaledTo(w, v, -theta/rho, w)

		res.Iterations = k + 1
		res.ResidualNorm = math.Abs(phiBar)
		res.NormalResidual = math.Abs(phiBar * alpha * c)
		res.History = append(res.History, res.ResidualNorm)
		log.Debug("iteration", "k", res.Iterations, "residual", res.ResidualNorm, "normal_residual", res.NormalResidual)

		if res.NormalResidual <= s.Tolerance*normalResidual0 {
			res.Converged = true
			res.Status = StatusConverged
			break
		}
		if alpha == 0 {
			res.Status = StatusBreakdown
			break
		}
	}

	log.Info("finished", "iterations", res.Iterations, "residual", res.ResidualNorm, "status", res.Status)
	return res, nil
}
