package linop

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DotTestResult reports how far an operator is from its declared adjoint.
type DotTestResult struct {
	// Forward is <A u, v>
	Forward float64
	// Adjoint is <u, Aᵀ v>
	Adjoint float64
	// Relative is |Forward - Adjoint| / (‖u‖ ‖v‖)
	Relative float64
	// Passed is Relative < tol
	Passed bool
}

// DotTest draws standard normal u and v from a seeded source and compares
// <A u, v> with <u, Aᵀ v>.
func DotTest(op Operator, seed uint64, tol float64) (DotTestResult, error) {
	rows, cols := op.Dims()
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}

	u := make([]float64, cols)
	for i := range u {
		u[i] = normal.Rand()
	}
	v := make([]float64, rows)
	for i := range v {
		v[i] = normal.Rand()
	}

	au, err := Forward(op, u)
	if err != nil {
		return DotTestResult{}, err
	}
	atv, err := Adjoint(op, v)
	if err != nil {
		return DotTestResult{}, err
	}

	res := DotTestResult{
		Forward: floats.Dot(au, v),
		Adjoint: floats.Dot(u, atv),
	}
	scale := floats.Norm(u, 2) * floats.Norm(v, 2)
	if scale > 0 {
		res.Relative = math.Abs(res.Forward-res.Adjoint) / scale
	}
	res.Passed = res.Relative < tol
	return res, nil
}
