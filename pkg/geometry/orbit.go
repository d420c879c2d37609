package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Angles returns n angles evenly spaced over [start, end] inclusive, each
// shifted by offset.
func Angles(n int, start, end, offset float64) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d views", ErrInvalidGeometry, n)
	}
	for _, v := range []float64{start, end, offset} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: angle range [%v, %v] offset %v", ErrInvalidGeometry, start, end, offset)
		}
	}
	angles := make([]float64, n)
	if n == 1 {
		angles[0] = start
	} else {
		floats.Span(angles, start, end)
	}
	floats.AddConst(offset, angles)
	return angles, nil
}

// CircularOrbit builds one view per angle of Angles(n, start, end, offset).
func CircularOrbit(n int, start, end, offset float64, p DetectorParams) ([]*View, error) {
	angles, err := Angles(n, start, end, offset)
	if err != nil {
		return nil, err
	}
	views := make([]*View, len(angles))
	for i, a := range angles {
		v, err := NewCircularView(a, p)
		if err != nil {
			return nil, fmt.Errorf("view %d: %w", i, err)
		}
		views[i] = v
	}
	return views, nil
}
