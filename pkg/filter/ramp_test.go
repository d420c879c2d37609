package filter

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"

	"solartom/internal/models"
	"solartom/pkg/linop"
)

// TestRampImpulseResponse verifies the shape of the ramp kernel
func TestRampImpulseResponse(t *testing.T) {
	const width = 16
	r, err := NewRamp(width)
	if err != nil {
		t.Fatal(err)
	}
	src := make([]float64, width)
	src[8] = 1
	dst := make([]float64, width)
	if err := r.Rows(dst, src); err != nil {
		t.Fatal(err)
	}

	if dst[8] <= 0 {
		t.Errorf("Centre tap should be positive, got %f", dst[8])
	}
	if dst[7] >= 0 || dst[9] >= 0 {
		t.Errorf("Neighbouring taps should be negative, got %f and %f", dst[7], dst[9])
	}
	for d := 1; d < 8; d++ {
		if math.Abs(dst[8-d]-dst[8+d]) > 1e-12 {
			t.Errorf("Kernel not symmetric at offset %d: %f vs %f", d, dst[8-d], dst[8+d])
		}
	}
}

// TestRampLinear verifies linearity and in-place filtering
func TestRampLinear(t *testing.T) {
	r, err := NewRamp(5)
	if err != nil {
		t.Fatal(err)
	}
	a := []float64{1, 2, 3, 4, 5, 0, -1, 2, 0, 1}
	b := []float64{0, 1, 0, 1, 0, 3, 3, 3, 3, 3}
	sum := make([]float64, len(a))
	floats.AddTo(sum, a, b)

	fa := make([]float64, len(a))
	fb := make([]float64, len(b))
	if err := r.Rows(fa, a); err != nil {
		t.Fatal(err)
	}
	if err := r.Rows(fb, b); err != nil {
		t.Fatal(err)
	}
	if err := r.Rows(sum, sum); err != nil {
		t.Fatal(err)
	}
	floats.Add(fa, fb)
	if !floats.EqualApprox(fa, sum, 1e-12) {
		t.Errorf("Ramp filter is not linear")
	}
}

// TestApplyProjectionSet verifies shapes are preserved and zeros stay zero
func TestApplyProjectionSet(t *testing.T) {
	p := models.NewProjectionSet(2, 3, 4)
	out, err := Apply(p)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumViews != 2 || out.Height != 3 || out.Width != 4 {
		t.Errorf("Unexpected output shape %dx%dx%d", out.NumViews, out.Height, out.Width)
	}
	if floats.Norm(out.Data, 2) != 0 {
		t.Errorf("Filtering zeros should give zeros")
	}

	r, _ := NewRamp(4)
	if err := r.Rows(make([]float64, 6), make([]float64, 6)); !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for partial rows, got %v", err)
	}
	if _, err := NewRamp(0); !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for zero width, got %v", err)
	}
}
