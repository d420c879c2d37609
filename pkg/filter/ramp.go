// Package filter holds frequency-domain filters applied to detector images.
package filter

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"solartom/internal/models"
	"solartom/pkg/linop"
)

// Ramp applies the |ω| ramp filter along each detector row. Rows are zero
// padded to the next power of two of at least twice the width so the
// circular convolution does not wrap.
type Ramp struct {
	width  int
	padded int
	fft    *fourier.FFT
	weight []float64
}

// NewRamp prepares a ramp filter for rows of the given width.
func NewRamp(width int) (*Ramp, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: row width %d", linop.ErrShapeMismatch, width)
	}
	n := 1
	for n < 2*width {
		n <<= 1
	}
	weight := make([]float64, n/2+1)
	for k := range weight {
		weight[k] = float64(k) / float64(n)
	}
	return &Ramp{width: width, padded: n, fft: fourier.NewFFT(n), weight: weight}, nil
}

// Rows filters every row of src (rows of r's width) into dst.
// dst and src may be the same slice.
func (r *Ramp) Rows(dst, src []float64) error {
	if len(src)%r.width != 0 || len(dst) != len(src) {
		return fmt.Errorf("%w: %d values into %d, row width %d", linop.ErrShapeMismatch, len(src), len(dst), r.width)
	}

	seq := make([]float64, r.padded)
	coeff := make([]complex128, r.padded/2+1)
	scale := 1 / float64(r.padded)
	for start := 0; start < len(src); start += r.width {
		clear(seq)
		copy(seq, src[start:start+r.width])

		r.fft.Coefficients(coeff, seq)
		for k := range coeff {
			coeff[k] *= complex(r.weight[k], 0)
		}
		r.fft.Sequence(seq, coeff)

		for j := 0; j < r.width; j++ {
			dst[start+j] = seq[j] * scale
		}
	}
	return nil
}

// Apply returns a ramp-filtered copy of a projection set.
func Apply(p *models.ProjectionSet) (*models.ProjectionSet, error) {
	r, err := NewRamp(p.Width)
	if err != nil {
		return nil, err
	}
	out := models.NewProjectionSet(p.NumViews, p.Height, p.Width)
	if err := r.Rows(out.Data, p.Data); err != nil {
		return nil, err
	}
	return out, nil
}
