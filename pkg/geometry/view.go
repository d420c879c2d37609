// Package geometry builds the per-view detector geometry of a tomographic
// acquisition: the world position of every detector pixel, the viewing
// normal and the ray extent used by the projection kernels.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"solartom/internal/logging"
)

var (
	// ErrInvalidGeometry is returned for malformed view parameters.
	ErrInvalidGeometry = errors.New("geometry: invalid geometry")

	// ErrDegenerateNormal marks a normal whose magnitude stays near zero after
	// epsilon clamping. It is reported as a warning; the view is still usable.
	ErrDegenerateNormal = errors.New("geometry: degenerate normal")
)

const (
	// NormalEpsilon replaces normal components that are exactly zero so the
	// ray stepping in the kernels never divides by zero.
	NormalEpsilon = 1e-6

	// degenerateNormThreshold is the magnitude below which a clamped normal is
	// reported as degenerate.
	degenerateNormThreshold = 1e-3
)

// View is the detector geometry of one acquisition angle.
// Views are immutable once built.
type View struct {
	// DetectorX, DetectorY and DetectorZ hold the world coordinates of every
	// detector pixel, Height rows of Width pixels each
	DetectorX []float64
	DetectorY []float64
	DetectorZ []float64

	Height int
	Width  int

	// Normal is the unit viewing direction, perpendicular to the detector plane.
	// Rays leave each pixel along -Normal.
	Normal r3.Vec

	// SourceDistance is the ray length marched from each pixel
	SourceDistance float64

	// Angle is the acquisition angle in radians, zero for views built from raw
	// coordinates
	Angle float64

	// Degenerate is set when the normal failed CheckNormal
	Degenerate bool
}

// DetectorParams configures a flat square detector on a circular orbit.
type DetectorParams struct {
	// Size is the number of pixels along each detector edge
	Size int
	// PixelPitch is the world distance between neighbouring pixels
	PixelPitch float64
	// Radius is the distance from the world origin to the detector centre
	Radius float64
	// SourceDistance is the ray length used by the kernels
	SourceDistance float64
}

func (p DetectorParams) validate() error {
	if p.Size < 2 {
		return fmt.Errorf("%w: detector size %d, need at least 2", ErrInvalidGeometry, p.Size)
	}
	if !positiveFinite(p.PixelPitch) {
		return fmt.Errorf("%w: pixel pitch %v", ErrInvalidGeometry, p.PixelPitch)
	}
	if !positiveFinite(p.Radius) {
		return fmt.Errorf("%w: orbit radius %v", ErrInvalidGeometry, p.Radius)
	}
	if !positiveFinite(p.SourceDistance) {
		return fmt.Errorf("%w: source distance %v", ErrInvalidGeometry, p.SourceDistance)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// NewCircularView places a flat detector at the given angle around the world
// Z axis. In the local frame the detector lies in the plane x = Radius with
// columns along +y and rows along +z, centred on the x axis. The plane is
// then rotated by -angle about Z, which puts its centre at
// Radius·(cos angle, -sin angle, 0).
func NewCircularView(angle float64, p DetectorParams) (*View, error) {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return nil, fmt.Errorf("%w: angle %v", ErrInvalidGeometry, angle)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	n := p.Size
	offsets := make([]float64, n)
	lo := -float64(n) / 2 * p.PixelPitch
	floats.Span(offsets, lo, lo+float64(n-1)*p.PixelPitch)

	rot := r3.NewRotation(-angle, r3.Vec{Z: 1})
	xs := make([]float64, n*n)
	ys := make([]float64, n*n)
	zs := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w := rot.Rotate(r3.Vec{X: p.Radius, Y: offsets[j], Z: offsets[i]})
			idx := i*n + j
			xs[idx], ys[idx], zs[idx] = w.X, w.Y, w.Z
		}
	}

	v, err := NewView(xs, ys, zs, n, n, p.SourceDistance)
	if err != nil {
		return nil, err
	}
	v.Angle = angle
	return v, nil
}

// NewView builds a view from explicit detector pixel coordinates, each a
// row-major slice of height·width values.
func NewView(xs, ys, zs []float64, height, width int, sourceDistance float64) (*View, error) {
	if height < 2 || width < 2 {
		return nil, fmt.Errorf("%w: detector %dx%d, need at least 2x2", ErrInvalidGeometry, height, width)
	}
	n := height * width
	if len(xs) != n || len(ys) != n || len(zs) != n {
		return nil, fmt.Errorf("%w: coordinate lengths %d/%d/%d for %dx%d detector",
			ErrInvalidGeometry, len(xs), len(ys), len(zs), height, width)
	}
	if !positiveFinite(sourceDistance) {
		return nil, fmt.Errorf("%w: source distance %v", ErrInvalidGeometry, sourceDistance)
	}
	for _, c := range [][]float64{xs, ys, zs} {
		if floats.HasNaN(c) {
			return nil, fmt.Errorf("%w: NaN detector coordinate", ErrInvalidGeometry)
		}
		for _, x := range c {
			if math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: infinite detector coordinate", ErrInvalidGeometry)
			}
		}
	}

	v := &View{
		DetectorX:      xs,
		DetectorY:      ys,
		DetectorZ:      zs,
		Height:         height,
		Width:          width,
		SourceDistance: sourceDistance,
	}
	v.Normal = planeNormal(v)

	if err := CheckNormal(v.Normal); err != nil {
		v.Degenerate = true
		logging.Logger().Warn("degenerate detector normal, keeping epsilon-clamped value",
			"normal", v.Normal, "error", err)
	}
	return v, nil
}

// Pixel returns the world position of pixel (row, col).
func (v *View) Pixel(row, col int) r3.Vec {
	idx := row*v.Width + col
	return r3.Vec{X: v.DetectorX[idx], Y: v.DetectorY[idx], Z: v.DetectorZ[idx]}
}

// Len returns the number of detector pixels.
func (v *View) Len() int {
	return v.Height * v.Width
}

// planeNormal derives the detector normal from the first pixel's neighbours
// along each detector axis, then clamps exact zero components.
func planeNormal(v *View) r3.Vec {
	p00 := v.Pixel(0, 0)
	v1 := unitOrZero(r3.Sub(v.Pixel(0, 1), p00))
	v2 := unitOrZero(r3.Sub(v.Pixel(1, 0), p00))
	n := unitOrZero(r3.Cross(v1, v2))

	// A zero component would make the traversal step along that axis infinite.
	if n.X == 0 {
		n.X = NormalEpsilon
	}
	if n.Y == 0 {
		n.Y = NormalEpsilon
	}
	if n.Z == 0 {
		n.Z = NormalEpsilon
	}
	return n
}

func unitOrZero(p r3.Vec) r3.Vec {
	if r3.Norm(p) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(p)
}

// CheckNormal reports ErrDegenerateNormal when n is too short to define a
// viewing direction.
func CheckNormal(n r3.Vec) error {
	if norm := r3.Norm(n); !(norm >= degenerateNormThreshold) {
		return fmt.Errorf("%w: magnitude %g", ErrDegenerateNormal, norm)
	}
	return nil
}
