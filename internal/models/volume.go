package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGrid is returned when a voxel grid has a non-positive shape or a
// non-finite or non-positive spacing.
var ErrInvalidGrid = errors.New("models: invalid voxel grid")

// GridGeometry describes where a voxel grid sits in world space.
type GridGeometry struct {
	// Shape is the number of voxels along x, y and z
	Shape [3]int

	// Origin is the world coordinate of the corner of voxel [0,0,0]
	Origin r3.Vec

	// Spacing is the world size of one voxel step along each axis
	Spacing r3.Vec
}

// CenteredGeometry returns a grid of the given shape and spacing centred on
// the world origin.
func CenteredGeometry(shape [3]int, spacing r3.Vec) GridGeometry {
	return GridGeometry{
		Shape: shape,
		Origin: r3.Vec{
			X: -float64(shape[0]) * spacing.X / 2,
			Y: -float64(shape[1]) * spacing.Y / 2,
			Z: -float64(shape[2]) * spacing.Z / 2,
		},
		Spacing: spacing,
	}
}

// Validate checks that the geometry describes a usable grid.
func (g GridGeometry) Validate() error {
	for axis, n := range g.Shape {
		if n <= 0 {
			return fmt.Errorf("%w: shape[%d] = %d", ErrInvalidGrid, axis, n)
		}
	}
	for axis, d := range [3]float64{g.Spacing.X, g.Spacing.Y, g.Spacing.Z} {
		if !(d > 0) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: spacing[%d] = %v", ErrInvalidGrid, axis, d)
		}
	}
	for axis, o := range [3]float64{g.Origin.X, g.Origin.Y, g.Origin.Z} {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			return fmt.Errorf("%w: origin[%d] = %v", ErrInvalidGrid, axis, o)
		}
	}
	return nil
}

// Len returns the number of voxels in the grid.
func (g GridGeometry) Len() int {
	return g.Shape[0] * g.Shape[1] * g.Shape[2]
}

// Index returns the flat index of voxel (i, j, k). x varies slowest.
func (g GridGeometry) Index(i, j, k int) int {
	return (i*g.Shape[1]+j)*g.Shape[2] + k
}

// Max returns the world coordinate of the far corner of the grid.
func (g GridGeometry) Max() r3.Vec {
	return r3.Vec{
		X: g.Origin.X + float64(g.Shape[0])*g.Spacing.X,
		Y: g.Origin.Y + float64(g.Shape[1])*g.Spacing.Y,
		Z: g.Origin.Z + float64(g.Shape[2])*g.Spacing.Z,
	}
}

// Center returns the world coordinate of the centre of voxel (i, j, k).
func (g GridGeometry) Center(i, j, k int) r3.Vec {
	return r3.Vec{
		X: g.Origin.X + (float64(i)+0.5)*g.Spacing.X,
		Y: g.Origin.Y + (float64(j)+0.5)*g.Spacing.Y,
		Z: g.Origin.Z + (float64(k)+0.5)*g.Spacing.Z,
	}
}

// VoxelGrid is a 3D density field stored as a flat array in row-major order
type VoxelGrid struct {
	GridGeometry

	// Data holds one density value per voxel, indexed by GridGeometry.Index
	Data []float64
}

// NewVoxelGrid allocates an all-zero grid with the given geometry.
func NewVoxelGrid(g GridGeometry) (*VoxelGrid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &VoxelGrid{GridGeometry: g, Data: make([]float64, g.Len())}, nil
}

// WrapVoxelGrid uses data as the backing array of a grid without copying.
func WrapVoxelGrid(g GridGeometry, data []float64) (*VoxelGrid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(data) != g.Len() {
		return nil, fmt.Errorf("%w: %d values for %d voxels", ErrInvalidGrid, len(data), g.Len())
	}
	return &VoxelGrid{GridGeometry: g, Data: data}, nil
}

// At returns the density of voxel (i, j, k).
func (v *VoxelGrid) At(i, j, k int) float64 {
	return v.Data[v.Index(i, j, k)]
}

// Set assigns the density of voxel (i, j, k).
func (v *VoxelGrid) Set(i, j, k int, value float64) {
	v.Data[v.Index(i, j, k)] = value
}

// Clone returns a deep copy of the grid.
func (v *VoxelGrid) Clone() *VoxelGrid {
	data := make([]float64, len(v.Data))
	copy(data, v.Data)
	return &VoxelGrid{GridGeometry: v.GridGeometry, Data: data}
}

// VoxelMask selects which voxels take part in projection and backprojection.
// A nil *VoxelMask means every voxel is active.
type VoxelMask struct {
	Shape [3]int
	Data  []bool
}

// NewVoxelMask returns a mask with every voxel active.
func NewVoxelMask(shape [3]int) *VoxelMask {
	n := shape[0] * shape[1] * shape[2]
	if n < 0 {
		n = 0
	}
	data := make([]bool, n)
	for i := range data {
		data[i] = true
	}
	return &VoxelMask{Shape: shape, Data: data}
}

// Active reports whether the voxel at flat index idx participates.
func (m *VoxelMask) Active(idx int) bool {
	return m == nil || m.Data[idx]
}

// ProjectionSet holds one detector image per view, view-major then row-major.
type ProjectionSet struct {
	NumViews int
	Height   int
	Width    int
	Data     []float64
}

// NewProjectionSet allocates an all-zero projection set.
func NewProjectionSet(numViews, height, width int) *ProjectionSet {
	return &ProjectionSet{
		NumViews: numViews,
		Height:   height,
		Width:    width,
		Data:     make([]float64, numViews*height*width),
	}
}

// ImageLen returns the number of pixels in one view.
func (p *ProjectionSet) ImageLen() int {
	return p.Height * p.Width
}

// Image returns the pixels of view v. The result aliases p.Data.
func (p *ProjectionSet) Image(v int) []float64 {
	n := p.ImageLen()
	return p.Data[v*n : (v+1)*n]
}
