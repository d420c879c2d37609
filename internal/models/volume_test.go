package models

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// TestCenteredGeometry verifies that a centred grid is symmetric about the origin
func TestCenteredGeometry(t *testing.T) {
	g := CenteredGeometry([3]int{10, 20, 4}, r3.Vec{X: 1, Y: 0.5, Z: 2})

	if g.Origin != (r3.Vec{X: -5, Y: -5, Z: -4}) {
		t.Errorf("Unexpected origin %v", g.Origin)
	}
	if g.Max() != (r3.Vec{X: 5, Y: 5, Z: 4}) {
		t.Errorf("Unexpected far corner %v", g.Max())
	}
	if g.Len() != 800 {
		t.Errorf("Expected 800 voxels, got %d", g.Len())
	}
}

// TestGridValidate checks rejection of malformed grids
func TestGridValidate(t *testing.T) {
	good := CenteredGeometry([3]int{2, 2, 2}, r3.Vec{X: 1, Y: 1, Z: 1})
	if err := good.Validate(); err != nil {
		t.Fatalf("Valid grid rejected: %v", err)
	}

	tests := []struct {
		name string
		g    GridGeometry
	}{
		{"zero shape", GridGeometry{Shape: [3]int{0, 2, 2}, Spacing: r3.Vec{X: 1, Y: 1, Z: 1}}},
		{"negative spacing", GridGeometry{Shape: [3]int{2, 2, 2}, Spacing: r3.Vec{X: 1, Y: -1, Z: 1}}},
		{"nan spacing", GridGeometry{Shape: [3]int{2, 2, 2}, Spacing: r3.Vec{X: 1, Y: 1, Z: math.NaN()}}},
		{"inf origin", GridGeometry{Shape: [3]int{2, 2, 2}, Spacing: r3.Vec{X: 1, Y: 1, Z: 1}, Origin: r3.Vec{X: math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.g.Validate(); !errors.Is(err, ErrInvalidGrid) {
				t.Errorf("Expected ErrInvalidGrid, got %v", err)
			}
		})
	}
}

// TestVoxelGridIndexing verifies the x-slowest flat layout
func TestVoxelGridIndexing(t *testing.T) {
	grid, err := NewVoxelGrid(CenteredGeometry([3]int{3, 4, 5}, r3.Vec{X: 1, Y: 1, Z: 1}))
	if err != nil {
		t.Fatal(err)
	}

	grid.Set(2, 1, 3, 7)
	if got := grid.Data[(2*4+1)*5+3]; got != 7 {
		t.Errorf("Expected 7 at flat index, got %f", got)
	}
	if grid.At(2, 1, 3) != 7 {
		t.Errorf("At does not match Set")
	}

	clone := grid.Clone()
	clone.Set(2, 1, 3, 0)
	if grid.At(2, 1, 3) != 7 {
		t.Errorf("Clone shares data with the original grid")
	}

	if _, err := WrapVoxelGrid(grid.GridGeometry, make([]float64, 59)); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Expected ErrInvalidGrid for short data, got %v", err)
	}
}

// TestVoxelMask verifies mask defaults and the nil-mask convention
func TestVoxelMask(t *testing.T) {
	var none *VoxelMask
	if !none.Active(12) {
		t.Errorf("Nil mask should treat every voxel as active")
	}

	mask := NewVoxelMask([3]int{2, 2, 2})
	for i := range mask.Data {
		if !mask.Active(i) {
			t.Fatalf("New mask should be all active, voxel %d is not", i)
		}
	}
	mask.Data[3] = false
	if mask.Active(3) {
		t.Errorf("Voxel 3 should be inactive")
	}
}

// TestProjectionSetImage verifies that Image aliases the backing array
func TestProjectionSetImage(t *testing.T) {
	p := NewProjectionSet(3, 2, 4)
	if len(p.Data) != 24 {
		t.Fatalf("Expected 24 values, got %d", len(p.Data))
	}

	img := p.Image(1)
	img[0] = 5
	if p.Data[8] != 5 {
		t.Errorf("Image(1) should start at flat index 8")
	}
	if len(p.Image(2)) != p.ImageLen() {
		t.Errorf("Expected image length %d, got %d", p.ImageLen(), len(p.Image(2)))
	}
}
