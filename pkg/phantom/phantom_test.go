package phantom

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"solartom/internal/models"
)

func geometry(n int) models.GridGeometry {
	return models.CenteredGeometry([3]int{n, n, n}, r3.Vec{X: 1, Y: 1, Z: 1})
}

// TestSolidCube verifies the filled region and total mass
func TestSolidCube(t *testing.T) {
	grid, err := SolidCube(geometry(10), 3, 100)
	if err != nil {
		t.Fatal(err)
	}
	if grid.At(5, 5, 5) != 100 || grid.At(3, 3, 3) != 100 {
		t.Errorf("Expected cube interior to be 100")
	}
	if grid.At(2, 5, 5) != 0 || grid.At(0, 0, 0) != 0 {
		t.Errorf("Expected zero outside the cube")
	}
	if total := floats.Sum(grid.Data); total != 4*4*4*100 {
		t.Errorf("Expected total 6400, got %f", total)
	}
}

// TestHollowCube verifies the shell of the original test object
func TestHollowCube(t *testing.T) {
	grid, err := HollowCube(geometry(20), 6, 8, 100)
	if err != nil {
		t.Fatal(err)
	}
	if grid.At(10, 10, 10) != 0 {
		t.Errorf("Expected hollow centre")
	}
	if grid.At(6, 10, 10) != 100 || grid.At(7, 7, 7) != 100 {
		t.Errorf("Expected filled shell")
	}
	if total := floats.Sum(grid.Data); total != (8*8*8-4*4*4)*100 {
		t.Errorf("Unexpected total %f", total)
	}

	if _, err := HollowCube(geometry(20), 8, 6, 1); !errors.Is(err, models.ErrInvalidGrid) {
		t.Errorf("Expected ErrInvalidGrid for inverted margins, got %v", err)
	}
	if _, err := SolidCube(geometry(4), 3, 1); !errors.Is(err, models.ErrInvalidGrid) {
		t.Errorf("Expected ErrInvalidGrid for oversized margin, got %v", err)
	}
}

// TestHollowCubeOversizedInner checks that an inner margin reaching past the
// grid centre clears nothing
func TestHollowCubeOversizedInner(t *testing.T) {
	for _, inner := range []int{5, 6, 9} {
		grid, err := HollowCube(geometry(10), 2, inner, 100)
		if err != nil {
			t.Fatalf("inner %d: %v", inner, err)
		}
		if total := floats.Sum(grid.Data); total != 6*6*6*100 {
			t.Errorf("inner %d: expected solid total 21600, got %f", inner, total)
		}
	}
}
