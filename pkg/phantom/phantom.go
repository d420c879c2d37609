// Package phantom builds synthetic ground-truth density grids.
package phantom

import (
	"fmt"

	"solartom/internal/models"
)

// Box fills voxels lo[a] <= idx[a] < hi[a] of grid with value.
func Box(grid *models.VoxelGrid, lo, hi [3]int, value float64) error {
	for a := 0; a < 3; a++ {
		if lo[a] < 0 || hi[a] > grid.Shape[a] || lo[a] > hi[a] {
			return fmt.Errorf("%w: box [%v, %v) outside shape %v", models.ErrInvalidGrid, lo, hi, grid.Shape)
		}
	}
	for i := lo[0]; i < hi[0]; i++ {
		for j := lo[1]; j < hi[1]; j++ {
			for k := lo[2]; k < hi[2]; k++ {
				grid.Set(i, j, k, value)
			}
		}
	}
	return nil
}

// margins returns the box that leaves margin voxels on every side.
func margins(shape [3]int, margin int) (lo, hi [3]int) {
	for a := 0; a < 3; a++ {
		lo[a] = margin
		hi[a] = shape[a] - margin
	}
	return lo, hi
}

// SolidCube returns a grid that is value inside a centred box leaving
// margin voxels on every side, and zero elsewhere.
func SolidCube(g models.GridGeometry, margin int, value float64) (*models.VoxelGrid, error) {
	grid, err := models.NewVoxelGrid(g)
	if err != nil {
		return nil, err
	}
	lo, hi := margins(g.Shape, margin)
	if err := Box(grid, lo, hi, value); err != nil {
		return nil, err
	}
	return grid, nil
}

// HollowCube returns a solid cube with margin outer whose interior, leaving
// margin inner, is emptied again. An inner margin too large for the grid
// leaves the cube solid.
func HollowCube(g models.GridGeometry, outer, inner int, value float64) (*models.VoxelGrid, error) {
	if inner < outer {
		return nil, fmt.Errorf("%w: inner margin %d smaller than outer margin %d", models.ErrInvalidGrid, inner, outer)
	}
	grid, err := SolidCube(g, outer, value)
	if err != nil {
		return nil, err
	}
	lo, hi := margins(g.Shape, inner)
	for a := 0; a < 3; a++ {
		if lo[a] >= hi[a] {
			return grid, nil
		}
	}
	if err := Box(grid, lo, hi, 0); err != nil {
		return nil, err
	}
	return grid, nil
}
