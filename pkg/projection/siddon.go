package projection

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"solartom/internal/models"
	"solartom/pkg/geometry"
)

// Siddon integrates density along straight rays using exact voxel traversal.
// Each detector pixel casts a ray along -view.Normal for view.SourceDistance
// world units; a voxel's weight is the length of the ray inside it.
// Project and Backproject walk identical paths, so they are exact adjoints.
type Siddon struct{}

// Project implements Kernel.
func (Siddon) Project(dst []float64, view *geometry.View, density []float64,
	mask *models.VoxelMask, grid models.GridGeometry) error {
	if err := checkLengths(view, dst, density, mask, grid); err != nil {
		return err
	}
	dir := r3.Scale(-1, view.Normal)
	for p := range dst {
		origin := r3.Vec{X: view.DetectorX[p], Y: view.DetectorY[p], Z: view.DetectorZ[p]}
		var sum float64
		Traverse(grid, origin, dir, view.SourceDistance, func(idx int, length float64) {
			if mask.Active(idx) {
				sum += length * density[idx]
			}
		})
		dst[p] = sum
	}
	return nil
}

// Backproject implements Kernel.
func (Siddon) Backproject(acc []float64, view *geometry.View, image []float64,
	mask *models.VoxelMask, grid models.GridGeometry, additive bool) error {
	if err := checkLengths(view, image, acc, mask, grid); err != nil {
		return err
	}
	if !additive {
		clear(acc)
	}
	dir := r3.Scale(-1, view.Normal)
	for p, value := range image {
		if value == 0 {
			continue
		}
		origin := r3.Vec{X: view.DetectorX[p], Y: view.DetectorY[p], Z: view.DetectorZ[p]}
		Traverse(grid, origin, dir, view.SourceDistance, func(idx int, length float64) {
			if mask.Active(idx) {
				acc[idx] += length * value
			}
		})
	}
	return nil
}

// Traverse walks the ray origin + t·dir, t in [0, extent], through the grid
// and calls visit with the flat index and intersection length of every voxel
// it crosses, in order. dir is normalised internally so lengths are in world
// units.
func Traverse(grid models.GridGeometry, origin, dir r3.Vec, extent float64, visit func(idx int, length float64)) {
	norm := r3.Norm(dir)
	if !(norm > 0) || !(extent > 0) {
		return
	}
	dir = r3.Scale(1/norm, dir)

	lo := [3]float64{grid.Origin.X, grid.Origin.Y, grid.Origin.Z}
	spacing := [3]float64{grid.Spacing.X, grid.Spacing.Y, grid.Spacing.Z}
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}

	// Clip the ray against the grid box (slab method).
	tEnter, tExit := 0.0, extent
	for a := 0; a < 3; a++ {
		hi := lo[a] + float64(grid.Shape[a])*spacing[a]
		if d[a] == 0 {
			if o[a] < lo[a] || o[a] >= hi {
				return
			}
			continue
		}
		t1 := (lo[a] - o[a]) / d[a]
		t2 := (hi - o[a]) / d[a]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tEnter = math.Max(tEnter, t1)
		tExit = math.Min(tExit, t2)
	}
	if !(tEnter < tExit) {
		return
	}

	// Voxel containing the entry point, and per-axis stepping state.
	var idx, step [3]int
	var tMax, tDelta [3]float64
	for a := 0; a < 3; a++ {
		p := o[a] + tEnter*d[a]
		idx[a] = int(math.Floor((p - lo[a]) / spacing[a]))
		if idx[a] < 0 {
			idx[a] = 0
		} else if idx[a] >= grid.Shape[a] {
			idx[a] = grid.Shape[a] - 1
		}

		switch {
		case d[a] > 0:
			step[a] = 1
			tDelta[a] = spacing[a] / d[a]
			tMax[a] = (lo[a] + float64(idx[a]+1)*spacing[a] - o[a]) / d[a]
		case d[a] < 0:
			step[a] = -1
			tDelta[a] = -spacing[a] / d[a]
			tMax[a] = (lo[a] + float64(idx[a])*spacing[a] - o[a]) / d[a]
		default:
			tDelta[a] = math.Inf(1)
			tMax[a] = math.Inf(1)
		}
	}

	t := tEnter
	for {
		a := 0
		if tMax[1] < tMax[a] {
			a = 1
		}
		if tMax[2] < tMax[a] {
			a = 2
		}

		next := math.Min(tMax[a], tExit)
		if length := next - t; length > 0 {
			visit(grid.Index(idx[0], idx[1], idx[2]), length)
		}
		if tMax[a] >= tExit {
			return
		}
		t = next
		idx[a] += step[a]
		if idx[a] < 0 || idx[a] >= grid.Shape[a] {
			return
		}
		tMax[a] += tDelta[a]
	}
}
