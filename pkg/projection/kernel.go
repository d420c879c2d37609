// Package projection holds the per-view ray kernels behind the tomographic
// operator. A Kernel maps a density grid to one detector image and back; the
// operator never looks inside it, so any voxel-sampling scheme can be swapped
// in as long as Backproject is the exact adjoint of Project.
package projection

import (
	"fmt"

	"solartom/internal/models"
	"solartom/pkg/geometry"
	"solartom/pkg/linop"
)

// Kernel is the forward/adjoint pair for a single view.
type Kernel interface {
	// Project writes the view.Height×view.Width image of density into dst.
	// It must be linear in density for fixed view, mask and grid.
	Project(dst []float64, view *geometry.View, density []float64,
		mask *models.VoxelMask, grid models.GridGeometry) error

	// Backproject writes the adjoint of Project applied to image into acc.
	// With additive set the contribution is added to acc, otherwise acc is
	// overwritten.
	Backproject(acc []float64, view *geometry.View, image []float64,
		mask *models.VoxelMask, grid models.GridGeometry, additive bool) error
}

func checkLengths(view *geometry.View, image, volume []float64, mask *models.VoxelMask, grid models.GridGeometry) error {
	if len(image) != view.Len() {
		return fmt.Errorf("%w: image length %d for %dx%d detector",
			linop.ErrShapeMismatch, len(image), view.Height, view.Width)
	}
	if len(volume) != grid.Len() {
		return fmt.Errorf("%w: volume length %d for %d voxels",
			linop.ErrShapeMismatch, len(volume), grid.Len())
	}
	if mask != nil && (mask.Shape != grid.Shape || len(mask.Data) != grid.Len()) {
		return fmt.Errorf("%w: mask shape %v, grid shape %v",
			linop.ErrShapeMismatch, mask.Shape, grid.Shape)
	}
	return nil
}
