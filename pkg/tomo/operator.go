// Package tomo exposes a multi-view acquisition as a linear operator
// A: R^(Nx·Ny·Nz) -> R^(NumViews·H·W) together with its exact adjoint.
package tomo

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"solartom/internal/models"
	"solartom/pkg/geometry"
	"solartom/pkg/linop"
	"solartom/pkg/projection"
)

// Operator is the tomographic projector over an ordered set of views.
// Views, mask and grid are held by reference and never modified; the
// operator keeps no state between calls.
type Operator struct {
	views   []*geometry.View
	grid    models.GridGeometry
	mask    *models.VoxelMask
	kernel  projection.Kernel
	dtype   linop.DType
	workers int

	height, width int
	rows, cols    int
}

// Option configures an Operator.
type Option func(*Operator)

// WithKernel replaces the default Siddon kernel.
func WithKernel(k projection.Kernel) Option {
	return func(o *Operator) { o.kernel = k }
}

// WithDType declares the element precision of the operator.
func WithDType(d linop.DType) Option {
	return func(o *Operator) { o.dtype = d }
}

// WithWorkers spreads the per-view loop over n goroutines. Values below 2
// keep everything on the calling goroutine.
func WithWorkers(n int) Option {
	return func(o *Operator) { o.workers = n }
}

// New builds the operator. The mask may be nil, meaning every voxel is
// active. All views must share one detector size.
func New(views []*geometry.View, grid models.GridGeometry, mask *models.VoxelMask, opts ...Option) (*Operator, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("%w: no views", geometry.ErrInvalidGeometry)
	}
	h, w := views[0].Height, views[0].Width
	for i, v := range views {
		if v == nil {
			return nil, fmt.Errorf("%w: view %d is nil", geometry.ErrInvalidGeometry, i)
		}
		if v.Height != h || v.Width != w {
			return nil, fmt.Errorf("%w: view %d is %dx%d, view 0 is %dx%d",
				linop.ErrShapeMismatch, i, v.Height, v.Width, h, w)
		}
	}
	if mask != nil && (mask.Shape != grid.Shape || len(mask.Data) != grid.Len()) {
		return nil, fmt.Errorf("%w: mask shape %v, grid shape %v", linop.ErrShapeMismatch, mask.Shape, grid.Shape)
	}

	op := &Operator{
		views:   views,
		grid:    grid,
		mask:    mask,
		kernel:  projection.Siddon{},
		dtype:   linop.Float64,
		workers: 1,
		height:  h,
		width:   w,
		rows:    len(views) * h * w,
		cols:    grid.Len(),
	}
	for _, opt := range opts {
		opt(op)
	}
	if op.workers < 1 {
		op.workers = 1
	}
	return op, nil
}

// Dims returns (NumViews·H·W, Nx·Ny·Nz).
func (o *Operator) Dims() (rows, cols int) { return o.rows, o.cols }

// DType returns the declared element precision.
func (o *Operator) DType() linop.DType { return o.dtype }

// Grid returns the voxel grid geometry of the domain.
func (o *Operator) Grid() models.GridGeometry { return o.grid }

// Views returns the acquisition views in order.
func (o *Operator) Views() []*geometry.View { return o.views }

// DetectorSize returns the detector height and width shared by every view.
func (o *Operator) DetectorSize() (height, width int) { return o.height, o.width }

// Apply forward-projects the flat density x into dst, one image per view in
// view order.
func (o *Operator) Apply(dst, x []float64) error {
	if err := linop.CheckApply(o, dst, x); err != nil {
		return err
	}
	n := o.height * o.width
	err := parallelViews(len(o.views), o.workers, func(_, start, end int) error {
		for v := start; v < end; v++ {
			if err := o.kernel.Project(dst[v*n:(v+1)*n], o.views[v], x, o.mask, o.grid); err != nil {
				return fmt.Errorf("projecting view %d: %w", v, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.dtype.Round(dst)
	return nil
}

// ApplyAdjoint backprojects the flat projection vector y into dst.
//
// Every worker accumulates its contiguous block of views into its own
// zeroed buffer; the buffers are then summed in worker order. Worker 0 uses
// dst directly, so the single-worker case allocates nothing.
func (o *Operator) ApplyAdjoint(dst, y []float64) error {
	if err := linop.CheckAdjoint(o, dst, y); err != nil {
		return err
	}
	clear(dst)

	workers := chunkCount(len(o.views), o.workers)
	partials := make([][]float64, workers)
	partials[0] = dst
	for w := 1; w < workers; w++ {
		partials[w] = make([]float64, o.cols)
	}

	n := o.height * o.width
	err := parallelViews(len(o.views), workers, func(worker, start, end int) error {
		acc := partials[worker]
		for v := start; v < end; v++ {
			if err := o.kernel.Backproject(acc, o.views[v], y[v*n:(v+1)*n], o.mask, o.grid, true); err != nil {
				return fmt.Errorf("backprojecting view %d: %w", v, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for w := 1; w < workers; w++ {
		floats.Add(dst, partials[w])
	}
	o.dtype.Round(dst)
	return nil
}

// Project forward-projects a shaped density grid. The grid must share the
// operator's shape, origin and spacing.
func (o *Operator) Project(density *models.VoxelGrid) (*models.ProjectionSet, error) {
	if density.GridGeometry != o.grid {
		return nil, fmt.Errorf("%w: density grid %+v, operator grid %+v",
			linop.ErrShapeMismatch, density.GridGeometry, o.grid)
	}
	out := models.NewProjectionSet(len(o.views), o.height, o.width)
	if err := o.Apply(out.Data, density.Data); err != nil {
		return nil, err
	}
	return out, nil
}

// Backproject applies the adjoint to a shaped projection set.
func (o *Operator) Backproject(p *models.ProjectionSet) (*models.VoxelGrid, error) {
	if p.NumViews != len(o.views) || p.Height != o.height || p.Width != o.width {
		return nil, fmt.Errorf("%w: projections %dx%dx%d, operator %dx%dx%d", linop.ErrShapeMismatch,
			p.NumViews, p.Height, p.Width, len(o.views), o.height, o.width)
	}
	out, err := models.NewVoxelGrid(o.grid)
	if err != nil {
		return nil, err
	}
	if err := o.ApplyAdjoint(out.Data, p.Data); err != nil {
		return nil, err
	}
	return out, nil
}
