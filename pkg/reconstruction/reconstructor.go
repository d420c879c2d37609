// Package reconstruction runs the synthetic reconstruction pipeline: a known
// phantom is projected onto a circular orbit of detectors and recovered from
// those projections by regularized inversion.
package reconstruction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"solartom/internal/logging"
	"solartom/internal/models"
	"solartom/pkg/config"
	"solartom/pkg/geometry"
	"solartom/pkg/inversion"
	"solartom/pkg/linop"
	"solartom/pkg/phantom"
	"solartom/pkg/regularization"
	"solartom/pkg/solver"
	"solartom/pkg/tomo"
	"solartom/pkg/visualization"
)

// Params holds the reconstruction parameters.
type Params struct {
	// Grid is the reconstruction grid
	Grid models.GridGeometry

	// Detector describes every detector on the orbit
	Detector geometry.DetectorParams

	// NumViews, StartAngle, EndAngle and AngleOffset define the orbit
	NumViews    int
	StartAngle  float64
	EndAngle    float64
	AngleOffset float64

	// PhantomKind is "hollow" or "solid"
	PhantomKind string

	// OuterMargin and InnerMargin shape the cube phantom in voxels
	OuterMargin int
	InnerMargin int

	// PhantomValue is the density inside the cube
	PhantomValue float64

	// Method names the solver passed to solver.New
	Method string

	// Iterations and Tolerance bound the solver
	Iterations int
	Tolerance  float64

	// RegularizationWeight is λ of every per-axis derivative penalty.
	// Zero disables regularization.
	RegularizationWeight float64

	// WarmStart seeds the solver with a scaled filtered backprojection
	WarmStart bool

	// NumWorkers is the number of goroutines sharing the view loop
	NumWorkers int

	// Precision is the element precision of the projector
	Precision linop.DType

	// SaveSlices writes comparison slices to OutputDir
	SaveSlices bool
	OutputDir  string

	// DisplayLimit and SliceScale control slice rendering
	DisplayLimit float64
	SliceScale   int
}

// ParamsFromConfig validates cfg and converts it to Params.
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	precision, err := linop.ParseDType(cfg.Processing.Precision)
	if err != nil {
		return nil, err
	}
	spacing := r3.Vec{X: cfg.Grid.Spacing[0], Y: cfg.Grid.Spacing[1], Z: cfg.Grid.Spacing[2]}
	acq := cfg.Acquisition
	return &Params{
		Grid: models.CenteredGeometry(cfg.Grid.Size, spacing),
		Detector: geometry.DetectorParams{
			Size:           acq.DetectorSize,
			PixelPitch:     acq.PixelPitch,
			Radius:         acq.Radius,
			SourceDistance: acq.SourceDistance,
		},
		NumViews:             acq.NumViews,
		StartAngle:           acq.StartAngle,
		EndAngle:             acq.EndAngle,
		AngleOffset:          acq.AngleOffset,
		PhantomKind:          cfg.Phantom.Kind,
		OuterMargin:          cfg.Phantom.OuterMargin,
		InnerMargin:          cfg.Phantom.InnerMargin,
		PhantomValue:         cfg.Phantom.Value,
		Method:               cfg.Solver.Method,
		Iterations:           cfg.Solver.Iterations,
		Tolerance:            cfg.Solver.Tolerance,
		RegularizationWeight: cfg.Solver.RegularizationWeight,
		WarmStart:            cfg.Solver.WarmStart,
		NumWorkers:           cfg.Processing.NumWorkers,
		Precision:            precision,
		SaveSlices:           cfg.Output.SaveSlices,
		OutputDir:            cfg.Output.Dir,
		DisplayLimit:         cfg.Output.DisplayLimit,
		SliceScale:           cfg.Output.SliceScale,
	}, nil
}

// Reconstructor runs the pipeline:
// 1. Building the phantom
// 2. Placing the detectors on the orbit
// 3. Forward projecting the phantom into synthetic data
// 4. Optionally computing a warm start
// 5. Regularized inversion of the data
// 6. Calculating quality metrics against the phantom
// 7. Optionally saving slices
type Reconstructor struct {
	params *Params

	// truth is the phantom the data was generated from
	truth *models.VoxelGrid

	views []*geometry.View
	op    *tomo.Operator

	// data holds the synthetic projections
	data *models.ProjectionSet

	// volume is the reconstructed density
	volume *models.VoxelGrid

	result  *inversion.Result
	metrics ValidationMetrics
	elapsed time.Duration
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
func NewReconstructor(params *Params) *Reconstructor {
	return &Reconstructor{params: params}
}

// Process runs the complete reconstruction pipeline
func (r *Reconstructor) Process() error {
	log := logging.Logger()
	start := time.Now()

	log.Info("building phantom", "kind", r.params.PhantomKind, "shape", r.params.Grid.Shape)
	if err := r.buildPhantom(); err != nil {
		return fmt.Errorf("failed to build phantom: %w", err)
	}

	log.Info("placing detectors", "views", r.params.NumViews)
	if err := r.buildOperator(); err != nil {
		return fmt.Errorf("failed to build operator: %w", err)
	}

	log.Info("projecting phantom")
	data, err := r.op.Project(r.truth)
	if err != nil {
		return fmt.Errorf("failed to project phantom: %w", err)
	}
	r.data = data

	var x0 []float64
	if r.params.WarmStart {
		log.Info("computing warm start")
		if x0, err = inversion.WarmStart(r.op, r.data); err != nil {
			return fmt.Errorf("failed to compute warm start: %w", err)
		}
	}

	s, err := solver.New(r.params.Method, r.params.Iterations, r.params.Tolerance)
	if err != nil {
		return err
	}
	var terms []regularization.Term
	if r.params.RegularizationWeight > 0 {
		if terms, err = regularization.AxisTerms(r.params.Grid.Shape, r.params.RegularizationWeight); err != nil {
			return err
		}
	}

	log.Info("inverting", "method", r.params.Method, "iterations", r.params.Iterations)
	volume, res, err := inversion.Reconstruct(r.op, r.data, terms, inversion.Params{
		Iterations: r.params.Iterations,
		Tolerance:  r.params.Tolerance,
		Solver:     s,
		X0:         x0,
	})
	if err != nil {
		return fmt.Errorf("inversion failed: %w", err)
	}
	r.volume = volume
	r.result = res

	r.calculateValidationMetrics()
	r.elapsed = time.Since(start)

	if r.params.SaveSlices {
		log.Info("saving slices", "dir", r.params.OutputDir)
		if err := r.saveSlices(); err != nil {
			return fmt.Errorf("failed to save slices: %w", err)
		}
	}
	return nil
}

func (r *Reconstructor) buildPhantom() error {
	var err error
	switch strings.ToLower(r.params.PhantomKind) {
	case "solid":
		r.truth, err = phantom.SolidCube(r.params.Grid, r.params.OuterMargin, r.params.PhantomValue)
	case "hollow", "":
		r.truth, err = phantom.HollowCube(r.params.Grid, r.params.OuterMargin, r.params.InnerMargin, r.params.PhantomValue)
	default:
		err = fmt.Errorf("unknown phantom kind %q", r.params.PhantomKind)
	}
	return err
}

func (r *Reconstructor) buildOperator() error {
	views, err := geometry.CircularOrbit(r.params.NumViews, r.params.StartAngle, r.params.EndAngle,
		r.params.AngleOffset, r.params.Detector)
	if err != nil {
		return err
	}
	workers := r.params.NumWorkers
	if workers < 1 {
		workers = 1
	}
	op, err := tomo.New(views, r.params.Grid, nil,
		tomo.WithWorkers(workers),
		tomo.WithDType(r.params.Precision))
	if err != nil {
		return err
	}
	r.views = views
	r.op = op
	return nil
}

// saveSlices writes a truth/reconstruction comparison through the centre of
// each axis, the full slice sequence of the reconstruction and one image per
// forward projection.
func (r *Reconstructor) saveSlices() error {
	if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
		return err
	}
	viewer := visualization.NewViewer(r.volume, r.params.DisplayLimit, r.params.SliceScale)
	for a, axis := range []string{"x", "y", "z"} {
		img, err := viewer.Comparison(r.truth, axis, r.volume.Shape[a]/2)
		if err != nil {
			return err
		}
		name := filepath.Join(r.params.OutputDir, fmt.Sprintf("comparison_%s.png", axis))
		if err := viewer.SaveSlice(img, name); err != nil {
			return err
		}
		if err := viewer.SaveSliceSequence(axis, filepath.Join(r.params.OutputDir, axis)); err != nil {
			return err
		}
	}
	return viewer.SaveProjections(r.data, filepath.Join(r.params.OutputDir, "projections"))
}

// GetMetrics returns the quality metrics of the last run.
func (r *Reconstructor) GetMetrics() ValidationMetrics {
	return r.metrics
}

// GetVolume returns the reconstructed density, nil before Process.
func (r *Reconstructor) GetVolume() *models.VoxelGrid {
	return r.volume
}

// GetTruth returns the phantom, nil before Process.
func (r *Reconstructor) GetTruth() *models.VoxelGrid {
	return r.truth
}

// GetProjections returns the synthetic data, nil before Process.
func (r *Reconstructor) GetProjections() *models.ProjectionSet {
	return r.data
}

// GetResult returns the inversion diagnostics, nil before Process.
func (r *Reconstructor) GetResult() *inversion.Result {
	return r.result
}

// Elapsed returns the wall time of the last Process call.
func (r *Reconstructor) Elapsed() time.Duration {
	return r.elapsed
}
