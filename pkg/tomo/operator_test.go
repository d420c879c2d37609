package tomo

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"solartom/internal/models"
	"solartom/pkg/geometry"
	"solartom/pkg/linop"
)

// buildViews creates n views spanning [0, pi] on a circular orbit
func buildViews(t *testing.T, n, size int) []*geometry.View {
	t.Helper()
	views, err := geometry.CircularOrbit(n, 0, math.Pi, math.Pi/60, geometry.DetectorParams{
		Size: size, PixelPitch: 1, Radius: 30, SourceDistance: 60,
	})
	if err != nil {
		t.Fatalf("Failed to build views: %v", err)
	}
	return views
}

func cubeGrid(n int) models.GridGeometry {
	return models.CenteredGeometry([3]int{n, n, n}, r3.Vec{X: 1, Y: 1, Z: 1})
}

func randomVector(rnd *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rnd.NormFloat64()
	}
	return v
}

// TestShapeContract verifies declared dims and fail-fast length checks
func TestShapeContract(t *testing.T) {
	op, err := New(buildViews(t, 5, 16), cubeGrid(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := op.Dims()
	if cols != 1000 {
		t.Errorf("Expected domain length 1000, got %d", cols)
	}
	if rows != 1280 {
		t.Errorf("Expected codomain length 1280, got %d", rows)
	}

	err = op.Apply(make([]float64, rows), make([]float64, 999))
	if !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for length 999, got %v", err)
	}
	err = op.ApplyAdjoint(make([]float64, cols), make([]float64, rows+1))
	if !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for long projections, got %v", err)
	}

	wrong, _ := models.NewVoxelGrid(cubeGrid(9))
	if _, err := op.Project(wrong); !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for 9^3 grid, got %v", err)
	}
	if _, err := op.Backproject(models.NewProjectionSet(4, 16, 16)); !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for 4 views, got %v", err)
	}
}

// TestProjectRejectsOtherPlacement checks that a density grid of the right
// shape but a different origin or spacing is refused
func TestProjectRejectsOtherPlacement(t *testing.T) {
	op, err := New(buildViews(t, 2, 8), cubeGrid(6), nil)
	if err != nil {
		t.Fatal(err)
	}

	shifted := cubeGrid(6)
	shifted.Origin = r3.Vec{X: 100, Y: 100, Z: 100}
	coarse := cubeGrid(6)
	coarse.Spacing = r3.Vec{X: 5, Y: 5, Z: 5}

	for name, g := range map[string]models.GridGeometry{"origin": shifted, "spacing": coarse} {
		density, err := models.NewVoxelGrid(g)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := op.Project(density); !errors.Is(err, linop.ErrShapeMismatch) {
			t.Errorf("Expected ErrShapeMismatch for different %s, got %v", name, err)
		}
	}

	same, _ := models.NewVoxelGrid(cubeGrid(6))
	if _, err := op.Project(same); err != nil {
		t.Errorf("Expected matching grid to project, got %v", err)
	}
}

// TestNewValidation verifies construction-time errors
func TestNewValidation(t *testing.T) {
	grid := cubeGrid(4)
	if _, err := New(nil, grid, nil); !errors.Is(err, geometry.ErrInvalidGeometry) {
		t.Errorf("Expected ErrInvalidGeometry without views, got %v", err)
	}

	mixed := append(buildViews(t, 1, 8), buildViews(t, 1, 6)...)
	if _, err := New(mixed, grid, nil); !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for mixed detectors, got %v", err)
	}

	if _, err := New(buildViews(t, 1, 8), grid, models.NewVoxelMask([3]int{4, 4, 3})); !errors.Is(err, linop.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for mask shape, got %v", err)
	}

	bad := grid
	bad.Spacing.Y = 0
	if _, err := New(buildViews(t, 1, 8), bad, nil); !errors.Is(err, models.ErrInvalidGrid) {
		t.Errorf("Expected ErrInvalidGrid, got %v", err)
	}
}

// TestAdjointConsistency is the dot test on 2 views, 8x8 detector, 8^3 grid
func TestAdjointConsistency(t *testing.T) {
	for _, workers := range []int{1, 2} {
		op, err := New(buildViews(t, 2, 8), cubeGrid(8), nil, WithWorkers(workers))
		if err != nil {
			t.Fatal(err)
		}
		for seed := uint64(1); seed <= 5; seed++ {
			res, err := linop.DotTest(op, seed, 1e-4)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Passed {
				t.Errorf("workers=%d seed=%d: dot test failed: %+v", workers, seed, res)
			}
		}
	}
}

// TestAdjointIsTranspose compares the explicit matrices of A and Aᵀ
func TestAdjointIsTranspose(t *testing.T) {
	op, err := New(buildViews(t, 3, 4), cubeGrid(4), nil)
	if err != nil {
		t.Fatal(err)
	}
	forward, err := linop.Materialize(op)
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := op.Dims()
	adjoint := mat.NewDense(cols, rows, nil)
	e := make([]float64, rows)
	col := make([]float64, cols)
	for i := 0; i < rows; i++ {
		e[i] = 1
		if err := op.ApplyAdjoint(col, e); err != nil {
			t.Fatal(err)
		}
		e[i] = 0
		adjoint.SetCol(i, col)
	}

	if !mat.EqualApprox(forward.T(), adjoint, 1e-12) {
		t.Errorf("Adjoint matrix is not the transpose of the forward matrix")
	}
	if mat.Sum(forward) <= 0 {
		t.Errorf("Forward matrix should have positive path lengths")
	}
}

// TestMaskExclusion verifies masked voxels neither contribute nor receive
func TestMaskExclusion(t *testing.T) {
	grid := cubeGrid(8)
	mask := models.NewVoxelMask(grid.Shape)
	var masked []int
	for i := 2; i < 6; i++ {
		idx := grid.Index(i, 4, 3)
		mask.Data[idx] = false
		masked = append(masked, idx)
	}

	op, err := New(buildViews(t, 4, 8), grid, mask)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := op.Dims()
	rnd := rand.New(rand.NewSource(11))

	back := make([]float64, cols)
	if err := op.ApplyAdjoint(back, randomVector(rnd, rows)); err != nil {
		t.Fatal(err)
	}
	for _, idx := range masked {
		if back[idx] != 0 {
			t.Errorf("Masked voxel %d received %f", idx, back[idx])
		}
	}

	x := randomVector(rnd, cols)
	before, err := linop.Forward(op, x)
	if err != nil {
		t.Fatal(err)
	}
	for _, idx := range masked {
		x[idx] += 1000
	}
	after, err := linop.Forward(op, x)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(before, after) {
		t.Errorf("Changing masked voxels changed the projections")
	}
}

// TestAdditivityOverViews checks that the adjoint of a concatenation is the
// sum of the adjoints of each view subset
func TestAdditivityOverViews(t *testing.T) {
	grid := cubeGrid(6)
	views := buildViews(t, 4, 6)
	full, err := New(views, grid, nil)
	if err != nil {
		t.Fatal(err)
	}
	first, err := New(views[:2], grid, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(views[2:], grid, nil)
	if err != nil {
		t.Fatal(err)
	}

	rnd := rand.New(rand.NewSource(5))
	r1, _ := first.Dims()
	r2, _ := second.Dims()
	y1 := randomVector(rnd, r1)
	y2 := randomVector(rnd, r2)

	combined, err := linop.Adjoint(full, append(append([]float64{}, y1...), y2...))
	if err != nil {
		t.Fatal(err)
	}
	a1, _ := linop.Adjoint(first, y1)
	a2, _ := linop.Adjoint(second, y2)
	sum := make([]float64, len(a1))
	floats.AddTo(sum, a1, a2)
	if !floats.EqualApprox(combined, sum, 1e-9) {
		t.Errorf("Adjoint of concatenation differs from sum of subset adjoints")
	}

	// Same statement through zero-padded full-length inputs.
	pad1 := append(append([]float64{}, y1...), make([]float64, r2)...)
	pad2 := append(make([]float64, r1), y2...)
	p1, _ := linop.Adjoint(full, pad1)
	p2, _ := linop.Adjoint(full, pad2)
	floats.Add(p1, p2)
	if !floats.EqualApprox(combined, p1, 1e-9) {
		t.Errorf("Adjoint of zero-padded subsets does not add up")
	}
}

// TestZeroDensity verifies that an empty grid projects to zero
func TestZeroDensity(t *testing.T) {
	op, err := New(buildViews(t, 3, 8), cubeGrid(8), nil)
	if err != nil {
		t.Fatal(err)
	}
	density, _ := models.NewVoxelGrid(op.Grid())
	proj, err := op.Project(density)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range proj.Data {
		if v != 0 {
			t.Fatalf("Pixel %d is %f, expected 0", i, v)
		}
	}
}

// TestWorkersDeterministic verifies parallel runs match the sequential one
func TestWorkersDeterministic(t *testing.T) {
	views := buildViews(t, 7, 8)
	grid := cubeGrid(8)
	seq, _ := New(views, grid, nil)
	par, _ := New(views, grid, nil, WithWorkers(3))

	rows, cols := seq.Dims()
	rnd := rand.New(rand.NewSource(9))
	x := randomVector(rnd, cols)
	y := randomVector(rnd, rows)

	fs, _ := linop.Forward(seq, x)
	fp, _ := linop.Forward(par, x)
	if !floats.Equal(fs, fp) {
		t.Errorf("Parallel forward projection differs from sequential")
	}

	as, _ := linop.Adjoint(seq, y)
	ap1, _ := linop.Adjoint(par, y)
	ap2, _ := linop.Adjoint(par, y)
	if !floats.EqualApprox(as, ap1, 1e-9) {
		t.Errorf("Parallel backprojection differs from sequential")
	}
	if !floats.Equal(ap1, ap2) {
		t.Errorf("Parallel backprojection is not deterministic")
	}
}

// TestFloat32Precision verifies outputs are rounded to the declared dtype
func TestFloat32Precision(t *testing.T) {
	op, err := New(buildViews(t, 2, 8), cubeGrid(8), nil, WithDType(linop.Float32))
	if err != nil {
		t.Fatal(err)
	}
	if op.DType() != linop.Float32 {
		t.Fatalf("Expected Float32, got %v", op.DType())
	}
	rows, cols := op.Dims()
	rnd := rand.New(rand.NewSource(2))
	out, _ := linop.Forward(op, randomVector(rnd, cols))
	back, _ := linop.Adjoint(op, randomVector(rnd, rows))
	for _, v := range append(out, back...) {
		if v != float64(float32(v)) {
			t.Fatalf("Value %v is not representable as float32", v)
		}
	}
}

// recordingKernel records the calls made by the operator
type recordingKernel struct {
	projected     int
	backprojected int
	nonAdditive   int
}

func (k *recordingKernel) Project(dst []float64, _ *geometry.View, _ []float64, _ *models.VoxelMask, _ models.GridGeometry) error {
	k.projected++
	for i := range dst {
		dst[i] = 1
	}
	return nil
}

func (k *recordingKernel) Backproject(acc []float64, _ *geometry.View, _ []float64, _ *models.VoxelMask, _ models.GridGeometry, additive bool) error {
	k.backprojected++
	if !additive {
		k.nonAdditive++
	}
	acc[0]++
	return nil
}

// TestCustomKernel verifies per-view dispatch and additive accumulation
func TestCustomKernel(t *testing.T) {
	k := &recordingKernel{}
	op, err := New(buildViews(t, 3, 4), cubeGrid(4), nil, WithKernel(k))
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := op.Dims()

	out, _ := linop.Forward(op, make([]float64, cols))
	if k.projected != 3 || floats.Sum(out) != float64(rows) {
		t.Errorf("Expected 3 projections filling every pixel, got %d calls, sum %f", k.projected, floats.Sum(out))
	}

	back, _ := linop.Adjoint(op, make([]float64, rows))
	if k.backprojected != 3 || k.nonAdditive != 0 {
		t.Errorf("Expected 3 additive backprojections, got %d (%d non-additive)", k.backprojected, k.nonAdditive)
	}
	if back[0] != 3 {
		t.Errorf("Expected accumulated value 3, got %f", back[0])
	}
}
