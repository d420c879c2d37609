// Package visualization renders slices of density grids as grayscale images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"

	"solartom/internal/models"
)

// DefaultDisplayLimit is the density mapped to full white when no limit is
// given.
const DefaultDisplayLimit = 150.0

// Viewer extracts axis-aligned slices from a voxel grid. Densities are mapped
// linearly from [0, limit] onto the 16-bit gray range and clipped outside it.
type Viewer struct {
	volume *models.VoxelGrid

	// limit is the density shown as white
	limit float64

	// scale is the integer upscaling applied when saving
	scale int
}

// NewViewer creates a viewer over volume. A non-positive limit selects
// DefaultDisplayLimit and a scale below 1 saves slices at native size.
func NewViewer(volume *models.VoxelGrid, limit float64, scale int) *Viewer {
	if !(limit > 0) || math.IsInf(limit, 0) {
		limit = DefaultDisplayLimit
	}
	if scale < 1 {
		scale = 1
	}
	return &Viewer{volume: volume, limit: limit, scale: scale}
}

// ParseAxis maps "x", "y" or "z" (either case) to the grid axis index.
func ParseAxis(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	}
	return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// planeAxes returns the grid axes that run along image columns and rows for
// a slice normal to axis.
func planeAxes(axis int) (col, row int) {
	switch axis {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	}
	return 0, 1
}

func (v *Viewer) gray(value float64) color.Gray16 {
	t := value / v.limit
	t = math.Max(0, math.Min(1, t))
	return color.Gray16{Y: uint16(math.Round(t * 65535))}
}

// ExtractSlice returns the slice of the volume normal to axis at position.
// For an x slice columns follow y and rows follow z, for a y slice x and z,
// and for a z slice x and y.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	return v.slice(v.volume, axis, position)
}

func (v *Viewer) slice(volume *models.VoxelGrid, axis string, position int) (*image.Gray16, error) {
	a, err := ParseAxis(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= volume.Shape[a] {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, volume.Shape[a], axis)
	}

	colAxis, rowAxis := planeAxes(a)
	width, height := volume.Shape[colAxis], volume.Shape[rowAxis]
	img := image.NewGray16(image.Rect(0, 0, width, height))

	var ijk [3]int
	ijk[a] = position
	for r := 0; r < height; r++ {
		ijk[rowAxis] = r
		for c := 0; c < width; c++ {
			ijk[colAxis] = c
			img.SetGray16(c, r, v.gray(volume.At(ijk[0], ijk[1], ijk[2])))
		}
	}
	return img, nil
}

// Comparison places the slice of truth to the left of the matching slice of
// the viewer's volume, separated by a one pixel white column.
func (v *Viewer) Comparison(truth *models.VoxelGrid, axis string, position int) (*image.Gray16, error) {
	if truth.Shape != v.volume.Shape {
		return nil, fmt.Errorf("%w: comparison shape %v, volume shape %v", models.ErrInvalidGrid, truth.Shape, v.volume.Shape)
	}
	left, err := v.slice(truth, axis, position)
	if err != nil {
		return nil, err
	}
	right, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}

	w, h := left.Bounds().Dx(), left.Bounds().Dy()
	out := image.NewGray16(image.Rect(0, 0, 2*w+1, h))
	draw.Draw(out, left.Bounds(), left, image.Point{}, draw.Src)
	for r := 0; r < h; r++ {
		out.SetGray16(w, r, color.White)
	}
	draw.Draw(out, image.Rect(w+1, 0, 2*w+1, h), right, image.Point{}, draw.Src)
	return out, nil
}

// SaveSlice writes img as a PNG, upscaled by the viewer's scale with nearest
// neighbour sampling.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	out := img
	if v.scale > 1 {
		b := img.Bounds()
		scaled := image.NewGray16(image.Rect(0, 0, b.Dx()*v.scale, b.Dy()*v.scale))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)
		out = scaled
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, out); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence writes every slice along axis to outputDir as
// slice_<axis>_<pos>.png.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := ParseAxis(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < v.volume.Shape[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}

// ProjectionImage renders view v of p with its rows as image rows. The
// largest value of the whole set is shown as white, so every view of one set
// shares a gray scale.
func ProjectionImage(p *models.ProjectionSet, v int) (*image.Gray16, error) {
	if v < 0 || v >= p.NumViews {
		return nil, fmt.Errorf("view %d outside [0, %d)", v, p.NumViews)
	}
	peak := 0.0
	if len(p.Data) > 0 {
		peak = floats.Max(p.Data)
	}

	img := image.NewGray16(image.Rect(0, 0, p.Width, p.Height))
	if !(peak > 0) {
		return img, nil
	}
	data := p.Image(v)
	for r := 0; r < p.Height; r++ {
		for c := 0; c < p.Width; c++ {
			t := math.Max(0, math.Min(1, data[r*p.Width+c]/peak))
			img.SetGray16(c, r, color.Gray16{Y: uint16(math.Round(t * 65535))})
		}
	}
	return img, nil
}

// SaveProjections writes every view of p to outputDir as
// projection_<view>.png, upscaled like the slices.
func (v *Viewer) SaveProjections(p *models.ProjectionSet, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for view := 0; view < p.NumViews; view++ {
		img, err := ProjectionImage(p, view)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("projection_%03d.png", view))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
