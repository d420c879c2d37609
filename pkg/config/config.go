// Package config provides configuration loading and management for solartom.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"solartom/pkg/linop"
	"solartom/pkg/solver"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reconstruction grid, centred on the world origin
	Grid struct {
		// Size is the number of voxels along x, y and z
		Size [3]int `yaml:"size"`

		// Spacing is the voxel edge length along x, y and z
		Spacing [3]float64 `yaml:"spacing"`
	} `yaml:"grid"`

	// Circular acquisition orbit
	Acquisition struct {
		// NumViews is the number of detector positions on the orbit
		NumViews int `yaml:"numViews"`

		// DetectorSize is the number of pixels along each detector side
		DetectorSize int `yaml:"detectorSize"`

		// PixelPitch is the detector pixel spacing in world units
		PixelPitch float64 `yaml:"pixelPitch"`

		// Radius is the distance of the detector centre from the origin
		Radius float64 `yaml:"radius"`

		// SourceDistance is the length of every ray
		SourceDistance float64 `yaml:"sourceDistance"`

		// StartAngle and EndAngle bound the orbit in radians, both included
		StartAngle float64 `yaml:"startAngle"`
		EndAngle   float64 `yaml:"endAngle"`

		// AngleOffset is added to every view angle
		AngleOffset float64 `yaml:"angleOffset"`
	} `yaml:"acquisition"`

	// Synthetic ground truth
	Phantom struct {
		// Kind is "hollow" or "solid"
		Kind string `yaml:"kind"`

		// OuterMargin is the empty border around the cube in voxels
		OuterMargin int `yaml:"outerMargin"`

		// InnerMargin is the border of the emptied interior of a hollow cube
		InnerMargin int `yaml:"innerMargin"`

		// Value is the density inside the cube
		Value float64 `yaml:"value"`
	} `yaml:"phantom"`

	// Inversion parameters
	Solver struct {
		// Method is "cgls", "lsqr" or "cg"
		Method string `yaml:"method"`

		// Iterations bounds the solver
		Iterations int `yaml:"iterations"`

		// Tolerance is the relative stopping threshold, 0 runs every iteration
		Tolerance float64 `yaml:"tolerance"`

		// RegularizationWeight is λ for each per-axis derivative penalty
		RegularizationWeight float64 `yaml:"regularizationWeight"`

		// WarmStart seeds the solver with a filtered backprojection
		WarmStart bool `yaml:"warmStart"`
	} `yaml:"solver"`

	// Processing parameters
	Processing struct {
		// NumWorkers is the number of goroutines sharing the view loop
		NumWorkers int `yaml:"numWorkers"`

		// Precision is "float64" or "float32"
		Precision string `yaml:"precision"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir receives slice images
		Dir string `yaml:"dir"`

		// SaveSlices writes comparison slices of truth and reconstruction
		SaveSlices bool `yaml:"saveSlices"`

		// DisplayLimit is the density rendered as white
		DisplayLimit float64 `yaml:"displayLimit"`

		// SliceScale is the integer upscaling of saved slices
		SliceScale int `yaml:"sliceScale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid.Size = [3]int{20, 20, 20}
	cfg.Grid.Spacing = [3]float64{1, 1, 1}

	cfg.Acquisition.NumViews = 8
	cfg.Acquisition.DetectorSize = 16
	cfg.Acquisition.PixelPitch = 1
	cfg.Acquisition.Radius = 30
	cfg.Acquisition.SourceDistance = 60
	cfg.Acquisition.StartAngle = 0
	cfg.Acquisition.EndAngle = math.Pi
	cfg.Acquisition.AngleOffset = math.Pi / 60

	cfg.Phantom.Kind = "hollow"
	cfg.Phantom.OuterMargin = 4
	cfg.Phantom.InnerMargin = 6
	cfg.Phantom.Value = 100

	cfg.Solver.Method = "cgls"
	cfg.Solver.Iterations = 10
	cfg.Solver.Tolerance = 0
	cfg.Solver.RegularizationWeight = 1
	cfg.Solver.WarmStart = false

	cfg.Processing.NumWorkers = 1
	cfg.Processing.Precision = "float64"

	cfg.Output.Dir = "output"
	cfg.Output.SaveSlices = false
	cfg.Output.DisplayLimit = 150
	cfg.Output.SliceScale = 8
	cfg.Output.Verbose = false

	return cfg
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	for a := 0; a < 3; a++ {
		if c.Grid.Size[a] <= 0 {
			return invalid("grid size %v", c.Grid.Size)
		}
		if !positive(c.Grid.Spacing[a]) {
			return invalid("grid spacing %v", c.Grid.Spacing)
		}
	}

	acq := c.Acquisition
	if acq.NumViews <= 0 {
		return invalid("numViews %d", acq.NumViews)
	}
	if acq.DetectorSize < 2 {
		return invalid("detectorSize %d", acq.DetectorSize)
	}
	if !positive(acq.PixelPitch) || !positive(acq.Radius) || !positive(acq.SourceDistance) {
		return invalid("pixelPitch %v, radius %v, sourceDistance %v", acq.PixelPitch, acq.Radius, acq.SourceDistance)
	}

	switch strings.ToLower(c.Phantom.Kind) {
	case "solid":
	case "hollow":
		if c.Phantom.InnerMargin < c.Phantom.OuterMargin {
			return invalid("innerMargin %d below outerMargin %d", c.Phantom.InnerMargin, c.Phantom.OuterMargin)
		}
	default:
		return invalid("phantom kind %q", c.Phantom.Kind)
	}
	if c.Phantom.OuterMargin < 0 || c.Phantom.InnerMargin < 0 {
		return invalid("negative phantom margin")
	}
	for a := 0; a < 3; a++ {
		if 2*c.Phantom.OuterMargin > c.Grid.Size[a] {
			return invalid("outerMargin %d does not fit grid size %v", c.Phantom.OuterMargin, c.Grid.Size)
		}
	}

	if _, err := solver.New(c.Solver.Method, c.Solver.Iterations, c.Solver.Tolerance); err != nil {
		return invalid("%v", err)
	}
	if c.Solver.Iterations <= 0 {
		return invalid("iterations %d", c.Solver.Iterations)
	}
	if c.Solver.Tolerance < 0 || math.IsNaN(c.Solver.Tolerance) {
		return invalid("tolerance %v", c.Solver.Tolerance)
	}
	if !(c.Solver.RegularizationWeight >= 0) || math.IsInf(c.Solver.RegularizationWeight, 0) {
		return invalid("regularizationWeight %v", c.Solver.RegularizationWeight)
	}

	if c.Processing.NumWorkers < 1 {
		return invalid("numWorkers %d", c.Processing.NumWorkers)
	}
	if _, err := linop.ParseDType(c.Processing.Precision); err != nil {
		return invalid("%v", err)
	}

	if c.Output.SaveSlices && c.Output.Dir == "" {
		return invalid("saveSlices needs an output dir")
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
