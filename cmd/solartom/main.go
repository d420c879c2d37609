package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"solartom/internal/logging"
	"solartom/pkg/config"
	"solartom/pkg/reconstruction"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "solartom.yaml", "YAML configuration file (defaults are used if it does not exist)")
	outputDir := flag.String("output", "", "Directory for slice images (overrides the config)")
	numWorkers := flag.Int("workers", 0, "Number of goroutines sharing the view loop (overrides the config)")
	iterations := flag.Int("iterations", 0, "Solver iteration bound (overrides the config)")
	saveSlices := flag.Bool("save-slices", false, "Save truth/reconstruction slices as PNG")
	verbose := flag.Bool("verbose", false, "Log every solver iteration")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *numWorkers > 0 {
		cfg.Processing.NumWorkers = *numWorkers
	}
	if *iterations > 0 {
		cfg.Solver.Iterations = *iterations
	}
	if *saveSlices {
		cfg.Output.SaveSlices = true
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	params, err := reconstruction.ParamsFromConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("MULTI-VIEW TOMOGRAPHIC RECONSTRUCTION")
	fmt.Println("================================")
	fmt.Printf("Grid: %v voxels, %d views of %dx%d pixels\n",
		params.Grid.Shape, params.NumViews, params.Detector.Size, params.Detector.Size)

	reconstructor := reconstruction.NewReconstructor(params)
	if err := reconstructor.Process(); err != nil {
		log.Fatalf("Reconstruction failed: %v", err)
	}

	metrics := reconstructor.GetMetrics()
	result := reconstructor.GetResult()
	fmt.Printf("\nReconstruction completed in %.2f seconds (%d iterations, %s)\n",
		reconstructor.Elapsed().Seconds(), result.Solver.Iterations, result.Solver.Status)

	fmt.Printf("\nValidation Metrics:\n")
	fmt.Printf("===================\n")
	fmt.Printf("Root Mean Square Error (RMSE): %.4f\n", metrics.RMSE)
	fmt.Printf("Structural Similarity Index (SSIM): %.4f\n", metrics.SSIM)
	fmt.Printf("Correlation: %.4f\n", metrics.Correlation)
	fmt.Printf("Mutual Information: %.4f\n", metrics.MutualInformation)
	fmt.Printf("Entropy Difference: %.4f\n", metrics.EntropyDiff)
	fmt.Printf("Data Residual: %.4f\n", metrics.DataResidual)

	if params.SaveSlices {
		fmt.Printf("\nSlices saved to: %s\n", params.OutputDir)
	}
}
