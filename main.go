package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/scenario"
	"github.com/pthm-cable/sph/simulation"
	"github.com/pthm-cable/sph/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed for the random scenario (0 = time-based)")
	iterations := flag.Int("iterations", 0, "Number of iterations (0 = use config)")
	scenarioName := flag.String("scenario", "", "Initial layout: square, rings, ellipse, random (empty = use config)")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *iterations > 0 {
		cfg.SPH.Iterations = *iterations
	}
	if *scenarioName != "" {
		cfg.Scenario.Name = *scenarioName
	}
	cfg.Refresh()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	particles, err := scenario.FromConfig(cfg, rand.New(rand.NewSource(rngSeed)))
	if err != nil {
		slog.Error("failed to build scenario", "error", err)
		os.Exit(1)
	}

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	sim, err := simulation.New(cfg, particles, simulation.Options{
		Logger:   logger,
		Output:   output,
		LogStats: *logStats,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	slog.Info("scenario ready",
		"scenario", cfg.Scenario.Name,
		"seed", rngSeed,
		"particles", len(particles),
		"output_dir", *outputDir,
	)

	runErr := sim.Run()
	if err := output.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		os.Exit(1)
	}

	extentX, extentY := telemetry.Extent(sim.Particles())
	slog.Info("final extents",
		"extent_x", extentX,
		"extent_y", extentY,
		"sim_time", sim.Time(),
	)
}
