package main

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/scenario"
	"github.com/pthm-cable/sph/simulation"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

// Fitness weights.
const (
	// unstablePenalty dominates any drift a stable run can reach.
	unstablePenalty = 100.0
	// kineticWeight scales the final kinetic energy per unit mass.
	kineticWeight = 0.1
)

// FitnessEvaluator runs short simulations and scores a parameter vector.
type FitnessEvaluator struct {
	params     *ParamVector
	iterations int
	seeds      []int64
	baseConfig *config.Config
	logger     *slog.Logger

	lastDrift    float64 // worst drift from the most recent Evaluate call
	lastUnstable int     // unstable seeds in the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, iterations int, seeds []int64, baseCfg *config.Config, logger *slog.Logger) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		iterations: iterations,
		seeds:      seeds,
		baseConfig: baseCfg,
		logger:     logger,
	}
}

// LastDrift returns the worst density drift from the most recent evaluation.
func (fe *FitnessEvaluator) LastDrift() float64 { return fe.lastDrift }

// LastUnstable returns the number of unstable seeds in the most recent evaluation.
func (fe *FitnessEvaluator) LastUnstable() int { return fe.lastUnstable }

// runResult holds the results from a single simulation run.
type runResult struct {
	completed   int                     // iterations finished before an unstable step
	unstable    bool                    // run aborted with ErrUnstable
	windowStats []telemetry.WindowStats // collected via StatsCallback each window
}

// Evaluate computes fitness for raw parameter values (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	var total float64
	fe.lastDrift = 0
	fe.lastUnstable = 0

	for _, seed := range fe.seeds {
		result := fe.runSimulation(x, seed)
		total += fe.computeFitness(result)
		if result.unstable {
			fe.lastUnstable++
		}
		if d := maxDrift(result.windowStats); d > fe.lastDrift {
			fe.lastDrift = d
		}
	}
	return total / float64(len(fe.seeds))
}

// runSimulation executes a single run with x applied to a copy of the base config.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) *runResult {
	cfg := fe.baseConfig.Clone()
	cfg.SPH.Iterations = fe.iterations
	cfg.Render.Interval = 0
	fe.params.ApplyToConfig(cfg, x)

	result := &runResult{}

	particles, err := scenario.FromConfig(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		fe.logger.Error("failed to build scenario", "error", err)
		result.unstable = true
		return result
	}

	sim, err := simulation.New(cfg, particles, simulation.Options{
		Logger: fe.logger,
		StatsCallback: func(stats telemetry.WindowStats) {
			result.windowStats = append(result.windowStats, stats)
		},
	})
	if err != nil {
		fe.logger.Error("invalid candidate", "error", err)
		result.unstable = true
		return result
	}

	err = sim.Run()
	result.completed = sim.Iteration()
	if errors.Is(err, systems.ErrUnstable) {
		result.unstable = true
	}
	return result
}

// computeFitness scores one run.
// Formula: maxDrift + kineticWeight * KE/M, or a penalty scaled by the
// fraction of iterations lost for unstable runs.
func (fe *FitnessEvaluator) computeFitness(r *runResult) float64 {
	if r.unstable {
		lost := 1.0
		if fe.iterations > 0 {
			lost = 1 - float64(r.completed)/float64(fe.iterations)
		}
		return unstablePenalty * (1 + lost)
	}
	if len(r.windowStats) == 0 {
		return unstablePenalty
	}
	last := r.windowStats[len(r.windowStats)-1]
	specific := 0.0
	if last.TotalMass > 0 {
		specific = last.KineticEnergy / last.TotalMass
	}
	return maxDrift(r.windowStats) + kineticWeight*specific
}

// maxDrift returns the largest |rho/rho0 - 1| over all windows.
func maxDrift(windows []telemetry.WindowStats) float64 {
	var d float64
	for _, w := range windows {
		if math.IsNaN(w.MaxDrift) {
			return math.Inf(1)
		}
		d = max(d, w.MaxDrift)
	}
	return d
}
