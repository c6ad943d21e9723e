// Package simulation drives the SPH pipeline one iteration at a time.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

// Options holds optional collaborators for a Simulation.
type Options struct {
	Logger        *slog.Logger                // nil = slog.Default()
	RenderHook    RenderHook                  // nil = no frames
	Output        *telemetry.OutputManager    // nil = no CSV output
	LogStats      bool                        // log window stats and perf
	StatsCallback func(telemetry.WindowStats) // called on every window flush
}

// Simulation owns the particle arena and runs the fixed phase sequence:
// grid rebuild, neighbor update, pre-step render, color field, derivatives,
// residual assembly, integration. Each phase completes for every particle
// before the next begins.
type Simulation struct {
	cfg    *config.Config
	logger *slog.Logger

	particles   []components.Particle
	derivatives []components.Derivatives
	residuals   []components.Residual
	snapshot    []r2.Vec // velocities at the start of the derivative phase
	velocity    []r2.Vec // derivative-phase velocity field, XSPH-smoothed when enabled

	grid      *systems.SpatialGrid
	search    *systems.NeighborSearch
	estimator *systems.Estimator
	detection systems.Detection
	limits    systems.Limits

	frames *frameBuilder
	hook   RenderHook

	collector     *telemetry.Collector
	perfCollector *telemetry.PerfCollector
	outputManager *telemetry.OutputManager
	logStats      bool
	statsCallback func(telemetry.WindowStats)

	iter        int
	outOfBounds int // clamped particles in the most recent rebuild
	warnedOOB   bool
}

// New validates cfg and builds a simulation over a copy of particles.
// Derived values are recomputed from a copy of cfg, so later edits to cfg do
// not reach the simulation. It fails before any iteration runs if the
// configuration or the particle set is invalid.
func New(cfg *config.Config, particles []components.Particle, opts Options) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("simulation: %w: nil config", config.ErrInvalid)
	}
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	if err := validateParticles(particles); err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	kernel, err := systems.KernelByName(cfg.SPH.Kernel)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	detection, err := systems.ParseDetection(cfg.Surface.Detection)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := len(particles)
	bounds := Bounds(cfg)
	grid := systems.NewSpatialGrid(bounds, cfg.Derived.CellSize)

	s := &Simulation{
		cfg:         cfg,
		logger:      logger,
		particles:   append([]components.Particle(nil), particles...),
		derivatives: make([]components.Derivatives, n),
		residuals:   make([]components.Residual, n),
		snapshot:    make([]r2.Vec, n),
		velocity:    make([]r2.Vec, n),
		grid:        grid,
		search: systems.NewNeighborSearch(grid, cfg.Derived.InteractionRadius,
			cfg.Derived.Skin, cfg.Neighbors.RefreshPeriod),
		estimator: systems.NewEstimator(kernel, cfg.SPH.SmoothingLength),
		detection: detection,
		limits: systems.Limits{
			MaxSpeed:        cfg.Stability.MaxSpeed,
			MaxDensityRatio: cfg.Stability.MaxDensityRatio,
		},
		frames:        newFrameBuilder(cfg.Render),
		hook:          opts.RenderHook,
		collector:     telemetry.NewCollector(cfg.Telemetry.Window, cfg.SPH.Timestep),
		perfCollector: telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		outputManager: opts.Output,
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}
	for i := range s.particles {
		s.velocity[i] = s.particles[i].Vel
	}

	s.logger.Debug("simulation created",
		"particles", n,
		"kernel", kernel.Name(),
		"h", cfg.SPH.SmoothingLength,
		"skin", cfg.Derived.Skin,
		"cell_size", cfg.Derived.CellSize,
		"grid_cols", grid.Cols(),
		"grid_rows", grid.Rows(),
		"detection", detection.String(),
	)

	return s, nil
}

// Bounds returns the domain rectangle of cfg.
func Bounds(cfg *config.Config) components.Bounds {
	return components.Bounds{
		Min: r2.Vec{X: cfg.Domain.MinX, Y: cfg.Domain.MinY},
		Max: r2.Vec{X: cfg.Domain.MaxX, Y: cfg.Domain.MaxY},
	}
}

func validateParticles(particles []components.Particle) error {
	var problems []error
	for i := range particles {
		p := &particles[i]
		switch {
		case p.Fluid == nil:
			problems = append(problems, fmt.Errorf("particle %d: no fluid constants", p.ID))
		case !(p.Mass > 0):
			problems = append(problems, fmt.Errorf("particle %d: mass must be > 0, got %g", p.ID, p.Mass))
		case !(p.Density > 0):
			problems = append(problems, fmt.Errorf("particle %d: density must be > 0, got %g", p.ID, p.Density))
		case math.IsNaN(p.Fluid.InterfaceThreshold):
			problems = append(problems, fmt.Errorf("particle %d: interface threshold is NaN", p.ID))
		case p.Fluid.XSPH < 0 || p.Fluid.XSPH > 1 || math.IsNaN(p.Fluid.XSPH):
			problems = append(problems, fmt.Errorf("particle %d: xsph must be in [0, 1], got %g", p.ID, p.Fluid.XSPH))
		}
		if len(problems) >= 10 {
			break
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", config.ErrInvalid, errors.Join(problems...))
}

// Run advances the simulation for the configured number of iterations, then
// rebuilds the grid and neighbor lists and emits the final frame.
// It stops at the first unstable step and returns its *systems.StepError.
func (s *Simulation) Run() error {
	s.logger.Info("starting simulation",
		"particles", len(s.particles),
		"iterations", s.cfg.SPH.Iterations,
		"dt", s.cfg.SPH.Timestep,
	)

	for s.iter < s.cfg.SPH.Iterations {
		if err := s.Step(); err != nil {
			s.logger.Error("simulation aborted", "iteration", s.iter, "error", err)
			return err
		}
	}

	s.Finish()
	s.logger.Info("simulation complete", "iterations", s.iter, "total_mass", s.TotalMass())
	return nil
}

// Step runs one iteration of the phase sequence.
func (s *Simulation) Step() error {
	s.perfCollector.StartIter()
	defer s.perfCollector.EndIter()

	s.perfCollector.StartPhase(telemetry.PhaseSpatialGrid)
	s.rebuildGrid()

	s.perfCollector.StartPhase(telemetry.PhaseNeighbors)
	refreshed := s.search.Update(s.particles, s.iter)
	if refreshed {
		s.collector.RecordRefresh()
	}
	s.perfCollector.RecordNeighbors(s.search.MeanCandidates(), refreshed)

	s.perfCollector.StartPhase(telemetry.PhaseRender)
	if s.shouldRender() {
		s.render(false)
	}

	s.perfCollector.StartPhase(telemetry.PhaseColor)
	s.updateColor()

	s.perfCollector.StartPhase(telemetry.PhaseDerivatives)
	s.updateDerivatives()

	s.perfCollector.StartPhase(telemetry.PhaseResidual)
	s.collector.RecordDegenerateNormals(s.assembleResiduals())

	s.perfCollector.StartPhase(telemetry.PhaseIntegrate)
	if err := s.integrate(); err != nil {
		return err
	}
	s.iter++

	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry(false)

	return nil
}

// Finish rebuilds spatial structures for the committed state, emits the
// final frame and flushes any partial telemetry window.
func (s *Simulation) Finish() {
	s.rebuildGrid()
	// Iteration 0 always satisfies the refresh period, forcing a full rebuild.
	s.search.Update(s.particles, 0)
	s.render(true)
	s.flushTelemetry(true)
}

// rebuildGrid reinserts every particle and reports clamped ones.
func (s *Simulation) rebuildGrid() {
	s.outOfBounds = s.grid.ClearAndInsert(s.particles)
	if s.outOfBounds == 0 {
		return
	}
	s.collector.RecordOutOfBounds(s.outOfBounds)
	if !s.warnedOOB {
		s.warnedOOB = true
		s.logger.Warn("particles outside domain clamped to boundary cells",
			"iteration", s.iter,
			"count", s.outOfBounds,
		)
	}
}

// updateColor computes Cs for every particle before any gradient reads it.
func (s *Simulation) updateColor() {
	s.estimator.Bind(s.particles, s.search, nil)
	for i := range s.particles {
		s.particles[i].Color = s.estimator.Color(i)
	}
}

// updateDerivatives evaluates every estimate against the committed state.
// Each particle blends its own XSPH coefficient into the derivative-phase
// velocity field.
func (s *Simulation) updateDerivatives() {
	for i := range s.particles {
		s.snapshot[i] = s.particles[i].Vel
	}
	s.estimator.Bind(s.particles, s.search, s.snapshot)
	for i := range s.particles {
		if eps := s.particles[i].Fluid.XSPH; eps > 0 {
			s.velocity[i] = s.estimator.XSPH(i, eps)
		} else {
			s.velocity[i] = s.snapshot[i]
		}
	}

	s.estimator.Bind(s.particles, s.search, s.velocity)
	needDivPos := s.detection.NeedsPositionDivergence()
	for i := range s.particles {
		d := &s.derivatives[i]
		d.Reset()
		d.DivVel = s.estimator.Divergence(i, systems.FieldVelocity)
		d.LaplVel = s.estimator.VectorLaplacian(i, systems.FieldVelocity)
		d.GradP = s.estimator.Gradient(i, systems.FieldPressure)
		d.GradColor = s.estimator.Gradient(i, systems.FieldColor)
		d.LaplColor = s.estimator.Laplacian(i, systems.FieldColor)
		if needDivPos {
			d.DivPos = s.estimator.Divergence(i, systems.FieldPosition)
		}
	}
}

// assembleResiduals classifies the surface against each particle's interface
// threshold and builds residuals. It returns the number of zeroed surface
// forces.
func (s *Simulation) assembleResiduals() int {
	degenerate := 0
	for i := range s.particles {
		p := &s.particles[i]
		d := &s.derivatives[i]
		p.OnSurface = systems.Classify(s.detection, p.Fluid.InterfaceThreshold, d)
		res, zeroed := systems.Assemble(p, d, p.OnSurface)
		s.residuals[i] = res
		if zeroed {
			degenerate++
		}
	}
	return degenerate
}

// integrate advances every particle, then checks the new state.
func (s *Simulation) integrate() error {
	dt := s.cfg.SPH.Timestep
	for i := range s.particles {
		systems.Integrate(&s.particles[i], &s.residuals[i], dt)
	}
	for i := range s.particles {
		if err := systems.CheckStable(&s.particles[i], s.limits); err != nil {
			var se *systems.StepError
			if errors.As(err, &se) {
				se.Iteration = s.iter
			}
			return err
		}
	}
	return nil
}

// Particles returns the particle arena. Callers must treat it as read-only.
func (s *Simulation) Particles() []components.Particle { return s.particles }

// Derivatives returns the estimates from the most recent step.
func (s *Simulation) Derivatives() []components.Derivatives { return s.derivatives }

// Velocity returns the derivative-phase velocity field of the most recent step.
func (s *Simulation) Velocity() []r2.Vec { return s.velocity }

// Iteration returns the number of completed steps.
func (s *Simulation) Iteration() int { return s.iter }

// Time returns the simulated time.
func (s *Simulation) Time() float64 { return float64(s.iter) * s.cfg.SPH.Timestep }

// Grid returns the spatial grid.
func (s *Simulation) Grid() *systems.SpatialGrid { return s.grid }

// Neighbors returns the neighbor search.
func (s *Simulation) Neighbors() *systems.NeighborSearch { return s.search }

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() *config.Config { return s.cfg }

// TotalMass returns the sum of particle masses.
func (s *Simulation) TotalMass() float64 {
	var m float64
	for i := range s.particles {
		m += s.particles[i].Mass
	}
	return m
}
