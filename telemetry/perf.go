package telemetry

import (
	"log/slog"
	"time"
)

// Phase names for the simulation step, in execution order.
const (
	PhaseSpatialGrid = "spatial_grid"
	PhaseNeighbors   = "neighbors"
	PhaseRender      = "render"
	PhaseColor       = "color"
	PhaseDerivatives = "derivatives"
	PhaseResidual    = "residual"
	PhaseIntegrate   = "integrate"
	PhaseTelemetry   = "telemetry"
)

// Phases lists every phase name in execution order.
var Phases = []string{
	PhaseSpatialGrid, PhaseNeighbors, PhaseRender, PhaseColor,
	PhaseDerivatives, PhaseResidual, PhaseIntegrate, PhaseTelemetry,
}

// PerfSample holds timing and neighbor-search load for a single iteration.
type PerfSample struct {
	IterDuration time.Duration
	Phases       map[string]time.Duration

	Candidates float64 // mean candidate list length, self included
	Refreshed  bool    // lists were rebuilt this iteration
}

// PerfCollector tracks performance metrics over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	iterStart     time.Time
	phaseStart    time.Time
	lastPhase     string

	candidates float64
	refreshed  bool
}

// NewPerfCollector creates a new performance collector.
// windowSize: number of iterations to average over.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// StartIter begins timing a new iteration.
func (p *PerfCollector) StartIter() {
	p.iterStart = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
	p.candidates = 0
	p.refreshed = false
}

// RecordNeighbors attaches the neighbor-search load to the current iteration.
func (p *PerfCollector) RecordNeighbors(meanCandidates float64, refreshed bool) {
	p.candidates = meanCandidates
	p.refreshed = refreshed
}

// StartPhase begins timing a specific phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	// End previous phase if any
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// EndIter finishes timing the current iteration and records the sample.
func (p *PerfCollector) EndIter() {
	now := time.Now()
	// End final phase
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	sample := PerfSample{
		IterDuration: now.Sub(p.iterStart),
		Phases:       p.currentPhases,
		Candidates:   p.candidates,
		Refreshed:    p.refreshed,
	}

	p.samples[p.writeIndex] = sample
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	// Iteration timing
	AvgIterDuration time.Duration
	MinIterDuration time.Duration
	MaxIterDuration time.Duration

	// Phase breakdown (average durations)
	PhaseAvg map[string]time.Duration

	// Phase percentages of total iteration time
	PhasePct map[string]float64

	// Throughput
	ItersPerSecond float64

	// Neighbor search load
	MeanCandidates float64
	MaxCandidates  float64
	RefreshRate    float64 // fraction of iterations that rebuilt the lists
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	if p.sampleCount == 0 {
		return PerfStats{
			PhaseAvg: make(map[string]time.Duration),
			PhasePct: make(map[string]float64),
		}
	}

	var totalIter time.Duration
	var minIter, maxIter time.Duration
	var candidateSum, maxCandidates float64
	refreshes := 0
	phaseSum := make(map[string]time.Duration)

	// Iterate over valid samples
	for i := 0; i < p.sampleCount; i++ {
		s := p.samples[i]
		totalIter += s.IterDuration

		if i == 0 || s.IterDuration < minIter {
			minIter = s.IterDuration
		}
		if s.IterDuration > maxIter {
			maxIter = s.IterDuration
		}

		for phase, dur := range s.Phases {
			phaseSum[phase] += dur
		}

		candidateSum += s.Candidates
		maxCandidates = max(maxCandidates, s.Candidates)
		if s.Refreshed {
			refreshes++
		}
	}

	avgIter := totalIter / time.Duration(p.sampleCount)

	// Calculate phase averages and percentages
	phaseAvg := make(map[string]time.Duration)
	phasePct := make(map[string]float64)
	for phase, sum := range phaseSum {
		phaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if avgIter > 0 {
			phasePct[phase] = float64(phaseAvg[phase]) / float64(avgIter) * 100
		}
	}

	// Calculate throughput
	var itersPerSec float64
	if avgIter > 0 {
		itersPerSec = float64(time.Second) / float64(avgIter)
	}

	return PerfStats{
		AvgIterDuration: avgIter,
		MinIterDuration: minIter,
		MaxIterDuration: maxIter,
		PhaseAvg:        phaseAvg,
		PhasePct:        phasePct,
		ItersPerSecond:  itersPerSec,
		MeanCandidates:  candidateSum / float64(p.sampleCount),
		MaxCandidates:   maxCandidates,
		RefreshRate:     float64(refreshes) / float64(p.sampleCount),
	}
}

// LogStats logs performance statistics using logger.
func (s PerfStats) LogStats(logger *slog.Logger) {
	attrs := []any{
		"avg_iter_us", s.AvgIterDuration.Microseconds(),
		"min_iter_us", s.MinIterDuration.Microseconds(),
		"max_iter_us", s.MaxIterDuration.Microseconds(),
		"iters_per_sec", int(s.ItersPerSecond),
		"mean_candidates", s.MeanCandidates,
		"refresh_rate", s.RefreshRate,
	}

	// Add phase breakdowns
	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}

	logger.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_iter_us", s.AvgIterDuration.Microseconds()),
		slog.Int64("min_iter_us", s.MinIterDuration.Microseconds()),
		slog.Int64("max_iter_us", s.MaxIterDuration.Microseconds()),
		slog.Float64("iters_per_sec", s.ItersPerSecond),
		slog.Float64("mean_candidates", s.MeanCandidates),
		slog.Float64("max_candidates", s.MaxCandidates),
		slog.Float64("refresh_rate", s.RefreshRate),
	}

	for _, phase := range Phases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}

	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd      int     `csv:"window_end"`
	AvgIterUS      int64   `csv:"avg_iter_us"`
	MinIterUS      int64   `csv:"min_iter_us"`
	MaxIterUS      int64   `csv:"max_iter_us"`
	ItersPerSec    float64 `csv:"iters_per_sec"`
	MeanCandidates float64 `csv:"mean_candidates"`
	MaxCandidates  float64 `csv:"max_candidates"`
	RefreshRate    float64 `csv:"refresh_rate"`
	SpatialGridPct float64 `csv:"spatial_grid_pct"`
	NeighborsPct   float64 `csv:"neighbors_pct"`
	RenderPct      float64 `csv:"render_pct"`
	ColorPct       float64 `csv:"color_pct"`
	DerivativesPct float64 `csv:"derivatives_pct"`
	ResidualPct    float64 `csv:"residual_pct"`
	IntegratePct   float64 `csv:"integrate_pct"`
	TelemetryPct   float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:      windowEnd,
		AvgIterUS:      s.AvgIterDuration.Microseconds(),
		MinIterUS:      s.MinIterDuration.Microseconds(),
		MaxIterUS:      s.MaxIterDuration.Microseconds(),
		ItersPerSec:    s.ItersPerSecond,
		MeanCandidates: s.MeanCandidates,
		MaxCandidates:  s.MaxCandidates,
		RefreshRate:    s.RefreshRate,
		SpatialGridPct: s.PhasePct[PhaseSpatialGrid],
		NeighborsPct:   s.PhasePct[PhaseNeighbors],
		RenderPct:      s.PhasePct[PhaseRender],
		ColorPct:       s.PhasePct[PhaseColor],
		DerivativesPct: s.PhasePct[PhaseDerivatives],
		ResidualPct:    s.PhasePct[PhaseResidual],
		IntegratePct:   s.PhasePct[PhaseIntegrate],
		TelemetryPct:   s.PhasePct[PhaseTelemetry],
	}
}
