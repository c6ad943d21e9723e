// Package telemetry aggregates per-window solver statistics and timing and
// writes them as structured logs and CSV.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a window of iterations.
type WindowStats struct {
	WindowStartIter int     `csv:"-"`
	WindowEndIter   int     `csv:"window_end"`
	SimTime         float64 `csv:"sim_time"`

	Particles int `csv:"particles"`

	// Density distribution (sampled at window end)
	DensityMean float64 `csv:"density_mean"`
	DensityStd  float64 `csv:"density_std"`
	DensityMin  float64 `csv:"density_min"`
	DensityMax  float64 `csv:"density_max"`
	DensityP10  float64 `csv:"density_p10"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`
	MaxDrift    float64 `csv:"max_drift"` // max |rho/rho0 - 1|

	// Kinematics
	MaxSpeed      float64 `csv:"max_speed"`
	KineticEnergy float64 `csv:"kinetic_energy"`
	TotalMass     float64 `csv:"total_mass"`
	ExtentX       float64 `csv:"extent_x"` // max x - min x
	ExtentY       float64 `csv:"extent_y"` // max y - min y

	// Surface
	SurfaceCount int `csv:"surface"`

	// Events during window
	OutOfBounds       int `csv:"out_of_bounds"`
	DegenerateNormals int `csv:"degenerate_normals"`
	NeighborRefreshes int `csv:"neighbor_refreshes"`

	MeanNeighbors float64 `csv:"mean_neighbors"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	Min, Max      float64
	P10, P50, P90 float64
}

// Summarize computes mean, standard deviation, extremes and percentiles.
// The input is not modified.
func Summarize(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}

	var d Distribution
	if n == 1 {
		d.Mean = values[0]
	} else {
		d.Mean, d.Std = stat.MeanStdDev(values, nil)
	}
	d.Min = floats.Min(values)
	d.Max = floats.Max(values)

	// Sort for percentiles
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	d.P10 = Percentile(sorted, 0.10)
	d.P50 = Percentile(sorted, 0.50)
	d.P90 = Percentile(sorted, 0.90)

	return d
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", s.WindowStartIter),
		slog.Int("window_end", s.WindowEndIter),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("particles", s.Particles),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_std", s.DensityStd),
		slog.Float64("density_min", s.DensityMin),
		slog.Float64("density_max", s.DensityMax),
		slog.Float64("density_p10", s.DensityP10),
		slog.Float64("density_p50", s.DensityP50),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("max_drift", s.MaxDrift),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("total_mass", s.TotalMass),
		slog.Float64("extent_x", s.ExtentX),
		slog.Float64("extent_y", s.ExtentY),
		slog.Int("surface", s.SurfaceCount),
		slog.Int("out_of_bounds", s.OutOfBounds),
		slog.Int("degenerate_normals", s.DegenerateNormals),
		slog.Int("neighbor_refreshes", s.NeighborRefreshes),
		slog.Float64("mean_neighbors", s.MeanNeighbors),
	)
}

// LogStats logs the window stats using logger.
func (s WindowStats) LogStats(logger *slog.Logger) {
	logger.Info("stats", "window", s)
}
