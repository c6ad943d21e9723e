package telemetry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// Collector accumulates events within iteration windows and produces WindowStats.
type Collector struct {
	windowIters int
	dt          float64

	// Current window tracking
	windowStartIter int

	// Event counters for current window
	outOfBounds       int
	degenerateNormals int
	refreshes         int

	densities []float64 // scratch
}

// NewCollector creates a new stats collector.
// windowIters: iterations per stats window, 0 or less disables windows
// dt: seconds per iteration (used for iteration-to-time conversion)
func NewCollector(windowIters int, dt float64) *Collector {
	return &Collector{
		windowIters: windowIters,
		dt:          dt,
	}
}

// RecordOutOfBounds records particles clamped during a grid rebuild.
func (c *Collector) RecordOutOfBounds(n int) {
	c.outOfBounds += n
}

// RecordDegenerateNormals records surface forces zeroed for lack of a normal.
func (c *Collector) RecordDegenerateNormals(n int) {
	c.degenerateNormals += n
}

// RecordRefresh records a neighbor list rebuild.
func (c *Collector) RecordRefresh() {
	c.refreshes++
}

// ShouldFlush returns true if enough iterations have passed to flush the window.
func (c *Collector) ShouldFlush(iter int) bool {
	return c.windowIters > 0 && iter-c.windowStartIter >= c.windowIters
}

// Flush produces a WindowStats from the committed particle state and resets
// counters for the next window. meanNeighbors is the average candidate list
// length reported by the neighbor search.
func (c *Collector) Flush(iter int, particles []components.Particle, meanNeighbors float64) WindowStats {
	stats := WindowStats{
		WindowStartIter:   c.windowStartIter,
		WindowEndIter:     iter,
		SimTime:           float64(iter) * c.dt,
		Particles:         len(particles),
		OutOfBounds:       c.outOfBounds,
		DegenerateNormals: c.degenerateNormals,
		NeighborRefreshes: c.refreshes,
		MeanNeighbors:     meanNeighbors,
	}

	c.densities = c.densities[:0]
	for i := range particles {
		p := &particles[i]
		c.densities = append(c.densities, p.Density)

		if drift := math.Abs(p.Density/p.Fluid.RestDensity - 1); drift > stats.MaxDrift {
			stats.MaxDrift = drift
		}
		v2 := r2.Norm2(p.Vel)
		if s := math.Sqrt(v2); s > stats.MaxSpeed {
			stats.MaxSpeed = s
		}
		stats.KineticEnergy += 0.5 * p.Mass * v2
		stats.TotalMass += p.Mass
		if p.OnSurface {
			stats.SurfaceCount++
		}
	}
	stats.ExtentX, stats.ExtentY = Extent(particles)

	d := Summarize(c.densities)
	stats.DensityMean = d.Mean
	stats.DensityStd = d.Std
	stats.DensityMin = d.Min
	stats.DensityMax = d.Max
	stats.DensityP10 = d.P10
	stats.DensityP50 = d.P50
	stats.DensityP90 = d.P90

	// Reset for next window
	c.windowStartIter = iter
	c.outOfBounds = 0
	c.degenerateNormals = 0
	c.refreshes = 0

	return stats
}

// Pending reports whether iterations have been recorded since the last flush.
// It is always false when windows are disabled.
func (c *Collector) Pending(iter int) bool {
	return c.windowIters > 0 && iter > c.windowStartIter
}

// Extent returns the full width and height of the box enclosing all
// particle positions, or zeros for an empty slice.
func Extent(particles []components.Particle) (x, y float64) {
	if len(particles) == 0 {
		return 0, 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := range particles {
		pos := particles[i].Pos
		minX, maxX = math.Min(minX, pos.X), math.Max(maxX, pos.X)
		minY, maxY = math.Min(minY, pos.Y), math.Max(maxY, pos.Y)
	}
	return maxX - minX, maxY - minY
}

// WindowIters returns the number of iterations per window.
func (c *Collector) WindowIters() int {
	return c.windowIters
}
