package simulation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
)

// Color modes for particle views.
const (
	ColorCellParity = "cell_parity"
	ColorSurface    = "surface"
	ColorDensity    = "density"
)

// densitySpan is the half width of the density ramp around rho/rho0 = 1.
const densitySpan = 0.05

// RenderHook receives read-only views of the particle state.
// A Frame and its Particles slice are only valid for the duration of the call.
type RenderHook interface {
	Render(Frame)
}

// RenderFunc adapts a function to RenderHook.
type RenderFunc func(Frame)

// Render calls f(frame).
func (f RenderFunc) Render(frame Frame) { f(frame) }

// Frame is one snapshot handed to a RenderHook.
type Frame struct {
	Iteration int
	Final     bool
	Bounds    components.Bounds
	CellSize  float64
	Cols      int
	Rows      int
	Particles []ParticleView
}

// ParticleView is the display state of one particle.
type ParticleView struct {
	ID        int
	Pos       r2.Vec
	Vel       r2.Vec
	Smoothed  r2.Vec // Derivative-phase velocity (XSPH when enabled)
	Density   float64
	Color     float64
	Cell      int
	OnSurface bool
	RGB       [3]float32
	Alpha     float32
}

// frameBuilder fills a reused view buffer.
type frameBuilder struct {
	mode  string
	alpha float32
	views []ParticleView
}

func newFrameBuilder(cfg config.RenderConfig) *frameBuilder {
	mode := cfg.ColorMode
	if mode == "" {
		mode = ColorCellParity
	}
	return &frameBuilder{mode: mode, alpha: float32(cfg.Opacity)}
}

// shouldRender reports whether a pre-step frame is due this iteration.
func (s *Simulation) shouldRender() bool {
	interval := s.cfg.Render.Interval
	return s.hook != nil && interval > 0 && s.iter%interval == 0
}

// render builds a frame from the committed state and hands it to the hook.
func (s *Simulation) render(final bool) {
	if s.hook == nil {
		return
	}
	fb := s.frames
	if cap(fb.views) < len(s.particles) {
		fb.views = make([]ParticleView, len(s.particles))
	}
	fb.views = fb.views[:len(s.particles)]

	for i := range s.particles {
		p := &s.particles[i]
		v := &fb.views[i]
		*v = ParticleView{
			ID:        p.ID,
			Pos:       p.Pos,
			Vel:       p.Vel,
			Smoothed:  s.velocity[i],
			Density:   p.Density,
			Color:     p.Color,
			Cell:      p.Cell,
			OnSurface: p.OnSurface,
			Alpha:     fb.alpha,
		}
		v.RGB = fb.colorOf(s, p)
	}

	s.hook.Render(Frame{
		Iteration: s.iter,
		Final:     final,
		Bounds:    s.grid.Bounds(),
		CellSize:  s.grid.CellSize(),
		Cols:      s.grid.Cols(),
		Rows:      s.grid.Rows(),
		Particles: fb.views,
	})
}

func (fb *frameBuilder) colorOf(s *Simulation, p *components.Particle) [3]float32 {
	switch fb.mode {
	case ColorSurface:
		if p.OnSurface {
			return [3]float32{0.9, 0.2, 0.1}
		}
		return [3]float32{0.2, 0.4, 0.9}
	case ColorDensity:
		return densityRamp(p.Density / p.Fluid.RestDensity)
	default:
		return cellParity(s, p.Cell)
	}
}

// cellParity colors red on even grid columns and green on even grid rows.
// Unassigned particles are black.
func cellParity(s *Simulation, cell int) [3]float32 {
	var rgb [3]float32
	if cell < 0 {
		return rgb
	}
	col, row := s.grid.Coords(cell)
	if col%2 == 0 {
		rgb[0] = 1
	}
	if row%2 == 0 {
		rgb[1] = 1
	}
	return rgb
}

// densityRamp maps rho/rho0 in [1-densitySpan, 1+densitySpan] from blue to red.
func densityRamp(ratio float64) [3]float32 {
	t := (ratio - (1 - densitySpan)) / (2 * densitySpan)
	if t < 0 || math.IsNaN(t) {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return [3]float32{float32(t), 0.2, float32(1 - t)}
}
