package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// ScalarField selects a per-particle scalar for the estimators.
type ScalarField uint8

const (
	FieldPressure ScalarField = iota
	FieldColor
	FieldDensity
)

func (f ScalarField) String() string {
	switch f {
	case FieldPressure:
		return "pressure"
	case FieldColor:
		return "color"
	case FieldDensity:
		return "density"
	}
	return "unknown"
}

// VectorField selects a per-particle vector for the estimators.
type VectorField uint8

const (
	FieldVelocity VectorField = iota
	FieldPosition
)

func (f VectorField) String() string {
	switch f {
	case FieldVelocity:
		return "velocity"
	case FieldPosition:
		return "position"
	}
	return "unknown"
}

// coincident is the pair distance, relative to h, below which two distinct
// particles are treated as overlapping and skipped by distance-divided sums.
const coincident = 1e-12

// Estimator evaluates SPH sums for one particle at a time over the live
// neighbors of a bound particle set. Bind must be called after each neighbor
// update and before any estimate.
type Estimator struct {
	kernel Kernel
	h      float64

	particles []components.Particle
	search    *NeighborSearch
	velocity  []r2.Vec // velocity field for FieldVelocity; nil = particle Vel
}

// NewEstimator creates an estimator for kernel k with smoothing length h.
func NewEstimator(k Kernel, h float64) *Estimator {
	return &Estimator{kernel: k, h: h}
}

// Bind attaches the particle set, its neighbor lists and the velocity field
// used for FieldVelocity. A nil velocity means each particle's own Vel.
func (e *Estimator) Bind(particles []components.Particle, search *NeighborSearch, velocity []r2.Vec) {
	e.particles = particles
	e.search = search
	e.velocity = velocity
}

// Kernel returns the smoothing kernel.
func (e *Estimator) Kernel() Kernel { return e.kernel }

// H returns the smoothing length.
func (e *Estimator) H() float64 { return e.h }

func (e *Estimator) scalar(f ScalarField, j int) float64 {
	p := &e.particles[j]
	switch f {
	case FieldColor:
		return p.Color
	case FieldDensity:
		return p.Density
	}
	return p.Pressure
}

func (e *Estimator) vector(f VectorField, j int) r2.Vec {
	if f == FieldPosition {
		return e.particles[j].Pos
	}
	if e.velocity != nil {
		return e.velocity[j]
	}
	return e.particles[j].Vel
}

// each calls fn for every candidate q of p with 0 <= r < h, self included.
// d is x_p - x_q.
func (e *Estimator) each(p int, fn func(q int, d r2.Vec, r float64)) {
	hSq := e.h * e.h
	xp := e.particles[p].Pos
	for _, q := range e.search.Neighbors(p) {
		d := r2.Sub(xp, e.particles[q].Pos)
		rSq := r2.Norm2(d)
		if rSq >= hSq {
			continue
		}
		fn(q, d, math.Sqrt(rSq))
	}
}

// Color returns the color field Cs(p) = sum_q (m_q/rho_q) W(r_pq), self included.
func (e *Estimator) Color(p int) float64 {
	var cs float64
	e.each(p, func(q int, _ r2.Vec, r float64) {
		cs += e.particles[q].Volume() * e.kernel.Weight(r, e.h)
	})
	return cs
}

// Gradient returns sum_q (m_q/rho_q) (f_q - f_p) grad W(x_p - x_q).
func (e *Estimator) Gradient(p int, f ScalarField) r2.Vec {
	var g r2.Vec
	fp := e.scalar(f, p)
	e.each(p, func(q int, d r2.Vec, r float64) {
		if q == p {
			return
		}
		w := GradientWeight(e.kernel, d, r, e.h)
		g = r2.Add(g, r2.Scale(e.particles[q].Volume()*(e.scalar(f, q)-fp), w))
	})
	return g
}

// Divergence returns sum_q (m_q/rho_q) (f_q - f_p) . grad W(x_p - x_q).
func (e *Estimator) Divergence(p int, f VectorField) float64 {
	var div float64
	fp := e.vector(f, p)
	e.each(p, func(q int, d r2.Vec, r float64) {
		if q == p {
			return
		}
		w := GradientWeight(e.kernel, d, r, e.h)
		div += e.particles[q].Volume() * r2.Dot(r2.Sub(e.vector(f, q), fp), w)
	})
	return div
}

// Laplacian returns 2 sum_q (m_q/rho_q) (f_p - f_q) (dW/dr) / r.
// The self term and coincident pairs are skipped before dividing by r.
func (e *Estimator) Laplacian(p int, f ScalarField) float64 {
	var lap float64
	fp := e.scalar(f, p)
	floor := coincident * e.h
	e.each(p, func(q int, _ r2.Vec, r float64) {
		if q == p || r < floor {
			return
		}
		lap += e.particles[q].Volume() * (fp - e.scalar(f, q)) * e.kernel.Derivative(r, e.h) / r
	})
	return 2 * lap
}

// VectorLaplacian applies Laplacian component-wise to a vector field.
func (e *Estimator) VectorLaplacian(p int, f VectorField) r2.Vec {
	var lap r2.Vec
	fp := e.vector(f, p)
	floor := coincident * e.h
	e.each(p, func(q int, _ r2.Vec, r float64) {
		if q == p || r < floor {
			return
		}
		s := e.particles[q].Volume() * e.kernel.Derivative(r, e.h) / r
		lap = r2.Add(lap, r2.Scale(s, r2.Sub(fp, e.vector(f, q))))
	})
	return r2.Scale(2, lap)
}

// XSPH returns the smoothed velocity
// v_p + eps sum_q (m_q / rho_pq) (v_q - v_p) W(r_pq) with rho_pq the mean density.
// It reads the bound velocity field and never writes particle state.
func (e *Estimator) XSPH(p int, eps float64) r2.Vec {
	vp := e.vector(FieldVelocity, p)
	if eps == 0 {
		return vp
	}
	var corr r2.Vec
	rhoP := e.particles[p].Density
	e.each(p, func(q int, _ r2.Vec, r float64) {
		if q == p {
			return
		}
		pq := &e.particles[q]
		rhoMean := 0.5 * (rhoP + pq.Density)
		s := pq.Mass / rhoMean * e.kernel.Weight(r, e.h)
		corr = r2.Add(corr, r2.Scale(s, r2.Sub(e.vector(FieldVelocity, q), vp)))
	})
	return r2.Add(vp, r2.Scale(eps, corr))
}
