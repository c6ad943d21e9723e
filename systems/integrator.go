package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// Integrate advances p by one explicit Euler step of size dt. Position is
// advanced with the velocity held at entry, then density, then velocity,
// and pressure is recomputed from the new density.
func Integrate(p *components.Particle, r *components.Residual, dt float64) {
	p.Pos = r2.Add(p.Pos, r2.Scale(dt, p.Vel))
	p.Density += dt * r.Mass
	p.Vel = r2.Add(p.Vel, r2.Scale(dt, r.Momentum))
	p.Pressure = TaitPressure(p.Density, p.Fluid)
}

// TaitPressure returns B ((rho/rho0)^gamma - 1) with B = c0^2 rho0 / gamma.
func TaitPressure(rho float64, f *components.Fluid) float64 {
	return f.StiffnessB() * (math.Pow(rho/f.RestDensity, f.Gamma) - 1)
}

// Limits bounds what counts as a stable particle state. Zero disables a bound;
// non-finite state is always rejected.
type Limits struct {
	MaxSpeed        float64
	MaxDensityRatio float64 // rho/rho0 must stay within [1/ratio, ratio]
}

// CheckStable returns an error wrapping ErrUnstable when p's state is not
// finite or falls outside limits. The error is a *StepError without the
// iteration set.
func CheckStable(p *components.Particle, limits Limits) error {
	fail := func(quantity string, v float64) error {
		return &StepError{Particle: p.ID, Quantity: quantity, Value: v, Wrapped: ErrUnstable}
	}

	switch {
	case !finite(p.Pos.X):
		return fail("pos.x", p.Pos.X)
	case !finite(p.Pos.Y):
		return fail("pos.y", p.Pos.Y)
	case !finite(p.Vel.X):
		return fail("vel.x", p.Vel.X)
	case !finite(p.Vel.Y):
		return fail("vel.y", p.Vel.Y)
	case !finite(p.Density) || p.Density <= 0:
		return fail("density", p.Density)
	case !finite(p.Pressure):
		return fail("pressure", p.Pressure)
	}

	if limits.MaxSpeed > 0 {
		if s := r2.Norm(p.Vel); s > limits.MaxSpeed {
			return fail("speed", s)
		}
	}
	if limits.MaxDensityRatio > 0 {
		ratio := p.Density / p.Fluid.RestDensity
		if ratio > limits.MaxDensityRatio || ratio < 1/limits.MaxDensityRatio {
			return fail("density_ratio", ratio)
		}
	}
	return nil
}

