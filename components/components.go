// Package components defines the particle data model for the simulation.
package components

import "gonum.org/v1/gonum/spatial/r2"

// Fluid holds the constitutive constants shared by every particle of one fluid.
// Instances are built once from config and never mutated afterwards.
type Fluid struct {
	Viscosity          float64 // Dynamic viscosity mu
	RestDensity        float64 // rho0
	SoundSpeed         float64 // Artificial speed of sound c0
	Gamma              float64 // Tait exponent
	SurfaceTension     float64 // sigma
	InterfaceThreshold float64 // Surface detection threshold
	XSPH               float64 // Velocity smoothing epsilon (0 = off)
}

// StiffnessB returns the Tait stiffness B = c0^2 * rho0 / gamma.
func (f *Fluid) StiffnessB() float64 {
	return f.SoundSpeed * f.SoundSpeed * f.RestDensity / f.Gamma
}

// Particle is a single fluid sample.
type Particle struct {
	ID        int
	Pos       r2.Vec
	Vel       r2.Vec
	Mass      float64
	Density   float64
	Pressure  float64
	Color     float64 // Color field Cs, recomputed each step
	OnSurface bool
	Cell      int // Flat grid cell index, -1 until first insertion
	Fluid     *Fluid
}

// NewParticle returns a particle at rest density with zero gauge pressure.
func NewParticle(id int, pos, vel r2.Vec, mass float64, fluid *Fluid) Particle {
	return Particle{
		ID:      id,
		Pos:     pos,
		Vel:     vel,
		Mass:    mass,
		Density: fluid.RestDensity,
		Cell:    -1,
		Fluid:   fluid,
	}
}

// Volume returns m / rho.
func (p *Particle) Volume() float64 {
	return p.Mass / p.Density
}
