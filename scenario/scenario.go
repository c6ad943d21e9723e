// Package scenario builds initial particle layouts.
package scenario

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
)

// Scenario names accepted by FromConfig.
const (
	NameSquare  = "square"
	NameRings   = "rings"
	NameEllipse = "ellipse"
	NameRandom  = "random"
)

// ErrUnknownScenario is returned by FromConfig for an unrecognized name.
var ErrUnknownScenario = errors.New("scenario: unknown scenario")

// boundaryFactor scales sqrt(n) to the number of sunflower points placed on
// the circle itself.
const boundaryFactor = 2.0

// goldenAngle is 2 pi / phi^2.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// Fluid returns the constitutive constants described by cfg.
func Fluid(cfg *config.Config) *components.Fluid {
	return &components.Fluid{
		Viscosity:          cfg.Fluid.Viscosity,
		RestDensity:        cfg.Fluid.RestDensity,
		SoundSpeed:         cfg.Fluid.SoundSpeed,
		Gamma:              cfg.Fluid.Gamma,
		SurfaceTension:     cfg.Fluid.SurfaceTension,
		InterfaceThreshold: cfg.Surface.Threshold,
		XSPH:               cfg.Fluid.XSPH,
	}
}

// FromConfig builds the layout named by cfg.Scenario. rng is only used by
// the random scenario.
func FromConfig(cfg *config.Config, rng *rand.Rand) ([]components.Particle, error) {
	sc := cfg.Scenario
	fluid := Fluid(cfg)
	switch sc.Name {
	case NameSquare, "":
		if sc.PerDim < 2 || !(sc.HalfWidth > 0) {
			return nil, fmt.Errorf("scenario %s: need per_dim >= 2 and half_width > 0", NameSquare)
		}
		return Square(sc.HalfWidth, sc.PerDim, fluid), nil
	case NameRings:
		if sc.Rings < 1 || sc.RingPoints < 1 || !(sc.HalfWidth > 0) {
			return nil, fmt.Errorf("scenario %s: need rings >= 1, ring_points >= 1 and half_width > 0", NameRings)
		}
		return Rings(sc.HalfWidth, sc.Rings, sc.RingPoints, fluid), nil
	case NameEllipse:
		if sc.PerDim < 2 || !(sc.HalfWidth > 0) {
			return nil, fmt.Errorf("scenario %s: need per_dim >= 2 and half_width > 0", NameEllipse)
		}
		return Ellipse(sc.HalfWidth, sc.PerDim*sc.PerDim, sc.Strain, fluid), nil
	case NameRandom:
		if sc.Count < 1 || sc.Speed < 0 {
			return nil, fmt.Errorf("scenario %s: need count >= 1 and speed >= 0", NameRandom)
		}
		if rng == nil {
			return nil, fmt.Errorf("scenario %s: nil random source", NameRandom)
		}
		bounds := components.Bounds{
			Min: r2.Vec{X: cfg.Domain.MinX, Y: cfg.Domain.MinY},
			Max: r2.Vec{X: cfg.Domain.MaxX, Y: cfg.Domain.MaxY},
		}
		return Random(rng, sc.Count, bounds, sc.Speed, fluid), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownScenario, sc.Name)
	}
}

// Square places perDim x perDim particles at rest on a lattice covering
// [-halfWidth, halfWidth]^2. Each particle carries the mass of one lattice
// cell at rest density.
func Square(halfWidth float64, perDim int, fluid *components.Fluid) []components.Particle {
	spacing := 2 * halfWidth / float64(perDim-1)
	mass := fluid.RestDensity * spacing * spacing
	ps := make([]components.Particle, 0, perDim*perDim)
	for i := 0; i < perDim; i++ {
		for j := 0; j < perDim; j++ {
			pos := r2.Vec{X: -halfWidth + float64(i)*spacing, Y: -halfWidth + float64(j)*spacing}
			ps = append(ps, components.NewParticle(len(ps), pos, r2.Vec{}, mass, fluid))
		}
	}
	return ps
}

// RingCount returns the particle count of a Rings layout: the center plus
// i*ringPoints particles on ring i.
func RingCount(rings, ringPoints int) int {
	n := 1
	for i := 1; i < rings; i++ {
		n += i * ringPoints
	}
	return n
}

// Rings places a droplet of the given radius as concentric rings at rest.
// Ring i sits at radius i*radius/(rings-1) and holds i*ringPoints evenly
// spaced particles. Mass is split evenly over the disc area.
func Rings(radius float64, rings, ringPoints int, fluid *components.Fluid) []components.Particle {
	n := RingCount(rings, ringPoints)
	mass := fluid.RestDensity * math.Pi * radius * radius / float64(n)
	ps := make([]components.Particle, 0, n)
	ps = append(ps, components.NewParticle(0, r2.Vec{}, r2.Vec{}, mass, fluid))
	if rings < 2 {
		return ps
	}
	ds := radius / float64(rings-1)
	for i := 1; i < rings; i++ {
		count := i * ringPoints
		r := float64(i) * ds
		for j := 0; j < count; j++ {
			theta := 2 * math.Pi * float64(j) / float64(count)
			pos := r2.Vec{X: r * math.Cos(theta), Y: r * math.Sin(theta)}
			ps = append(ps, components.NewParticle(len(ps), pos, r2.Vec{}, mass, fluid))
		}
	}
	return ps
}

// Sunflower returns n points filling a disc of the given radius with
// near-uniform density. The last boundary points lie on the circle.
func Sunflower(n, boundary int, radius float64) []r2.Vec {
	pts := make([]r2.Vec, n)
	denom := math.Sqrt(float64(n) - float64(boundary+1)/2)
	for k := 1; k <= n; k++ {
		r := 1.0
		if k <= n-boundary {
			r = math.Sqrt(float64(k)-0.5) / denom
		}
		theta := float64(k) * goldenAngle
		pts[k-1] = r2.Vec{X: radius * r * math.Cos(theta), Y: radius * r * math.Sin(theta)}
	}
	return pts
}

// Ellipse places n particles on a disc and imposes the strain field
// v = (-strain*x, strain*y), which stretches the disc into an ellipse.
func Ellipse(radius float64, n int, strain float64, fluid *components.Fluid) []components.Particle {
	boundary := int(math.Round(boundaryFactor * math.Sqrt(float64(n))))
	if boundary >= n {
		boundary = 0
	}
	mass := fluid.RestDensity * math.Pi * radius * radius / float64(n)
	ps := make([]components.Particle, 0, n)
	for _, pos := range Sunflower(n, boundary, radius) {
		vel := r2.Vec{X: -strain * pos.X, Y: strain * pos.Y}
		ps = append(ps, components.NewParticle(len(ps), pos, vel, mass, fluid))
	}
	return ps
}

// Random scatters n particles uniformly over bounds with velocities of
// uniform direction and magnitude in [0, speed). Mass is split evenly over
// the bounds area.
func Random(rng *rand.Rand, n int, bounds components.Bounds, speed float64, fluid *components.Fluid) []components.Particle {
	mass := fluid.RestDensity * bounds.Width() * bounds.Height() / float64(n)
	ps := make([]components.Particle, 0, n)
	for i := 0; i < n; i++ {
		pos := r2.Vec{
			X: bounds.Min.X + rng.Float64()*bounds.Width(),
			Y: bounds.Min.Y + rng.Float64()*bounds.Height(),
		}
		theta := rng.Float64() * 2 * math.Pi
		s := rng.Float64() * speed
		vel := r2.Vec{X: s * math.Cos(theta), Y: s * math.Sin(theta)}
		ps = append(ps, components.NewParticle(i, pos, vel, mass, fluid))
	}
	return ps
}
