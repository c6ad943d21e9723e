package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// normalFloor is the |grad Cs| below which the surface normal is undefined.
const normalFloor = 1e-12

// Assemble computes the continuity and momentum residuals of a particle.
//
//	mass     = -rho div v
//	momentum = -grad P / rho + (mu / rho) lap v + f_s
//
// f_s = -sigma lap Cs n/|n| with n = grad Cs, applied only when onSurface.
// degenerate is true when f_s was requested but zeroed because |n| vanished
// or was not finite.
func Assemble(p *components.Particle, d *components.Derivatives, onSurface bool) (res components.Residual, degenerate bool) {
	fluid := p.Fluid
	rho := p.Density

	res.Mass = -rho * d.DivVel

	pressure := r2.Scale(-1/rho, d.GradP)
	viscous := r2.Scale(fluid.Viscosity/rho, d.LaplVel)
	res.Momentum = r2.Add(pressure, viscous)

	if !onSurface || fluid.SurfaceTension == 0 {
		return res, false
	}

	norm := r2.Norm(d.GradColor)
	if !(norm > normalFloor) || math.IsInf(norm, 0) {
		return res, true
	}
	fs := r2.Scale(-fluid.SurfaceTension*d.LaplColor/norm, d.GradColor)
	if !finite(fs.X) || !finite(fs.Y) {
		return res, true
	}
	res.Momentum = r2.Add(res.Momentum, fs)
	return res, false
}
