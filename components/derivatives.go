package components

import "gonum.org/v1/gonum/spatial/r2"

// Derivatives holds the per-particle SPH estimates for one step.
// All fields are reset at the start of each derivative phase.
type Derivatives struct {
	DivVel    float64 // div v
	DivPos    float64 // div x, only filled under the divergence surface policy
	LaplVel   r2.Vec  // Laplacian of v
	GradP     r2.Vec  // grad P
	GradColor r2.Vec  // grad Cs, the surface normal estimate
	LaplColor float64 // Laplacian of Cs, the curvature estimate
}

// Reset zeroes all estimates.
func (d *Derivatives) Reset() {
	*d = Derivatives{}
}

// Residual holds the time derivatives of density and velocity.
type Residual struct {
	Mass     float64 // d rho / dt
	Momentum r2.Vec  // dv / dt
}
