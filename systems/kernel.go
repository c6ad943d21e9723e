package systems

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Kernel is a radial SPH smoothing function with compact support [0, h].
// Weight and Derivative take the pair distance r and the smoothing length h.
type Kernel interface {
	Name() string
	// Weight returns W(r, h), normalized so that its 2D integral is 1.
	Weight(r, h float64) float64
	// Derivative returns dW/dr.
	Derivative(r, h float64) float64
}

// Kernel names accepted in configuration.
const (
	KernelCubic    = "cubic"
	KernelLucy     = "lucy"
	KernelWendland = "wendland"
)

// KernelByName returns the kernel registered under name.
func KernelByName(name string) (Kernel, error) {
	switch name {
	case KernelCubic, "":
		return CubicSpline{}, nil
	case KernelLucy:
		return Lucy{}, nil
	case KernelWendland:
		return WendlandC2{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
}

// GradientWeight returns grad W for the separation d = x_p - x_q with |d| = r.
// It is zero at r = 0.
func GradientWeight(k Kernel, d r2.Vec, r, h float64) r2.Vec {
	if r <= 0 {
		return r2.Vec{}
	}
	return r2.Scale(k.Derivative(r, h)/r, d)
}

// CubicSpline is the M4 cubic B-spline in its one-radius form.
type CubicSpline struct{}

func (CubicSpline) Name() string { return KernelCubic }

func cubicAlpha(h float64) float64 { return 40 / (7 * math.Pi * h * h) }

func (CubicSpline) Weight(r, h float64) float64 {
	q := r / h
	a := cubicAlpha(h)
	switch {
	case q <= 0.5:
		return a * (6*q*q*q - 6*q*q + 1)
	case q <= 1:
		u := 1 - q
		return 2 * a * u * u * u
	}
	return 0
}

func (CubicSpline) Derivative(r, h float64) float64 {
	q := r / h
	a := cubicAlpha(h) / h
	switch {
	case q <= 0.5:
		return a * (18*q*q - 12*q)
	case q <= 1:
		u := 1 - q
		return -6 * a * u * u
	}
	return 0
}

// Lucy is the quartic kernel of Lucy (1977).
type Lucy struct{}

func (Lucy) Name() string { return KernelLucy }

func (Lucy) Weight(r, h float64) float64 {
	q := r / h
	if q > 1 {
		return 0
	}
	u := 1 - q
	return 5 / (math.Pi * h * h) * (1 + 3*q) * u * u * u
}

func (Lucy) Derivative(r, h float64) float64 {
	q := r / h
	if q > 1 {
		return 0
	}
	u := 1 - q
	return -12 * 5 / (math.Pi * h * h * h) * q * u * u
}

// WendlandC2 is the Wendland C2 kernel.
type WendlandC2 struct{}

func (WendlandC2) Name() string { return KernelWendland }

func (WendlandC2) Weight(r, h float64) float64 {
	q := r / h
	if q > 1 {
		return 0
	}
	u := 1 - q
	return 7 / (math.Pi * h * h) * u * u * u * u * (1 + 4*q)
}

func (WendlandC2) Derivative(r, h float64) float64 {
	q := r / h
	if q > 1 {
		return 0
	}
	u := 1 - q
	return -20 * 7 / (math.Pi * h * h * h) * q * u * u * u
}
