package main

import (
	"github.com/pthm-cable/sph/config"
)

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "sound_speed", Path: "fluid.sound_speed", Min: 0.5, Max: 20, Default: 1.0},
			{Name: "xsph", Path: "fluid.xsph", Min: 0, Max: 0.5, Default: 0},
			{Name: "viscosity", Path: "fluid.viscosity", Min: 1e-4, Max: 0.05, Default: 1.0016e-3},
			// Smoothing length as a multiple of the lattice spacing.
			{Name: "smoothing_ratio", Path: "sph.smoothing_length", Min: 2.0, Max: 6.0, Default: 4.5},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to cfg and recomputes derived values.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)

	cfg.Fluid.SoundSpeed = clamped[0]
	cfg.Fluid.XSPH = clamped[1]
	cfg.Fluid.Viscosity = clamped[2]
	cfg.SPH.SmoothingLength = clamped[3] * latticeSpacing(cfg)
	// Keep an explicit cell size inside the new search radius.
	cfg.Neighbors.CellSize = 0

	cfg.Refresh()
}

// ExtractFromConfig extracts current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Fluid.SoundSpeed,
		cfg.Fluid.XSPH,
		cfg.Fluid.Viscosity,
		cfg.SPH.SmoothingLength / latticeSpacing(cfg),
	}
}

// latticeSpacing is the initial particle spacing of the square layout.
func latticeSpacing(cfg *config.Config) float64 {
	n := cfg.Scenario.PerDim
	if n < 2 {
		n = 2
	}
	return 2 * cfg.Scenario.HalfWidth / float64(n-1)
}
