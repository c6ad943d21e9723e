// Package config provides configuration loading and validation for the solver.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all solver configuration parameters.
// A loaded Config is treated as immutable and shared read-only.
type Config struct {
	Domain    DomainConfig    `yaml:"domain"`
	SPH       SPHConfig       `yaml:"sph"`
	Neighbors NeighborsConfig `yaml:"neighbors"`
	Surface   SurfaceConfig   `yaml:"surface"`
	Fluid     FluidConfig     `yaml:"fluid"`
	Stability StabilityConfig `yaml:"stability"`
	Render    RenderConfig    `yaml:"render"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Scenario  ScenarioConfig  `yaml:"scenario"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// DomainConfig holds the rectangular domain [min_x, max_x] x [min_y, max_y].
type DomainConfig struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
}

// SPHConfig holds discretization parameters.
type SPHConfig struct {
	Kernel          string  `yaml:"kernel"`
	SmoothingLength float64 `yaml:"smoothing_length"` // Kernel support radius h
	Timestep        float64 `yaml:"timestep"`
	Iterations      int     `yaml:"iterations"`
}

// NeighborsConfig holds neighbor search parameters.
type NeighborsConfig struct {
	VerletSkin       float64 `yaml:"verlet_skin"`
	ExpectedMaxSpeed float64 `yaml:"expected_max_speed"` // Used to derive the skin when verlet_skin is 0
	RefreshPeriod    int     `yaml:"refresh_period"`
	CellSize         float64 `yaml:"cell_size"` // 0 = smoothing_length + skin
}

// SurfaceConfig holds free-surface detection parameters.
type SurfaceConfig struct {
	Detection string  `yaml:"detection"`
	Threshold float64 `yaml:"threshold"`
}

// FluidConfig holds the constitutive constants.
type FluidConfig struct {
	RestDensity    float64 `yaml:"rest_density"`
	Viscosity      float64 `yaml:"viscosity"`
	SoundSpeed     float64 `yaml:"sound_speed"`
	Gamma          float64 `yaml:"gamma"`
	SurfaceTension float64 `yaml:"surface_tension"`
	XSPH           float64 `yaml:"xsph"`
}

// StabilityConfig bounds the state accepted after each step.
type StabilityConfig struct {
	MaxSpeed        float64 `yaml:"max_speed"`
	MaxDensityRatio float64 `yaml:"max_density_ratio"`
}

// RenderConfig controls the render hook.
type RenderConfig struct {
	Interval  int     `yaml:"interval"`
	ColorMode string  `yaml:"color_mode"`
	Opacity   float64 `yaml:"opacity"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	Window     int `yaml:"window"`      // Iterations per stats window
	PerfWindow int `yaml:"perf_window"` // Iterations in the perf rolling window
}

// ScenarioConfig describes the initial particle layout built by the driver.
type ScenarioConfig struct {
	Name       string  `yaml:"name"`
	HalfWidth  float64 `yaml:"half_width"`  // Square half side, or circle radius
	PerDim     int     `yaml:"per_dim"`     // Lattice points per side
	Rings      int     `yaml:"rings"`       // Concentric rings, center included
	RingPoints int     `yaml:"ring_points"` // Points on the first ring
	Strain     float64 `yaml:"strain"`      // Ellipse velocity (-a x, a y)
	Count      int     `yaml:"count"`       // Random cloud size
	Speed      float64 `yaml:"speed"`       // Random cloud max speed
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	InteractionRadius float64 // Kernel support, equal to smoothing_length
	Skin              float64 // Effective Verlet skin
	SearchRadius      float64 // InteractionRadius + Skin
	CellSize          float64 // Effective grid cell size
	StiffnessB        float64 // Tait B = c0^2 rho0 / gamma
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()

	return cfg, nil
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	cfg.computeDerived()
	return cfg, nil
}

// Clone returns a deep copy with derived values recomputed.
func (c *Config) Clone() *Config {
	dup := *c
	dup.computeDerived()
	return &dup
}

// Refresh recomputes derived values after fields were edited in code.
func (c *Config) Refresh() {
	c.computeDerived()
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived = c.derive()
}

// derive returns the values implied by the current fields, ignoring any
// Derived block left over from earlier edits.
func (c *Config) derive() DerivedConfig {
	var d DerivedConfig
	d.InteractionRadius = c.SPH.SmoothingLength

	d.Skin = c.Neighbors.VerletSkin
	if d.Skin == 0 && c.Neighbors.ExpectedMaxSpeed > 0 {
		// A particle at the expected speed crosses half the skin in one period.
		d.Skin = 2 * float64(c.Neighbors.RefreshPeriod) * c.Neighbors.ExpectedMaxSpeed * c.SPH.Timestep
	}
	d.SearchRadius = d.InteractionRadius + d.Skin

	d.CellSize = c.Neighbors.CellSize
	if d.CellSize == 0 {
		d.CellSize = d.SearchRadius
	}

	if c.Fluid.Gamma != 0 {
		d.StiffnessB = c.Fluid.SoundSpeed * c.Fluid.SoundSpeed * c.Fluid.RestDensity / c.Fluid.Gamma
	}
	return d
}

// Validate reports every problem with the configuration. The returned error
// wraps ErrInvalid. Derived values are checked as implied by the current
// fields, and a Derived block that disagrees with them is itself a problem.
func (c *Config) Validate() error {
	var problems []error
	derived := c.derive()
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if !(c.Domain.MaxX > c.Domain.MinX) || !(c.Domain.MaxY > c.Domain.MinY) {
		bad("domain: degenerate bounds [%g, %g] x [%g, %g]",
			c.Domain.MinX, c.Domain.MaxX, c.Domain.MinY, c.Domain.MaxY)
	}

	if !positive(c.SPH.SmoothingLength) {
		bad("sph.smoothing_length must be > 0, got %g", c.SPH.SmoothingLength)
	}
	if !positive(c.SPH.Timestep) {
		bad("sph.timestep must be > 0, got %g", c.SPH.Timestep)
	}
	if c.SPH.Iterations < 0 {
		bad("sph.iterations must be >= 0, got %d", c.SPH.Iterations)
	}
	switch c.SPH.Kernel {
	case "", "cubic", "lucy", "wendland":
	default:
		bad("sph.kernel: unknown kernel %q", c.SPH.Kernel)
	}

	if c.Neighbors.VerletSkin < 0 {
		bad("neighbors.verlet_skin must be >= 0, got %g", c.Neighbors.VerletSkin)
	}
	if c.Neighbors.ExpectedMaxSpeed < 0 {
		bad("neighbors.expected_max_speed must be >= 0, got %g", c.Neighbors.ExpectedMaxSpeed)
	}
	if c.Neighbors.RefreshPeriod < 1 {
		bad("neighbors.refresh_period must be >= 1, got %d", c.Neighbors.RefreshPeriod)
	}
	if c.Neighbors.CellSize < 0 {
		bad("neighbors.cell_size must be >= 0, got %g", c.Neighbors.CellSize)
	}
	if positive(derived.SearchRadius) && derived.CellSize > derived.SearchRadius {
		bad("neighbors.cell_size %g exceeds the search radius %g", derived.CellSize, derived.SearchRadius)
	}

	switch c.Surface.Detection {
	case "", "gradient", "divergence":
	default:
		bad("surface.detection: unknown policy %q", c.Surface.Detection)
	}

	if !positive(c.Fluid.RestDensity) {
		bad("fluid.rest_density must be > 0, got %g", c.Fluid.RestDensity)
	}
	if !positive(c.Fluid.Gamma) {
		bad("fluid.gamma must be > 0, got %g", c.Fluid.Gamma)
	}
	if c.Fluid.SoundSpeed < 0 || c.Fluid.Viscosity < 0 || c.Fluid.SurfaceTension < 0 {
		bad("fluid: sound_speed, viscosity and surface_tension must be >= 0")
	}
	if c.Fluid.XSPH < 0 || c.Fluid.XSPH > 1 {
		bad("fluid.xsph must be in [0, 1], got %g", c.Fluid.XSPH)
	}

	if c.Stability.MaxSpeed < 0 {
		bad("stability.max_speed must be >= 0, got %g", c.Stability.MaxSpeed)
	}
	if r := c.Stability.MaxDensityRatio; r != 0 && r <= 1 {
		bad("stability.max_density_ratio must be 0 or > 1, got %g", r)
	}

	if c.Telemetry.Window < 0 {
		bad("telemetry.window must be >= 0, got %d", c.Telemetry.Window)
	}
	if c.Telemetry.PerfWindow < 0 {
		bad("telemetry.perf_window must be >= 0, got %d", c.Telemetry.PerfWindow)
	}

	if c.Render.Interval < 0 {
		bad("render.interval must be >= 0, got %d", c.Render.Interval)
	}
	switch c.Render.ColorMode {
	case "", "cell_parity", "surface", "density":
	default:
		bad("render.color_mode: unknown mode %q", c.Render.ColorMode)
	}
	if c.Render.Opacity < 0 || c.Render.Opacity > 1 {
		bad("render.opacity must be in [0, 1], got %g", c.Render.Opacity)
	}

	if len(problems) == 0 && c.Derived != derived {
		bad("derived values are stale (call Refresh after editing fields)")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
