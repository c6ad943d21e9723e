package simulation

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
	"github.com/pthm-cable/sph/config"
	"github.com/pthm-cable/sph/scenario"
	"github.com/pthm-cable/sph/systems"
	"github.com/pthm-cable/sph/telemetry"
)

// testConfig returns defaults tuned for small lattices.
func testConfig(t *testing.T, iterations int) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.SPH.SmoothingLength = 0.25
	cfg.SPH.Timestep = 0.01
	cfg.SPH.Iterations = iterations
	cfg.Fluid.RestDensity = 1000
	cfg.Fluid.SoundSpeed = 1
	cfg.Fluid.Viscosity = 0
	cfg.Fluid.SurfaceTension = 0
	cfg.Telemetry.Window = 5
	cfg.Refresh()
	return cfg
}

func fluidFrom(cfg *config.Config) *components.Fluid {
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

// grid builds an n x n lattice with spacing dx centered on the origin.
func grid(cfg *config.Config, n int, dx float64, vel func(i int) r2.Vec) []components.Particle {
	fluid := fluidFrom(cfg)
	mass := fluid.RestDensity * dx * dx
	offset := -0.5 * float64(n-1) * dx
	ps := make([]components.Particle, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pos := r2.Vec{X: offset + float64(i)*dx, Y: offset + float64(j)*dx}
			var v r2.Vec
			if vel != nil {
				v = vel(len(ps))
			}
			ps = append(ps, components.NewParticle(len(ps), pos, v, mass, fluid))
		}
	}
	return ps
}

func newSim(t *testing.T, cfg *config.Config, ps []components.Particle, opts Options) *Simulation {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sim, err := New(cfg, ps, opts)
	require.NoError(t, err)
	return sim
}

func TestRestStateIsStationary(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.SPH.SmoothingLength = 2.5
	cfg.Domain = config.DomainConfig{MinX: -4, MinY: -4, MaxX: 4, MaxY: 4}
	cfg.Refresh()
	ps := grid(cfg, 4, 1, nil)
	sim := newSim(t, cfg, ps, Options{})

	require.NoError(t, sim.Run())
	assert.Equal(t, 1, sim.Iteration())
	for i, p := range sim.Particles() {
		assert.Equal(t, r2.Vec{}, p.Vel, "particle %d velocity", i)
		assert.Equal(t, ps[i].Pos, p.Pos, "particle %d position", i)
		assert.Equal(t, cfg.Fluid.RestDensity, p.Density, "particle %d density", i)
		assert.Zero(t, p.Pressure)
	}
}

func TestUniformTranslation(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.Fluid.XSPH = 0.5
	cfg.Refresh()
	v := r2.Vec{X: 0.3, Y: -0.1}
	ps := grid(cfg, 6, 0.1, func(int) r2.Vec { return v })
	sim := newSim(t, cfg, ps, Options{})

	require.NoError(t, sim.Run())
	shift := r2.Scale(10*cfg.SPH.Timestep, v)
	for i, p := range sim.Particles() {
		assert.InDelta(t, v.X, p.Vel.X, 1e-12)
		assert.InDelta(t, v.Y, p.Vel.Y, 1e-12)
		want := r2.Add(ps[i].Pos, shift)
		assert.InDelta(t, want.X, p.Pos.X, 1e-12)
		assert.InDelta(t, want.Y, p.Pos.Y, 1e-12)
		assert.InDelta(t, v.X, sim.Velocity()[i].X, 1e-12, "smoothed velocity")
	}
}

func TestMassIsConserved(t *testing.T) {
	cfg := testConfig(t, 30)
	cfg.Fluid.Viscosity = 1e-3
	cfg.Fluid.SurfaceTension = 0.07
	cfg.Refresh()
	rng := rand.New(rand.NewSource(7))
	ps := grid(cfg, 8, 0.1, func(int) r2.Vec {
		return r2.Vec{X: 0.05 * (rng.Float64() - 0.5), Y: 0.05 * (rng.Float64() - 0.5)}
	})
	sim := newSim(t, cfg, ps, Options{})
	before := sim.TotalMass()

	require.NoError(t, sim.Run())
	assert.Equal(t, before, sim.TotalMass())
	for _, p := range sim.Particles() {
		assert.False(t, math.IsNaN(p.Density))
	}
}

func TestRingsCenterHasZeroColorGradient(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.SPH.SmoothingLength = 0.6
	cfg.Refresh()
	ps := scenario.Rings(1, 5, 6, fluidFrom(cfg))
	sim := newSim(t, cfg, ps, Options{})

	require.NoError(t, sim.Step())
	g := sim.Derivatives()[0].GradColor
	assert.InDelta(t, 0, g.X, 1e-9)
	assert.InDelta(t, 0, g.Y, 1e-9)
	assert.Equal(t, r2.Vec{}, sim.Particles()[0].Vel)
}

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		cfg := testConfig(t, 1)
		cfg.SPH.Timestep = 0
		cfg.Refresh()
		_, err := New(cfg, grid(cfg, 2, 0.1, nil), Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, config.ErrInvalid))
	})
	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil, nil, Options{})
		assert.True(t, errors.Is(err, config.ErrInvalid))
	})
	t.Run("particle without fluid", func(t *testing.T) {
		cfg := testConfig(t, 1)
		ps := grid(cfg, 2, 0.1, nil)
		ps[3].Fluid = nil
		_, err := New(cfg, ps, Options{})
		assert.True(t, errors.Is(err, config.ErrInvalid))
		assert.ErrorContains(t, err, "particle 3")
	})
	t.Run("particle xsph out of range", func(t *testing.T) {
		cfg := testConfig(t, 1)
		ps := grid(cfg, 2, 0.1, nil)
		ps[0].Fluid.XSPH = 2
		_, err := New(cfg, ps, Options{})
		assert.True(t, errors.Is(err, config.ErrInvalid))
		assert.ErrorContains(t, err, "xsph")
	})
	t.Run("zero mass", func(t *testing.T) {
		cfg := testConfig(t, 1)
		ps := grid(cfg, 2, 0.1, nil)
		ps[0].Mass = 0
		_, err := New(cfg, ps, Options{})
		assert.ErrorContains(t, err, "mass")
	})
}

func TestNewRecomputesDerivedConfig(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Stability.MaxDensityRatio = 0
	cfg.SPH.SmoothingLength = 0.5 // edited without Refresh

	fluid := fluidFrom(cfg)
	ps := []components.Particle{
		components.NewParticle(0, r2.Vec{}, r2.Vec{}, 1, fluid),
		components.NewParticle(1, r2.Vec{X: 0.3}, r2.Vec{}, 1, fluid),
	}
	sim := newSim(t, cfg, ps, Options{})

	assert.Equal(t, 0.5, sim.Neighbors().Radius())
	assert.Equal(t, 0.5, sim.Config().Derived.SearchRadius)
	assert.Equal(t, 0.5, sim.Grid().CellSize())
	require.NoError(t, sim.Step())
	assert.ElementsMatch(t, []int{0, 1}, sim.Neighbors().Neighbors(0))
}

func TestSurfaceUsesParticleThreshold(t *testing.T) {
	tests := []struct {
		name        string
		cfgValue    float64
		particle    float64
		wantSurface bool
	}{
		{"particle threshold low", 1e9, 0, true},
		{"particle threshold high", 0, 1e9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, 1)
			cfg.Surface.Threshold = tt.cfgValue
			cfg.Refresh()
			ps := grid(cfg, 4, 0.1, nil)
			for i := range ps {
				ps[i].Fluid.InterfaceThreshold = tt.particle
			}
			sim := newSim(t, cfg, ps, Options{})
			require.NoError(t, sim.Step())

			surface := 0
			for _, p := range sim.Particles() {
				if p.OnSurface {
					surface++
				}
			}
			if tt.wantSurface {
				assert.True(t, sim.Particles()[0].OnSurface, "corner particle")
				assert.Positive(t, surface)
			} else {
				assert.Zero(t, surface)
			}
		})
	}
}

func TestXSPHUsesParticleCoefficient(t *testing.T) {
	tests := []struct {
		name   string
		eps    float64
		smooth bool
	}{
		{"particle xsph off", 0, false},
		{"particle xsph on", 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, 1)
			cfg.Fluid.XSPH = 0.5 - tt.eps // disagrees with the particles
			cfg.Refresh()
			rng := rand.New(rand.NewSource(11))
			ps := grid(cfg, 5, 0.1, func(int) r2.Vec {
				return r2.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5}
			})
			for i := range ps {
				ps[i].Fluid.XSPH = tt.eps
			}
			sim := newSim(t, cfg, ps, Options{})
			require.NoError(t, sim.Step())

			changed := 0
			for i, v := range sim.Velocity() {
				if v != ps[i].Vel {
					changed++
				}
			}
			if tt.smooth {
				assert.Positive(t, changed)
			} else {
				assert.Zero(t, changed)
			}
		})
	}
}

func TestNewCopiesParticles(t *testing.T) {
	cfg := testConfig(t, 1)
	ps := grid(cfg, 3, 0.1, nil)
	sim := newSim(t, cfg, ps, Options{})
	ps[0].Pos = r2.Vec{X: 99}
	assert.NotEqual(t, ps[0].Pos, sim.Particles()[0].Pos)
}

func TestRunReportsInstability(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.Stability.MaxSpeed = 1
	cfg.Refresh()
	ps := grid(cfg, 3, 0.1, nil)
	ps[4].Vel = r2.Vec{X: 5}

	frames := 0
	hook := RenderFunc(func(Frame) { frames++ })
	sim := newSim(t, cfg, ps, Options{RenderHook: hook})

	err := sim.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, systems.ErrUnstable))

	var se *systems.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.Iteration)
	assert.Equal(t, 4, se.Particle)
	assert.Equal(t, "speed", se.Quantity)
	assert.Zero(t, frames, "no final frame after an unstable step")
	assert.Equal(t, 0, sim.Iteration())
}

func TestRenderHook(t *testing.T) {
	tests := []struct {
		name     string
		interval int
		want     []int // iterations of non-final frames
	}{
		{"final only", 0, nil},
		{"every iteration", 1, []int{0, 1, 2, 3}},
		{"every other", 2, []int{0, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, 4)
			cfg.Render.Interval = tt.interval
			cfg.Refresh()
			ps := grid(cfg, 3, 0.1, nil)

			var pre []int
			finals := 0
			var last Frame
			hook := RenderFunc(func(f Frame) {
				if f.Final {
					finals++
					last = f
					return
				}
				pre = append(pre, f.Iteration)
				assert.Len(t, f.Particles, len(ps))
			})
			sim := newSim(t, cfg, ps, Options{RenderHook: hook})
			require.NoError(t, sim.Run())

			assert.Equal(t, tt.want, pre)
			assert.Equal(t, 1, finals)
			assert.Equal(t, 4, last.Iteration)
			assert.Equal(t, sim.Grid().Cols(), last.Cols)
			for _, v := range last.Particles {
				assert.GreaterOrEqual(t, v.Cell, 0)
				assert.Equal(t, float32(cfg.Render.Opacity), v.Alpha)
			}
		})
	}
}

func TestParticleViewColors(t *testing.T) {
	tests := []struct {
		mode string
		p    components.Particle
		want [3]float32
	}{
		{ColorDensity, components.Particle{Density: 900}, [3]float32{0, 0.2, 1}},
		{ColorDensity, components.Particle{Density: 1100}, [3]float32{1, 0.2, 0}},
		{ColorSurface, components.Particle{OnSurface: true}, [3]float32{0.9, 0.2, 0.1}},
		{ColorCellParity, components.Particle{Cell: -1}, [3]float32{}},
	}
	cfg := testConfig(t, 0)
	sim := newSim(t, cfg, grid(cfg, 2, 0.1, nil), Options{})
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			tt.p.Fluid = fluidFrom(cfg)
			fb := &frameBuilder{mode: tt.mode}
			assert.Equal(t, tt.want, fb.colorOf(sim, &tt.p))
		})
	}

	// Cells (0,0), (1,0), (0,1), (1,1) cycle through the four parity colors.
	cols := sim.Grid().Cols()
	assert.Equal(t, [3]float32{1, 1, 0}, cellParity(sim, 0))
	assert.Equal(t, [3]float32{0, 1, 0}, cellParity(sim, 1))
	assert.Equal(t, [3]float32{1, 0, 0}, cellParity(sim, cols))
	assert.Equal(t, [3]float32{0, 0, 0}, cellParity(sim, cols+1))
}

func TestVerletMatchesFullRebuild(t *testing.T) {
	run := func(skin float64, period int) []components.Particle {
		cfg := testConfig(t, 20)
		cfg.SPH.Timestep = 1e-3
		cfg.Fluid.Viscosity = 1e-3
		cfg.Neighbors.VerletSkin = skin
		cfg.Neighbors.RefreshPeriod = period
		cfg.Refresh()
		rng := rand.New(rand.NewSource(3))
		ps := grid(cfg, 8, 0.1, func(int) r2.Vec {
			return r2.Vec{X: 0.2 * (rng.Float64() - 0.5), Y: 0.2 * (rng.Float64() - 0.5)}
		})
		sim := newSim(t, cfg, ps, Options{})
		require.NoError(t, sim.Run())
		return sim.Particles()
	}

	full := run(0, 1)
	verlet := run(0.05, 10)
	for i := range full {
		assert.InDelta(t, full[i].Pos.X, verlet[i].Pos.X, 1e-9)
		assert.InDelta(t, full[i].Pos.Y, verlet[i].Pos.Y, 1e-9)
		assert.InDelta(t, full[i].Density, verlet[i].Density, 1e-7)
	}
}

func TestStatsWindows(t *testing.T) {
	cfg := testConfig(t, 12)
	ps := grid(cfg, 4, 0.1, nil)

	var windows []telemetry.WindowStats
	sim := newSim(t, cfg, ps, Options{
		StatsCallback: func(s telemetry.WindowStats) { windows = append(windows, s) },
	})
	require.NoError(t, sim.Run())

	require.Len(t, windows, 3)
	assert.Equal(t, []int{5, 10, 12}, []int{windows[0].WindowEndIter, windows[1].WindowEndIter, windows[2].WindowEndIter})
	assert.Equal(t, 10, windows[2].WindowStartIter)
	for _, w := range windows {
		assert.Equal(t, len(ps), w.Particles)
		assert.InDelta(t, sim.TotalMass(), w.TotalMass, 1e-12)
	}
	// Zero skin rebuilds the lists every iteration.
	assert.Equal(t, 5, windows[0].NeighborRefreshes)
	assert.Equal(t, 2, windows[2].NeighborRefreshes)
}

func TestStatsWindowDisabled(t *testing.T) {
	cfg := testConfig(t, 4)
	cfg.Telemetry.Window = 0
	ps := grid(cfg, 3, 0.1, nil)

	calls := 0
	sim := newSim(t, cfg, ps, Options{
		StatsCallback: func(telemetry.WindowStats) { calls++ },
	})
	require.NoError(t, sim.Run())
	assert.Equal(t, 4, sim.Iteration())
	assert.Zero(t, calls)
}

func TestPerfRecordsNeighborLoad(t *testing.T) {
	cfg := testConfig(t, 5)
	ps := grid(cfg, 4, 0.1, nil)
	dir := filepath.Join(t.TempDir(), "run")
	output, err := telemetry.NewOutputManager(dir)
	require.NoError(t, err)

	sim := newSim(t, cfg, ps, Options{Output: output})
	require.NoError(t, sim.Run())
	require.NoError(t, output.Close())

	f, err := os.Open(filepath.Join(dir, "perf.csv"))
	require.NoError(t, err)
	defer f.Close()
	var rows []telemetry.PerfStatsCSV
	require.NoError(t, gocsv.UnmarshalFile(f, &rows))

	require.Len(t, rows, 1)
	assert.Equal(t, 5, rows[0].WindowEnd)
	assert.Greater(t, rows[0].MeanCandidates, 1.0)
	assert.GreaterOrEqual(t, rows[0].MaxCandidates, rows[0].MeanCandidates)
	// Zero skin rebuilds the lists every iteration.
	assert.Equal(t, 1.0, rows[0].RefreshRate)
}

func TestOutOfBoundsIsClamped(t *testing.T) {
	cfg := testConfig(t, 2)
	ps := grid(cfg, 3, 0.1, nil)
	ps[0].Pos = r2.Vec{X: 10, Y: 10}

	var windows []telemetry.WindowStats
	sim := newSim(t, cfg, ps, Options{
		StatsCallback: func(s telemetry.WindowStats) { windows = append(windows, s) },
	})
	require.NoError(t, sim.Run())

	require.Len(t, windows, 1)
	// Two steps plus the final rebuild.
	assert.Equal(t, 3, windows[0].OutOfBounds)
	assert.Equal(t, sim.Grid().NumCells()-1, sim.Particles()[0].Cell)
}
