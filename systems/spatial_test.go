package systems

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

func testBounds(lo, hi float64) components.Bounds {
	return components.Bounds{Min: r2.Vec{X: lo, Y: lo}, Max: r2.Vec{X: hi, Y: hi}}
}

func particlesAt(pos ...r2.Vec) []components.Particle {
	fluid := &components.Fluid{RestDensity: 1, Gamma: 7, SoundSpeed: 1}
	ps := make([]components.Particle, len(pos))
	for i, p := range pos {
		ps[i] = components.NewParticle(i, p, r2.Vec{}, 1, fluid)
	}
	return ps
}

func TestSpatialGridDimensions(t *testing.T) {
	tests := []struct {
		name       string
		bounds     components.Bounds
		cell       float64
		cols, rows int
	}{
		{"exact fit", testBounds(0, 10), 2, 5, 5},
		{"rounds up", testBounds(0, 10), 3, 4, 4},
		{"cell bigger than domain", testBounds(0, 1), 5, 1, 1},
		{"offset domain", testBounds(-2, 2), 0.5, 8, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSpatialGrid(tt.bounds, tt.cell)
			if g.Cols() != tt.cols || g.Rows() != tt.rows {
				t.Errorf("grid = %dx%d, want %dx%d", g.Cols(), g.Rows(), tt.cols, tt.rows)
			}
		})
	}
}

// TestClearAndInsertMembership checks every particle is in exactly one cell
// whose bounds contain it.
func TestClearAndInsertMembership(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bounds := testBounds(-2, 2)
	g := NewSpatialGrid(bounds, 0.3)

	pos := make([]r2.Vec, 500)
	for i := range pos {
		pos[i] = r2.Vec{X: -2 + 4*rng.Float64(), Y: -2 + 4*rng.Float64()}
	}
	particles := particlesAt(pos...)

	if clamped := g.ClearAndInsert(particles); clamped != 0 {
		t.Fatalf("clamped = %d, want 0", clamped)
	}

	seen := make([]int, len(particles))
	for c := 0; c < g.NumCells(); c++ {
		for _, i := range g.Cell(c) {
			seen[i]++
			if particles[i].Cell != c {
				t.Errorf("particle %d Cell = %d, stored in %d", i, particles[i].Cell, c)
			}
			if !g.CellBounds(c).Contains(particles[i].Pos) {
				t.Errorf("particle %d at %v outside cell %d bounds %v", i, particles[i].Pos, c, g.CellBounds(c))
			}
		}
	}
	for i, n := range seen {
		if n != 1 {
			t.Errorf("particle %d in %d cells, want 1", i, n)
		}
	}
}

func TestClearAndInsertClampsOutOfBounds(t *testing.T) {
	g := NewSpatialGrid(testBounds(0, 4), 1)
	particles := particlesAt(
		r2.Vec{X: 0.5, Y: 0.5},
		r2.Vec{X: -3, Y: 1.5},
		r2.Vec{X: 10, Y: 10},
		r2.Vec{X: math.NaN(), Y: 1},
		r2.Vec{X: math.Inf(1), Y: 2},
	)

	if clamped := g.ClearAndInsert(particles); clamped != 4 {
		t.Errorf("clamped = %d, want 4", clamped)
	}

	tests := []struct {
		i        int
		col, row int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 3, 3},
		{3, 0, 0},
	}
	for _, tt := range tests {
		col, row := g.Coords(particles[tt.i].Cell)
		if col != tt.col || row != tt.row {
			t.Errorf("particle %d at (%d,%d), want (%d,%d)", tt.i, col, row, tt.col, tt.row)
		}
	}

	// Rebuilding twice must not duplicate membership.
	g.ClearAndInsert(particles)
	total := 0
	for c := 0; c < g.NumCells(); c++ {
		total += len(g.Cell(c))
	}
	if total != len(particles) {
		t.Errorf("total membership = %d, want %d", total, len(particles))
	}
}

func TestCellsAroundClipsAtEdges(t *testing.T) {
	g := NewSpatialGrid(testBounds(0, 5), 1) // 5x5

	tests := []struct {
		name string
		col  int
		row  int
		ring int
		want int
	}{
		{"interior", 2, 2, 1, 9},
		{"corner", 0, 0, 1, 4},
		{"edge", 0, 2, 1, 6},
		{"ring two interior", 2, 2, 2, 25},
		{"ring two corner", 4, 4, 2, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := g.CellsAround(tt.row*g.Cols()+tt.col, tt.ring, nil)
			if len(cells) != tt.want {
				t.Errorf("len = %d, want %d", len(cells), tt.want)
			}
			for _, c := range cells {
				col, row := g.Coords(c)
				if abs(col-tt.col) > tt.ring || abs(row-tt.row) > tt.ring {
					t.Errorf("cell (%d,%d) outside ring %d of (%d,%d)", col, row, tt.ring, tt.col, tt.row)
				}
			}
		})
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func BenchmarkClearAndInsert(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	pos := make([]r2.Vec, 10000)
	for i := range pos {
		pos[i] = r2.Vec{X: -2 + 4*rng.Float64(), Y: -2 + 4*rng.Float64()}
	}
	particles := particlesAt(pos...)
	g := NewSpatialGrid(testBounds(-2, 2), 0.09)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.ClearAndInsert(particles)
	}
}
