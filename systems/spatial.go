// Package systems provides the SPH building blocks: kernels, spatial indexing,
// neighbor search, derivative estimators, surface detection and integration.
package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// SpatialGrid buckets particle indices into square cells over a fixed domain.
// Positions outside the domain are clamped into the nearest boundary cell.
type SpatialGrid struct {
	bounds   components.Bounds
	cellSize float64
	cols     int
	rows     int
	cells    [][]int // flat grid of particle index lists
}

// NewSpatialGrid creates a grid covering bounds with square cells of cellSize.
func NewSpatialGrid(bounds components.Bounds, cellSize float64) *SpatialGrid {
	cols := int(math.Ceil(bounds.Width() / cellSize))
	rows := int(math.Ceil(bounds.Height() / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]int, cols*rows)
	for i := range cells {
		cells[i] = make([]int, 0, 8) // pre-allocate small capacity
	}

	return &SpatialGrid{
		bounds:   bounds,
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}
}

// Clear removes all particles from the grid, keeping cell capacity.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds particle index i at pos. It returns the cell used and whether
// pos was inside the domain.
func (g *SpatialGrid) Insert(i int, pos r2.Vec) (cell int, inside bool) {
	cell, inside = g.CellOf(pos)
	g.cells[cell] = append(g.cells[cell], i)
	return cell, inside
}

// ClearAndInsert rebuilds the grid from particles and records each particle's
// cell. It returns how many particles had to be clamped into a boundary cell.
func (g *SpatialGrid) ClearAndInsert(particles []components.Particle) int {
	g.Clear()
	clamped := 0
	for i := range particles {
		cell, inside := g.Insert(i, particles[i].Pos)
		particles[i].Cell = cell
		if !inside {
			clamped++
		}
	}
	return clamped
}

// CellOf returns the flat cell index for pos, clamped to the grid.
// Non-finite coordinates map to the first cell and report inside = false.
func (g *SpatialGrid) CellOf(pos r2.Vec) (cell int, inside bool) {
	if !finite(pos.X) || !finite(pos.Y) {
		return 0, false
	}
	col, okc := clampAxis((pos.X-g.bounds.Min.X)/g.cellSize, g.cols)
	row, okr := clampAxis((pos.Y-g.bounds.Min.Y)/g.cellSize, g.rows)
	return row*g.cols + col, okc && okr && g.bounds.Contains(pos)
}

// clampAxis floors f and clamps it to [0, n).
func clampAxis(f float64, n int) (int, bool) {
	switch {
	case f < 0:
		return 0, false
	case f >= float64(n):
		// The far edge of the domain belongs to the last cell.
		return n - 1, f == float64(n)
	}
	return int(f), true
}

// Cell returns the particle indices stored in cell c.
// The slice is owned by the grid and valid until the next rebuild.
func (g *SpatialGrid) Cell(c int) []int {
	return g.cells[c]
}

// CellsAround appends to dst the cells in the (2*ring+1)^2 block centred on
// cell c, clipped at the grid edges.
func (g *SpatialGrid) CellsAround(c, ring int, dst []int) []int {
	col, row := g.Coords(c)
	c0, c1 := max(col-ring, 0), min(col+ring, g.cols-1)
	r0, r1 := max(row-ring, 0), min(row+ring, g.rows-1)
	for r := r0; r <= r1; r++ {
		for cc := c0; cc <= c1; cc++ {
			dst = append(dst, r*g.cols+cc)
		}
	}
	return dst
}

// Coords returns the column and row of cell c.
func (g *SpatialGrid) Coords(c int) (col, row int) {
	return c % g.cols, c / g.cols
}

// CellBounds returns the rectangle covered by cell c.
func (g *SpatialGrid) CellBounds(c int) components.Bounds {
	col, row := g.Coords(c)
	lo := r2.Vec{
		X: g.bounds.Min.X + float64(col)*g.cellSize,
		Y: g.bounds.Min.Y + float64(row)*g.cellSize,
	}
	return components.Bounds{Min: lo, Max: r2.Add(lo, r2.Vec{X: g.cellSize, Y: g.cellSize})}
}

// Cols returns the number of grid columns.
func (g *SpatialGrid) Cols() int { return g.cols }

// Rows returns the number of grid rows.
func (g *SpatialGrid) Rows() int { return g.rows }

// CellSize returns the cell edge length.
func (g *SpatialGrid) CellSize() float64 { return g.cellSize }

// Bounds returns the domain covered by the grid.
func (g *SpatialGrid) Bounds() components.Bounds { return g.bounds }

// NumCells returns cols * rows.
func (g *SpatialGrid) NumCells() int { return len(g.cells) }

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
