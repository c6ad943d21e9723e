package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/sph/components"
)

// NeighborSearch builds per-particle candidate lists from a SpatialGrid.
//
// With a positive skin the lists are Verlet lists: candidates are gathered
// within radius+skin and reused across iterations until a particle has moved
// more than skin/2 since the last build, the particle count changes, or the
// refresh period elapses. Consumers must prune candidates by live distance,
// which LiveNeighbors does.
//
// Lists are stored in one flat arena indexed by per-particle offsets.
type NeighborSearch struct {
	grid   *SpatialGrid
	radius float64
	skin   float64
	period int
	ring   int

	offsets []int // len N+1
	flat    []int
	refPos  []r2.Vec
	cells   []int // scratch

	built     bool
	refreshes int
}

// NewNeighborSearch creates a search over grid with the given interaction
// radius, Verlet skin (0 = rebuild every call) and refresh period.
func NewNeighborSearch(grid *SpatialGrid, radius, skin float64, period int) *NeighborSearch {
	if period < 1 {
		period = 1
	}
	ring := int(math.Ceil((radius + skin) / grid.CellSize()))
	if ring < 1 {
		ring = 1
	}
	return &NeighborSearch{
		grid:   grid,
		radius: radius,
		skin:   skin,
		period: period,
		ring:   ring,
	}
}

// Update refreshes the candidate lists when required and reports whether it
// did. The grid must already reflect the current positions.
func (s *NeighborSearch) Update(particles []components.Particle, iteration int) bool {
	if !s.needsRefresh(particles, iteration) {
		return false
	}
	s.rebuild(particles)
	return true
}

func (s *NeighborSearch) needsRefresh(particles []components.Particle, iteration int) bool {
	if !s.built || len(particles) != len(s.refPos) {
		return true
	}
	if s.skin == 0 || iteration%s.period == 0 {
		return true
	}
	limit := s.skin / 2
	limitSq := limit * limit
	for i := range particles {
		d := r2.Sub(particles[i].Pos, s.refPos[i])
		if r2.Norm2(d) > limitSq {
			return true
		}
	}
	return false
}

func (s *NeighborSearch) rebuild(particles []components.Particle) {
	n := len(particles)
	search := s.radius + s.skin
	searchSq := search * search

	s.offsets = s.offsets[:0]
	s.flat = s.flat[:0]
	if cap(s.refPos) < n {
		s.refPos = make([]r2.Vec, n)
	}
	s.refPos = s.refPos[:n]

	for i := range particles {
		s.offsets = append(s.offsets, len(s.flat))
		s.refPos[i] = particles[i].Pos

		cell, _ := s.grid.CellOf(particles[i].Pos)
		s.cells = s.grid.CellsAround(cell, s.ring, s.cells[:0])
		for _, c := range s.cells {
			for _, j := range s.grid.Cell(c) {
				d := r2.Sub(particles[i].Pos, particles[j].Pos)
				if r2.Norm2(d) <= searchSq {
					s.flat = append(s.flat, j)
				}
			}
		}
	}
	s.offsets = append(s.offsets, len(s.flat))
	s.built = true
	s.refreshes++
}

// Neighbors returns the candidate list of particle i, itself included.
// The slice is owned by the search and valid until the next refresh.
func (s *NeighborSearch) Neighbors(i int) []int {
	return s.flat[s.offsets[i]:s.offsets[i+1]]
}

// LiveNeighbors appends to dst the candidates of i that lie strictly within
// the interaction radius at the current positions.
func (s *NeighborSearch) LiveNeighbors(i int, particles []components.Particle, dst []int) []int {
	rSq := s.radius * s.radius
	for _, j := range s.Neighbors(i) {
		d := r2.Sub(particles[i].Pos, particles[j].Pos)
		if r2.Norm2(d) < rSq {
			dst = append(dst, j)
		}
	}
	return dst
}

// Radius returns the interaction radius.
func (s *NeighborSearch) Radius() float64 { return s.radius }

// Skin returns the Verlet skin width.
func (s *NeighborSearch) Skin() float64 { return s.skin }

// Refreshes returns how many times the lists have been rebuilt.
func (s *NeighborSearch) Refreshes() int { return s.refreshes }

// MeanCandidates returns the average candidate list length, self included.
func (s *NeighborSearch) MeanCandidates() float64 {
	n := len(s.offsets) - 1
	if n <= 0 {
		return 0
	}
	return float64(len(s.flat)) / float64(n)
}
