package components

import "gonum.org/v1/gonum/spatial/r2"

// Bounds is an axis-aligned rectangle [Min, Max].
type Bounds struct {
	Min r2.Vec
	Max r2.Vec
}

// Width returns the x extent.
func (b Bounds) Width() float64 { return b.Max.X - b.Min.X }

// Height returns the y extent.
func (b Bounds) Height() float64 { return b.Max.Y - b.Min.Y }

// Contains reports whether p lies inside the closed rectangle.
func (b Bounds) Contains(p r2.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Center returns the midpoint.
func (b Bounds) Center() r2.Vec {
	return r2.Scale(0.5, r2.Add(b.Min, b.Max))
}
