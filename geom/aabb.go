// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned bounding box.
//
// Min and Max are the extrema. Origin, Extent and SphereRadius are derived
// and kept consistent by NewAABB: Origin is the center, Extent the half size
// and SphereRadius the length of Extent.
//
// The zero value is a valid degenerate box at the origin. Use Empty for an
// accumulator that absorbs the first box passed to Union.
type AABB struct {
	Min, Max     mgl32.Vec3
	Origin       mgl32.Vec3
	Extent       mgl32.Vec3
	SphereRadius float32
}

// NewAABB returns the box spanning min and max with derived fields filled in.
func NewAABB(min, max mgl32.Vec3) AABB {
	b := AABB{Min: min, Max: max}
	b.derive()
	return b
}

// Empty returns an inverted box (Min=+Inf, Max=-Inf). It is not Valid and
// acts as the identity for Union.
func Empty() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b *AABB) derive() {
	b.Origin = b.Min.Add(b.Max).Mul(0.5)
	b.Extent = b.Max.Sub(b.Min).Mul(0.5)
	b.SphereRadius = b.Extent.Len()
}

// Valid reports whether every extremum is finite and Min <= Max on all axes.
// Boxes that are not valid must never be inserted into a BVH.
func (b AABB) Valid() bool {
	for i := range 3 {
		if !finite(b.Min[i]) || !finite(b.Max[i]) {
			return false
		}
		if b.Min[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Union returns the smallest box containing both a and b.
func Union(a, b AABB) AABB {
	return NewAABB(
		mgl32.Vec3{min(a.Min[0], b.Min[0]), min(a.Min[1], b.Min[1]), min(a.Min[2], b.Min[2])},
		mgl32.Vec3{max(a.Max[0], b.Max[0]), max(a.Max[1], b.Max[1]), max(a.Max[2], b.Max[2])},
	)
}

// Grow extends b in place to contain o. Derived fields are not updated;
// call Finish once accumulation is done.
func (b *AABB) Grow(o AABB) {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
}

// GrowPoint extends b in place to contain p. Derived fields are not updated.
func (b *AABB) GrowPoint(p mgl32.Vec3) {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
}

// Finish recomputes Origin, Extent and SphereRadius after Grow calls.
func (b *AABB) Finish() { b.derive() }

// Corners returns the eight corner points of b.
func (b AABB) Corners() [8]mgl32.Vec3 {
	var c [8]mgl32.Vec3
	for i := range 8 {
		c[i] = mgl32.Vec3{
			pick(i&1 != 0, b.Max[0], b.Min[0]),
			pick(i&2 != 0, b.Max[1], b.Min[1]),
			pick(i&4 != 0, b.Max[2], b.Min[2]),
		}
	}
	return c
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	for i := range 3 {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ApproxEqual compares extrema with an absolute tolerance.
func (b AABB) ApproxEqual(o AABB, eps float32) bool {
	for i := range 3 {
		if abs32(b.Min[i]-o.Min[i]) > eps || abs32(b.Max[i]-o.Max[i]) > eps {
			return false
		}
	}
	return true
}

// TransformAABB transforms the eight corners of local by m and returns the
// axis-aligned box around the results. The result is Empty when local or
// the transformed corners are not finite.
func TransformAABB(local AABB, m mgl32.Mat4) AABB {
	if !local.Valid() {
		return Empty()
	}
	out := Empty()
	for _, c := range local.Corners() {
		p := m.Mul4x1(c.Vec4(1))
		if w := p[3]; w != 1 && w != 0 {
			p = p.Mul(1 / w)
		}
		out.GrowPoint(p.Vec3())
	}
	if !out.Valid() {
		return Empty()
	}
	out.Finish()
	return out
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func pick(cond bool, a, b float32) float32 {
	if cond {
		return a
	}
	return b
}
