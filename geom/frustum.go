// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package geom

import (
	"github.com/go-gl/mathgl/mgl32"
)

// minSafeRadius is the floor applied to a box's sphere radius in the plane
// test so that near-zero boxes are not rejected by rounding noise.
const minSafeRadius float32 = 0.01

// Plane is a plane equation n·p + D = 0 with a unit normal.
// Points with a positive signed distance are on the inner side.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Distance returns the signed distance from p to the plane.
func (p Plane) Distance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.D
}

func planeFromRow(r mgl32.Vec4) Plane {
	n := r.Vec3()
	l := n.Len()
	if l == 0 {
		return Plane{Normal: n, D: r[3]}
	}
	return Plane{Normal: n.Mul(1 / l), D: r[3] / l}
}

// Plane indices within Frustum.Planes.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is a view volume: six inward-facing planes and the eight
// world-space corner points.
type Frustum struct {
	Planes  [6]Plane
	Corners [8]mgl32.Vec3
}

// ndcCorners are the clip-space cube corners in mgl32's convention
// (z in [-1, 1]).
var ndcCorners = [8]mgl32.Vec4{
	{-1, -1, -1, 1}, {1, -1, -1, 1}, {-1, 1, -1, 1}, {1, 1, -1, 1},
	{-1, -1, 1, 1}, {1, -1, 1, 1}, {-1, 1, 1, 1}, {1, 1, 1, 1},
}

// ExtractFrustum derives the frustum of a combined projection*view matrix.
// Planes come from the rows of viewProj (Gribb/Hartmann) and are
// normalized; corners are the NDC cube unprojected through the inverse.
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	var f Frustum
	r0, r1, r2, r3 := viewProj.Row(0), viewProj.Row(1), viewProj.Row(2), viewProj.Row(3)

	f.Planes[PlaneLeft] = planeFromRow(r3.Add(r0))
	f.Planes[PlaneRight] = planeFromRow(r3.Sub(r0))
	f.Planes[PlaneBottom] = planeFromRow(r3.Add(r1))
	f.Planes[PlaneTop] = planeFromRow(r3.Sub(r1))
	f.Planes[PlaneNear] = planeFromRow(r3.Add(r2))
	f.Planes[PlaneFar] = planeFromRow(r3.Sub(r2))

	inv := viewProj.Inv()
	for i, c := range ndcCorners {
		p := inv.Mul4x1(c)
		if p[3] != 0 {
			p = p.Mul(1 / p[3])
		}
		f.Corners[i] = p.Vec3()
	}
	return f
}

// Bounds returns the axis-aligned box around the frustum corners.
func (f *Frustum) Bounds() AABB {
	b := Empty()
	for _, c := range f.Corners {
		b.GrowPoint(c)
	}
	b.Finish()
	return b
}

// BoxInFrustum reports whether box may be visible inside f.
//
// The test is conservative. A box is rejected when its bounding sphere or its
// positive vertex lies behind any plane, or when all eight frustum corners
// lie beyond one of the box's faces. The second stage removes large boxes
// that straddle two planes while being outside the frustum.
func BoxInFrustum(box AABB, f *Frustum) bool {
	safeRadius := max(box.SphereRadius, minSafeRadius)
	for i := range f.Planes {
		p := &f.Planes[i]
		dist := p.Distance(box.Origin)
		if dist < -safeRadius {
			return false
		}
		n := p.Normal
		reach := abs32(n[0])*box.Extent[0] + abs32(n[1])*box.Extent[1] + abs32(n[2])*box.Extent[2]
		if dist+reach < 0 {
			return false
		}
	}

	for axis := range 3 {
		above, below := 0, 0
		for _, c := range f.Corners {
			if c[axis] > box.Max[axis] {
				above++
			}
			if c[axis] < box.Min[axis] {
				below++
			}
		}
		if above == len(f.Corners) || below == len(f.Corners) {
			return false
		}
	}
	return true
}

// FrustumCache re-extracts the frustum only when the view-projection
// matrix differs from the previous call.
type FrustumCache struct {
	last    mgl32.Mat4
	frustum Frustum
	valid   bool
}

// Update returns the frustum of viewProj and whether it was re-extracted.
func (c *FrustumCache) Update(viewProj mgl32.Mat4) (*Frustum, bool) {
	if c.valid && c.last == viewProj {
		return &c.frustum, false
	}
	c.last = viewProj
	c.frustum = ExtractFrustum(viewProj)
	c.valid = true
	return &c.frustum, true
}

// Invalidate forces the next Update to re-extract.
func (c *FrustumCache) Invalidate() { c.valid = false }

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
