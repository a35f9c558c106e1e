// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package geom provides the spatial primitives used by visibility culling:
// axis-aligned bounding boxes, view frusta and the box/frustum test.
//
// All functions are total. Invalid input (non-finite or inverted extrema)
// produces an Empty box rather than an error; callers check [AABB.Valid]
// before inserting a box into an acceleration structure.
//
// Matrices follow mgl32 conventions: column-major storage and an
// OpenGL-style clip space with z in [-1, 1].
package geom
