// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import "fmt"

// ID identifies a loaded scene.
type ID uint32

// DrawType selects how a scene instance is replicated and updated.
type DrawType uint8

const (
	// DrawStatic is a single copy whose transforms rarely change.
	DrawStatic DrawType = iota
	// DrawMultiStatic draws one baked template a runtime-adjustable number
	// of times, each copy with its own block of transforms.
	DrawMultiStatic
	// DrawDynamic instances are animated every frame and are not tracked by
	// the incremental visibility path.
	DrawDynamic
)

// String returns the name of the draw type.
func (d DrawType) String() string {
	switch d {
	case DrawStatic:
		return "Static"
	case DrawMultiStatic:
		return "MultiStatic"
	case DrawDynamic:
		return "Dynamic"
	default:
		return fmt.Sprintf("Unknown(%d)", int(d))
	}
}

// Incremental reports whether instances of this type are synchronized
// incrementally into visibility state.
func (d DrawType) Incremental() bool {
	return d == DrawStatic || d == DrawMultiStatic
}

// PassType selects the render pass an instance is drawn in.
type PassType uint8

const (
	PassOpaque PassType = iota
	PassTransparent
)

// String returns the name of the pass.
func (p PassType) String() string {
	switch p {
	case PassOpaque:
		return "Opaque"
	case PassTransparent:
		return "Transparent"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// GlobalInstance is the scene layer's authoritative record of one placed
// scene. It is owned and mutated outside the visibility core, for example
// when a replica count changes or the transform array is repacked.
//
// Copy c of the scene uses transforms
// [FirstTransform+c*TransformCount, FirstTransform+(c+1)*TransformCount).
type GlobalInstance struct {
	SceneID    ID
	InstanceID uint32
	DrawType   DrawType

	FirstTransform uint32
	TransformCount uint32

	// PerInstanceStride is the number of baked mesh/material rows per copy.
	PerInstanceStride uint32

	UsedCopies     uint32
	CapacityCopies uint32
}

// TransformID returns the world transform index of node slot for copy c.
func (g *GlobalInstance) TransformID(c, slot uint32) uint32 {
	return g.FirstTransform + c*g.TransformCount + slot
}

// Rows returns the number of live rows the instance contributes.
func (g *GlobalInstance) Rows() uint32 {
	return g.UsedCopies * g.PerInstanceStride
}
