// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import (
	"github.com/gogpu/visicore/geom"
)

// Mesh is one entry of the flat mesh table.
type Mesh struct {
	LocalAABB geom.AABB
	// WorldAABB is maintained by the asset layer and not read here.
	WorldAABB   geom.AABB
	DrawRangeID uint32
}

// DrawRange locates a mesh inside the shared index and vertex buffers.
type DrawRange struct {
	FirstIndex   uint32
	IndexCount   uint32
	VertexOffset int32
	VertexCount  uint32
}

// Within reports whether r lies inside buffers holding totalIndices indices
// and totalVertices vertices.
func (r DrawRange) Within(totalIndices, totalVertices uint32) bool {
	if r.VertexOffset < 0 {
		return false
	}
	if uint64(r.FirstIndex)+uint64(r.IndexCount) > uint64(totalIndices) {
		return false
	}
	return uint64(r.VertexOffset)+uint64(r.VertexCount) <= uint64(totalVertices)
}

// BakedInstance is one row of a scene's baked template.
type BakedInstance struct {
	MeshID     uint32
	MaterialID uint32
	Pass       PassType
}

// Asset is the per-scene data produced once loading finishes.
//
// NodeSlots maps each baked instance to the node slot of its transform
// within one copy's transform block. A nil NodeSlots maps instance l to
// slot l.
type Asset struct {
	Instances []BakedInstance
	NodeSlots []uint32
}

// NodeSlot returns the node slot of baked instance l.
func (a *Asset) NodeSlot(l int) uint32 {
	if a.NodeSlots == nil {
		return uint32(l)
	}
	return a.NodeSlots[l]
}

// Tables holds the flat mesh and draw-range tables and the sizes of the
// shared geometry buffers they index.
type Tables struct {
	Meshes     []Mesh
	DrawRanges []DrawRange

	TotalIndexCount  uint32
	TotalVertexCount uint32
}

// DrawRangeOf returns the draw range of mesh. ok is false when the mesh or
// its draw range is not in the tables.
func (t *Tables) DrawRangeOf(mesh uint32) (r DrawRange, ok bool) {
	if int(mesh) >= len(t.Meshes) {
		return DrawRange{}, false
	}
	id := t.Meshes[mesh].DrawRangeID
	if int(id) >= len(t.DrawRanges) {
		return DrawRange{}, false
	}
	return t.DrawRanges[id], true
}
