// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visibility

import (
	"github.com/gogpu/visicore/geom"
)

// CullResult holds the visible rows of one Cull call as parallel arrays.
type CullResult struct {
	Instances []GPUInstance
	Bounds    []geom.AABB

	// NodesVisited counts BVH nodes tested against the frustum.
	NodesVisited int
}

// Reset empties the result, keeping its storage.
func (r *CullResult) Reset() {
	r.Instances = r.Instances[:0]
	r.Bounds = r.Bounds[:0]
	r.NodesVisited = 0
}

// Len returns the number of visible rows.
func (r *CullResult) Len() int { return len(r.Instances) }

// Cull walks the BVH depth-first and collects every live row whose bounds
// pass the frustum test. out is cleared first.
//
// A leaf box is a union of its rows, so each row is tested again before it
// is emitted. Rows appear in traversal order.
func (s *State) Cull(f *geom.Frustum, out *CullResult) {
	out.Reset()
	if s.tree.Empty() {
		return
	}

	nodes := s.tree.Nodes
	stack := append(s.stack[:0], 0)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &nodes[i]
		out.NodesVisited++
		if !geom.BoxInFrustum(n.Box, f) {
			continue
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for _, row := range s.tree.LeafIndex[n.First : n.First+n.Count] {
			box := s.WorldAABBs[row]
			if !geom.BoxInFrustum(box, f) {
				continue
			}
			out.Instances = append(out.Instances, s.Instances[row])
			out.Bounds = append(out.Bounds, box)
		}
	}
	s.stack = stack
}
