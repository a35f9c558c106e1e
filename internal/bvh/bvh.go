// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package bvh implements a flat bounding-volume hierarchy over an indexed
// array of world-space boxes.
//
// Nodes are stored in pre-order, so every child index is greater than its
// parent's. Refit relies on this to recompute bounds in a single reverse
// sweep.
package bvh

import (
	"github.com/gogpu/visicore/geom"
)

// DefaultMaxLeaf is the largest number of rows stored in a leaf.
const DefaultMaxLeaf = 8

// centroidEpsilon is the centroid spread below which a range is not split.
const centroidEpsilon = 1e-6

// Node is one BVH node. Leaves have Left == Right == -1 and cover
// LeafIndex[First:First+Count]; internal nodes have Count == 0.
type Node struct {
	Box         geom.AABB
	Left, Right int32
	First       uint32
	Count       uint32
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.Left < 0 }

// Tree is a BVH over a caller-owned box array. The tree stores row indices
// only; boxes are passed to Build and Refit.
//
// The zero value is an empty tree using DefaultMaxLeaf.
type Tree struct {
	Nodes     []Node
	LeafIndex []uint32

	// MaxLeaf overrides DefaultMaxLeaf when positive.
	MaxLeaf int
}

// Empty reports whether the tree has no nodes.
func (t *Tree) Empty() bool { return len(t.Nodes) == 0 }

// Reset drops all nodes while keeping allocated storage.
func (t *Tree) Reset() {
	t.Nodes = t.Nodes[:0]
	t.LeafIndex = t.LeafIndex[:0]
}

func (t *Tree) maxLeaf() uint32 {
	if t.MaxLeaf > 0 {
		return uint32(t.MaxLeaf)
	}
	return DefaultMaxLeaf
}

// Build rebuilds the tree over the rows listed in active. Every listed box
// must be valid.
//
// Each node splits its range at the median of the box centroids along the
// axis with the largest centroid spread. Ranges of at most MaxLeaf rows, or
// whose centroids coincide, become leaves.
func (t *Tree) Build(active []uint32, boxes []geom.AABB) {
	t.Reset()
	if len(active) == 0 {
		return
	}
	t.LeafIndex = append(t.LeafIndex, active...)
	if c := 2*len(active)/int(t.maxLeaf()) + 1; cap(t.Nodes) < c {
		t.Nodes = make([]Node, 0, c)
	}
	t.build(boxes, 0, uint32(len(active)))
}

func (t *Tree) build(boxes []geom.AABB, first, count uint32) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1})

	rows := t.LeafIndex[first : first+count]
	bounds := geom.Empty()
	centroids := geom.Empty()
	for _, r := range rows {
		b := &boxes[r]
		bounds.Grow(*b)
		centroids.GrowPoint(centroid(b))
	}
	bounds.Finish()
	t.Nodes[idx].Box = bounds

	spread := centroids.Max.Sub(centroids.Min)
	axis := 0
	if spread[1] > spread[axis] {
		axis = 1
	}
	if spread[2] > spread[axis] {
		axis = 2
	}

	if count <= t.maxLeaf() || spread[axis] <= centroidEpsilon {
		t.Nodes[idx].First = first
		t.Nodes[idx].Count = count
		return idx
	}

	mid := count / 2
	selectNth(rows, int(mid), boxes, axis)

	left := t.build(boxes, first, mid)
	right := t.build(boxes, first+mid, count-mid)
	t.Nodes[idx].Left = left
	t.Nodes[idx].Right = right
	return idx
}

// Refit recomputes every node's bounds from boxes without changing the
// partition. Use it when only the boxes moved since the last Build.
func (t *Tree) Refit(boxes []geom.AABB) {
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			b := geom.Empty()
			for _, r := range t.LeafIndex[n.First : n.First+n.Count] {
				b.Grow(boxes[r])
			}
			b.Finish()
			n.Box = b
			continue
		}
		n.Box = geom.Union(t.Nodes[n.Left].Box, t.Nodes[n.Right].Box)
	}
}

// Depth returns the number of levels in the tree.
func (t *Tree) Depth() int {
	if t.Empty() {
		return 0
	}
	return t.depth(0)
}

func (t *Tree) depth(i int32) int {
	n := &t.Nodes[i]
	if n.IsLeaf() {
		return 1
	}
	return 1 + max(t.depth(n.Left), t.depth(n.Right))
}

func centroid(b *geom.AABB) [3]float32 {
	return [3]float32{
		(b.Min[0] + b.Max[0]) * 0.5,
		(b.Min[1] + b.Max[1]) * 0.5,
		(b.Min[2] + b.Max[2]) * 0.5,
	}
}

// selectNth reorders rows so that rows[n] holds the row whose centroid
// would be at position n if sorted along axis, with no greater centroid
// before it and no smaller one after it.
func selectNth(rows []uint32, n int, boxes []geom.AABB, axis int) {
	key := func(r uint32) float32 { return boxes[r].Min[axis] + boxes[r].Max[axis] }

	lo, hi := 0, len(rows)-1
	for hi > lo {
		mid := lo + (hi-lo)/2
		// median of three
		a, b, c := key(rows[lo]), key(rows[mid]), key(rows[hi])
		pivot := max(min(a, b), min(max(a, b), c))

		i, j := lo, hi
		for i <= j {
			for key(rows[i]) < pivot {
				i++
			}
			for key(rows[j]) > pivot {
				j--
			}
			if i <= j {
				rows[i], rows[j] = rows[j], rows[i]
				i++
				j--
			}
		}
		switch {
		case n <= j:
			hi = j
		case n >= i:
			lo = i
		default:
			return
		}
	}
}
