// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visibility

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/internal/bvh"
	"github.com/gogpu/visicore/internal/logging"
	"github.com/gogpu/visicore/scene"
)

// GPUInstance is one instance row as consumed by shaders: a mesh drawn
// with a material at a world transform.
type GPUInstance struct {
	MeshID      uint32
	MaterialID  uint32
	TransformID uint32
	DrawType    scene.DrawType
	Pass        scene.PassType
}

// Slab is the contiguous row range owned by one scene.
//
// Rows [First, First+UsedCopies*Stride) are live. Rows up to
// First+Allocated*Stride stay reserved after a shrink and are reused when
// the copy count grows again.
type Slab struct {
	First      uint32
	Stride     uint32
	UsedCopies uint32
	Allocated  uint32

	FirstTransform uint32
	TransformCount uint32
}

// Live returns the half-open live row range of the slab.
func (s *Slab) Live() (first, end uint32) {
	return s.First, s.First + s.UsedCopies*s.Stride
}

func (s *Slab) allocatedEnd() uint32 {
	return s.First + s.Allocated*s.Stride
}

// SyncResult is the single outcome of one Sync call.
type SyncResult uint8

const (
	// SyncNone means nothing changed.
	SyncNone SyncResult = iota
	// SyncRefit means only bounds of existing live rows moved.
	SyncRefit
	// SyncTopology means the live row set changed and the BVH must be rebuilt.
	SyncTopology
)

// String returns the name of the result.
func (r SyncResult) String() string {
	switch r {
	case SyncNone:
		return "None"
	case SyncRefit:
		return "Refit"
	case SyncTopology:
		return "Topology"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Config configures a State.
type Config struct {
	// MaxLeaf is the BVH leaf size. Zero selects bvh.DefaultMaxLeaf.
	MaxLeaf int

	// Logger receives debug and warning records. Nil disables logging.
	Logger *slog.Logger
}

// State is the visibility state of one view context: flat instance rows,
// their world bounds and transform ids, per-scene slabs, the list of live
// rows and a BVH over them.
//
// Instances, WorldAABBs and TransformIDs are parallel and only ever grow.
// A State is owned by a single goroutine.
type State struct {
	Instances    []GPUInstance
	WorldAABBs   []geom.AABB
	TransformIDs []uint32

	Slabs map[scene.ID]*Slab

	// Active lists live rows with valid bounds, ordered by slab position.
	Active []uint32

	tree   bvh.Tree
	logger *slog.Logger

	seen  map[scene.ID]struct{}
	stack []int32
	order []*Slab
}

// NewState returns an empty State.
func NewState(cfg Config) *State {
	return &State{
		Slabs:  make(map[scene.ID]*Slab),
		tree:   bvh.Tree{MaxLeaf: cfg.MaxLeaf},
		logger: logging.OrNop(cfg.Logger),
		seen:   make(map[scene.ID]struct{}),
	}
}

// Rows returns the number of allocated rows, live or not.
func (s *State) Rows() int { return len(s.Instances) }

// NodeCount returns the number of BVH nodes.
func (s *State) NodeCount() int { return len(s.tree.Nodes) }

// Depth returns the BVH depth.
func (s *State) Depth() int { return s.tree.Depth() }

// Slab returns a copy of the slab of scene id.
func (s *State) Slab(id scene.ID) (Slab, bool) {
	sl, ok := s.Slabs[id]
	if !ok {
		return Slab{}, false
	}
	return *sl, true
}

// Apply updates the BVH for the outcome of a Sync call: SyncTopology
// rebuilds it, SyncRefit refits it in place, SyncNone does nothing.
func (s *State) Apply(r SyncResult) {
	switch r {
	case SyncTopology:
		s.tree.Build(s.Active, s.WorldAABBs)
		s.logger.Debug("visibility: bvh rebuilt",
			slog.Int("active", len(s.Active)),
			slog.Int("nodes", len(s.tree.Nodes)))
	case SyncRefit:
		s.tree.Refit(s.WorldAABBs)
		s.logger.Debug("visibility: bvh refit", slog.Int("nodes", len(s.tree.Nodes)))
	}
}

// Reset releases all rows, slabs and the BVH. Allocated storage is kept.
func (s *State) Reset() {
	s.Instances = s.Instances[:0]
	s.WorldAABBs = s.WorldAABBs[:0]
	s.TransformIDs = s.TransformIDs[:0]
	s.Active = s.Active[:0]
	clear(s.Slabs)
	s.tree.Reset()
}

// rebuildActive re-enumerates the live range of every slab in row order.
// Rows whose bounds are not valid are left out.
func (s *State) rebuildActive() {
	s.order = s.order[:0]
	for _, sl := range s.Slabs {
		s.order = append(s.order, sl)
	}
	slices.SortFunc(s.order, func(a, b *Slab) int { return cmp.Compare(a.First, b.First) })

	s.Active = s.Active[:0]
	for _, sl := range s.order {
		first, end := sl.Live()
		for row := first; row < end; row++ {
			if s.WorldAABBs[row].Valid() {
				s.Active = append(s.Active, row)
			}
		}
	}
}

// grow extends the row arrays by n rows, which the caller must fill, and
// returns the first new row.
func (s *State) grow(n uint32) uint32 {
	first := uint32(len(s.Instances))
	total := len(s.Instances) + int(n)
	s.Instances = slices.Grow(s.Instances, int(n))[:total]
	s.WorldAABBs = slices.Grow(s.WorldAABBs, int(n))[:total]
	s.TransformIDs = slices.Grow(s.TransformIDs, int(n))[:total]
	return first
}
