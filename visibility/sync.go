// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visibility

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/scene"
)

// Sync contract violations. They indicate a bug in the scene layer.
var (
	ErrStrideMismatch       = errors.New("visibility: per-instance stride does not match baked template")
	ErrNodeSlotOutOfRange   = errors.New("visibility: node slot outside transform block")
	ErrTransformOutOfRange  = errors.New("visibility: transform id outside transform array")
	ErrMeshOutOfRange       = errors.New("visibility: mesh id outside mesh table")
	ErrCopiesExceedCapacity = errors.New("visibility: used copies exceed capacity")
)

// SyncInput is the authoritative scene-layer data one Sync call reconciles
// against.
type SyncInput struct {
	Instances  []scene.GlobalInstance
	Assets     map[scene.ID]*scene.Asset
	Meshes     []scene.Mesh
	Transforms []mgl32.Mat4
}

// Sync reconciles the state with the global instance list.
//
// Only Static and MultiStatic instances participate. Per scene:
//   - a scene without a slab is baked into rows appended at the end;
//   - a larger copy count writes only the new copies, appending when needed;
//   - a smaller copy count only lowers the slab's live count;
//   - a moved transform block rewrites bounds in place.
//
// Scenes no longer listed are shrunk to zero copies. Scenes whose asset is
// not loaded yet are skipped. The live row list is rebuilt once at the end
// when any scene changed its live set.
//
// All instances are validated before any row is written, so on error the
// state is unchanged.
func (s *State) Sync(in *SyncInput) (SyncResult, error) {
	if err := s.validate(in); err != nil {
		return SyncNone, err
	}

	clear(s.seen)
	topology, refit := false, false

	for i := range in.Instances {
		g := &in.Instances[i]
		if !g.DrawType.Incremental() {
			continue
		}
		if _, dup := s.seen[g.SceneID]; dup {
			s.logger.Warn("visibility: duplicate scene instance ignored",
				slog.Uint64("scene", uint64(g.SceneID)),
				slog.Uint64("instance", uint64(g.InstanceID)))
			continue
		}
		asset := in.Assets[g.SceneID]
		if asset == nil {
			s.logger.Debug("visibility: scene asset not loaded", slog.Uint64("scene", uint64(g.SceneID)))
			continue
		}
		s.seen[g.SceneID] = struct{}{}

		slab, ok := s.Slabs[g.SceneID]
		switch {
		case !ok || slab.Stride != g.PerInstanceStride:
			s.bake(g, asset, in)
			topology = true
		case g.UsedCopies > slab.UsedCopies:
			s.growCopies(slab, g, asset, in)
			topology = true
		case g.UsedCopies < slab.UsedCopies:
			slab.UsedCopies = g.UsedCopies
			if moved(slab, g) {
				retarget(slab, g)
				s.writeRows(slab, g, asset, in, 0, slab.UsedCopies)
			}
			topology = true
		case moved(slab, g):
			retarget(slab, g)
			if s.writeRows(slab, g, asset, in, 0, slab.UsedCopies) {
				topology = true
			} else {
				refit = true
			}
		}
	}

	for id, slab := range s.Slabs {
		if _, ok := s.seen[id]; !ok && slab.UsedCopies > 0 {
			slab.UsedCopies = 0
			topology = true
		}
	}

	switch {
	case topology:
		s.rebuildActive()
		s.logger.Debug("visibility: topology changed",
			slog.Int("rows", len(s.Instances)),
			slog.Int("active", len(s.Active)))
		return SyncTopology, nil
	case refit:
		return SyncRefit, nil
	default:
		return SyncNone, nil
	}
}

func (s *State) validate(in *SyncInput) error {
	for i := range in.Instances {
		g := &in.Instances[i]
		if !g.DrawType.Incremental() {
			continue
		}
		asset := in.Assets[g.SceneID]
		if asset == nil {
			continue
		}
		if err := validateInstance(g, asset, in); err != nil {
			return fmt.Errorf("scene %d instance %d: %w", g.SceneID, g.InstanceID, err)
		}
	}
	return nil
}

func validateInstance(g *scene.GlobalInstance, asset *scene.Asset, in *SyncInput) error {
	if int(g.PerInstanceStride) != len(asset.Instances) {
		return fmt.Errorf("%w: stride %d, template %d", ErrStrideMismatch, g.PerInstanceStride, len(asset.Instances))
	}
	if asset.NodeSlots != nil && len(asset.NodeSlots) != len(asset.Instances) {
		return fmt.Errorf("%w: %d slots for %d baked instances", ErrNodeSlotOutOfRange, len(asset.NodeSlots), len(asset.Instances))
	}
	if g.CapacityCopies > 0 && g.UsedCopies > g.CapacityCopies {
		return fmt.Errorf("%w: %d > %d", ErrCopiesExceedCapacity, g.UsedCopies, g.CapacityCopies)
	}
	for l, b := range asset.Instances {
		if slot := asset.NodeSlot(l); slot >= g.TransformCount {
			return fmt.Errorf("%w: slot %d, block %d", ErrNodeSlotOutOfRange, slot, g.TransformCount)
		}
		if int(b.MeshID) >= len(in.Meshes) {
			return fmt.Errorf("%w: mesh %d", ErrMeshOutOfRange, b.MeshID)
		}
	}
	if g.UsedCopies > 0 && g.PerInstanceStride > 0 {
		end := uint64(g.FirstTransform) + uint64(g.UsedCopies)*uint64(g.TransformCount)
		if end > uint64(len(in.Transforms)) {
			return fmt.Errorf("%w: need %d transforms, have %d", ErrTransformOutOfRange, end, len(in.Transforms))
		}
	}
	return nil
}

func moved(slab *Slab, g *scene.GlobalInstance) bool {
	return slab.FirstTransform != g.FirstTransform || slab.TransformCount != g.TransformCount
}

func retarget(slab *Slab, g *scene.GlobalInstance) {
	slab.FirstTransform = g.FirstTransform
	slab.TransformCount = g.TransformCount
}

// bake allocates a fresh slab at the end of the row arrays. A slab that
// already existed with another stride is abandoned.
func (s *State) bake(g *scene.GlobalInstance, asset *scene.Asset, in *SyncInput) {
	slab := &Slab{
		First:          s.grow(g.Rows()),
		Stride:         g.PerInstanceStride,
		UsedCopies:     g.UsedCopies,
		Allocated:      g.UsedCopies,
		FirstTransform: g.FirstTransform,
		TransformCount: g.TransformCount,
	}
	s.Slabs[g.SceneID] = slab
	s.writeRows(slab, g, asset, in, 0, slab.UsedCopies)
}

// growCopies raises the live copy count of slab to g.UsedCopies.
//
// Copies still within the slab's allocation are rewritten in place. Beyond
// that, the slab is extended when it ends the row arrays and moved to a
// fresh region at the end otherwise.
func (s *State) growCopies(slab *Slab, g *scene.GlobalInstance, asset *scene.Asset, in *SyncInput) {
	old := slab.UsedCopies
	if moved(slab, g) {
		retarget(slab, g)
		old = 0
	}

	if g.UsedCopies > slab.Allocated {
		if slab.allocatedEnd() == uint32(len(s.Instances)) {
			s.grow((g.UsedCopies - slab.Allocated) * slab.Stride)
		} else {
			slab.First = s.grow(g.UsedCopies * slab.Stride)
			old = 0
		}
		slab.Allocated = g.UsedCopies
	}
	slab.UsedCopies = g.UsedCopies
	s.writeRows(slab, g, asset, in, old, slab.UsedCopies)
}

// writeRows writes copies [from, to) of slab from the baked template. It
// reports whether any previously live row changed bound validity.
func (s *State) writeRows(slab *Slab, g *scene.GlobalInstance, asset *scene.Asset, in *SyncInput, from, to uint32) bool {
	flipped := false
	liveEnd := slab.First + slab.UsedCopies*slab.Stride
	for c := from; c < to; c++ {
		base := slab.First + c*slab.Stride
		for l, b := range asset.Instances {
			row := base + uint32(l)
			tid := g.TransformID(c, asset.NodeSlot(l))

			box := geom.TransformAABB(in.Meshes[b.MeshID].LocalAABB, in.Transforms[tid])
			if row < liveEnd && s.WorldAABBs[row].Valid() != box.Valid() {
				flipped = true
			}

			s.Instances[row] = GPUInstance{
				MeshID:      b.MeshID,
				MaterialID:  b.MaterialID,
				TransformID: tid,
				DrawType:    g.DrawType,
				Pass:        b.Pass,
			}
			s.WorldAABBs[row] = box
			s.TransformIDs[row] = tid
		}
	}
	return flipped
}
