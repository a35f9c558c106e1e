// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package drawprep turns a frame's visible rows into indexed indirect draw
// commands and a draw-ordered instance array.
//
// Opaque rows are batched by (mesh, material) with one command per batch,
// batches ordered by key. Transparent rows are drawn one command each,
// farthest from the camera first. Opaque instances precede transparent
// ones in the rebuilt array.
package drawprep

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/internal/logging"
	"github.com/gogpu/visicore/scene"
)

// Stats summarizes one BuildAndSortIndirectDraws call.
type Stats struct {
	OpaqueBatches    int
	TransparentDraws int

	// SkippedBatches counts opaque batches and transparent instances whose
	// draw range was missing or outside the geometry buffers.
	SkippedBatches   int
	SkippedInstances int
}

type batchKey struct {
	mesh, material uint32
}

func compareKeys(a, b batchKey) int {
	if c := cmp.Compare(a.mesh, b.mesh); c != 0 {
		return c
	}
	return cmp.Compare(a.material, b.material)
}

type opaqueEntry struct {
	key batchKey
	src int
}

type transparentEntry struct {
	dist float32
	src  int
}

// Preparer builds draw commands. Its scratch storage is reused between
// calls, so a Preparer must not be shared between goroutines.
type Preparer struct {
	logger      *slog.Logger
	opaque      []opaqueEntry
	transparent []transparentEntry
}

// NewPreparer returns a Preparer logging to logger. Nil disables logging.
func NewPreparer(logger *slog.Logger) *Preparer {
	return &Preparer{logger: logging.OrNop(logger)}
}

// BuildAndSortIndirectDraws fills f.Instances, f.Bounds, f.Draws and the
// frame's ranges from f.Visible.
//
// A batch whose draw range does not fit the shared index and vertex
// buffers is skipped with a warning; the rest of the frame is still drawn.
func (p *Preparer) BuildAndSortIndirectDraws(f *frame.Context, tables *scene.Tables, camPos mgl32.Vec3) Stats {
	var st Stats
	vis := &f.Visible

	f.Instances = f.Instances[:0]
	f.Bounds = f.Bounds[:0]
	f.Draws = f.Draws[:0]

	p.opaque = p.opaque[:0]
	p.transparent = p.transparent[:0]
	for i, in := range vis.Instances {
		if in.Pass == scene.PassTransparent {
			d := vis.Bounds[i].Origin.Sub(camPos).Len()
			p.transparent = append(p.transparent, transparentEntry{dist: d, src: i})
			continue
		}
		p.opaque = append(p.opaque, opaqueEntry{key: batchKey{in.MeshID, in.MaterialID}, src: i})
	}

	// Stable sort keeps cull order inside each batch.
	slices.SortStableFunc(p.opaque, func(a, b opaqueEntry) int { return compareKeys(a.key, b.key) })

	for start := 0; start < len(p.opaque); {
		key := p.opaque[start].key
		end := start + 1
		for end < len(p.opaque) && p.opaque[end].key == key {
			end++
		}
		batch := p.opaque[start:end]
		start = end

		dr, ok := p.drawRange(tables, key, len(batch))
		if !ok {
			st.SkippedBatches++
			st.SkippedInstances += len(batch)
			continue
		}
		f.Draws = append(f.Draws, frame.DrawIndexedIndirect{
			IndexCount:    dr.IndexCount,
			InstanceCount: uint32(len(batch)),
			FirstIndex:    dr.FirstIndex,
			BaseVertex:    dr.VertexOffset,
			FirstInstance: uint32(len(f.Instances)),
		})
		for _, e := range batch {
			f.Instances = append(f.Instances, vis.Instances[e.src])
			f.Bounds = append(f.Bounds, vis.Bounds[e.src])
		}
		st.OpaqueBatches++
	}
	f.Opaque = frame.Range{First: 0, Count: uint32(len(f.Instances))}
	f.OpaqueDraws = frame.Range{First: 0, Count: uint32(len(f.Draws))}

	slices.SortStableFunc(p.transparent, func(a, b transparentEntry) int { return cmp.Compare(b.dist, a.dist) })

	for _, e := range p.transparent {
		in := vis.Instances[e.src]
		dr, ok := p.drawRange(tables, batchKey{in.MeshID, in.MaterialID}, 1)
		if !ok {
			st.SkippedBatches++
			st.SkippedInstances++
			continue
		}
		f.Draws = append(f.Draws, frame.DrawIndexedIndirect{
			IndexCount:    dr.IndexCount,
			InstanceCount: 1,
			FirstIndex:    dr.FirstIndex,
			BaseVertex:    dr.VertexOffset,
			FirstInstance: uint32(len(f.Instances)),
		})
		f.Instances = append(f.Instances, in)
		f.Bounds = append(f.Bounds, vis.Bounds[e.src])
		st.TransparentDraws++
	}
	f.Transparent = frame.Range{First: f.Opaque.Count, Count: uint32(len(f.Instances)) - f.Opaque.Count}
	f.TransparentDraws = frame.Range{First: f.OpaqueDraws.Count, Count: uint32(len(f.Draws)) - f.OpaqueDraws.Count}

	return st
}

func (p *Preparer) drawRange(tables *scene.Tables, key batchKey, n int) (scene.DrawRange, bool) {
	dr, ok := tables.DrawRangeOf(key.mesh)
	if !ok {
		p.logger.Warn("drawprep: mesh has no draw range, batch skipped",
			slog.Uint64("mesh", uint64(key.mesh)),
			slog.Uint64("material", uint64(key.material)),
			slog.Int("instances", n))
		return dr, false
	}
	if !dr.Within(tables.TotalIndexCount, tables.TotalVertexCount) {
		p.logger.Warn("drawprep: draw range outside geometry buffers, batch skipped",
			slog.Uint64("mesh", uint64(key.mesh)),
			slog.Uint64("material", uint64(key.material)),
			slog.Uint64("first_index", uint64(dr.FirstIndex)),
			slog.Uint64("index_count", uint64(dr.IndexCount)),
			slog.Int64("vertex_offset", int64(dr.VertexOffset)),
			slog.Uint64("vertex_count", uint64(dr.VertexCount)),
			slog.Int("instances", n))
		return dr, false
	}
	return dr, true
}
