// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package frame holds the per-frame render data passed from culling to draw
// preparation and upload, and a ring of frames in flight.
package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/visibility"
)

// ErrFrameBusy is returned when a frame slot cannot be reused yet: its
// upload has not completed on the GPU, or its buffers are still owned by
// the consuming queue.
var ErrFrameBusy = errors.New("frame: slot still in flight")

// DrawIndexedIndirectSize is the byte size of one DrawIndexedIndirect.
const DrawIndexedIndirectSize = 20

// DrawIndexedIndirect is one indexed indirect draw command, laid out as the
// GPU reads it.
type DrawIndexedIndirect struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// Range is a contiguous run [First, First+Count).
type Range struct {
	First uint32
	Count uint32
}

// End returns First+Count.
func (r Range) End() uint32 { return r.First + r.Count }

// Context is the render data of one frame in flight.
type Context struct {
	// Index is the slot of the context within its Ring.
	Index int

	// Visible is the cull output: visible rows and their world bounds.
	Visible visibility.CullResult

	// Instances and Bounds are the visible rows rebuilt in draw order:
	// Draws[i] covers Instances[FirstInstance:FirstInstance+InstanceCount].
	Instances []visibility.GPUInstance
	Bounds    []geom.AABB
	Draws     []DrawIndexedIndirect

	// Opaque and Transparent are instance ranges into Instances.
	Opaque      Range
	Transparent Range

	// OpaqueDraws and TransparentDraws are command ranges into Draws.
	OpaqueDraws      Range
	TransparentDraws Range

	// TransferWaitValue is the timeline value the consumer waits for before
	// reading this frame's uploaded buffers. Zero means nothing was uploaded.
	TransferWaitValue uint64
}

// ClearRenderData empties all per-frame output, keeping allocated storage.
func (c *Context) ClearRenderData() {
	c.Visible.Reset()
	c.Instances = c.Instances[:0]
	c.Bounds = c.Bounds[:0]
	c.Draws = c.Draws[:0]
	c.Opaque = Range{}
	c.Transparent = Range{}
	c.OpaqueDraws = Range{}
	c.TransparentDraws = Range{}
	c.TransferWaitValue = 0
}

// Empty reports whether the frame has nothing to draw.
func (c *Context) Empty() bool { return len(c.Instances) == 0 }

// Ring cycles through a fixed number of frame contexts.
type Ring struct {
	frames []*Context
	next   int
}

// NewRing returns a ring of n contexts. n below 1 is treated as 1.
func NewRing(n int) *Ring {
	n = max(n, 1)
	r := &Ring{frames: make([]*Context, n)}
	for i := range r.frames {
		r.frames[i] = &Context{Index: i}
	}
	return r
}

// Len returns the number of frames in flight.
func (r *Ring) Len() int { return len(r.frames) }

// At returns the context in slot i.
func (r *Ring) At(i int) *Context { return r.frames[i] }

// NextIndex returns the slot Next hands out.
func (r *Ring) NextIndex() int { return r.next }

// Next returns the next context, cleared for a new frame. completed is the
// highest timeline value known to have been reached; the slot is only
// handed out once its previous upload is covered by it.
func (r *Ring) Next(completed uint64) (*Context, error) {
	c := r.frames[r.next]
	if c.TransferWaitValue > completed {
		return nil, fmt.Errorf("%w: slot %d waits for %d, completed %d",
			ErrFrameBusy, c.Index, c.TransferWaitValue, completed)
	}
	r.next = (r.next + 1) % len(r.frames)
	c.ClearRenderData()
	return c, nil
}
