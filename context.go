// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visicore

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/visicore/drawprep"
	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/scene"
	"github.com/gogpu/visicore/upload"
	"github.com/gogpu/visicore/visibility"
)

// FrameInput is everything one frame reads from the scene layer and camera.
type FrameInput struct {
	// Scene is the authoritative instance list. Nil skips synchronization
	// and culls the state as it stands.
	Scene *visibility.SyncInput

	// Tables resolves meshes to index ranges when building draws.
	Tables *scene.Tables

	ViewProj mgl32.Mat4
	CamPos   mgl32.Vec3
}

// Context owns the visibility state of one view and everything derived
// from it each frame: the frame ring, the draw preparer and the uploader.
//
// The lifecycle is NewContext, then Frame (or Prepare and Upload) once per
// frame, then Close. A Context is not safe for concurrent use; independent
// contexts may run concurrently, see Group.
type Context struct {
	opts   options
	logger *slog.Logger

	state    *visibility.State
	ring     *frame.Ring
	preparer *drawprep.Preparer
	uploader *upload.Uploader
	frustum  geom.FrustumCache

	stats  Stats
	closed bool
}

// NewContext creates a context uploading through device and queue.
func NewContext(device hal.Device, queue hal.Queue, opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}

	up, err := upload.NewUploader(device, queue, upload.Config{
		Label:          o.label,
		MaxInstances:   o.maxInstances,
		MaxDraws:       o.maxDraws,
		TransferFamily: o.transferFamily,
		GraphicsFamily: o.graphicsFamily,
		Frames:         o.framesInFlight,
		Limits:         o.limits,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("visicore: %w", err)
	}

	c := &Context{
		opts:     o,
		logger:   logger,
		state:    visibility.NewState(visibility.Config{MaxLeaf: o.maxLeaf, Logger: logger}),
		ring:     frame.NewRing(o.framesInFlight),
		preparer: drawprep.NewPreparer(logger),
		uploader: up,
	}
	logger.Debug("visicore: context created",
		slog.String("label", o.label),
		slog.Int("frames_in_flight", o.framesInFlight),
		slog.Int("max_leaf", o.maxLeaf))
	return c, nil
}

// NewContextFromProvider creates a context on the device and queue of a
// gpucontext provider. The provider must also expose its HAL objects
// through HalDevice() and HalQueue().
func NewContextFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is %T", ErrNoHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is %T", ErrNoHAL, hp.HalQueue())
	}
	return NewContext(device, queue, opts...)
}

// State returns the visibility state.
func (c *Context) State() *visibility.State { return c.state }

// Ring returns the frame ring.
func (c *Context) Ring() *frame.Ring { return c.ring }

// Uploader returns the uploader, for buffer access and address registration.
func (c *Context) Uploader() *upload.Uploader { return c.uploader }

// Stats returns the statistics of the most recent frame.
func (c *Context) Stats() Stats { return c.stats }

// Sync reconciles the visibility state with the scene and rebuilds or
// refits the BVH as the outcome requires.
func (c *Context) Sync(in *visibility.SyncInput) (visibility.SyncResult, error) {
	if c.closed {
		return visibility.SyncNone, ErrClosed
	}
	r, err := c.state.Sync(in)
	if err != nil {
		return visibility.SyncNone, fmt.Errorf("visicore: sync: %w", err)
	}
	c.state.Apply(r)
	return r, nil
}

// Prepare runs the CPU phases of a frame: it takes the next frame context
// from the ring, synchronizes the scene, culls against the camera and
// builds the sorted indirect draws.
func (c *Context) Prepare(in *FrameInput) (*frame.Context, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if in.Tables == nil {
		return nil, ErrNoTables
	}

	if err := c.uploader.Ready(c.ring.NextIndex()); err != nil {
		return nil, fmt.Errorf("visicore: %w", err)
	}
	f, err := c.ring.Next(c.uploader.Completed())
	if err != nil {
		return nil, fmt.Errorf("visicore: %w", err)
	}

	st := Stats{Frame: f.Index}
	if in.Scene != nil {
		if st.Sync, err = c.Sync(in.Scene); err != nil {
			return nil, err
		}
	}

	fr, _ := c.frustum.Update(in.ViewProj)
	c.state.Cull(fr, &f.Visible)
	ds := c.preparer.BuildAndSortIndirectDraws(f, in.Tables, in.CamPos)

	st.Rows = c.state.Rows()
	st.Active = len(c.state.Active)
	st.Nodes = c.state.NodeCount()
	st.NodesVisited = f.Visible.NodesVisited
	st.Visible = f.Visible.Len()
	st.OpaqueBatches = ds.OpaqueBatches
	st.TransparentDraws = ds.TransparentDraws
	st.SkippedBatches = ds.SkippedBatches
	st.SkippedInstances = ds.SkippedInstances
	c.stats = st
	return f, nil
}

// Upload stages f on the GPU. It returns nil without submitting when f has
// nothing to draw.
func (c *Context) Upload(f *frame.Context) (*upload.Submission, error) {
	if c.closed {
		return nil, ErrClosed
	}
	n := len(f.Instances)
	sub, err := c.uploader.Upload(f)
	if err != nil {
		return nil, fmt.Errorf("visicore: upload frame %d: %w", f.Index, err)
	}
	c.stats.Dropped = n - len(f.Instances)
	if sub != nil {
		c.stats.Submission = sub.Value
	}
	return sub, nil
}

// Frame prepares and uploads one frame.
func (c *Context) Frame(in *FrameInput) (*frame.Context, *upload.Submission, error) {
	f, err := c.Prepare(in)
	if err != nil {
		return nil, nil, err
	}
	sub, err := c.Upload(f)
	if err != nil {
		return nil, nil, err
	}
	return f, sub, nil
}

// Close waits for outstanding uploads, releases GPU resources and drops the
// visibility state. Close is safe to call more than once.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.uploader.Close()
	c.state.Reset()
	c.frustum.Invalidate()
	c.logger.Debug("visicore: context closed", slog.String("label", c.opts.label))
	if err != nil {
		return fmt.Errorf("visicore: close: %w", err)
	}
	return nil
}
