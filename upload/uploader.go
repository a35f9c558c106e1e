// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/internal/logging"
)

// Buffer usages. Each destination buffer moves between its copy state and
// the state it is read in.
const (
	stagingUsage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc

	instanceRead = gputypes.BufferUsageStorage
	drawRead     = gputypes.BufferUsageIndirect | gputypes.BufferUsageStorage
	tableRead    = gputypes.BufferUsageStorage | gputypes.BufferUsageUniform
)

// Config configures an Uploader.
type Config struct {
	// Label prefixes GPU object labels.
	Label string

	// MaxInstances and MaxDraws size the destination and staging buffers.
	// Frames beyond them are truncated with a warning.
	MaxInstances int
	MaxDraws     int

	// TransferFamily is the queue family uploads are submitted on;
	// GraphicsFamily is the family that reads the results.
	TransferFamily uint32
	GraphicsFamily uint32

	// Limits of the device. The zero value selects gputypes.DefaultLimits.
	Limits gputypes.Limits

	// Frames is the number of destination buffer sets, one per frame in
	// flight. A frame uploads into set Index % Frames.
	Frames int

	// Logger receives debug and warning records. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config for 64K instances and draws on a single
// queue family.
func DefaultConfig() Config {
	return Config{
		Label:        "visicore",
		MaxInstances: 1 << 16,
		MaxDraws:     1 << 16,
		Frames:       2,
		Limits:       gputypes.DefaultLimits(),
	}
}

// Submission describes one submitted upload.
type Submission struct {
	// Value is the timeline value signaled when the copies complete.
	Value uint64

	// Slot is the destination buffer set the frame was copied into.
	Slot    int
	Targets Targets

	// Wait is the earlier value this submission is ordered after, or zero
	// when no earlier upload was outstanding.
	Wait uint64

	Instances int
	Draws     int

	// Dropped counts instances cut because the frame exceeded capacity.
	Dropped int

	// Bytes is the size of the staged data.
	Bytes uint64

	// Table is the address table uploaded with the frame.
	Table AddressTable

	// Handoff transfers the address table to the consuming queue.
	Handoff *Handoff
}

// Targets is one set of device-local destination buffers.
type Targets struct {
	Instances hal.Buffer
	Draws     hal.Buffer
	Table     hal.Buffer
}

type slot struct {
	Targets
	// handoff is the last cross-family transfer out of this set.
	handoff *Handoff
}

type pending struct {
	value   uint64
	cleanup func()
}

// Uploader stages per-frame instance rows, draw commands and the address
// table into device-local buffers on a transfer queue.
//
// Each frame in flight owns a set of three destination buffers, so a frame
// never overwrites buffers another frame may still be read from. Uploads
// are ordered by the queue's monotonically increasing submission index, which
// serves as the timeline. Staging buffers and command buffers are released
// only once PollCompleted reports their value reached.
//
// An Uploader is not safe for concurrent use.
type Uploader struct {
	device hal.Device
	queue  hal.Queue
	cfg    Config
	logger *slog.Logger

	layout Layout
	align  uint64

	slots []slot

	user []AddressEntry

	free    []hal.Buffer
	pending []pending

	lastValue uint64
	closed    bool
}

// NewUploader creates an uploader on device and queue. Destination buffers
// are created immediately; staging buffers on demand.
func NewUploader(device hal.Device, queue hal.Queue, cfg Config) (*Uploader, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	def := DefaultConfig()
	if cfg.MaxInstances <= 0 {
		cfg.MaxInstances = def.MaxInstances
	}
	if cfg.MaxDraws <= 0 {
		cfg.MaxDraws = def.MaxDraws
	}
	if cfg.Limits.MaxStorageBufferBindingSize == 0 {
		cfg.Limits = def.Limits
	}
	if cfg.Label == "" {
		cfg.Label = def.Label
	}
	if cfg.Frames <= 0 {
		cfg.Frames = def.Frames
	}

	u := &Uploader{
		device: device,
		queue:  queue,
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
		align:  uint64(max(cfg.Limits.MinStorageBufferOffsetAlignment, 4)),
	}
	u.layout = ComputeLayout(cfg.MaxInstances, cfg.MaxDraws, MaxAddressEntries, u.align)

	for r := range regionCount {
		if u.layout.Size[r] > cfg.Limits.MaxStorageBufferBindingSize {
			return nil, fmt.Errorf("%w: %s region %d bytes, limit %d",
				ErrCapacityExceedsLimits, r, u.layout.Size[r], cfg.Limits.MaxStorageBufferBindingSize)
		}
	}

	u.slots = make([]slot, cfg.Frames)
	for i := range u.slots {
		if err := u.createTargets(i); err != nil {
			u.destroyTargets()
			return nil, err
		}
	}

	u.logger.Debug("upload: uploader created",
		slog.Int("max_instances", cfg.MaxInstances),
		slog.Int("max_draws", cfg.MaxDraws),
		slog.Int("frames", cfg.Frames),
		slog.Uint64("staging_bytes", u.layout.Total),
		slog.Uint64("transfer_family", uint64(cfg.TransferFamily)),
		slog.Uint64("graphics_family", uint64(cfg.GraphicsFamily)))
	return u, nil
}

func (u *Uploader) createTargets(i int) error {
	t := &u.slots[i].Targets
	var err error
	suffix := fmt.Sprintf("_%d", i)
	if t.Instances, err = u.createBuffer("instances"+suffix, u.layout.Size[RegionInstances], instanceRead|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if t.Draws, err = u.createBuffer("draws"+suffix, u.layout.Size[RegionDraws], drawRead|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if t.Table, err = u.createBuffer("address_table"+suffix, u.layout.Size[RegionTable], tableRead|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	return nil
}

func (u *Uploader) createBuffer(name string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := u.device.CreateBuffer(&hal.BufferDescriptor{
		Label: u.cfg.Label + "_" + name,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", name, err)
	}
	return buf, nil
}

// Frames returns the number of destination buffer sets.
func (u *Uploader) Frames() int { return len(u.slots) }

// Targets returns the destination buffers frame index uploads into.
func (u *Uploader) Targets(index int) Targets { return u.slots[u.slotOf(index)].Targets }

func (u *Uploader) slotOf(index int) int {
	n := len(u.slots)
	return ((index % n) + n) % n
}

// Ready reports whether frame index may upload. It fails with
// frame.ErrFrameBusy while the previous cross-family handoff out of the
// frame's buffer set has not been acquired by the consumer.
func (u *Uploader) Ready(index int) error {
	if u.closed {
		return ErrClosed
	}
	i := u.slotOf(index)
	if h := u.slots[i].handoff; h != nil && h.Required() && h.Pending() {
		return fmt.Errorf("%w: buffer set %d still owned by family %d (value %d)",
			frame.ErrFrameBusy, i, h.DstFamily, h.Value)
	}
	return nil
}

// Layout returns the staging layout at full capacity.
func (u *Uploader) Layout() Layout { return u.layout }

// LastValue returns the most recently signaled timeline value.
func (u *Uploader) LastValue() uint64 { return u.lastValue }

// Completed returns the highest timeline value the GPU has reached.
func (u *Uploader) Completed() uint64 { return u.queue.PollCompleted() }

// InFlight returns the number of submissions whose resources are not yet
// released.
func (u *Uploader) InFlight() int { return len(u.pending) }

// SetAddress registers a caller-owned buffer in address table slot
// SlotUser+i. Registered slots must stay filled; a nil Buffer makes later
// uploads fail with ErrMissingAddress.
func (u *Uploader) SetAddress(i int, e AddressEntry) error {
	if i < 0 || SlotUser+i >= MaxAddressEntries {
		return fmt.Errorf("%w: user slot %d", ErrTableFull, i)
	}
	for len(u.user) <= i {
		u.user = append(u.user, AddressEntry{})
	}
	u.user[i] = e
	return nil
}

// addressTable describes the destination buffers t for n instances and d
// draws.
func (u *Uploader) addressTable(t Targets, n, d int) AddressTable {
	entries := make([]AddressEntry, 0, SlotUser+len(u.user))
	entries = append(entries,
		AddressEntry{Buffer: t.Instances, Size: uint64(n) * InstanceSize, Count: uint32(n), Stride: InstanceSize},
		AddressEntry{Buffer: t.Draws, Size: uint64(d) * frame.DrawIndexedIndirectSize, Count: uint32(d), Stride: frame.DrawIndexedIndirectSize},
	)
	entries = append(entries, u.user...)
	return AddressTable{Entries: entries}
}

// Upload stages the frame's instances, draw commands and address table and
// submits the copies. It returns nil without submitting anything when the
// frame has no visible instances.
//
// The frame is copied into buffer set f.Index % Frames; Upload fails with
// frame.ErrFrameBusy when that set is not Ready.
//
// On success f.TransferWaitValue holds the submission's timeline value.
// Frames larger than the configured capacity are truncated at a draw
// boundary and the frame's ranges are clamped to match; a frame truncated
// to nothing is not submitted.
func (u *Uploader) Upload(f *frame.Context) (*Submission, error) {
	if err := u.Ready(f.Index); err != nil {
		return nil, err
	}
	u.Reclaim()

	if f.Empty() {
		u.logger.Debug("upload: nothing visible, upload skipped", slog.Int("frame", f.Index))
		return nil, nil
	}

	dropped := u.clamp(f)
	if dropped > 0 {
		u.logger.Warn("upload: staging capacity exceeded, instances dropped",
			slog.Int("frame", f.Index),
			slog.Int("dropped", dropped),
			slog.Int("max_instances", u.cfg.MaxInstances),
			slog.Int("max_draws", u.cfg.MaxDraws))
		if f.Empty() {
			return nil, nil
		}
	}

	si := u.slotOf(f.Index)
	targets := u.slots[si].Targets
	table := u.addressTable(targets, len(f.Instances), len(f.Draws))
	if err := table.Validate(); err != nil {
		return nil, err
	}
	layout := ComputeLayout(len(f.Instances), len(f.Draws), table.Len(), u.align)

	staging, err := u.acquireStaging()
	if err != nil {
		return nil, err
	}
	if err := u.stage(staging, layout, f, &table); err != nil {
		u.releaseStaging(staging)
		return nil, err
	}

	cmd, err := u.record(staging, targets, layout)
	if err != nil {
		u.releaseStaging(staging)
		return nil, err
	}

	wait := uint64(0)
	if u.lastValue > u.queue.PollCompleted() {
		wait = u.lastValue
	}

	value, err := u.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		u.device.FreeCommandBuffer(cmd)
		u.releaseStaging(staging)
		return nil, fmt.Errorf("submit upload: %w", err)
	}
	if value <= u.lastValue {
		// The work is queued; keep its resources until the device idles.
		u.pending = append(u.pending, pending{value: u.lastValue, cleanup: u.cleanupFunc(cmd, staging)})
		return nil, fmt.Errorf("%w: %d after %d", ErrTimelineRegressed, value, u.lastValue)
	}
	u.lastValue = value
	u.pending = append(u.pending, pending{value: value, cleanup: u.cleanupFunc(cmd, staging)})
	f.TransferWaitValue = value

	sub := &Submission{
		Slot:      si,
		Targets:   targets,
		Value:     value,
		Wait:      wait,
		Instances: len(f.Instances),
		Draws:     len(f.Draws),
		Dropped:   dropped,
		Bytes:     layout.Total,
		Table:     table,
		Handoff: &Handoff{
			Buffer:    targets.Table,
			SrcFamily: u.cfg.TransferFamily,
			DstFamily: u.cfg.GraphicsFamily,
			Value:     value,
			readUsage: tableRead,
		},
	}
	u.slots[si].handoff = sub.Handoff
	u.logger.Debug("upload: submitted",
		slog.Int("frame", f.Index),
		slog.Int("slot", si),
		slog.Uint64("value", value),
		slog.Uint64("wait", wait),
		slog.Int("instances", sub.Instances),
		slog.Int("draws", sub.Draws),
		slog.Uint64("bytes", sub.Bytes))
	return sub, nil
}

// clamp truncates f to the uploader's capacity at a draw boundary and
// returns the number of instances removed.
func (u *Uploader) clamp(f *frame.Context) int {
	if len(f.Instances) <= u.cfg.MaxInstances && len(f.Draws) <= u.cfg.MaxDraws {
		return 0
	}
	keepDraws, keepInstances := 0, uint32(0)
	for i, d := range f.Draws {
		end := d.FirstInstance + d.InstanceCount
		if i >= u.cfg.MaxDraws || int(end) > u.cfg.MaxInstances {
			break
		}
		keepDraws, keepInstances = i+1, end
	}
	dropped := len(f.Instances) - int(keepInstances)

	f.Draws = f.Draws[:keepDraws]
	f.Instances = f.Instances[:keepInstances]
	if len(f.Bounds) > int(keepInstances) {
		f.Bounds = f.Bounds[:keepInstances]
	}
	f.Opaque = clampRange(f.Opaque, keepInstances)
	f.Transparent = clampRange(f.Transparent, keepInstances)
	f.OpaqueDraws = clampRange(f.OpaqueDraws, uint32(keepDraws))
	f.TransparentDraws = clampRange(f.TransparentDraws, uint32(keepDraws))
	return dropped
}

func clampRange(r frame.Range, end uint32) frame.Range {
	if r.First >= end {
		return frame.Range{First: end}
	}
	r.Count = min(r.Count, end-r.First)
	return r
}

func (u *Uploader) acquireStaging() (hal.Buffer, error) {
	if n := len(u.free); n > 0 {
		buf := u.free[n-1]
		u.free = u.free[:n-1]
		return buf, nil
	}
	return u.createBuffer("staging", u.layout.Total, stagingUsage)
}

func (u *Uploader) releaseStaging(buf hal.Buffer) {
	if u.closed {
		u.device.DestroyBuffer(buf)
		return
	}
	u.free = append(u.free, buf)
}

// stage writes the three regions into the mapped staging buffer.
func (u *Uploader) stage(staging hal.Buffer, l Layout, f *frame.Context, table *AddressTable) error {
	m, err := u.device.MapBuffer(staging, 0, l.Total)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	dst := unsafe.Slice((*byte)(m.Ptr), l.Total)

	putInstances(dst[l.Offset[RegionInstances]:], f.Instances)
	putDraws(dst[l.Offset[RegionDraws]:], f.Draws)
	table.put(dst[l.Offset[RegionTable]:])

	if err := u.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

// record encodes the copy of every region into its destination buffer,
// bracketed by the barriers that order it against earlier reads and later
// consumers.
func (u *Uploader) record(staging hal.Buffer, dst Targets, l Layout) (hal.CommandBuffer, error) {
	encoder, err := u.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: u.cfg.Label + "_upload_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(u.cfg.Label + "_upload"); err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	targets := [regionCount]struct {
		buf  hal.Buffer
		read gputypes.BufferUsage
	}{
		RegionInstances: {dst.Instances, instanceRead},
		RegionDraws:     {dst.Draws, drawRead},
		RegionTable:     {dst.Table, tableRead},
	}

	var before, after [regionCount]hal.BufferBarrier
	for r, t := range targets {
		before[r] = hal.BufferBarrier{Buffer: t.buf, Usage: hal.BufferUsageTransition{
			OldUsage: t.read, NewUsage: gputypes.BufferUsageCopyDst,
		}}
		after[r] = hal.BufferBarrier{Buffer: t.buf, Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageCopyDst, NewUsage: t.read,
		}}
	}

	encoder.TransitionBuffers(before[:])
	for r, t := range targets {
		if l.Size[r] == 0 {
			continue
		}
		encoder.CopyBufferToBuffer(staging, t.buf, []hal.BufferCopy{{
			SrcOffset: l.Offset[r],
			DstOffset: 0,
			Size:      l.Size[r],
		}})
	}

	// On a family change the table's release is completed by the consumer's
	// Handoff.Acquire; instance and draw buffers are read on this family.
	if u.crossFamily() {
		encoder.TransitionBuffers(after[:RegionTable])
	} else {
		encoder.TransitionBuffers(after[:])
	}

	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmd, nil
}

func (u *Uploader) crossFamily() bool {
	h := Handoff{SrcFamily: u.cfg.TransferFamily, DstFamily: u.cfg.GraphicsFamily}
	return h.Required()
}

func (u *Uploader) cleanupFunc(cmd hal.CommandBuffer, staging hal.Buffer) func() {
	return func() {
		u.device.FreeCommandBuffer(cmd)
		u.releaseStaging(staging)
	}
}

// Reclaim runs the cleanup of every submission whose timeline value the
// GPU has reached. It never blocks and returns the number reclaimed.
func (u *Uploader) Reclaim() int {
	done := u.queue.PollCompleted()
	n := 0
	for n < len(u.pending) && u.pending[n].value <= done {
		u.pending[n].cleanup()
		n++
	}
	if n > 0 {
		u.pending = append(u.pending[:0], u.pending[n:]...)
	}
	return n
}

// Close waits for the device to go idle, releases every in-flight
// submission and destroys all buffers. Close is the only blocking call.
func (u *Uploader) Close() error {
	if u.closed {
		return nil
	}
	err := u.device.WaitIdle()
	u.closed = true
	for _, p := range u.pending {
		p.cleanup()
	}
	u.pending = nil
	for _, b := range u.free {
		u.device.DestroyBuffer(b)
	}
	u.free = nil
	u.destroyTargets()
	if err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	return nil
}

func (u *Uploader) destroyTargets() {
	for i := range u.slots {
		t := &u.slots[i].Targets
		for _, b := range []*hal.Buffer{&t.Instances, &t.Draws, &t.Table} {
			if *b != nil {
				u.device.DestroyBuffer(*b)
				*b = nil
			}
		}
	}
}
