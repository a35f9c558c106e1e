// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/scene"
	"github.com/gogpu/visicore/visibility"
)

// =============================================================================
// Test doubles
// =============================================================================

type copyRecord struct {
	src, dst hal.Buffer
	region   hal.BufferCopy
}

// recorder collects what the uploader encodes and submits.
type recorder struct {
	copies      []copyRecord
	barriers    [][]hal.BufferBarrier
	submissions int
	freed       int
	destroyed   int
	discarded   int

	failBegin bool
}

type recordingEncoder struct {
	hal.CommandEncoder
	rec *recorder
}

func (e *recordingEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	for _, r := range regions {
		e.rec.copies = append(e.rec.copies, copyRecord{src: src, dst: dst, region: r})
	}
}

func (e *recordingEncoder) BeginEncoding(label string) error {
	if e.rec.failBegin {
		return errors.New("begin refused")
	}
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *recordingEncoder) DiscardEncoding() {
	e.rec.discarded++
	e.CommandEncoder.DiscardEncoding()
}

func (e *recordingEncoder) TransitionBuffers(barriers []hal.BufferBarrier) {
	e.rec.barriers = append(e.rec.barriers, append([]hal.BufferBarrier(nil), barriers...))
}

type recordingDevice struct {
	hal.Device
	rec *recorder
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, rec: d.rec}, nil
}

func (d *recordingDevice) FreeCommandBuffer(cmd hal.CommandBuffer) {
	d.rec.freed++
	d.Device.FreeCommandBuffer(cmd)
}

func (d *recordingDevice) DestroyBuffer(b hal.Buffer) {
	d.rec.destroyed++
	d.Device.DestroyBuffer(b)
}

// laggingQueue reports completion only up to a value the test controls.
type laggingQueue struct {
	hal.Queue
	rec       *recorder
	completed uint64
	lag       bool
}

func (q *laggingQueue) Submit(cmds []hal.CommandBuffer) (uint64, error) {
	q.rec.submissions++
	return q.Queue.Submit(cmds)
}

func (q *laggingQueue) PollCompleted() uint64 {
	if q.lag {
		return q.completed
	}
	return q.Queue.PollCompleted()
}

type fixture struct {
	rec    *recorder
	device *recordingDevice
	queue  *laggingQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		open.Device.Destroy()
		instance.Destroy()
	})
	rec := &recorder{}
	return &fixture{
		rec:    rec,
		device: &recordingDevice{Device: open.Device, rec: rec},
		queue:  &laggingQueue{Queue: open.Queue, rec: rec},
	}
}

func (fx *fixture) uploader(t *testing.T, cfg Config) *Uploader {
	t.Helper()
	u, err := NewUploader(fx.device, fx.queue, cfg)
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	t.Cleanup(func() { _ = u.Close() })
	return u
}

// testFrame returns a frame with n opaque instances split into draws of
// per instances each.
func testFrame(n, per int) *frame.Context {
	f := &frame.Context{}
	for i := range n {
		f.Instances = append(f.Instances, visibility.GPUInstance{
			MeshID:      uint32(i / per),
			MaterialID:  7,
			TransformID: uint32(100 + i),
			DrawType:    scene.DrawStatic,
			Pass:        scene.PassOpaque,
		})
	}
	for first := 0; first < n; first += per {
		count := min(per, n-first)
		f.Draws = append(f.Draws, frame.DrawIndexedIndirect{
			IndexCount:    36,
			InstanceCount: uint32(count),
			FirstIndex:    uint32(first / per * 36),
			FirstInstance: uint32(first),
		})
	}
	f.Opaque = frame.Range{Count: uint32(n)}
	f.OpaqueDraws = frame.Range{Count: uint32(len(f.Draws))}
	return f
}

func readBuffer(t *testing.T, d hal.Device, b hal.Buffer, off, size uint64) []byte {
	t.Helper()
	m, err := d.MapBuffer(b, off, size)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	out := bytes.Clone(unsafe.Slice((*byte)(m.Ptr), size))
	if err := d.UnmapBuffer(b); err != nil {
		t.Fatalf("UnmapBuffer() error = %v", err)
	}
	return out
}

// =============================================================================
// Layout
// =============================================================================

func TestComputeLayout(t *testing.T) {
	l := ComputeLayout(3, 2, 2, 256)

	if l.Offset[RegionInstances] != 0 || l.Size[RegionInstances] != 60 {
		t.Errorf("instances = (%d, %d), want (0, 60)", l.Offset[RegionInstances], l.Size[RegionInstances])
	}
	if l.Offset[RegionDraws] != 256 || l.Size[RegionDraws] != 40 {
		t.Errorf("draws = (%d, %d), want (256, 40)", l.Offset[RegionDraws], l.Size[RegionDraws])
	}
	if l.Offset[RegionTable] != 512 || l.Size[RegionTable] != 64 {
		t.Errorf("table = (%d, %d), want (512, 64)", l.Offset[RegionTable], l.Size[RegionTable])
	}
	if l.Total != 576 {
		t.Errorf("Total = %d, want 576", l.Total)
	}
}

func TestComputeLayoutNoAlignment(t *testing.T) {
	l := ComputeLayout(1, 1, 1, 1)
	if l.Offset[RegionDraws] != 20 || l.Offset[RegionTable] != 40 || l.Total != 72 {
		t.Errorf("layout = %+v, want packed regions totaling 72", l)
	}
}

func TestRegionString(t *testing.T) {
	tests := []struct {
		r    Region
		want string
	}{
		{RegionInstances, "Instances"},
		{RegionDraws, "Draws"},
		{RegionTable, "Table"},
		{Region(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Region(%d).String() = %q, want %q", int(tt.r), got, tt.want)
		}
	}
}

// =============================================================================
// Address table and handoff
// =============================================================================

func TestAddressTableValidate(t *testing.T) {
	fx := newFixture(t)
	buf, err := fx.device.CreateBuffer(&hal.BufferDescriptor{Size: 16, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	table := AddressTable{Entries: []AddressEntry{{Buffer: buf}, {}}}
	if err := table.Validate(); !errors.Is(err, ErrMissingAddress) {
		t.Errorf("Validate() with nil buffer = %v, want ErrMissingAddress", err)
	}

	full := AddressTable{Entries: make([]AddressEntry, MaxAddressEntries+1)}
	for i := range full.Entries {
		full.Entries[i].Buffer = buf
	}
	if err := full.Validate(); !errors.Is(err, ErrTableFull) {
		t.Errorf("Validate() over capacity = %v, want ErrTableFull", err)
	}

	ok := AddressTable{Entries: []AddressEntry{{Buffer: buf, Size: 16}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestHandoffRequired(t *testing.T) {
	tests := []struct {
		name     string
		src, dst uint32
		want     bool
	}{
		{"same family", 0, 0, false},
		{"different family", 1, 0, true},
		{"src ignored", QueueFamilyIgnored, 0, false},
		{"dst ignored", 1, QueueFamilyIgnored, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Handoff{SrcFamily: tt.src, DstFamily: tt.dst}
			if got := h.Required(); got != tt.want {
				t.Errorf("Required() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandoffAcquire(t *testing.T) {
	rec := &recorder{}
	enc := &recordingEncoder{CommandEncoder: &noop.CommandEncoder{}, rec: rec}

	h := &Handoff{SrcFamily: 1, DstFamily: 0, Value: 3, readUsage: tableRead}
	if !h.Pending() {
		t.Fatal("Pending() = false before Acquire")
	}
	if err := h.Acquire(enc); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if h.Pending() {
		t.Error("Pending() = true after Acquire")
	}
	if len(rec.barriers) != 1 {
		t.Fatalf("barriers = %d, want 1", len(rec.barriers))
	}
	got := rec.barriers[0][0].Usage
	if got.OldUsage != gputypes.BufferUsageCopyDst || got.NewUsage != tableRead {
		t.Errorf("acquire transition = %v -> %v, want CopyDst -> %v", got.OldUsage, got.NewUsage, tableRead)
	}
	if err := h.Acquire(enc); !errors.Is(err, ErrHandoffAcquired) {
		t.Errorf("second Acquire() = %v, want ErrHandoffAcquired", err)
	}

	same := &Handoff{SrcFamily: 0, DstFamily: 0}
	if err := same.Acquire(enc); err != nil {
		t.Fatalf("Acquire() same family error = %v", err)
	}
	if len(rec.barriers) != 1 {
		t.Errorf("same-family Acquire recorded a barrier")
	}
}

// =============================================================================
// Uploader
// =============================================================================

func TestNewUploaderErrors(t *testing.T) {
	fx := newFixture(t)

	if _, err := NewUploader(nil, fx.queue, DefaultConfig()); !errors.Is(err, ErrNilDevice) {
		t.Errorf("NewUploader(nil device) = %v, want ErrNilDevice", err)
	}

	cfg := DefaultConfig()
	cfg.Limits.MaxStorageBufferBindingSize = 1024
	cfg.MaxInstances = 1000
	if _, err := NewUploader(fx.device, fx.queue, cfg); !errors.Is(err, ErrCapacityExceedsLimits) {
		t.Errorf("NewUploader(oversized) = %v, want ErrCapacityExceedsLimits", err)
	}
}

func TestUploadCopiesRegions(t *testing.T) {
	fx := newFixture(t)
	u := fx.uploader(t, DefaultConfig())

	f := testFrame(6, 4)
	sub, err := u.Upload(f)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if sub == nil {
		t.Fatal("Upload() = nil submission for a non-empty frame")
	}
	if sub.Instances != 6 || sub.Draws != 2 || sub.Dropped != 0 {
		t.Errorf("submission = %d instances, %d draws, %d dropped; want 6, 2, 0",
			sub.Instances, sub.Draws, sub.Dropped)
	}
	if f.TransferWaitValue != sub.Value {
		t.Errorf("TransferWaitValue = %d, want %d", f.TransferWaitValue, sub.Value)
	}
	if fx.rec.submissions != 1 {
		t.Errorf("submissions = %d, want 1", fx.rec.submissions)
	}

	if len(fx.rec.copies) != 3 {
		t.Fatalf("copies = %d, want 3", len(fx.rec.copies))
	}
	dst := u.Targets(f.Index)
	if sub.Targets != dst {
		t.Errorf("submission targets = %+v, want %+v", sub.Targets, dst)
	}
	wantDst := []hal.Buffer{dst.Instances, dst.Draws, dst.Table}
	wantSize := []uint64{6 * InstanceSize, 2 * frame.DrawIndexedIndirectSize, 2 * AddressEntrySize}
	staging := fx.rec.copies[0].src
	for i, c := range fx.rec.copies {
		if c.src != staging {
			t.Errorf("copy %d reads a different staging buffer", i)
		}
		if c.dst != wantDst[i] {
			t.Errorf("copy %d writes the wrong destination", i)
		}
		if c.region.Size != wantSize[i] {
			t.Errorf("copy %d size = %d, want %d", i, c.region.Size, wantSize[i])
		}
		if c.region.SrcOffset%256 != 0 {
			t.Errorf("copy %d src offset %d not aligned", i, c.region.SrcOffset)
		}
	}

	// Staged bytes carry the rows and commands in order.
	inst := readBuffer(t, fx.device, staging, fx.rec.copies[0].region.SrcOffset, InstanceSize)
	if got := binary.LittleEndian.Uint32(inst[8:12]); got != 100 {
		t.Errorf("first row transform = %d, want 100", got)
	}
	draw := readBuffer(t, fx.device, staging, fx.rec.copies[1].region.SrcOffset+frame.DrawIndexedIndirectSize, frame.DrawIndexedIndirectSize)
	if got := binary.LittleEndian.Uint32(draw[4:8]); got != 2 {
		t.Errorf("second draw instanceCount = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(draw[16:20]); got != 4 {
		t.Errorf("second draw firstInstance = %d, want 4", got)
	}
	entry := readBuffer(t, fx.device, staging, fx.rec.copies[2].region.SrcOffset, AddressEntrySize)
	if got := binary.LittleEndian.Uint32(entry[24:28]); got != 6 {
		t.Errorf("instance entry count = %d, want 6", got)
	}
	if got := binary.LittleEndian.Uint32(entry[28:32]); got != InstanceSize {
		t.Errorf("instance entry stride = %d, want %d", got, InstanceSize)
	}
}

func TestUploadBarriers(t *testing.T) {
	t.Run("same family", func(t *testing.T) {
		fx := newFixture(t)
		u := fx.uploader(t, DefaultConfig())
		if _, err := u.Upload(testFrame(2, 2)); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if len(fx.rec.barriers) != 2 {
			t.Fatalf("barrier batches = %d, want 2", len(fx.rec.barriers))
		}
		if n := len(fx.rec.barriers[1]); n != 3 {
			t.Errorf("post-copy barriers = %d, want 3", n)
		}
	})

	t.Run("cross family", func(t *testing.T) {
		fx := newFixture(t)
		cfg := DefaultConfig()
		cfg.TransferFamily, cfg.GraphicsFamily = 1, 0
		u := fx.uploader(t, cfg)
		sub, err := u.Upload(testFrame(2, 2))
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		post := fx.rec.barriers[len(fx.rec.barriers)-1]
		for _, b := range post {
			if b.Buffer == u.Targets(0).Table {
				t.Error("table transitioned on the transfer queue, want it left for Acquire")
			}
		}
		if !sub.Handoff.Required() || sub.Handoff.Value != sub.Value {
			t.Errorf("handoff = %+v, want required at value %d", sub.Handoff, sub.Value)
		}
	})
}

func TestUploadFramesUseOwnTargets(t *testing.T) {
	fx := newFixture(t)
	cfg := DefaultConfig()
	cfg.Frames = 2
	cfg.TransferFamily, cfg.GraphicsFamily = 1, 0
	u := fx.uploader(t, cfg)

	a, b := u.Targets(0), u.Targets(1)
	for _, pair := range [][2]hal.Buffer{{a.Instances, b.Instances}, {a.Draws, b.Draws}, {a.Table, b.Table}} {
		if pair[0] == pair[1] {
			t.Fatal("frames 0 and 1 share a destination buffer")
		}
	}
	if u.Targets(2) != a {
		t.Error("Targets(2) != Targets(0) with two frames")
	}

	f0 := testFrame(2, 2)
	first, err := u.Upload(f0)
	if err != nil {
		t.Fatalf("Upload(frame 0) error = %v", err)
	}
	f1 := testFrame(1, 1)
	f1.Index = 1
	second, err := u.Upload(f1)
	if err != nil {
		t.Fatalf("Upload(frame 1) error = %v", err)
	}
	if first.Slot != 0 || second.Slot != 1 {
		t.Errorf("slots = %d, %d; want 0, 1", first.Slot, second.Slot)
	}
	if fx.rec.copies[3].dst != b.Instances {
		t.Error("frame 1 instances not copied into its own buffer")
	}
	if got := second.Table.Entries[SlotInstances].Buffer; got != b.Instances {
		t.Error("frame 1 address table points at another frame's instances")
	}
	if second.Handoff.Buffer != b.Table {
		t.Error("frame 1 handoff names another frame's table")
	}

	// Frame 0's buffers stay with the graphics family until acquired.
	again := testFrame(2, 2)
	if _, err := u.Upload(again); !errors.Is(err, frame.ErrFrameBusy) {
		t.Fatalf("Upload(frame 0 before Acquire) = %v, want ErrFrameBusy", err)
	}
	if fx.rec.submissions != 2 {
		t.Errorf("submissions = %d, want 2", fx.rec.submissions)
	}
	if err := first.Handoff.Acquire(&noop.CommandEncoder{}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := u.Ready(0); err != nil {
		t.Errorf("Ready(0) after Acquire = %v, want nil", err)
	}
	if _, err := u.Upload(again); err != nil {
		t.Errorf("Upload(frame 0 after Acquire) error = %v", err)
	}
}

func TestUploadBeginEncodingFails(t *testing.T) {
	fx := newFixture(t)
	u := fx.uploader(t, DefaultConfig())

	fx.rec.failBegin = true
	if _, err := u.Upload(testFrame(2, 2)); err == nil {
		t.Fatal("Upload() error = nil, want begin encoding failure")
	}
	if fx.rec.discarded != 1 {
		t.Errorf("discarded encoders = %d, want 1", fx.rec.discarded)
	}
	if fx.rec.submissions != 0 || u.InFlight() != 0 {
		t.Errorf("submissions = %d, in flight = %d; want 0, 0", fx.rec.submissions, u.InFlight())
	}

	fx.rec.failBegin = false
	if _, err := u.Upload(testFrame(2, 2)); err != nil {
		t.Errorf("Upload() after recovery error = %v", err)
	}
}

func TestUploadSkipsEmptyFrame(t *testing.T) {
	fx := newFixture(t)
	u := fx.uploader(t, DefaultConfig())

	sub, err := u.Upload(&frame.Context{})
	if err != nil || sub != nil {
		t.Fatalf("Upload(empty) = (%v, %v), want (nil, nil)", sub, err)
	}
	if fx.rec.submissions != 0 || len(fx.rec.copies) != 0 {
		t.Errorf("empty frame submitted %d times with %d copies", fx.rec.submissions, len(fx.rec.copies))
	}
	if u.LastValue() != 0 {
		t.Errorf("LastValue() = %d, want 0", u.LastValue())
	}
}

func TestUploadOverflowDrops(t *testing.T) {
	fx := newFixture(t)
	var logs strings.Builder
	cfg := DefaultConfig()
	cfg.MaxInstances = 10
	cfg.MaxDraws = 8
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	u := fx.uploader(t, cfg)

	f := testFrame(14, 4) // draws of 4, 4, 4, 2
	sub, err := u.Upload(f)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if sub.Instances != 8 || sub.Draws != 2 || sub.Dropped != 6 {
		t.Errorf("submission = %d instances, %d draws, %d dropped; want 8, 2, 6",
			sub.Instances, sub.Draws, sub.Dropped)
	}
	if len(f.Instances) != 8 || f.Opaque.Count != 8 || f.OpaqueDraws.Count != 2 {
		t.Errorf("frame not clamped: %d instances, opaque %+v, draws %+v", len(f.Instances), f.Opaque, f.OpaqueDraws)
	}
	if !strings.Contains(logs.String(), "instances dropped") {
		t.Errorf("log = %q, want overflow warning", logs.String())
	}
}

func TestUploadTimeline(t *testing.T) {
	fx := newFixture(t)
	fx.queue.lag = true
	u := fx.uploader(t, DefaultConfig())

	first, err := u.Upload(testFrame(3, 3))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if first.Wait != 0 {
		t.Errorf("first Wait = %d, want 0", first.Wait)
	}

	second, err := u.Upload(testFrame(3, 3))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if second.Value <= first.Value {
		t.Errorf("second value %d not after first %d", second.Value, first.Value)
	}
	if second.Wait != first.Value {
		t.Errorf("second Wait = %d, want %d", second.Wait, first.Value)
	}
	if u.InFlight() != 2 {
		t.Errorf("InFlight() = %d, want 2", u.InFlight())
	}
	if fx.rec.freed != 0 {
		t.Errorf("freed %d command buffers before completion", fx.rec.freed)
	}

	// Two staging buffers exist while both uploads are in flight.
	if fx.rec.copies[0].src == fx.rec.copies[3].src {
		t.Error("in-flight uploads share a staging buffer")
	}

	fx.queue.completed = first.Value
	if n := u.Reclaim(); n != 1 {
		t.Errorf("Reclaim() = %d, want 1", n)
	}
	if fx.rec.freed != 1 || u.InFlight() != 1 {
		t.Errorf("after Reclaim: freed %d, in flight %d; want 1, 1", fx.rec.freed, u.InFlight())
	}

	// The reclaimed staging buffer is reused.
	if _, err := u.Upload(testFrame(3, 3)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if fx.rec.copies[6].src != fx.rec.copies[0].src {
		t.Error("reclaimed staging buffer not reused")
	}
}

func TestUploadMissingAddress(t *testing.T) {
	fx := newFixture(t)
	u := fx.uploader(t, DefaultConfig())

	if err := u.SetAddress(0, AddressEntry{}); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	_, err := u.Upload(testFrame(2, 2))
	if !errors.Is(err, ErrMissingAddress) {
		t.Errorf("Upload() = %v, want ErrMissingAddress", err)
	}
	if fx.rec.submissions != 0 {
		t.Errorf("submissions = %d, want 0", fx.rec.submissions)
	}

	if err := u.SetAddress(MaxAddressEntries, AddressEntry{}); !errors.Is(err, ErrTableFull) {
		t.Errorf("SetAddress(out of range) = %v, want ErrTableFull", err)
	}
}

func TestUploadUserAddress(t *testing.T) {
	fx := newFixture(t)
	u := fx.uploader(t, DefaultConfig())

	transforms, err := fx.device.CreateBuffer(&hal.BufferDescriptor{Size: 640, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if err := u.SetAddress(0, AddressEntry{Buffer: transforms, Size: 640, Count: 10, Stride: 64}); err != nil {
		t.Fatalf("SetAddress() error = %v", err)
	}
	sub, err := u.Upload(testFrame(2, 2))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if sub.Table.Len() != SlotUser+1 {
		t.Errorf("table entries = %d, want %d", sub.Table.Len(), SlotUser+1)
	}
	if got := sub.Table.Entries[SlotUser].Stride; got != 64 {
		t.Errorf("user entry stride = %d, want 64", got)
	}
}

func TestUploaderClose(t *testing.T) {
	fx := newFixture(t)
	fx.queue.lag = true
	u, err := NewUploader(fx.device, fx.queue, DefaultConfig())
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	if _, err := u.Upload(testFrame(2, 2)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if fx.rec.freed != 1 {
		t.Errorf("Close freed %d command buffers, want 1", fx.rec.freed)
	}
	// staging + three targets per frame
	if want := 1 + 3*DefaultConfig().Frames; fx.rec.destroyed != want {
		t.Errorf("Close destroyed %d buffers, want %d", fx.rec.destroyed, want)
	}
	if _, err := u.Upload(testFrame(2, 2)); !errors.Is(err, ErrClosed) {
		t.Errorf("Upload() after Close = %v, want ErrClosed", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

// =============================================================================
// Shader
// =============================================================================

func TestCompileLayout(t *testing.T) {
	words, err := CompileLayout()
	if err != nil {
		t.Fatalf("CompileLayout() error = %v", err)
	}
	if len(words) < 5 {
		t.Fatalf("CompileLayout() = %d words, want a SPIR-V header", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("magic = %#x, want 0x07230203", words[0])
	}
	if !strings.Contains(LayoutSource(), LayoutEntryPoint) {
		t.Errorf("source does not declare %s", LayoutEntryPoint)
	}
}

func TestCreateLayoutModule(t *testing.T) {
	fx := newFixture(t)
	mod, err := CreateLayoutModule(fx.device, "layout")
	if err != nil {
		t.Fatalf("CreateLayoutModule() error = %v", err)
	}
	fx.device.DestroyShaderModule(mod)
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkUpload(b *testing.B) {
	instance, _ := noop.API{}.CreateInstance(nil)
	defer instance.Destroy()
	open, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		b.Fatalf("Open() error = %v", err)
	}
	defer open.Device.Destroy()

	u, err := NewUploader(open.Device, open.Queue, DefaultConfig())
	if err != nil {
		b.Fatalf("NewUploader() error = %v", err)
	}
	defer u.Close()

	f := testFrame(4096, 16)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := u.Upload(f); err != nil {
			b.Fatal(err)
		}
	}
}
