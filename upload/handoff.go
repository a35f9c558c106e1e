// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// QueueFamilyIgnored marks a family index that takes no part in an
// ownership transfer, as VK_QUEUE_FAMILY_IGNORED does.
const QueueFamilyIgnored = ^uint32(0)

// Handoff is the single-writer, single-reader ownership token of a buffer
// produced on the transfer queue and consumed on another queue.
//
// HAL barriers carry no queue family, so the producer records nothing for
// the buffer after its copy: the buffer is left in the copy-destination
// state and the release exists only as this value. Acquire is the only
// barrier recorded for the transfer, on the consumer's encoder, before it
// reads the buffer. Value is the timeline value the consumer must wait for.
//
// The producer will not copy into the same buffer again until Acquire has
// been called.
type Handoff struct {
	Buffer    hal.Buffer
	SrcFamily uint32
	DstFamily uint32
	Value     uint64

	// readUsage is the usage the consumer reads the buffer with.
	readUsage gputypes.BufferUsage
	acquired  bool
}

// Required reports whether producer and consumer are on different queue
// families. Without a family change no acquire barrier is needed.
func (h *Handoff) Required() bool {
	if h.SrcFamily == QueueFamilyIgnored || h.DstFamily == QueueFamilyIgnored {
		return false
	}
	return h.SrcFamily != h.DstFamily
}

// Pending reports whether the release has not been acquired yet.
func (h *Handoff) Pending() bool { return !h.acquired }

// Acquire records the consumer half of the transfer on enc. It must be
// called exactly once, after the consumer's wait on Value is in place.
func (h *Handoff) Acquire(enc hal.CommandEncoder) error {
	if h.acquired {
		return fmt.Errorf("%w: value %d", ErrHandoffAcquired, h.Value)
	}
	h.acquired = true
	if !h.Required() {
		return nil
	}
	enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: h.Buffer,
		Usage: hal.BufferUsageTransition{
			OldUsage: gputypes.BufferUsageCopyDst,
			NewUsage: h.readUsage,
		},
	}})
	return nil
}
