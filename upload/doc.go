// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package upload moves a prepared frame to the GPU.
//
// Each upload stages three regions in one host-visible buffer: instance
// rows, indexed indirect draw commands and the address table that tells
// shaders where the device-local copies live. The regions are copied into
// device-local buffers on the transfer queue. The address table's
// ownership is released to the graphics queue family through a Handoff.
//
// Submissions are ordered by the queue's submission index, used as a
// monotonic timeline. Staging and command buffers are reclaimed without
// blocking once the GPU reports their value complete.
package upload
