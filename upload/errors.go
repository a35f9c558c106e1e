// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upload

import "errors"

var (
	// ErrNilDevice is returned when the uploader is created without a device or queue.
	ErrNilDevice = errors.New("upload: device or queue is nil")

	// ErrClosed is returned by operations on a closed uploader.
	ErrClosed = errors.New("upload: uploader is closed")

	// ErrMissingAddress is returned when an address table entry has no buffer.
	ErrMissingAddress = errors.New("upload: address table entry missing")

	// ErrTableFull is returned when the address table exceeds MaxAddressEntries.
	ErrTableFull = errors.New("upload: address table full")

	// ErrCapacityExceedsLimits is returned when a configured capacity does not
	// fit the device's storage binding limit.
	ErrCapacityExceedsLimits = errors.New("upload: capacity exceeds device limits")

	// ErrTimelineRegressed is returned when the queue reports a submission
	// index that does not advance past the previous one.
	ErrTimelineRegressed = errors.New("upload: timeline value did not advance")

	// ErrHandoffAcquired is returned when a handoff is acquired twice.
	ErrHandoffAcquired = errors.New("upload: handoff already acquired")
)
