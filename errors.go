// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visicore

import "errors"

var (
	// ErrClosed is returned by operations on a closed Context or Group.
	ErrClosed = errors.New("visicore: context is closed")

	// ErrNoHAL is returned when a device provider does not expose HAL types.
	ErrNoHAL = errors.New("visicore: provider does not expose HAL device and queue")

	// ErrNoTables is returned when a frame is prepared without geometry tables.
	ErrNoTables = errors.New("visicore: frame input has no geometry tables")

	// ErrInputMismatch is returned when a Group receives a different number
	// of inputs than it has contexts.
	ErrInputMismatch = errors.New("visicore: input count does not match context count")
)
