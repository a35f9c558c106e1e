// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visicore

import "github.com/gogpu/visicore/visibility"

// Stats describes the most recent frame of a Context.
type Stats struct {
	Frame int

	// Sync is the outcome of the frame's scene synchronization.
	Sync visibility.SyncResult

	// Rows counts allocated instance rows; Active the rows eligible for culling.
	Rows   int
	Active int

	Nodes        int
	NodesVisited int
	Visible      int

	OpaqueBatches    int
	TransparentDraws int
	SkippedBatches   int
	SkippedInstances int

	// Dropped counts visible instances cut by upload capacity.
	Dropped int

	// Submission is the timeline value of the frame's upload, zero when
	// nothing was uploaded.
	Submission uint64
}
