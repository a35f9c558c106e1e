// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package visibility maintains the per-view visibility state of static
// scene instances and answers frustum queries against it.
//
// # Rows and slabs
//
// Every placed scene owns a slab: a contiguous run of rows in flat arrays
// (instance rows, world bounds, transform ids). A slab holds UsedCopies
// copies of the scene's baked template, Stride rows each. The arrays only
// grow; shrinking a copy count only lowers the live count, so row indices
// stay stable across frames.
//
// # Frame flow
//
//	res, err := state.Sync(&input) // reconcile with the scene layer
//	state.Apply(res)               // rebuild or refit the BVH
//	state.Cull(frustum, &visible)  // collect visible rows
package visibility
