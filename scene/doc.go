// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package scene defines the data the visibility core consumes from the
// asset and scene layers: the authoritative instance list, baked per-scene
// templates, and the flat mesh and draw-range tables.
//
// Nothing here is mutated by the visibility core. LoadGLTF bakes a glTF
// document into Tables and a Template for hosts without their own asset
// pipeline.
package scene
