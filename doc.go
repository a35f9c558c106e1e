// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package visicore is the visibility core of a real-time 3D renderer.
//
// Each frame it reconciles a bounding volume hierarchy with the scene's
// instance list, culls it against the camera frustum, turns the visible
// set into sorted indexed indirect draws and stages them on the GPU
// through a transfer queue.
//
// # Quick Start
//
//	ctx, err := visicore.NewContext(device, queue)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	for running {
//	    f, sub, err := ctx.Frame(&visicore.FrameInput{
//	        Scene:    &sceneInput,
//	        Tables:   &tables,
//	        ViewProj: proj.Mul4(view),
//	        CamPos:   eye,
//	    })
//	    // draw f.Draws from sub.Targets.Draws after sub.Value
//	}
//
// # Architecture
//
//   - geom: bounding boxes, frustum extraction and the box/frustum test
//   - scene: the scene-layer records the core reads
//   - visibility: instance rows, per-scene slabs, BVH sync and culling
//   - drawprep: batching and sorting into indirect draw commands
//   - upload: staging, copies, queue handoff and deferred cleanup
//   - frame: per-frame render data and the frames-in-flight ring
//
// A Context holds the state of one view. Group runs several contexts that
// share a queue.
//
// # Logging
//
// visicore is silent by default. See SetLogger.
package visicore
