// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/visicore"
	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/scene"
	"github.com/gogpu/visicore/visibility"
)

const (
	sceneSpacing = 40
	copySpacing  = 4
)

// world is a grid of MultiStatic scenes sharing one baked template.
type world struct {
	input  visibility.SyncInput
	tables scene.Tables
	max    uint32
}

// propTemplate bakes the default prop into tables: a base, a post and a
// glass panel drawn in the transparent pass.
func propTemplate(tables *scene.Tables) *scene.Template {
	meshes := []geom.AABB{
		geom.NewAABB(mgl32.Vec3{-1.5, 0, -1.5}, mgl32.Vec3{1.5, 0.5, 1.5}),
		geom.NewAABB(mgl32.Vec3{-0.3, 0, -0.3}, mgl32.Vec3{0.3, 4, 0.3}),
		geom.NewAABB(mgl32.Vec3{-1, 0, -0.05}, mgl32.Vec3{1, 2, 0.05}),
	}
	tpl := &scene.Template{
		NodeTransforms: []mgl32.Mat4{
			mgl32.Ident4(),
			mgl32.Translate3D(0, 0.5, 0),
			mgl32.Translate3D(0, 0.5, 1),
		},
	}
	for i, box := range meshes {
		meshID := uint32(len(tables.Meshes))
		tables.Meshes = append(tables.Meshes, scene.Mesh{LocalAABB: box, DrawRangeID: uint32(len(tables.DrawRanges))})
		tables.DrawRanges = append(tables.DrawRanges, scene.DrawRange{
			FirstIndex:   tables.TotalIndexCount,
			IndexCount:   36,
			VertexOffset: int32(tables.TotalVertexCount),
			VertexCount:  24,
		})
		tables.TotalIndexCount += 36
		tables.TotalVertexCount += 24

		pass := scene.PassOpaque
		if i == 2 {
			pass = scene.PassTransparent
		}
		tpl.Asset.Instances = append(tpl.Asset.Instances, scene.BakedInstance{
			MeshID: meshID, MaterialID: uint32(i), Pass: pass,
		})
		tpl.Asset.NodeSlots = append(tpl.Asset.NodeSlots, uint32(i))
	}
	return tpl
}

// newWorld lays out scenes copies of tpl. A nil tpl selects the default
// prop; a template loaded with scene.LoadGLTF must have been baked into
// tables.
func newWorld(scenes int, maxCopies uint32, tables scene.Tables, tpl *scene.Template) *world {
	w := &world{max: maxCopies, tables: tables}
	if tpl == nil {
		tpl = propTemplate(&w.tables)
	}
	w.input.Meshes = w.tables.Meshes
	w.input.Assets = make(map[scene.ID]*scene.Asset, scenes)

	side := int(math.Ceil(math.Sqrt(float64(scenes))))
	stride := uint32(len(tpl.Asset.Instances))
	slots := uint32(len(tpl.NodeTransforms))
	for s := range scenes {
		id := scene.ID(s + 1)
		w.input.Assets[id] = &tpl.Asset
		origin := mgl32.Vec3{
			float32(s%side-side/2) * sceneSpacing,
			0,
			float32(s/side-side/2) * sceneSpacing,
		}

		first := uint32(len(w.input.Transforms))
		for c := range maxCopies {
			base := origin.Add(mgl32.Vec3{float32(c%4) * copySpacing, 0, float32(c/4) * copySpacing})
			w.input.Transforms = tpl.CopyTransforms(w.input.Transforms, mgl32.Translate3D(base[0], base[1], base[2]))
		}
		w.input.Instances = append(w.input.Instances, scene.GlobalInstance{
			SceneID:           id,
			InstanceID:        uint32(s),
			DrawType:          scene.DrawMultiStatic,
			FirstTransform:    first,
			TransformCount:    slots,
			PerInstanceStride: stride,
			CapacityCopies:    maxCopies,
		})
	}
	return w
}

// setCopies varies the live copy count of every scene over time so the
// core sees growth and shrink.
func (w *world) setCopies(frame int) {
	for i := range w.input.Instances {
		g := &w.input.Instances[i]
		g.UsedCopies = 1 + uint32(frame/15+i)%w.max
	}
}

// camera orbits the world center.
func camera(frame, frames int, radius, aspect float32) (viewProj mgl32.Mat4, eye mgl32.Vec3) {
	theta := 2 * math.Pi * float64(frame) / float64(max(frames, 1))
	eye = mgl32.Vec3{
		radius * float32(math.Cos(theta)),
		radius * 0.3,
		radius * float32(math.Sin(theta)),
	}
	proj := mgl32.Perspective(mgl32.DegToRad(50), aspect, 0.5, radius*3)
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view), eye
}

func (w *world) frameInput(viewProj mgl32.Mat4, eye mgl32.Vec3) *visicore.FrameInput {
	return &visicore.FrameInput{
		Scene:    &w.input,
		Tables:   &w.tables,
		ViewProj: viewProj,
		CamPos:   eye,
	}
}
