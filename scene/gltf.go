// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/gogpu/visicore/geom"
)

// ErrNoGeometry is returned when a glTF document has no drawable primitive.
var ErrNoGeometry = errors.New("scene: glTF document has no mesh primitives")

// Template is a scene baked from a glTF document: one baked instance per
// mesh primitive reachable from the scene roots, and the transform of each
// node slot relative to the scene root.
//
// A copy of the template placed at p uses p * NodeTransforms[slot] for
// every slot.
type Template struct {
	Asset          Asset
	NodeTransforms []mgl32.Mat4
}

// CopyTransforms appends the transform block of one copy placed at p.
func (t *Template) CopyTransforms(dst []mgl32.Mat4, p mgl32.Mat4) []mgl32.Mat4 {
	for _, m := range t.NodeTransforms {
		dst = append(dst, p.Mul4(m))
	}
	return dst
}

// LoadGLTF opens a .gltf or .glb file and bakes it into tables.
func LoadGLTF(path string, tables *Tables) (*Template, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}
	return ImportGLTF(doc, tables)
}

// ImportGLTF bakes doc into tables. Every primitive becomes a Mesh with its
// own DrawRange appended after the existing entries; the geometry buffer
// totals grow by the primitive's index and vertex counts. Primitives whose
// material blends are drawn in the transparent pass.
//
// tables is left unchanged on error.
func ImportGLTF(doc *gltf.Document, tables *Tables) (*Template, error) {
	type prim struct {
		mesh     Mesh
		draw     DrawRange
		material uint32
		pass     PassType
	}

	meshes := make([][]prim, len(doc.Meshes))
	indexBase, vertexBase := tables.TotalIndexCount, tables.TotalVertexCount
	for mi, gm := range doc.Meshes {
		for pi, p := range gm.Primitives {
			posIdx, ok := p.Attributes["POSITION"]
			if !ok || posIdx < 0 || posIdx >= len(doc.Accessors) {
				continue
			}
			positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %d primitive %d positions: %w", mi, pi, err)
			}
			count := uint32(len(positions))
			if p.Indices != nil {
				if *p.Indices < 0 || *p.Indices >= len(doc.Accessors) {
					return nil, fmt.Errorf("mesh %d primitive %d: index accessor %d out of range", mi, pi, *p.Indices)
				}
				indices, err := modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil)
				if err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d indices: %w", mi, pi, err)
				}
				count = uint32(len(indices))
			}

			box := geom.Empty()
			for _, v := range positions {
				box.GrowPoint(mgl32.Vec3{v[0], v[1], v[2]})
			}
			box.Finish()

			out := prim{
				mesh: Mesh{LocalAABB: box, WorldAABB: box},
				draw: DrawRange{
					FirstIndex:   indexBase,
					IndexCount:   count,
					VertexOffset: int32(vertexBase),
					VertexCount:  uint32(len(positions)),
				},
			}
			if p.Material != nil && *p.Material < len(doc.Materials) {
				out.material = uint32(*p.Material)
				if m := doc.Materials[*p.Material]; m != nil && m.AlphaMode == gltf.AlphaBlend {
					out.pass = PassTransparent
				}
			}
			indexBase += count
			vertexBase += uint32(len(positions))
			meshes[mi] = append(meshes[mi], out)
		}
	}

	t := &Template{}
	var newMeshes []Mesh
	var newRanges []DrawRange
	var visit func(node int, parent mgl32.Mat4, depth int) error
	visit = func(node int, parent mgl32.Mat4, depth int) error {
		if node < 0 || node >= len(doc.Nodes) || depth > len(doc.Nodes) {
			return fmt.Errorf("scene: glTF node %d out of range or cyclic", node)
		}
		n := doc.Nodes[node]
		world := parent.Mul4(nodeMatrix(n))
		if n.Mesh != nil && *n.Mesh < len(meshes) {
			for _, p := range meshes[*n.Mesh] {
				meshID := uint32(len(tables.Meshes) + len(newMeshes))
				p.mesh.DrawRangeID = uint32(len(tables.DrawRanges) + len(newRanges))
				newMeshes = append(newMeshes, p.mesh)
				newRanges = append(newRanges, p.draw)

				slot := uint32(len(t.NodeTransforms))
				t.NodeTransforms = append(t.NodeTransforms, world)
				t.Asset.Instances = append(t.Asset.Instances, BakedInstance{
					MeshID:     meshID,
					MaterialID: p.material,
					Pass:       p.pass,
				})
				t.Asset.NodeSlots = append(t.Asset.NodeSlots, slot)
			}
		}
		for _, c := range n.Children {
			if err := visit(c, world, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range rootNodes(doc) {
		if err := visit(root, mgl32.Ident4(), 0); err != nil {
			return nil, err
		}
	}
	if len(t.Asset.Instances) == 0 {
		return nil, ErrNoGeometry
	}

	// Ranges are emitted per node reference, so instanced glTF meshes share
	// geometry but get separate table entries.
	tables.Meshes = append(tables.Meshes, newMeshes...)
	tables.DrawRanges = append(tables.DrawRanges, newRanges...)
	tables.TotalIndexCount = indexBase
	tables.TotalVertexCount = vertexBase
	return t, nil
}

func rootNodes(doc *gltf.Document) []int {
	if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
		return doc.Scenes[*doc.Scene].Nodes
	}
	if len(doc.Scenes) > 0 {
		return doc.Scenes[0].Nodes
	}
	hasParent := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(hasParent) {
				hasParent[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !hasParent[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

var identity16 = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// nodeMatrix returns the local transform of n. An explicit matrix wins
// over translation, rotation and scale.
func nodeMatrix(n *gltf.Node) mgl32.Mat4 {
	if m := n.MatrixOrDefault(); m != identity16 {
		var out mgl32.Mat4
		for i, v := range m {
			out[i] = float32(v)
		}
		return out
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	q := mgl32.Quat{W: float32(r[3]), V: mgl32.Vec3{float32(r[0]), float32(r[1]), float32(r[2])}}
	return mgl32.Translate3D(float32(t[0]), float32(t[1]), float32(t[2])).
		Mul4(q.Mat4()).
		Mul4(mgl32.Scale3D(float32(s[0]), float32(s[1]), float32(s[2])))
}
