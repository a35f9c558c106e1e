// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/scene"
	"github.com/gogpu/visicore/visibility"
)

const headerHeight = 28

var (
	colBackground  = color.RGBA{0x16, 0x1a, 0x22, 0xff}
	colCulled      = color.RGBA{0x4a, 0x50, 0x5c, 0xff}
	colOpaque      = color.RGBA{0x5c, 0xd6, 0x8a, 0xff}
	colTransparent = color.RGBA{0x5c, 0xa8, 0xf0, 0xff}
	colFrustum     = color.RGBA{0xf0, 0xc0, 0x4c, 0xff}
	colText        = color.RGBA{0xe8, 0xe8, 0xe8, 0xff}
)

// topDown maps world XZ onto a square map image.
type topDown struct {
	min, max mgl32.Vec2
	size     float32
}

func newTopDown(state *visibility.State, size int) topDown {
	b := geom.Empty()
	for _, row := range state.Active {
		b = geom.Union(b, state.WorldAABBs[row])
	}
	if !b.Valid() {
		b = geom.NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	}
	span := max(b.Max[0]-b.Min[0], b.Max[2]-b.Min[2]) * 1.1
	c := mgl32.Vec2{b.Origin[0], b.Origin[2]}
	half := mgl32.Vec2{span / 2, span / 2}
	return topDown{min: c.Sub(half), max: c.Add(half), size: float32(size)}
}

func (m topDown) point(p mgl32.Vec3) (x, y float32) {
	x = (p[0] - m.min[0]) / (m.max[0] - m.min[0]) * m.size
	y = (p[2] - m.min[1]) / (m.max[1] - m.min[1]) * m.size
	return x, y
}

// renderMap draws every live row's footprint, visible rows highlighted,
// and the frustum's far-plane footprint.
func renderMap(state *visibility.State, f *frame.Context, fr *geom.Frustum, size int) *image.RGBA {
	m := newTopDown(state, size)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	z := vector.NewRasterizer(size, size)
	fill := func(c color.Color) {
		z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
		z.Reset(size, size)
	}
	rect := func(b geom.AABB) {
		x0, y0 := m.point(b.Min)
		x1, y1 := m.point(b.Max)
		// Keep tiny boxes visible.
		if x1-x0 < 1 {
			x1 = x0 + 1
		}
		if y1-y0 < 1 {
			y1 = y0 + 1
		}
		z.MoveTo(x0, y0)
		z.LineTo(x1, y0)
		z.LineTo(x1, y1)
		z.LineTo(x0, y1)
		z.ClosePath()
	}

	for _, row := range state.Active {
		rect(state.WorldAABBs[row])
	}
	fill(colCulled)

	for i, in := range f.Visible.Instances {
		if in.Pass == scene.PassOpaque {
			rect(f.Visible.Bounds[i])
		}
	}
	fill(colOpaque)
	for i, in := range f.Visible.Instances {
		if in.Pass == scene.PassTransparent {
			rect(f.Visible.Bounds[i])
		}
	}
	fill(colTransparent)

	far := [4]mgl32.Vec3{fr.Corners[4], fr.Corners[5], fr.Corners[6], fr.Corners[7]}
	for i := range far {
		line(z, m, far[i], far[(i+1)%4], 1.5)
	}
	fill(colFrustum)
	return img
}

// line adds a stroke of width w from a to b as a filled quad.
func line(z *vector.Rasterizer, m topDown, a, b mgl32.Vec3, w float32) {
	ax, ay := m.point(a)
	bx, by := m.point(b)
	d := mgl32.Vec2{bx - ax, by - ay}
	if d.Len() == 0 {
		return
	}
	n := mgl32.Vec2{-d[1], d[0]}.Normalize().Mul(w / 2)
	z.MoveTo(ax+n[0], ay+n[1])
	z.LineTo(bx+n[0], by+n[1])
	z.LineTo(bx-n[0], by-n[1])
	z.LineTo(ax-n[0], ay-n[1])
	z.ClosePath()
}

// compose scales the map into the output image below a caption header.
func compose(mapImg *image.RGBA, out int, caption string) (*image.RGBA, error) {
	dst := image.NewRGBA(image.Rect(0, 0, out, out+headerHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, image.Rect(0, headerHeight, out, out+headerHeight),
		mapImg, mapImg.Bounds(), xdraw.Over, nil)

	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    14,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	defer func() {
		_ = face.Close()
	}()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(colText),
		Face: face,
		Dot:  fixed.P(8, headerHeight-9),
	}
	d.DrawString(caption)
	return dst, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
