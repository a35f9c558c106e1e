// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command visidemo runs the visibility core headless on the noop GPU
// backend. A grid of instanced scenes is viewed by an orbiting camera while
// the scenes grow and shrink; per-frame statistics are printed and a
// top-down map of the last frame is written as PNG.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/visicore"
	"github.com/gogpu/visicore/geom"
	"github.com/gogpu/visicore/scene"
)

func main() {
	var (
		scenes  = flag.Int("scenes", 64, "number of scenes")
		copies  = flag.Int("copies", 12, "maximum copies per scene")
		frames  = flag.Int("frames", 120, "frames to run")
		every   = flag.Int("every", 10, "print statistics every n frames")
		size    = flag.Int("size", 768, "map image size")
		output  = flag.String("output", "visibility.png", "output file")
		model   = flag.String("gltf", "", "glTF file used as the scene template")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		visicore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		log.Fatalf("Failed to create instance: %v", err)
	}
	defer instance.Destroy()
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		log.Fatal("No adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer open.Device.Destroy()

	ctx, err := visicore.NewContext(open.Device, open.Queue,
		visicore.WithLabel("visidemo"),
		visicore.WithFramesInFlight(3))
	if err != nil {
		log.Fatalf("Failed to create context: %v", err)
	}

	var tables scene.Tables
	var tpl *scene.Template
	if *model != "" {
		if tpl, err = scene.LoadGLTF(*model, &tables); err != nil {
			log.Fatalf("Failed to load template: %v", err)
		}
	}
	w := newWorld(*scenes, uint32(max(*copies, 1)), tables, tpl)
	radius := float32(len(w.input.Instances)) * 1.5
	radius = max(radius, 60)

	p := message.NewPrinter(language.English)
	var totalVisible, totalDraws int
	var last *visicore.FrameInput
	for i := range *frames {
		w.setCopies(i)
		vp, eye := camera(i, *frames, radius, 1)
		in := w.frameInput(vp, eye)
		f, sub, err := ctx.Frame(in)
		if err != nil {
			log.Fatalf("Frame %d: %v", i, err)
		}
		last = in
		st := ctx.Stats()
		totalVisible += st.Visible
		totalDraws += len(f.Draws)

		if *every > 0 && i%*every == 0 {
			value := uint64(0)
			if sub != nil {
				value = sub.Value
			}
			p.Printf("frame %4d  sync %-8v rows %7d  active %7d  visible %7d  nodes %6d/%-6d  draws %4d+%-4d  skipped %d  timeline %d\n",
				i, st.Sync, st.Rows, st.Active, st.Visible, st.NodesVisited, st.Nodes,
				st.OpaqueBatches, st.TransparentDraws, st.SkippedBatches, value)
		}
	}
	if *frames > 0 {
		p.Printf("average: %.1f visible instances, %.1f draws per frame\n",
			float64(totalVisible)/float64(*frames), float64(totalDraws)/float64(*frames))
	}

	if last != nil && *output != "" {
		fr := geom.ExtractFrustum(last.ViewProj)
		f := ctx.Ring().At(ctx.Stats().Frame)
		mapImg := renderMap(ctx.State(), f, &fr, *size)
		st := ctx.Stats()
		caption := p.Sprintf("%d of %d instances visible", st.Visible, st.Active)
		img, err := compose(mapImg, *size, caption)
		if err != nil {
			log.Fatalf("Failed to render map: %v", err)
		}
		if err := writePNG(*output, img); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		log.Printf("Map saved to %s (%dx%d)\n", *output, img.Bounds().Dx(), img.Bounds().Dy())
	}

	if err := ctx.Close(); err != nil {
		log.Fatalf("Close: %v", err)
	}
}
