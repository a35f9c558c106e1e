// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visicore

import (
	"fmt"

	"github.com/gogpu/visicore/frame"
	"github.com/gogpu/visicore/internal/parallel"
	"github.com/gogpu/visicore/upload"
)

// Group drives several independent contexts, such as the main view and
// shadow cascades, that share one queue.
//
// The CPU phases of all contexts run concurrently; uploads are then
// submitted one context at a time in the order the contexts were added.
type Group struct {
	contexts []*Context
	pool     *parallel.WorkerPool
	closed   bool
}

// NewGroup returns a group running on workers goroutines. Zero or less
// selects GOMAXPROCS.
func NewGroup(workers int, contexts ...*Context) *Group {
	return &Group{
		contexts: contexts,
		pool:     parallel.NewWorkerPool(workers),
	}
}

// Add appends a context.
func (g *Group) Add(c *Context) { g.contexts = append(g.contexts, c) }

// Len returns the number of contexts.
func (g *Group) Len() int { return len(g.contexts) }

// At returns context i.
func (g *Group) At(i int) *Context { return g.contexts[i] }

// Frame runs one frame for every context; inputs[i] feeds context i.
// Inputs may share a SyncInput since synchronization only reads it.
func (g *Group) Frame(inputs []*FrameInput) ([]*frame.Context, []*upload.Submission, error) {
	if g.closed {
		return nil, nil, ErrClosed
	}
	if len(inputs) != len(g.contexts) {
		return nil, nil, fmt.Errorf("%w: %d inputs, %d contexts", ErrInputMismatch, len(inputs), len(g.contexts))
	}

	frames := make([]*frame.Context, len(g.contexts))
	err := g.pool.ForEach(len(g.contexts), func(i int) error {
		f, err := g.contexts[i].Prepare(inputs[i])
		if err != nil {
			return fmt.Errorf("context %d: %w", i, err)
		}
		frames[i] = f
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	subs := make([]*upload.Submission, len(g.contexts))
	for i, c := range g.contexts {
		if subs[i], err = c.Upload(frames[i]); err != nil {
			return nil, nil, fmt.Errorf("context %d: %w", i, err)
		}
	}
	return frames, subs, nil
}

// Stats returns the statistics of every context.
func (g *Group) Stats() []Stats {
	out := make([]Stats, len(g.contexts))
	for i, c := range g.contexts {
		out[i] = c.Stats()
	}
	return out
}

// Close stops the worker pool and closes every context.
func (g *Group) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	g.pool.Close()
	var first error
	for _, c := range g.contexts {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
