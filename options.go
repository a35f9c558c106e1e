// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visicore

import (
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/visicore/internal/bvh"
	"github.com/gogpu/visicore/upload"
)

// Option configures a Context during creation.
//
// Example:
//
//	ctx, err := visicore.NewContext(device, queue,
//	    visicore.WithMaxInstances(1<<18),
//	    visicore.WithQueueFamilies(transfer, graphics))
type Option func(*options)

type options struct {
	label          string
	maxLeaf        int
	maxInstances   int
	maxDraws       int
	transferFamily uint32
	graphicsFamily uint32
	framesInFlight int
	limits         gputypes.Limits
	logger         *slog.Logger
}

func defaultOptions() options {
	up := upload.DefaultConfig()
	return options{
		label:          up.Label,
		maxLeaf:        bvh.DefaultMaxLeaf,
		maxInstances:   up.MaxInstances,
		maxDraws:       up.MaxDraws,
		framesInFlight: 2,
		limits:         up.Limits,
	}
}

// WithMaxLeaf sets the most rows a BVH leaf holds.
func WithMaxLeaf(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLeaf = n
		}
	}
}

// WithMaxInstances sets the capacity of the uploaded instance buffer.
// Visible instances beyond it are dropped with a warning.
func WithMaxInstances(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxInstances = n
		}
	}
}

// WithMaxDraws sets the capacity of the indirect draw buffer.
func WithMaxDraws(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDraws = n
		}
	}
}

// WithQueueFamilies sets the queue family uploads are submitted on and the
// family that consumes them. Different families make every upload carry a
// pending ownership handoff.
func WithQueueFamilies(transfer, graphics uint32) Option {
	return func(o *options) {
		o.transferFamily = transfer
		o.graphicsFamily = graphics
	}
}

// WithFramesInFlight sets the number of frame contexts cycled by the context.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.framesInFlight = n
		}
	}
}

// WithLimits sets the device limits used for buffer alignment and capacity
// checks.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}

// WithLogger sets the context's logger. Without it the package logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLabel prefixes the labels of GPU objects the context creates.
func WithLabel(label string) Option {
	return func(o *options) {
		if label != "" {
			o.label = label
		}
	}
}
