// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package visicore

import (
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/visicore/internal/logging"
)

// loggerPtr stores the package logger. Accessed atomically so SetLogger can
// be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logging.Nop())
}

// SetLogger sets the logger used by contexts created without WithLogger.
// By default visicore produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used by visicore:
//   - [slog.LevelDebug]: per-frame bookkeeping (sync outcome, BVH rebuild or
//     refit, upload submission values)
//   - [slog.LevelWarn]: recoverable data problems (skipped draw batches,
//     instances dropped on staging overflow, duplicate scene instances)
//
// Example:
//
//	visicore.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	loggerPtr.Store(logging.OrNop(l))
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
