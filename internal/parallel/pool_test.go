// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package parallel

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Creation
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("IsRunning() = false after creation")
	}
}

func TestWorkerPool_DefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

// =============================================================================
// ForEach / Run
// =============================================================================

func TestWorkerPool_ForEach(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	const n = 100
	var hits [n]atomic.Int32
	if err := pool.ForEach(n, func(i int) error {
		hits[i].Add(1)
		return nil
	}); err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	for i := range hits {
		if got := hits[i].Load(); got != 1 {
			t.Errorf("index %d ran %d times, want 1", i, got)
		}
	}
}

func TestWorkerPool_ForEachErrors(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	errOdd := errors.New("odd")
	err := pool.ForEach(6, func(i int) error {
		if i%2 == 1 {
			return errOdd
		}
		return nil
	})
	if !errors.Is(err, errOdd) {
		t.Errorf("ForEach() = %v, want errOdd", err)
	}
}

func TestWorkerPool_Run(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	var sum atomic.Int64
	tasks := make([]func() error, 10)
	for i := range tasks {
		tasks[i] = func() error {
			sum.Add(int64(i))
			return nil
		}
	}
	if err := pool.Run(tasks); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Load() != 45 {
		t.Errorf("sum = %d, want 45", sum.Load())
	}
	if err := pool.Run(nil); err != nil {
		t.Errorf("Run(nil) = %v, want nil", err)
	}
}

func TestWorkerPool_Steal(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	// Task 0 blocks its worker; the others must still finish through stealing.
	release := make(chan struct{})
	var done atomic.Int32
	finished := make(chan error, 1)
	go func() {
		finished <- pool.ForEach(5, func(i int) error {
			if i == 0 {
				<-release
			}
			done.Add(1)
			return nil
		})
	}()

	deadline := time.After(5 * time.Second)
	for done.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("only %d tasks finished while one worker was blocked", done.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	if err := <-finished; err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
}

// =============================================================================
// Close
// =============================================================================

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
	if err := pool.ForEach(1, func(int) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("ForEach() after Close = %v, want ErrClosed", err)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_ForEach(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	var sink atomic.Int64
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.ForEach(64, func(j int) error {
			sink.Add(int64(j))
			return nil
		})
	}
}
