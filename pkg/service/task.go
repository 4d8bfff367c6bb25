// Package service runs annotation IO batches in the background. Every call
// returns a Task immediately; items are fanned out over a bounded worker
// pool and the consolidated result is produced once all of them finished.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// ErrCancelled is returned by Task.Wait after Cancel. Partial results are discarded.
var ErrCancelled = errors.New("operation cancelled")

// ProgressFunc receives the completed fraction of a task, in increasing order.
// It is called from worker goroutines.
type ProgressFunc func(progress float64)

// Task is the handle of a background operation.
type Task[T any] struct {
	id         uuid.UUID
	cancel     context.CancelFunc
	done       chan struct{}
	total      atomic.Int64
	finished   atomic.Int64
	progressMu sync.Mutex
	onProgress ProgressFunc

	result T
	err    error
}

func startTask[T any](ctx context.Context, onProgress ProgressFunc, run func(ctx context.Context, t *Task[T]) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		id:         uuid.New(),
		cancel:     cancel,
		done:       make(chan struct{}),
		onProgress: onProgress,
	}
	go func() {
		defer close(t.done)
		defer cancel()

		result, err := run(ctx, t)
		if err == nil && ctx.Err() != nil {
			err = ErrCancelled
		}
		if err != nil {
			var zero T
			result = zero
		}
		t.result, t.err = result, err
	}()
	return t
}

// ID identifies the task.
func (t *Task[T]) ID() uuid.UUID {
	return t.id
}

// Progress returns the completed fraction in [0,1].
func (t *Task[T]) Progress() float64 {
	total := t.total.Load()
	if total == 0 {
		select {
		case <-t.done:
			return 1
		default:
			return 0
		}
	}
	return float64(t.finished.Load()) / float64(total)
}

// Cancel stops dispatching new items. Items already running finish or abort
// through their context.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has finished and returns its result.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}

func (t *Task[T]) setTotal(n int) {
	t.total.Store(int64(n))
}

func (t *Task[T]) advance() {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()

	n := t.finished.Inc()
	if t.onProgress != nil {
		if total := t.total.Load(); total > 0 {
			t.onProgress(float64(n) / float64(total))
		}
	}
}
