// queue.go implements a blocking FIFO queue that can be disabled to release its consumers.

// Package bufferqueue provides the per-port queue that hands buffers between
// the engine callback thread and the application thread.
package bufferqueue

import (
	"context"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/xsync"
)

// ErrDisabled is returned by Pop when the queue is disabled (for example
// during a flush) instead of a buffer.
type ErrDisabled struct{}

func (ErrDisabled) Error() string {
	return "the queue is disabled"
}

// Queue is an unbounded FIFO queue. Pop blocks while the queue is empty and
// enabled; disabling the queue makes pending and future Pop calls return
// ErrDisabled without losing any queued item.
type Queue[T any] struct {
	locker  xsync.Mutex
	items   []T
	enabled bool

	// changeChan is closed (and replaced) on every push and every enable/disable.
	changeChan *chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		enabled:    true,
		changeChan: ptr(make(chan struct{})),
	}
}

func (q *Queue[T]) notifyLocked() {
	close(*xatomic.SwapPointer(&q.changeChan, ptr(make(chan struct{}))))
}

// Push appends the item to the tail and wakes up the waiters.
func (q *Queue[T]) Push(ctx context.Context, item T) {
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		q.items = append(q.items, item)
		q.notifyLocked()
	})
}

// Pop returns the head of the queue, blocking while the queue is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		item, ch, err := q.tryPop(ctx)
		if ch == nil {
			return item, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ch:
		}
	}
}

func (q *Queue[T]) tryPop(ctx context.Context) (_ret T, _ch <-chan struct{}, _err error) {
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if !q.enabled {
			_err = ErrDisabled{}
			return
		}
		if len(q.items) == 0 {
			_ch = *xatomic.LoadPointer(&q.changeChan)
			return
		}
		_ret = q.popLocked()
	})
	return
}

func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item
}

// PopForced returns an already queued item regardless of whether the queue
// is enabled. It never blocks; the second value is false if the queue is empty.
func (q *Queue[T]) PopForced(ctx context.Context) (_ret T, _ok bool) {
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if len(q.items) == 0 {
			return
		}
		_ret, _ok = q.popLocked(), true
	})
	return
}

// Enable allows Pop to proceed again.
func (q *Queue[T]) Enable(ctx context.Context) {
	q.setEnabled(ctx, true)
}

// Disable makes all blocked and future Pop calls return ErrDisabled.
func (q *Queue[T]) Disable(ctx context.Context) {
	q.setEnabled(ctx, false)
}

func (q *Queue[T]) setEnabled(ctx context.Context, enabled bool) {
	q.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		if q.enabled == enabled {
			return
		}
		q.enabled = enabled
		q.notifyLocked()
	})
}

func (q *Queue[T]) IsEnabled(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() bool {
		return q.enabled
	})
}

func (q *Queue[T]) Len(ctx context.Context) int {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &q.locker, func() int {
		return len(q.items)
	})
}

func ptr[T any](in T) *T {
	return &in
}
