// semaphore.go implements a counting semaphore with context-aware waits.

// Package semaphore provides the counting semaphore used to rendezvous
// between engine callbacks and the application thread.
package semaphore

import (
	"context"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/xsync"
)

// Semaphore is a classic counting semaphore. The zero value is not usable,
// use New.
type Semaphore struct {
	locker  xsync.Mutex
	counter uint64

	// changeChan is closed (and replaced) every time counter is incremented.
	changeChan *chan struct{}
}

func New() *Semaphore {
	return &Semaphore{
		changeChan: ptr(make(chan struct{})),
	}
}

// Up increments the counter and wakes the waiters. It never blocks on
// anything but the internal mutex.
func (s *Semaphore) Up(ctx context.Context) {
	s.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.counter++
		close(*xatomic.SwapPointer(&s.changeChan, ptr(make(chan struct{}))))
	})
}

// Down blocks until the counter is positive and then decrements it.
//
// Only one waiter proceeds per Up; the order among several waiters is not defined.
// It returns ctx.Err() if the context is cancelled before the counter
// could be decremented.
func (s *Semaphore) Down(ctx context.Context) error {
	for {
		ok, ch := s.tryDown(ctx)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// TryDown decrements the counter if it is positive and reports if it did.
func (s *Semaphore) TryDown(ctx context.Context) bool {
	ok, _ := s.tryDown(ctx)
	return ok
}

func (s *Semaphore) tryDown(ctx context.Context) (bool, <-chan struct{}) {
	return xsync.DoR2(xsync.WithNoLogging(ctx, true), &s.locker, func() (bool, <-chan struct{}) {
		if s.counter > 0 {
			s.counter--
			return true, nil
		}
		return false, *xatomic.LoadPointer(&s.changeChan)
	})
}

// Value returns the current counter value.
func (s *Semaphore) Value(ctx context.Context) uint64 {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, func() uint64 {
		return s.counter
	})
}

func ptr[T any](in T) *T {
	return &in
}
