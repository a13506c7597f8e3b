// pool.go implements a generic object pool on top of sync.Pool.

// Package pool provides a typed object pool with reset and free hooks.
package pool

import (
	"runtime"
	"sync"
)

// ReuseMemory disables the reuse of objects if set to false (useful to
// catch use-after-put bugs).
var ReuseMemory = true

type Pool[T any] struct {
	sync.Pool
	ResetFunc func(*T)
}

// NewPool returns a pool allocating objects with allocFunc; resetFunc is
// called on every Put and freeFunc when an object is garbage collected.
func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	return &Pool[T]{
		Pool: sync.Pool{
			New: func() any {
				v := allocFunc()
				runtime.SetFinalizer(v, freeFunc)
				return v
			},
		},
		ResetFunc: resetFunc,
	}
}

func (p *Pool[T]) Get() *T {
	return p.Pool.Get().(*T)
}

func (p *Pool[T]) Put(items ...*T) {
	if !ReuseMemory {
		return
	}
	for _, item := range items {
		p.ResetFunc(item)
		p.Pool.Put(item)
	}
}
