// closer.go defines the interfaces of objects that own engine resources.

// Package types contains small interfaces shared between packages.
package types

import (
	"context"
)

// Closer releases the engine resources of an object. It is safe to call
// more than once; the later calls report the result of the first one.
type Closer interface {
	Close(context.Context) error

	// CloseChan is closed once Close has started.
	CloseChan() <-chan struct{}
}
