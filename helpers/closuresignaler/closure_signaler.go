// closure_signaler.go provides a one-shot signal that an object was closed, together with the reason.

// Package closuresignaler provides a one-shot signal that an object was
// closed. The first Close wins and records the error that operations on the
// closed object report from then on.
package closuresignaler

import (
	"context"
	"errors"
	"sync"

	"github.com/xaionaro-go/avomx/logger"
)

// ErrClosed is the cause reported when Close was given none.
var ErrClosed = errors.New("closed")

type ClosureSignaler struct {
	closeOnce sync.Once
	cause     error
	c         chan struct{}
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

// CloseChan is closed by the first Close call.
func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// Close raises the signal; cause is what Err reports afterwards. Only
// the first call has an effect.
func (c *ClosureSignaler) Close(ctx context.Context, cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = ErrClosed
		}
		logger.Tracef(ctx, "closing the signal: %v", cause)
		c.cause = cause
		close(c.c)
	})
}

// Err returns nil until Close is called and the close cause after that.
func (c *ClosureSignaler) Err() error {
	select {
	case <-c.c:
		return c.cause
	default:
		return nil
	}
}

func (c *ClosureSignaler) IsClosed() bool {
	return c.Err() != nil
}
