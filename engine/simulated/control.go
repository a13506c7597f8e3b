// control.go exposes knobs to observe a simulated component and make it misbehave.

package simulated

import (
	"context"

	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/xsync"
)

// SetIgnoreStateSet makes the component accept state-change commands
// without ever completing them.
func (c *Component) SetIgnoreStateSet(ctx context.Context, ignore bool) {
	c.locker.Do(ctx, func() {
		c.ignoreStateSet = ignore
	})
}

func (c *Component) State(ctx context.Context) engine.State {
	return xsync.DoR1(ctx, &c.locker, func() engine.State {
		return c.state
	})
}

// CommandCount returns how many times the command was sent.
func (c *Component) CommandCount(ctx context.Context, cmd engine.Command) int {
	return xsync.DoA1R1(ctx, &c.locker, c.commandCountLocked, cmd)
}

func (c *Component) commandCountLocked(cmd engine.Command) int {
	return c.commandCount[cmd]
}

// AllocatedBuffers returns the amount of buffers registered on the port.
func (c *Component) AllocatedBuffers(ctx context.Context, portIndex uint32) int {
	return xsync.DoR1(ctx, &c.locker, func() int {
		port, ok := c.ports[portIndex]
		if !ok {
			return 0
		}
		return len(port.Buffers)
	})
}

// HeldBuffers returns the amount of output buffers waiting for data.
func (c *Component) HeldBuffers(ctx context.Context, portIndex uint32) int {
	return xsync.DoR1(ctx, &c.locker, func() int {
		port, ok := c.ports[portIndex]
		if !ok {
			return 0
		}
		return len(port.Held)
	})
}

// InjectError raises an error event from the callback goroutine.
func (c *Component) InjectError(ctx context.Context, code engine.ErrorCode) error {
	return c.enqueue(func(ctx context.Context) {
		c.callbacks.OnEvent(ctx, engine.Event{Kind: engine.EventError, Data1: uint32(code)})
	})
}

// InjectSettingsChanged raises a port-settings-changed event from the
// callback goroutine.
func (c *Component) InjectSettingsChanged(ctx context.Context, portIndex uint32) error {
	return c.enqueue(func(ctx context.Context) {
		c.callbacks.OnEvent(ctx, engine.Event{Kind: engine.EventPortSettingsChanged, Data1: portIndex})
	})
}

// InjectOutput queues data on the first output port as if the component
// produced it by itself.
func (c *Component) InjectOutput(
	ctx context.Context,
	data []byte,
	flags engine.BufferFlag,
) error {
	return c.enqueue(func(ctx context.Context) {
		out := chunkPool.Get()
		out.Data = append(out.Data, data...)
		out.Flags = flags
		queued := xsync.DoR1(ctx, &c.locker, func() bool {
			port, ok := c.firstOutputPortLocked()
			if !ok {
				return false
			}
			port.Pending = append(port.Pending, out)
			return true
		})
		if !queued {
			chunkPool.Put(out)
			return
		}
		c.pump(ctx)
	})
}

// Sync blocks until every job enqueued before the call is processed.
func (c *Component) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.enqueue(func(context.Context) { close(done) }); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
