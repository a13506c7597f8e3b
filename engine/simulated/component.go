// component.go implements a simulated engine component with its own callback goroutine.

package simulated

import (
	"context"
	"sync"

	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/helpers/closuresignaler"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/avomx/pool"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

const jobQueueSize = 1024

// PortAll addresses every port in flush commands.
const PortAll = ^uint32(0)

type chunk struct {
	Data      []byte
	Flags     engine.BufferFlag
	Timestamp int64
}

var chunkPool = pool.NewPool(
	func() *chunk { return &chunk{} },
	func(c *chunk) { *c = chunk{Data: c.Data[:0]} },
	func(*chunk) {},
)

type portState struct {
	Definition engine.PortDefinition
	Buffers    map[*engine.Buffer]struct{}
	Held       []*engine.Buffer
	Pending    []*chunk
}

// Component is a simulated engine component: input buffers are converted
// with Config.Transform and the result is delivered through the first
// output port.
type Component struct {
	Name      string
	config    Config
	callbacks engine.Callbacks

	locker                 xsync.Mutex
	state                  engine.State
	ports                  map[uint32]*portState
	ignoreStateSet         bool
	commandCount           map[engine.Command]int
	settingsChangedEmitted bool

	jobs            chan func(context.Context)
	closureSignaler *closuresignaler.ClosureSignaler
	waitGroup       sync.WaitGroup
}

var _ engine.Handle = (*Component)(nil)

func newComponent(
	ctx context.Context,
	name string,
	cfg Config,
	callbacks engine.Callbacks,
) *Component {
	c := &Component{
		Name:            name,
		config:          cfg,
		callbacks:       callbacks,
		state:           engine.StateLoaded,
		ports:           map[uint32]*portState{},
		commandCount:    map[engine.Command]int{},
		jobs:            make(chan func(context.Context), jobQueueSize),
		closureSignaler: closuresignaler.New(),
	}
	if c.config.Transform == nil {
		c.config.Transform = func(in []byte) []byte {
			return append([]byte(nil), in...)
		}
	}
	for _, def := range cfg.Ports {
		c.ports[def.Index] = &portState{
			Definition: def,
			Buffers:    map[*engine.Buffer]struct{}{},
		}
	}

	ctx = xcontext.DetachDone(ctx)
	c.waitGroup.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer c.waitGroup.Done()
		c.serve(ctx)
	})
	return c
}

func (c *Component) serve(ctx context.Context) {
	logger.Debugf(ctx, "serve: %s", c.Name)
	defer func() { logger.Debugf(ctx, "/serve: %s", c.Name) }()
	for {
		select {
		case <-c.closureSignaler.CloseChan():
			return
		case job := <-c.jobs:
			job(ctx)
		}
	}
}

func (c *Component) enqueue(job func(context.Context)) error {
	if err := c.closureSignaler.Err(); err != nil {
		return err
	}
	select {
	case <-c.closureSignaler.CloseChan():
		return c.closureSignaler.Err()
	case c.jobs <- job:
		return nil
	}
}

func (c *Component) close(ctx context.Context) {
	c.closureSignaler.Close(ctx, engine.ErrorInvalidState)
	c.waitGroup.Wait()
}

func (c *Component) SendCommand(
	ctx context.Context,
	cmd engine.Command,
	param uint32,
) error {
	logger.Tracef(ctx, "SendCommand(ctx, %s, %d)", cmd, param)
	ignore := xsync.DoR1(ctx, &c.locker, func() bool {
		c.commandCount[cmd]++
		return cmd == engine.CommandStateSet && c.ignoreStateSet
	})
	switch cmd {
	case engine.CommandStateSet:
		if engine.State(param) > engine.StateWaitForResources {
			return engine.ErrorBadParameter
		}
		if ignore {
			logger.Debugf(ctx, "ignoring the state change to %s", engine.State(param))
			return nil
		}
		return c.enqueue(func(ctx context.Context) {
			c.setState(ctx, engine.State(param))
		})
	case engine.CommandFlush:
		return c.enqueue(func(ctx context.Context) {
			c.returnHeld(ctx, param)
			c.callbacks.OnEvent(ctx, engine.Event{Kind: engine.EventCmdComplete, Data1: uint32(cmd), Data2: param})
		})
	case engine.CommandPortDisable, engine.CommandPortEnable:
		if !c.hasPort(ctx, param) {
			return engine.ErrorBadPortIndex
		}
		return c.enqueue(func(ctx context.Context) {
			c.locker.Do(ctx, func() {
				c.ports[param].Definition.Enabled = cmd == engine.CommandPortEnable
			})
			if cmd == engine.CommandPortDisable {
				c.returnHeld(ctx, param)
			}
			c.callbacks.OnEvent(ctx, engine.Event{Kind: engine.EventCmdComplete, Data1: uint32(cmd), Data2: param})
		})
	case engine.CommandMarkBuffer:
		return c.enqueue(func(ctx context.Context) {
			c.callbacks.OnEvent(ctx, engine.Event{Kind: engine.EventCmdComplete, Data1: uint32(cmd), Data2: param})
		})
	default:
		return engine.ErrorBadParameter
	}
}

func (c *Component) setState(ctx context.Context, state engine.State) {
	prev := xsync.DoR1(ctx, &c.locker, func() engine.State {
		prev := c.state
		c.state = state
		return prev
	})
	logger.Debugf(ctx, "%s: state %s -> %s", c.Name, prev, state)
	if state == engine.StateIdle && (prev == engine.StateExecuting || prev == engine.StatePause) {
		c.returnHeld(ctx, PortAll)
	}
	c.callbacks.OnEvent(ctx, engine.Event{
		Kind:  engine.EventCmdComplete,
		Data1: uint32(engine.CommandStateSet),
		Data2: uint32(state),
	})
}

// returnHeld gives back the output buffers waiting for data, with no data.
func (c *Component) returnHeld(ctx context.Context, portIndex uint32) {
	held := xsync.DoR1(ctx, &c.locker, func() []*engine.Buffer {
		var held []*engine.Buffer
		for idx, port := range c.ports {
			if portIndex != PortAll && idx != portIndex {
				continue
			}
			held = append(held, port.Held...)
			port.Held = nil
			for _, ch := range port.Pending {
				chunkPool.Put(ch)
			}
			port.Pending = nil
		}
		return held
	})
	for _, buf := range held {
		buf.FilledLen = 0
		buf.Offset = 0
		buf.Flags = 0
		c.callbacks.OnFillBufferDone(ctx, buf)
	}
}

func (c *Component) hasPort(ctx context.Context, portIndex uint32) bool {
	return xsync.DoR1(ctx, &c.locker, func() bool {
		_, ok := c.ports[portIndex]
		return ok
	})
}

func (c *Component) GetPortDefinition(
	ctx context.Context,
	portIndex uint32,
) (_ret engine.PortDefinition, _err error) {
	c.locker.Do(ctx, func() {
		port, ok := c.ports[portIndex]
		if !ok {
			_err = engine.ErrorBadPortIndex
			return
		}
		_ret = port.Definition
		_ret.Populated = uint32(len(port.Buffers)) >= port.Definition.BufferCount
	})
	return
}

func (c *Component) SetPortDefinition(
	ctx context.Context,
	def engine.PortDefinition,
) (_err error) {
	c.locker.Do(ctx, func() {
		port, ok := c.ports[def.Index]
		if !ok {
			_err = engine.ErrorBadPortIndex
			return
		}
		if def.BufferCount < port.Definition.BufferCountMin {
			_err = engine.ErrorBadParameter
			return
		}
		port.Definition.BufferCount = def.BufferCount
		port.Definition.BufferSize = def.BufferSize
	})
	return
}

func (c *Component) UseBuffer(
	ctx context.Context,
	portIndex uint32,
	size uint32,
) (_ret *engine.Buffer, _err error) {
	c.locker.Do(ctx, func() {
		port, ok := c.ports[portIndex]
		if !ok {
			_err = engine.ErrorBadPortIndex
			return
		}
		buf := &engine.Buffer{Data: make([]byte, size)}
		switch port.Definition.Direction {
		case engine.DirectionInput:
			buf.InputPortIndex = portIndex
		case engine.DirectionOutput:
			buf.OutputPortIndex = portIndex
		}
		port.Buffers[buf] = struct{}{}
		_ret = buf
	})
	return
}

func (c *Component) FreeBuffer(
	ctx context.Context,
	portIndex uint32,
	buf *engine.Buffer,
) (_err error) {
	c.locker.Do(ctx, func() {
		port, ok := c.ports[portIndex]
		if !ok {
			_err = engine.ErrorBadPortIndex
			return
		}
		if _, ok := port.Buffers[buf]; !ok {
			_err = engine.ErrorBadParameter
			return
		}
		delete(port.Buffers, buf)
		for idx, held := range port.Held {
			if held == buf {
				port.Held = append(port.Held[:idx], port.Held[idx+1:]...)
				break
			}
		}
	})
	return
}

func (c *Component) checkBuffer(
	ctx context.Context,
	buf *engine.Buffer,
	portIndex uint32,
	direction engine.Direction,
) error {
	return xsync.DoR1(ctx, &c.locker, func() error {
		switch c.state {
		case engine.StateIdle, engine.StateExecuting, engine.StatePause:
		default:
			return engine.ErrorIncorrectStateOperation
		}
		port, ok := c.ports[portIndex]
		if !ok || port.Definition.Direction != direction {
			return engine.ErrorBadPortIndex
		}
		if _, ok := port.Buffers[buf]; !ok {
			return engine.ErrorBadParameter
		}
		return nil
	})
}

func (c *Component) EmptyThisBuffer(
	ctx context.Context,
	buf *engine.Buffer,
) error {
	if err := c.checkBuffer(ctx, buf, buf.InputPortIndex, engine.DirectionInput); err != nil {
		return err
	}
	return c.enqueue(func(ctx context.Context) {
		out := chunkPool.Get()
		out.Data = append(out.Data, c.config.Transform(buf.Payload())...)
		out.Flags = buf.Flags & engine.BufferFlagEOS
		out.Timestamp = buf.Timestamp
		buf.FilledLen = 0
		buf.Offset = 0
		buf.Flags = 0
		c.callbacks.OnEmptyBufferDone(ctx, buf)

		var (
			emitSettingsChanged bool
			outputIndex         uint32
			queued              bool
		)
		c.locker.Do(ctx, func() {
			port, ok := c.firstOutputPortLocked()
			if !ok {
				return
			}
			outputIndex = port.Definition.Index
			emitSettingsChanged = c.config.EmitSettingsChanged && !c.settingsChangedEmitted
			c.settingsChangedEmitted = true
			if len(out.Data) > 0 || out.Flags != 0 {
				port.Pending = append(port.Pending, out)
				queued = true
			}
		})
		if !queued {
			chunkPool.Put(out)
		}
		if emitSettingsChanged {
			c.callbacks.OnEvent(ctx, engine.Event{Kind: engine.EventPortSettingsChanged, Data1: outputIndex})
		}
		c.pump(ctx)
	})
}

func (c *Component) FillThisBuffer(
	ctx context.Context,
	buf *engine.Buffer,
) error {
	if err := c.checkBuffer(ctx, buf, buf.OutputPortIndex, engine.DirectionOutput); err != nil {
		return err
	}
	return c.enqueue(func(ctx context.Context) {
		c.locker.Do(ctx, func() {
			port := c.ports[buf.OutputPortIndex]
			if _, ok := port.Buffers[buf]; !ok {
				logger.Debugf(ctx, "the buffer %p was freed before it was processed", buf)
				return
			}
			port.Held = append(port.Held, buf)
		})
		c.pump(ctx)
	})
}

func (c *Component) firstOutputPortLocked() (*portState, bool) {
	var result *portState
	for _, port := range c.ports {
		if port.Definition.Direction != engine.DirectionOutput {
			continue
		}
		if result == nil || port.Definition.Index < result.Definition.Index {
			result = port
		}
	}
	return result, result != nil
}

// pump fills the held output buffers with the pending output data.
func (c *Component) pump(ctx context.Context) {
	for {
		var (
			buf *engine.Buffer
			eos bool
		)
		c.locker.Do(ctx, func() {
			for _, port := range c.ports {
				if len(port.Held) == 0 || len(port.Pending) == 0 {
					continue
				}
				buf = port.Held[0]
				port.Held = port.Held[1:]
				ch := port.Pending[0]
				n := copy(buf.Data, ch.Data)
				ch.Data = ch.Data[n:]
				buf.Offset = 0
				buf.FilledLen = uint32(n)
				buf.Flags = 0
				buf.Timestamp = ch.Timestamp
				if len(ch.Data) != 0 {
					return
				}
				port.Pending = port.Pending[1:]
				buf.Flags = ch.Flags
				eos = buf.Flags.Has(engine.BufferFlagEOS)
				chunkPool.Put(ch)
				return
			}
		})
		if buf == nil {
			return
		}
		c.callbacks.OnFillBufferDone(ctx, buf)
		if eos {
			c.callbacks.OnEvent(ctx, engine.Event{
				Kind:  engine.EventBufferFlag,
				Data1: buf.OutputPortIndex,
				Data2: uint32(engine.BufferFlagEOS),
			})
		}
	}
}
