// port.go implements a directional data channel of a session with its buffer pool and queue.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avomx/bufferqueue"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/internal"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xsync"
)

// Port owns the buffers of one engine port and the queue of the buffers
// currently owned by the application.
type Port struct {
	session *Session
	index   uint32

	locker      xsync.Mutex
	direction   engine.Direction
	bufferCount uint32
	bufferSize  uint32
	enabled     bool
	buffers     []*engine.Buffer

	queue *bufferqueue.Queue[*engine.Buffer]
}

func newPort(s *Session, index uint32) *Port {
	return &Port{
		session: s,
		index:   index,
		enabled: true,
		queue:   bufferqueue.New[*engine.Buffer](),
	}
}

func (p *Port) String() string {
	return fmt.Sprintf("port#%d", p.index)
}

func (p *Port) Index() uint32 {
	return p.index
}

func (p *Port) Direction(ctx context.Context) engine.Direction {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() engine.Direction {
		return p.direction
	})
}

func (p *Port) BufferCount(ctx context.Context) uint32 {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() uint32 {
		return p.bufferCount
	})
}

func (p *Port) BufferSize(ctx context.Context) uint32 {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() uint32 {
		return p.bufferSize
	})
}

func (p *Port) IsEnabled(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() bool {
		return p.enabled
	})
}

// Queued returns the amount of buffers currently waiting in the queue.
func (p *Port) Queued(ctx context.Context) int {
	return p.queue.Len(ctx)
}

// Configure sets the shape of the port and resets its buffer slots. It
// fails if buffers are currently allocated.
func (p *Port) Configure(
	ctx context.Context,
	def engine.PortDefinition,
) error {
	return xsync.DoA2R1(ctx, &p.locker, p.configureLocked, ctx, def)
}

func (p *Port) configureLocked(
	ctx context.Context,
	def engine.PortDefinition,
) error {
	internal.Assertf(ctx, def.Index == p.index, "definition of port #%d applied to %s", def.Index, p)
	for _, buf := range p.buffers {
		if buf != nil {
			return ErrBuffersAllocated{Index: p.index}
		}
	}
	logger.Debugf(ctx, "%s: direction:%s count:%d size:%d", p, def.Direction, def.BufferCount, def.BufferSize)
	p.direction = def.Direction
	p.bufferCount = def.BufferCount
	p.bufferSize = def.BufferSize
	p.buffers = make([]*engine.Buffer, def.BufferCount)
	return nil
}

// AllocateBuffers allocates and registers a buffer for every empty slot.
func (p *Port) AllocateBuffers(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: AllocateBuffers", p)
	defer func() { logger.Debugf(ctx, "/%s: AllocateBuffers: %v", p, _err) }()
	return xsync.DoA1R1(ctx, &p.locker, p.allocateBuffersLocked, ctx)
}

func (p *Port) allocateBuffersLocked(ctx context.Context) error {
	for idx, buf := range p.buffers {
		if buf != nil {
			continue
		}
		buf, err := p.session.handle.UseBuffer(ctx, p.index, p.bufferSize)
		if err != nil {
			return fmt.Errorf("unable to allocate buffer %d/%d of size %d: %w", idx+1, len(p.buffers), p.bufferSize, err)
		}
		p.buffers[idx] = buf
	}
	return nil
}

// FreeBuffers unregisters and frees all allocated buffers of the port;
// already freed slots are skipped. Buffers left in the queue are discarded.
func (p *Port) FreeBuffers(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: FreeBuffers", p)
	defer func() { logger.Debugf(ctx, "/%s: FreeBuffers: %v", p, _err) }()
	err := xsync.DoA1R1(ctx, &p.locker, p.freeBuffersLocked, ctx)
	p.drainQueue(ctx)
	return err
}

func (p *Port) drainQueue(ctx context.Context) {
	for {
		if _, ok := p.queue.PopForced(ctx); !ok {
			return
		}
	}
}

func (p *Port) freeBuffersLocked(ctx context.Context) error {
	var result []error
	for idx, buf := range p.buffers {
		if buf == nil {
			continue
		}
		if err := p.session.handle.FreeBuffer(ctx, p.index, buf); err != nil {
			result = append(result, fmt.Errorf("unable to free buffer %d: %w", idx, err))
		}
		p.buffers[idx] = nil
	}
	return errors.Join(result...)
}

// StartBuffers starts the buffer circulation: input buffers are handed to
// the application (via the queue) to be filled, output buffers are handed
// to the engine to be filled.
func (p *Port) StartBuffers(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: StartBuffers", p)
	defer func() { logger.Debugf(ctx, "/%s: StartBuffers: %v", p, _err) }()
	direction, buffers := xsync.DoR2(ctx, &p.locker, func() (engine.Direction, []*engine.Buffer) {
		buffers := make([]*engine.Buffer, 0, len(p.buffers))
		for _, buf := range p.buffers {
			if buf != nil {
				buffers = append(buffers, buf)
			}
		}
		return p.direction, buffers
	})
	var result []error
	for _, buf := range buffers {
		switch direction {
		case engine.DirectionInput:
			p.gotBuffer(ctx, buf)
		default:
			if err := p.ReleaseBuffer(ctx, buf); err != nil {
				result = append(result, err)
			}
		}
	}
	return errors.Join(result...)
}

// Push puts a buffer into the queue of the port.
func (p *Port) Push(ctx context.Context, buf *engine.Buffer) {
	p.queue.Push(ctx, buf)
}

// Request returns the next buffer owned by the application, blocking until
// there is one. It returns ErrInterrupted if the port is paused.
func (p *Port) Request(ctx context.Context) (*engine.Buffer, error) {
	buf, err := p.queue.Pop(ctx)
	if err != nil {
		if errors.As(err, &bufferqueue.ErrDisabled{}) {
			return nil, ErrInterrupted{Cause: err}
		}
		return nil, err
	}
	return buf, nil
}

// ReleaseBuffer hands the buffer to the engine: input buffers to be
// consumed, output buffers to be filled.
func (p *Port) ReleaseBuffer(ctx context.Context, buf *engine.Buffer) error {
	logger.Tracef(ctx, "%s: ReleaseBuffer(ctx, %p)", p, buf)
	switch direction := p.Direction(ctx); direction {
	case engine.DirectionInput:
		return p.session.handle.EmptyThisBuffer(ctx, buf)
	case engine.DirectionOutput:
		return p.session.handle.FillThisBuffer(ctx, buf)
	default:
		return fmt.Errorf("unexpected direction %s", direction)
	}
}

// Pause disables the queue, releasing blocked Request calls.
func (p *Port) Pause(ctx context.Context) {
	p.queue.Disable(ctx)
}

// Resume enables the queue again.
func (p *Port) Resume(ctx context.Context) {
	p.queue.Enable(ctx)
}

// Flush returns the in-flight buffers. Output buffers queued for the
// application are reset and handed back to the engine locally; for input
// ports the engine is asked to flush and the call waits for its confirmation.
func (p *Port) Flush(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: Flush", p)
	defer func() { logger.Debugf(ctx, "/%s: Flush: %v", p, _err) }()
	if p.Direction(ctx) == engine.DirectionOutput {
		var result []error
		for {
			buf, ok := p.queue.PopForced(ctx)
			if !ok {
				break
			}
			buf.FilledLen = 0
			buf.Offset = 0
			buf.Flags = 0
			if err := p.ReleaseBuffer(ctx, buf); err != nil {
				result = append(result, err)
			}
		}
		return errors.Join(result...)
	}

	if err := p.session.sendCommand(ctx, engine.CommandFlush, p.index); err != nil {
		return err
	}
	return p.session.FlushSem.Down(ctx)
}

// Enable enables the port on the engine, allocates its buffers (and starts
// their circulation unless the component is Loaded) and waits for the
// engine's confirmation.
func (p *Port) Enable(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: Enable", p)
	defer func() { logger.Debugf(ctx, "/%s: Enable: %v", p, _err) }()
	s := p.session
	if err := s.sendCommand(ctx, engine.CommandPortEnable, p.index); err != nil {
		return err
	}
	if err := p.AllocateBuffers(ctx); err != nil {
		return err
	}
	if s.State(ctx) != engine.StateLoaded {
		if err := p.StartBuffers(ctx); err != nil {
			return err
		}
	}
	p.Resume(ctx)
	p.setEnabled(ctx, true)
	return s.PortSem.Down(ctx)
}

// Disable disables the port on the engine, flushes and frees its buffers
// and waits for the engine's confirmation.
func (p *Port) Disable(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "%s: Disable", p)
	defer func() { logger.Debugf(ctx, "/%s: Disable: %v", p, _err) }()
	s := p.session
	if err := s.sendCommand(ctx, engine.CommandPortDisable, p.index); err != nil {
		return err
	}
	p.Pause(ctx)
	var result []error
	if err := p.Flush(ctx); err != nil {
		result = append(result, err)
	}
	if err := p.FreeBuffers(ctx); err != nil {
		result = append(result, err)
	}
	p.setEnabled(ctx, false)
	if err := s.PortSem.Down(ctx); err != nil {
		result = append(result, err)
	}
	// buffers returned while the command was in flight are already freed
	p.drainQueue(ctx)
	return errors.Join(result...)
}

// Finish marks the port as disabled and disables its queue for good.
func (p *Port) Finish(ctx context.Context) {
	p.setEnabled(ctx, false)
	p.queue.Disable(ctx)
}

func (p *Port) setEnabled(ctx context.Context, enabled bool) {
	p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		p.enabled = enabled
	})
}

// gotBuffer transfers the buffer ownership from the engine to the application.
func (p *Port) gotBuffer(ctx context.Context, buf *engine.Buffer) {
	if buf == nil {
		return
	}
	p.queue.Push(ctx, buf)
	if !p.IsEnabled(ctx) {
		logger.Tracef(ctx, "%s: got a buffer while disabled", p)
	}
}
