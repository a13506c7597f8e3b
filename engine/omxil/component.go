//go:build linux && (amd64 || arm64)

// component.go implements engine.Handle on top of a native component handle.

package omxil

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/internal"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"golang.org/x/sys/unix"
)

type Component struct {
	Name string

	id        uint64
	handle    uintptr
	ctx       context.Context
	callbacks engine.Callbacks

	// buffers maps the native buffer headers to the buffers given to the application.
	buffers xsync.Map[uintptr, *engine.Buffer]
}

var _ engine.Handle = (*Component)(nil)

func newComponent(
	ctx context.Context,
	id uint64,
	name string,
	callbacks engine.Callbacks,
) *Component {
	return &Component{
		Name:      name,
		id:        id,
		ctx:       xcontext.DetachDone(ctx),
		callbacks: callbacks,
	}
}

// nativeBuffer is the memory of a buffer registered with UseBuffer.
type nativeBuffer struct {
	ctx    context.Context
	header uintptr
	mem    []byte
}

func (b *nativeBuffer) Free() {
	if b.mem == nil {
		return
	}
	if err := unix.Munmap(b.mem); err != nil {
		logger.Errorf(b.ctx, "unable to unmap a buffer: %v", err)
	}
	b.mem = nil
}

func (b *nativeBuffer) headerPtr() *bufferHeader {
	return (*bufferHeader)(unsafe.Pointer(b.header))
}

func (c *Component) vtable() *componentType {
	return (*componentType)(unsafe.Pointer(c.handle))
}

func (c *Component) bufferFromHeader(header uintptr) *engine.Buffer {
	buf, ok := c.buffers.Load(header)
	if !ok {
		return nil
	}
	syncFromHeader(buf)
	return buf
}

func syncFromHeader(buf *engine.Buffer) {
	h := buf.Opaque.(*nativeBuffer).headerPtr()
	buf.FilledLen = h.FilledLen
	buf.Offset = h.Offset
	buf.Flags = engine.BufferFlag(h.Flags)
	buf.Timestamp = h.TimeStamp
	buf.InputPortIndex = h.InputPortIndex
	buf.OutputPortIndex = h.OutputPortIndex
}

func syncToHeader(buf *engine.Buffer) {
	h := buf.Opaque.(*nativeBuffer).headerPtr()
	h.FilledLen = buf.FilledLen
	h.Offset = buf.Offset
	h.Flags = uint32(buf.Flags)
	h.TimeStamp = buf.Timestamp
}

func nativeBufferOf(buf *engine.Buffer) (*nativeBuffer, error) {
	if buf == nil {
		return nil, engine.ErrorBadParameter
	}
	nb, ok := buf.Opaque.(*nativeBuffer)
	if !ok || nb.header == 0 {
		return nil, engine.ErrorBadParameter
	}
	return nb, nil
}

func (c *Component) SendCommand(
	ctx context.Context,
	cmd engine.Command,
	param uint32,
) error {
	logger.Tracef(ctx, "%s: SendCommand(ctx, %s, %d)", c.Name, cmd, param)
	r1, _, _ := purego.SyscallN(c.vtable().SendCommand, c.handle, uintptr(cmd), uintptr(param), 0)
	return errorFromNative(r1)
}

func (c *Component) getPortDefinition(portIndex uint32) (*portDefinitionParam, error) {
	p := newPortDefinitionParam(portIndex)
	r1, _, _ := purego.SyscallN(
		c.vtable().GetParameter,
		c.handle,
		uintptr(indexParamPortDefinition),
		uintptr(unsafe.Pointer(p)),
	)
	if err := errorFromNative(r1); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Component) GetPortDefinition(
	ctx context.Context,
	portIndex uint32,
) (engine.PortDefinition, error) {
	p, err := c.getPortDefinition(portIndex)
	if err != nil {
		return engine.PortDefinition{}, fmt.Errorf("unable to get the definition of port #%d: %w", portIndex, err)
	}
	return engine.PortDefinition{
		Index:          p.PortIndex,
		Direction:      engine.Direction(p.Dir),
		BufferCountMin: p.BufferCountMin,
		BufferCount:    p.BufferCountActual,
		BufferSize:     p.BufferSize,
		Enabled:        p.Enabled != 0,
		Populated:      p.Populated != 0,
	}, nil
}

// SetPortDefinition updates the buffer count and size of the port; the
// rest of the native definition is kept as reported by the component.
func (c *Component) SetPortDefinition(
	ctx context.Context,
	def engine.PortDefinition,
) error {
	p, err := c.getPortDefinition(def.Index)
	if err != nil {
		return fmt.Errorf("unable to get the definition of port #%d: %w", def.Index, err)
	}
	p.BufferCountActual = def.BufferCount
	p.BufferSize = def.BufferSize
	p.Enabled = boolToNative(def.Enabled)
	r1, _, _ := purego.SyscallN(
		c.vtable().SetParameter,
		c.handle,
		uintptr(indexParamPortDefinition),
		uintptr(unsafe.Pointer(p)),
	)
	return errorFromNative(r1)
}

// UseBuffer maps memory outside of the Go heap and registers it with the
// component.
func (c *Component) UseBuffer(
	ctx context.Context,
	portIndex uint32,
	size uint32,
) (*engine.Buffer, error) {
	if size == 0 {
		return nil, engine.ErrorBadParameter
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("unable to map %d bytes: %w", size, err)
	}
	nb := &nativeBuffer{ctx: c.ctx, mem: mem}

	var header uintptr
	r1, _, _ := purego.SyscallN(
		c.vtable().UseBuffer,
		c.handle,
		uintptr(unsafe.Pointer(&header)),
		uintptr(portIndex),
		0,
		uintptr(size),
		uintptr(unsafe.Pointer(&mem[0])),
	)
	if err := errorFromNative(r1); err != nil {
		nb.Free()
		return nil, err
	}
	nb.header = header
	internal.SetFinalizerFree(ctx, nb)

	buf := &engine.Buffer{
		Data:   mem,
		Opaque: nb,
	}
	syncFromHeader(buf)
	c.buffers.Store(header, buf)
	return buf, nil
}

func (c *Component) FreeBuffer(
	ctx context.Context,
	portIndex uint32,
	buf *engine.Buffer,
) error {
	nb, err := nativeBufferOf(buf)
	if err != nil {
		return err
	}
	r1, _, _ := purego.SyscallN(c.vtable().FreeBuffer, c.handle, uintptr(portIndex), nb.header)
	if err := errorFromNative(r1); err != nil {
		return err
	}
	c.buffers.Delete(nb.header)
	nb.header = 0
	internal.ClearFinalizer(nb)
	nb.Free()
	buf.Data = nil
	return nil
}

func (c *Component) EmptyThisBuffer(
	ctx context.Context,
	buf *engine.Buffer,
) error {
	nb, err := nativeBufferOf(buf)
	if err != nil {
		return err
	}
	syncToHeader(buf)
	r1, _, _ := purego.SyscallN(c.vtable().EmptyThisBuffer, c.handle, nb.header)
	return errorFromNative(r1)
}

func (c *Component) FillThisBuffer(
	ctx context.Context,
	buf *engine.Buffer,
) error {
	nb, err := nativeBufferOf(buf)
	if err != nil {
		return err
	}
	syncToHeader(buf)
	r1, _, _ := purego.SyscallN(c.vtable().FillThisBuffer, c.handle, nb.header)
	return errorFromNative(r1)
}
