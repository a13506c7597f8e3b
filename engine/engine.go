// engine.go defines the boundary between avomx and a callback-driven codec engine.

// Package engine describes the external, callback-driven codec component
// ("engine") driven by avomx: the per-library entry points, the per-component
// command interface and the callbacks the engine raises from its own thread.
package engine

import (
	"context"
)

// Library is a loaded engine implementation (typically a shared library).
type Library interface {
	// Init is the one-time library initialization.
	Init(ctx context.Context) error

	// Deinit is the counterpart of Init.
	Deinit(ctx context.Context) error

	// GetHandle instantiates the named component. Callbacks may be
	// invoked from an arbitrary engine-owned goroutine/thread, starting
	// from the moment GetHandle returns.
	GetHandle(ctx context.Context, componentName string, callbacks Callbacks) (Handle, error)

	// FreeHandle destroys a component created by GetHandle.
	FreeHandle(ctx context.Context, handle Handle) error

	// Close unloads the library; no calls are allowed afterwards.
	Close() error
}

// Handle is an instance of an engine component. Commands are asynchronous:
// their completion is reported through Callbacks.
type Handle interface {
	SendCommand(ctx context.Context, cmd Command, param uint32) error

	GetPortDefinition(ctx context.Context, portIndex uint32) (PortDefinition, error)
	SetPortDefinition(ctx context.Context, def PortDefinition) error

	// UseBuffer allocates a memory region of the given size and registers
	// it with the component as a buffer of the port.
	UseBuffer(ctx context.Context, portIndex uint32, size uint32) (*Buffer, error)

	// FreeBuffer unregisters the buffer and releases its memory.
	FreeBuffer(ctx context.Context, portIndex uint32, buf *Buffer) error

	// EmptyThisBuffer hands a filled input buffer to the component.
	EmptyThisBuffer(ctx context.Context, buf *Buffer) error

	// FillThisBuffer hands an empty output buffer to the component.
	FillThisBuffer(ctx context.Context, buf *Buffer) error
}

// Callbacks is the callback table supplied to Library.GetHandle.
type Callbacks interface {
	OnEvent(ctx context.Context, ev Event)
	OnEmptyBufferDone(ctx context.Context, buf *Buffer)
	OnFillBufferDone(ctx context.Context, buf *Buffer)
}

// Event is the payload of Callbacks.OnEvent.
type Event struct {
	Kind  EventKind
	Data1 uint32
	Data2 uint32
	Data  uintptr
}

// PortDefinition is the engine-independent subset of a port definition.
type PortDefinition struct {
	Index          uint32
	Direction      Direction
	BufferCountMin uint32
	BufferCount    uint32
	BufferSize     uint32
	Enabled        bool
	Populated      bool
}
