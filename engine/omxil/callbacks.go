//go:build linux && (amd64 || arm64)

// callbacks.go routes the native callbacks (raised on the library's threads) to the components.

package omxil

import (
	"sync"

	"github.com/ebitengine/purego"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xsync"
)

// components maps the application data passed to OMX_GetHandle to the component.
var components xsync.Map[uint64, *Component]

var (
	callbackTable     callbackType
	callbackTableOnce sync.Once
)

// nativeCallbacks returns the callback table shared by all components.
// Callbacks are a limited resource in purego, so they are created once.
func nativeCallbacks() *callbackType {
	callbackTableOnce.Do(func() {
		callbackTable = callbackType{
			EventHandler:    purego.NewCallback(onEvent),
			EmptyBufferDone: purego.NewCallback(onEmptyBufferDone),
			FillBufferDone:  purego.NewCallback(onFillBufferDone),
		}
	})
	return &callbackTable
}

func lookupComponent(appData uintptr) *Component {
	c, ok := components.Load(uint64(appData))
	if !ok {
		return nil
	}
	return c
}

func onEvent(
	handle uintptr,
	appData uintptr,
	event uintptr,
	data1 uintptr,
	data2 uintptr,
	eventData uintptr,
) uintptr {
	c := lookupComponent(appData)
	if c == nil {
		return uintptr(engine.ErrorInvalidComponent)
	}
	c.callbacks.OnEvent(c.ctx, engine.Event{
		Kind:  engine.EventKind(uint32(event)),
		Data1: uint32(data1),
		Data2: uint32(data2),
		Data:  eventData,
	})
	return uintptr(engine.ErrorNone)
}

func onEmptyBufferDone(handle, appData, header uintptr) uintptr {
	c := lookupComponent(appData)
	if c == nil {
		return uintptr(engine.ErrorInvalidComponent)
	}
	buf := c.bufferFromHeader(header)
	if buf == nil {
		logger.Errorf(c.ctx, "%s: EmptyBufferDone with an unknown header 0x%x", c.Name, header)
		return uintptr(engine.ErrorBadParameter)
	}
	c.callbacks.OnEmptyBufferDone(c.ctx, buf)
	return uintptr(engine.ErrorNone)
}

func onFillBufferDone(handle, appData, header uintptr) uintptr {
	c := lookupComponent(appData)
	if c == nil {
		return uintptr(engine.ErrorInvalidComponent)
	}
	buf := c.bufferFromHeader(header)
	if buf == nil {
		logger.Errorf(c.ctx, "%s: FillBufferDone with an unknown header 0x%x", c.Name, header)
		return uintptr(engine.ErrorBadParameter)
	}
	c.callbacks.OnFillBufferDone(c.ctx, buf)
	return uintptr(engine.ErrorNone)
}
