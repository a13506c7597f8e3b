// callbacks.go dispatches engine callbacks into state, port and error effects.

package session

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xsync"
)

// sessionCallbacks is the engine.Callbacks of a Session. All of its
// methods run on the engine's thread.
type sessionCallbacks struct {
	*Session
}

var _ engine.Callbacks = sessionCallbacks{}

func (s sessionCallbacks) OnEvent(ctx context.Context, ev engine.Event) {
	logger.Tracef(ctx, "OnEvent(ctx, %s, %d, %d)", ev.Kind, ev.Data1, ev.Data2)
	defer func() { logger.Tracef(ctx, "/OnEvent(ctx, %s, %d, %d)", ev.Kind, ev.Data1, ev.Data2) }()

	switch ev.Kind {
	case engine.EventCmdComplete:
		switch cmd := engine.Command(ev.Data1); cmd {
		case engine.CommandStateSet:
			s.completeChangeState(ctx, engine.State(ev.Data2))
		case engine.CommandFlush:
			s.FlushSem.Up(ctx)
		case engine.CommandPortDisable, engine.CommandPortEnable:
			s.PortSem.Up(ctx)
		default:
			logger.Debugf(ctx, "completed command %s(%d)", cmd, ev.Data2)
		}
	case engine.EventBufferFlag:
		if engine.BufferFlag(ev.Data2).Has(engine.BufferFlagEOS) {
			logger.Debugf(ctx, "end of stream on port #%d", ev.Data1)
			s.SetDone(ctx)
		}
	case engine.EventPortSettingsChanged:
		s.onSettingsChanged(ctx, ev.Data1)
	case engine.EventError:
		s.onError(ctx, engine.ErrorCode(ev.Data1))
	default:
		logger.Debugf(ctx, "ignoring event %s", ev.Kind)
	}
}

func (s sessionCallbacks) OnEmptyBufferDone(ctx context.Context, buf *engine.Buffer) {
	s.gotBuffer(ctx, buf.InputPortIndex, buf)
}

func (s sessionCallbacks) OnFillBufferDone(ctx context.Context, buf *engine.Buffer) {
	s.gotBuffer(ctx, buf.OutputPortIndex, buf)
}

func (s sessionCallbacks) gotBuffer(ctx context.Context, portIndex uint32, buf *engine.Buffer) {
	logger.Tracef(ctx, "gotBuffer(ctx, %d, %p)", portIndex, buf)
	port := s.Port(ctx, portIndex)
	if port == nil {
		logger.Warnf(ctx, "got a buffer for an unknown port #%d", portIndex)
		return
	}
	port.gotBuffer(ctx, buf)
}

func (s sessionCallbacks) onSettingsChanged(ctx context.Context, portIndex uint32) {
	logger.Debugf(ctx, "settings changed on port #%d", portIndex)
	if s.deferredSettingsChanged {
		s.settingsChanged.Store(true)
		return
	}
	hook := s.getSettingsChangedHook()
	if hook == nil {
		s.settingsChanged.Store(true)
		return
	}
	hook(ctx, s.Session, portIndex)
}

func (s sessionCallbacks) onError(ctx context.Context, code engine.ErrorCode) {
	logger.Warnf(ctx, "engine error: %v", code)
	unrecoverable := code.IsUnrecoverable()
	s.stateLocker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.lastError = code
		if unrecoverable {
			s.fatalError = code
		}
	})

	switch {
	case unrecoverable:
		logger.Errorf(ctx, "unrecoverable error %v, releasing everybody waiting on the component", code)
		s.FlushStart(ctx)
	case code == engine.ErrorStreamCorrupt:
		logger.Errorf(ctx, "the stream is corrupted")
	default:
		errmon.ObserveErrorCtx(ctx, code)
	}
}
