// session.go implements the component session: the engine handle, its state machine and its ports.

// Package session turns the asynchronous, callback-driven engine interface
// into synchronous lifecycle operations (prepare/start/pause/finish), per-port
// buffer queues and a flush protocol that releases blocked callers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astikit"
	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/helpers/closuresignaler"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/avomx/registry"
	"github.com/xaionaro-go/avomx/semaphore"
	"github.com/xaionaro-go/avomx/types"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

// Session drives a single engine component.
//
// Lifecycle and port operations are expected to be called from a single
// application goroutine; engine callbacks may arrive concurrently from
// an engine-owned thread.
type Session struct {
	LibraryName   string
	ComponentName string

	ref    *registry.Ref
	handle engine.Handle

	// callbackCtx is used by the engine callbacks; it is never cancelled.
	callbackCtx context.Context

	stateLocker     xsync.Mutex
	state           engine.State
	flushing        bool
	lastError       engine.ErrorCode
	fatalError      engine.ErrorCode
	stateChangeChan *chan struct{}

	// DoneSem is raised on end-of-stream.
	DoneSem *semaphore.Semaphore
	// FlushSem is raised when the engine completes a port flush.
	FlushSem *semaphore.Semaphore
	// PortSem is raised when the engine completes a port enable/disable.
	PortSem *semaphore.Semaphore

	settingsChangedHook     *SettingsChangedHook
	deferredSettingsChanged bool
	settingsChanged         atomic.Bool

	portsLocker xsync.Mutex
	ports       []*Port

	closer          *astikit.Closer
	closeOnce       sync.Once
	closeErrs       []error
	closureSignaler *closuresignaler.ClosureSignaler
}

var _ types.Closer = (*Session)(nil)

// New acquires the library from the registry and instantiates the component.
// On success the session is in state Loaded.
func New(
	ctx context.Context,
	reg *registry.Registry,
	libraryName string,
	componentName string,
	opts ...Option,
) (_ret *Session, _err error) {
	logger.Debugf(ctx, "New(ctx, '%s', '%s')", libraryName, componentName)
	defer func() { logger.Debugf(ctx, "/New(ctx, '%s', '%s'): %v", libraryName, componentName, _err) }()

	s := &Session{
		LibraryName:     libraryName,
		ComponentName:   componentName,
		callbackCtx:     xcontext.DetachDone(ctx),
		state:           engine.StateInvalid,
		stateChangeChan: ptr(make(chan struct{})),
		DoneSem:         semaphore.New(),
		FlushSem:        semaphore.New(),
		PortSem:         semaphore.New(),
		closer:          astikit.NewCloser(),
		closureSignaler: closuresignaler.New(),
	}
	if opt, ok := OptionLatest[OptionSettingsChangedHook](opts); ok && opt.Hook != nil {
		s.SetSettingsChangedHook(opt.Hook)
	}
	if opt, ok := OptionLatest[OptionDeferredSettingsChanged](opts); ok {
		s.deferredSettingsChanged = opt.Deferred
	}

	ref, err := reg.Acquire(ctx, libraryName)
	if err != nil {
		return nil, err
	}
	s.ref = ref

	lib := ref.Library()
	handle, err := lib.GetHandle(ctx, componentName, sessionCallbacks{s})
	if err != nil {
		if releaseErr := ref.Release(ctx); releaseErr != nil {
			logger.Errorf(ctx, "unable to release library '%s': %v", libraryName, releaseErr)
		}
		return nil, fmt.Errorf("unable to get a handle of component '%s': %w", componentName, err)
	}
	s.handle = handle
	s.closer.Add(func() {
		ctx := s.callbackCtx
		if err := lib.FreeHandle(ctx, handle); err != nil {
			// the engine still owns the component, so the library must stay initialized
			s.closeErrs = append(s.closeErrs, fmt.Errorf("unable to free the handle of '%s': %w", componentName, err))
			return
		}
		if err := ref.Release(ctx); err != nil {
			s.closeErrs = append(s.closeErrs, fmt.Errorf("unable to release library '%s': %w", libraryName, err))
		}
	})
	s.completeChangeState(ctx, engine.StateLoaded)
	return s, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("%s:%s", s.LibraryName, s.ComponentName)
}

// Handle returns the engine handle of the component.
func (s *Session) Handle() engine.Handle {
	return s.handle
}

func (s *Session) State(ctx context.Context) engine.State {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.stateLocker, func() engine.State {
		return s.state
	})
}

func (s *Session) IsFlushing(ctx context.Context) bool {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.stateLocker, func() bool {
		return s.flushing
	})
}

// LastError returns the last error reported by the engine, or nil.
func (s *Session) LastError(ctx context.Context) error {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.stateLocker, func() error {
		return s.lastError.AsError()
	})
}

// UnrecoverableError returns the recorded unrecoverable engine error, or nil.
func (s *Session) UnrecoverableError(ctx context.Context) error {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.stateLocker, func() error {
		return s.fatalError.AsError()
	})
}

func (s *Session) checkTrusted(ctx context.Context) error {
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.stateLocker, func() error {
		if s.fatalError != engine.ErrorNone {
			return ErrUnrecoverable{Code: s.fatalError}
		}
		return nil
	})
}

func (s *Session) sendCommand(
	ctx context.Context,
	cmd engine.Command,
	param uint32,
) error {
	logger.Tracef(ctx, "sendCommand(ctx, %s, %d)", cmd, param)
	if err := s.closureSignaler.Err(); err != nil {
		return err
	}
	if err := s.handle.SendCommand(ctx, cmd, param); err != nil {
		return ErrCommand{Command: cmd, Param: param, Err: err}
	}
	return nil
}

func (s *Session) changeState(ctx context.Context, state engine.State) error {
	logger.Debugf(ctx, "changeState(ctx, %s)", state)
	return s.sendCommand(ctx, engine.CommandStateSet, uint32(state))
}

func (s *Session) completeChangeState(ctx context.Context, state engine.State) {
	s.stateLocker.Do(xsync.WithNoLogging(ctx, true), func() {
		logger.Debugf(ctx, "state: %s -> %s", s.state, state)
		s.state = state
		s.notifyStateChangeLocked()
	})
}

func (s *Session) notifyStateChangeLocked() {
	close(*xatomic.SwapPointer(&s.stateChangeChan, ptr(make(chan struct{}))))
}

// waitForState blocks until the engine confirms the state, a flush
// interrupts the wait, or the context is cancelled.
func (s *Session) waitForState(
	ctx context.Context,
	state engine.State,
) (_err error) {
	logger.Debugf(ctx, "waitForState(ctx, %s)", state)
	defer func() { logger.Debugf(ctx, "/waitForState(ctx, %s): %v", state, _err) }()
	for {
		ch, err := xsync.DoR2(xsync.WithNoLogging(ctx, true), &s.stateLocker, func() (<-chan struct{}, error) {
			if s.flushing {
				return nil, ErrInterrupted{}
			}
			if s.state == state {
				return nil, nil
			}
			return *xatomic.LoadPointer(&s.stateChangeChan), nil
		})
		if ch == nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Prepare requests state Idle, allocates the buffers of all ports and
// waits for the confirmation. Like Start and Pause, it fails with
// ErrUnrecoverable without contacting the engine once the engine reported
// an unrecoverable error.
func (s *Session) Prepare(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Prepare")
	defer func() { logger.Debugf(ctx, "/Prepare: %v", _err) }()
	if err := s.checkTrusted(ctx); err != nil {
		return err
	}
	if err := s.changeState(ctx, engine.StateIdle); err != nil {
		return err
	}
	if err := s.forEachPort(ctx, (*Port).AllocateBuffers); err != nil {
		return fmt.Errorf("unable to allocate buffers: %w", err)
	}
	return s.waitForState(ctx, engine.StateIdle)
}

// Start requests state Executing and, once confirmed, starts the buffer
// circulation on all ports.
func (s *Session) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()
	if err := s.checkTrusted(ctx); err != nil {
		return err
	}
	if err := s.changeState(ctx, engine.StateExecuting); err != nil {
		return err
	}
	if err := s.waitForState(ctx, engine.StateExecuting); err != nil {
		return err
	}
	return s.forEachPort(ctx, (*Port).StartBuffers)
}

// Pause requests state Pause and waits for the confirmation.
func (s *Session) Pause(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Pause")
	defer func() { logger.Debugf(ctx, "/Pause: %v", _err) }()
	if err := s.checkTrusted(ctx); err != nil {
		return err
	}
	if err := s.changeState(ctx, engine.StatePause); err != nil {
		return err
	}
	return s.waitForState(ctx, engine.StatePause)
}

// Finish brings the component back to Loaded (unless the engine reported an
// unrecoverable error) and always frees all buffers and destroys all ports.
func (s *Session) Finish(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Finish")
	defer func() { logger.Debugf(ctx, "/Finish: %v", _err) }()

	var result []error
	requestedLoaded := false
	if err := s.toIdleThenRequestLoaded(ctx); err != nil {
		logger.Warnf(ctx, "unable to bring %s to Loaded: %v", s, err)
		result = append(result, err)
	} else {
		requestedLoaded = true
	}

	if err := s.forEachPort(ctx, (*Port).FreeBuffers); err != nil {
		result = append(result, fmt.Errorf("unable to free buffers: %w", err))
	}

	if requestedLoaded {
		if err := s.checkTrusted(ctx); err != nil {
			result = append(result, err)
		} else if err := s.waitForState(ctx, engine.StateLoaded); err != nil {
			result = append(result, err)
		}
	}

	s.destroyPorts(ctx)
	return errors.Join(result...)
}

func (s *Session) toIdleThenRequestLoaded(ctx context.Context) error {
	if err := s.checkTrusted(ctx); err != nil {
		return err
	}
	if err := s.changeState(ctx, engine.StateIdle); err != nil {
		return err
	}
	if err := s.waitForState(ctx, engine.StateIdle); err != nil {
		return err
	}
	if err := s.checkTrusted(ctx); err != nil {
		return err
	}
	return s.changeState(ctx, engine.StateLoaded)
}

// FlushStart pauses all ports and releases everybody waiting for a state
// transition; such waits return ErrInterrupted.
func (s *Session) FlushStart(ctx context.Context) {
	logger.Debugf(ctx, "FlushStart")
	defer func() { logger.Debugf(ctx, "/FlushStart") }()
	for _, port := range s.Ports(ctx) {
		port.Pause(ctx)
	}
	s.stateLocker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.flushing = true
		s.notifyStateChangeLocked()
	})
}

// FlushStop optionally flushes every port and then resumes them.
func (s *Session) FlushStop(ctx context.Context, flushPorts bool) (_err error) {
	logger.Debugf(ctx, "FlushStop(ctx, %t)", flushPorts)
	defer func() { logger.Debugf(ctx, "/FlushStop(ctx, %t): %v", flushPorts, _err) }()
	var result []error
	if flushPorts {
		if err := s.forEachPort(ctx, (*Port).Flush); err != nil {
			result = append(result, err)
		}
	}
	for _, port := range s.Ports(ctx) {
		port.Resume(ctx)
	}
	s.stateLocker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.flushing = false
	})
	return errors.Join(result...)
}

// SetDone raises the done signal; normally it is raised by the engine on end-of-stream.
func (s *Session) SetDone(ctx context.Context) {
	s.DoneSem.Up(ctx)
}

// WaitForDone blocks until end-of-stream is signaled.
func (s *Session) WaitForDone(ctx context.Context) error {
	return s.DoneSem.Down(ctx)
}

func (s *Session) SetSettingsChangedHook(hook SettingsChangedHook) {
	if hook == nil {
		xatomic.StorePointer(&s.settingsChangedHook, nil)
		return
	}
	xatomic.StorePointer(&s.settingsChangedHook, &hook)
}

func (s *Session) getSettingsChangedHook() SettingsChangedHook {
	hook := xatomic.LoadPointer(&s.settingsChangedHook)
	if hook == nil {
		return nil
	}
	return *hook
}

// ConsumeSettingsChanged reports (and resets) whether settings changed
// since the last call. Used with WithDeferredSettingsChanged.
func (s *Session) ConsumeSettingsChanged() bool {
	return s.settingsChanged.Swap(false)
}

// CloseChan is closed when Close is called.
func (s *Session) CloseChan() <-chan struct{} {
	return s.closureSignaler.CloseChan()
}

// Close frees the engine handle and releases the library. Ports that still
// exist are destroyed after freeing their buffers.
func (s *Session) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	s.closeOnce.Do(func() {
		s.closureSignaler.Close(ctx, ErrClosed{})
		if ports := s.Ports(ctx); len(ports) > 0 {
			logger.Warnf(ctx, "closing %s with %d ports left, the session was not finished", s, len(ports))
			if err := s.forEachPort(ctx, (*Port).FreeBuffers); err != nil {
				s.closeErrs = append(s.closeErrs, err)
			}
			s.destroyPorts(ctx)
		}
		if err := s.closer.Close(); err != nil {
			s.closeErrs = append(s.closeErrs, err)
		}
		s.completeChangeState(ctx, engine.StateInvalid)
	})
	return errors.Join(s.closeErrs...)
}

func ptr[T any](in T) *T {
	return &in
}
