package simulated

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avomx/engine"
)

const testTimeout = 5 * time.Second

type recorder struct {
	events  chan engine.Event
	emptied chan *engine.Buffer
	filled  chan *engine.Buffer
}

var _ engine.Callbacks = (*recorder)(nil)

func newRecorder() *recorder {
	return &recorder{
		events:  make(chan engine.Event, 64),
		emptied: make(chan *engine.Buffer, 64),
		filled:  make(chan *engine.Buffer, 64),
	}
}

func (r *recorder) OnEvent(ctx context.Context, ev engine.Event) {
	r.events <- ev
}

func (r *recorder) OnEmptyBufferDone(ctx context.Context, buf *engine.Buffer) {
	r.emptied <- buf
}

func (r *recorder) OnFillBufferDone(ctx context.Context, buf *engine.Buffer) {
	r.filled <- buf
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timeout")
	}
	panic("unreachable")
}

func testCtx() context.Context {
	l := logrus.Default().WithLevel(logger.LevelTrace)
	return logger.CtxWithLogger(context.Background(), l)
}

func newTestComponent(t *testing.T, cfg Config) (context.Context, *Library, *Component, *recorder) {
	ctx := testCtx()
	lib := NewLibrary(cfg)
	rec := newRecorder()
	h, err := lib.GetHandle(ctx, "sim.test", rec)
	require.NoError(t, err)
	c := h.(*Component)
	t.Cleanup(func() {
		require.NoError(t, lib.FreeHandle(ctx, c))
	})
	return ctx, lib, c, rec
}

func setState(t *testing.T, ctx context.Context, c *Component, rec *recorder, state engine.State) {
	t.Helper()
	require.NoError(t, c.SendCommand(ctx, engine.CommandStateSet, uint32(state)))
	ev := receive(t, rec.events)
	require.Equal(t, engine.EventCmdComplete, ev.Kind)
	require.Equal(t, uint32(engine.CommandStateSet), ev.Data1)
	require.Equal(t, uint32(state), ev.Data2)
}

func TestComponentTransformAndEOS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transform = bytes.ToUpper
	ctx, _, c, rec := newTestComponent(t, cfg)

	setState(t, ctx, c, rec, engine.StateIdle)
	in, err := c.UseBuffer(ctx, 0, 1024)
	require.NoError(t, err)
	out, err := c.UseBuffer(ctx, 1, 1024)
	require.NoError(t, err)
	require.Equal(t, uint32(1), out.OutputPortIndex)
	setState(t, ctx, c, rec, engine.StateExecuting)

	require.NoError(t, c.FillThisBuffer(ctx, out))
	in.SetPayload([]byte("hello"))
	in.Flags = engine.BufferFlagEOS
	in.Timestamp = 42
	require.NoError(t, c.EmptyThisBuffer(ctx, in))

	emptied := receive(t, rec.emptied)
	require.Equal(t, in, emptied)
	require.Zero(t, emptied.FilledLen)

	filled := receive(t, rec.filled)
	require.Equal(t, out, filled)
	require.Equal(t, []byte("HELLO"), filled.Payload())
	require.True(t, filled.Flags.Has(engine.BufferFlagEOS))
	require.Equal(t, int64(42), filled.Timestamp)

	ev := receive(t, rec.events)
	require.Equal(t, engine.EventBufferFlag, ev.Kind)
	require.Equal(t, uint32(1), ev.Data1)
}

func TestComponentSplitsLargeOutput(t *testing.T) {
	ctx, _, c, rec := newTestComponent(t, DefaultConfig())
	setState(t, ctx, c, rec, engine.StateIdle)
	out0, err := c.UseBuffer(ctx, 1, 4)
	require.NoError(t, err)
	out1, err := c.UseBuffer(ctx, 1, 4)
	require.NoError(t, err)
	setState(t, ctx, c, rec, engine.StateExecuting)

	require.NoError(t, c.InjectOutput(ctx, []byte("abcdef"), 0))
	require.NoError(t, c.FillThisBuffer(ctx, out0))
	require.NoError(t, c.FillThisBuffer(ctx, out1))

	require.Equal(t, []byte("abcd"), receive(t, rec.filled).Payload())
	require.Equal(t, []byte("ef"), receive(t, rec.filled).Payload())
}

func TestComponentFlushReturnsHeldBuffers(t *testing.T) {
	ctx, _, c, rec := newTestComponent(t, DefaultConfig())
	setState(t, ctx, c, rec, engine.StateIdle)
	out, err := c.UseBuffer(ctx, 1, 16)
	require.NoError(t, err)
	setState(t, ctx, c, rec, engine.StateExecuting)

	require.NoError(t, c.FillThisBuffer(ctx, out))
	require.NoError(t, c.Sync(ctx))
	require.Equal(t, 1, c.HeldBuffers(ctx, 1))

	require.NoError(t, c.SendCommand(ctx, engine.CommandFlush, 1))
	filled := receive(t, rec.filled)
	require.Equal(t, out, filled)
	require.Zero(t, filled.FilledLen)
	ev := receive(t, rec.events)
	require.Equal(t, engine.EventCmdComplete, ev.Kind)
	require.Equal(t, uint32(engine.CommandFlush), ev.Data1)
	require.Zero(t, c.HeldBuffers(ctx, 1))
}

func TestComponentIgnoreStateSet(t *testing.T) {
	ctx, _, c, rec := newTestComponent(t, DefaultConfig())
	c.SetIgnoreStateSet(ctx, true)
	require.NoError(t, c.SendCommand(ctx, engine.CommandStateSet, uint32(engine.StateIdle)))
	require.NoError(t, c.Sync(ctx))
	require.Equal(t, engine.StateLoaded, c.State(ctx))
	require.Equal(t, 1, c.CommandCount(ctx, engine.CommandStateSet))
	require.Empty(t, rec.events)
}

func TestComponentRejectsBadRequests(t *testing.T) {
	ctx, _, c, _ := newTestComponent(t, DefaultConfig())
	_, err := c.UseBuffer(ctx, 7, 16)
	require.ErrorIs(t, err, engine.ErrorBadPortIndex)

	in, err := c.UseBuffer(ctx, 0, 16)
	require.NoError(t, err)
	require.ErrorIs(t, c.EmptyThisBuffer(ctx, in), engine.ErrorIncorrectStateOperation)
	require.ErrorIs(t, c.SendCommand(ctx, engine.Command(100), 0), engine.ErrorBadParameter)

	def, err := c.GetPortDefinition(ctx, 0)
	require.NoError(t, err)
	def.BufferCount = 1
	require.ErrorIs(t, c.SetPortDefinition(ctx, def), engine.ErrorBadParameter)

	require.NoError(t, c.FreeBuffer(ctx, 0, in))
	require.ErrorIs(t, c.FreeBuffer(ctx, 0, in), engine.ErrorBadParameter)
}

func TestComponentSettingsChangedAfterFirstInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmitSettingsChanged = true
	ctx, _, c, rec := newTestComponent(t, cfg)
	setState(t, ctx, c, rec, engine.StateIdle)
	in, err := c.UseBuffer(ctx, 0, 16)
	require.NoError(t, err)
	setState(t, ctx, c, rec, engine.StateExecuting)

	in.SetPayload([]byte("x"))
	require.NoError(t, c.EmptyThisBuffer(ctx, in))
	receive(t, rec.emptied)
	ev := receive(t, rec.events)
	require.Equal(t, engine.EventPortSettingsChanged, ev.Kind)
	require.Equal(t, uint32(1), ev.Data1)

	in.SetPayload([]byte("y"))
	require.NoError(t, c.EmptyThisBuffer(ctx, in))
	receive(t, rec.emptied)
	require.NoError(t, c.Sync(ctx))
	require.Empty(t, rec.events)
}

func TestLibraryInitCounters(t *testing.T) {
	ctx := testCtx()
	lib := NewLibrary(DefaultConfig())
	require.NoError(t, lib.Init(ctx))
	require.NoError(t, lib.Deinit(ctx))
	require.Equal(t, int64(1), lib.InitCount.Load())
	require.Equal(t, int64(1), lib.DeinitCount.Load())
	require.ErrorIs(t, lib.FreeHandle(ctx, nil), engine.ErrorInvalidComponent)
	require.NoError(t, lib.Close())
}
