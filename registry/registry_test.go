package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avomx/engine"
)

type fakeLibrary struct {
	InitCount   atomic.Int64
	DeinitCount atomic.Int64
	CloseCount  atomic.Int64
	InitErr     error
}

var _ engine.Library = (*fakeLibrary)(nil)

func (l *fakeLibrary) Init(ctx context.Context) error {
	l.InitCount.Add(1)
	return l.InitErr
}

func (l *fakeLibrary) Deinit(ctx context.Context) error {
	l.DeinitCount.Add(1)
	return nil
}

func (l *fakeLibrary) GetHandle(ctx context.Context, componentName string, callbacks engine.Callbacks) (engine.Handle, error) {
	return nil, engine.ErrorNotImplemented
}

func (l *fakeLibrary) FreeHandle(ctx context.Context, handle engine.Handle) error {
	return nil
}

func (l *fakeLibrary) Close() error {
	l.CloseCount.Add(1)
	return nil
}

type fakeLoader struct {
	locker    sync.Mutex
	libraries map[string]*fakeLibrary
	loadCount map[string]int
	loadErr   map[string]error
	initErr   map[string]error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		libraries: map[string]*fakeLibrary{},
		loadCount: map[string]int{},
		loadErr:   map[string]error{},
		initErr:   map[string]error{},
	}
}

func (l *fakeLoader) Load(ctx context.Context, name string) (engine.Library, error) {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.loadCount[name]++
	if err := l.loadErr[name]; err != nil {
		return nil, err
	}
	lib := &fakeLibrary{InitErr: l.initErr[name]}
	l.libraries[name] = lib
	return lib, nil
}

func (l *fakeLoader) library(name string) *fakeLibrary {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.libraries[name]
}

func testCtx() context.Context {
	l := logrus.Default().WithLevel(logger.LevelTrace)
	return logger.CtxWithLogger(context.Background(), l)
}

func TestAcquireTwiceReleaseTwice(t *testing.T) {
	ctx := testCtx()
	loader := newFakeLoader()
	r := New(loader)

	ref0, err := r.Acquire(ctx, "libfoo")
	require.NoError(t, err)
	ref1, err := r.Acquire(ctx, "libfoo")
	require.NoError(t, err)

	lib := loader.library("libfoo")
	require.Equal(t, int64(1), lib.InitCount.Load())
	require.Equal(t, uint(2), ref0.Implementation().ClientCount(ctx))
	require.Same(t, ref0.Implementation(), ref1.Implementation())

	require.NoError(t, ref0.Release(ctx))
	require.NoError(t, ref0.Release(ctx)) // idempotent
	require.Equal(t, int64(0), lib.DeinitCount.Load())
	require.NoError(t, ref1.Release(ctx))
	require.Equal(t, int64(1), lib.DeinitCount.Load())
	require.Equal(t, 1, loader.loadCount["libfoo"])

	// the entry stays cached: reacquiring re-runs init without reloading
	ref2, err := r.Acquire(ctx, "libfoo")
	require.NoError(t, err)
	require.Equal(t, int64(2), lib.InitCount.Load())
	require.Equal(t, 1, loader.loadCount["libfoo"])
	require.NoError(t, ref2.Release(ctx))
}

func TestAcquireConcurrent(t *testing.T) {
	ctx := testCtx()
	loader := newFakeLoader()
	r := New(loader)

	const clients = 32
	refs := make([]*Ref, clients)
	var wg sync.WaitGroup
	for idx := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := r.Acquire(ctx, "libX")
			require.NoError(t, err)
			refs[idx] = ref
		}()
	}
	wg.Wait()

	lib := loader.library("libX")
	require.Equal(t, int64(1), lib.InitCount.Load())

	for _, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, ref.Release(ctx))
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), lib.DeinitCount.Load())
	require.Equal(t, 1, loader.loadCount["libX"])
}

func TestAcquireDifferentLibraries(t *testing.T) {
	ctx := testCtx()
	loader := newFakeLoader()
	r := New(loader)

	for i := range 3 {
		ref, err := r.Acquire(ctx, fmt.Sprintf("lib%d", i))
		require.NoError(t, err)
		defer ref.Release(ctx)
	}
	for i := range 3 {
		require.Equal(t, int64(1), loader.library(fmt.Sprintf("lib%d", i)).InitCount.Load())
	}
}

func TestAcquireLoadError(t *testing.T) {
	ctx := testCtx()
	loader := newFakeLoader()
	loadErr := errors.New("missing symbol OMX_Init")
	loader.loadErr["libbroken"] = loadErr
	r := New(loader)

	_, err := r.Acquire(ctx, "libbroken")
	require.ErrorIs(t, err, loadErr)
	var errLoad ErrLoad
	require.ErrorAs(t, err, &errLoad)
	require.Equal(t, "libbroken", errLoad.LibraryName)
	require.Nil(t, r.Lookup(ctx, "libbroken"))

	// not cached: the next attempt loads again
	_, err = r.Acquire(ctx, "libbroken")
	require.Error(t, err)
	require.Equal(t, 2, loader.loadCount["libbroken"])
}

func TestAcquireInitErrorInvalidatesEntry(t *testing.T) {
	ctx := testCtx()
	loader := newFakeLoader()
	initErr := engine.ErrorInsufficientResources
	loader.initErr["libflaky"] = initErr
	r := New(loader)

	_, err := r.Acquire(ctx, "libflaky")
	require.ErrorIs(t, err, initErr)
	var errInit ErrEngineInit
	require.ErrorAs(t, err, &errInit)

	failed := loader.library("libflaky")
	require.Equal(t, int64(1), failed.CloseCount.Load())
	require.Nil(t, r.Lookup(ctx, "libflaky"))

	delete(loader.initErr, "libflaky")
	ref, err := r.Acquire(ctx, "libflaky")
	require.NoError(t, err)
	require.Equal(t, 2, loader.loadCount["libflaky"])
	require.NotSame(t, failed, loader.library("libflaky"))
	require.NoError(t, ref.Release(ctx))
}

func TestClose(t *testing.T) {
	ctx := testCtx()
	loader := newFakeLoader()
	r := New(loader)

	held, err := r.Acquire(ctx, "libheld")
	require.NoError(t, err)
	released, err := r.Acquire(ctx, "libreleased")
	require.NoError(t, err)
	require.NoError(t, released.Release(ctx))

	require.NoError(t, r.Close(ctx))
	require.Equal(t, int64(1), loader.library("libheld").DeinitCount.Load())
	require.Equal(t, int64(1), loader.library("libheld").CloseCount.Load())
	require.Equal(t, int64(1), loader.library("libreleased").DeinitCount.Load())
	require.Equal(t, int64(1), loader.library("libreleased").CloseCount.Load())

	_, err = r.Acquire(ctx, "libheld")
	require.ErrorIs(t, err, ErrClosed{})
	_ = held
}

func TestPrefixLoader(t *testing.T) {
	ctx := testCtx()
	def := newFakeLoader()
	sim := newFakeLoader()
	l := &PrefixLoader{
		Default:  def,
		Prefixed: map[string]Loader{"sim": sim},
	}

	_, err := l.Load(ctx, "sim:aac")
	require.NoError(t, err)
	require.NotNil(t, sim.library("aac"))

	_, err = l.Load(ctx, "/usr/lib/libomxil.so")
	require.NoError(t, err)
	require.NotNil(t, def.library("/usr/lib/libomxil.so"))

	_, err = (&PrefixLoader{}).Load(ctx, "libnothing")
	require.ErrorAs(t, err, &engine.ErrNotSupported{})
}
