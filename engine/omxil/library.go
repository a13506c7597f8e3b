//go:build linux && (amd64 || arm64)

// library.go loads an OpenMAX IL core library with dlopen and exposes it as an engine library.

// Package omxil binds the engine interfaces to a native OpenMAX IL core
// library loaded at runtime (no cgo).
package omxil

import (
	"context"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/logger"
	"golang.org/x/sys/unix"
)

// ErrMissingSymbol is returned when the library does not export a mandatory function.
type ErrMissingSymbol struct {
	LibraryPath string
	Symbol      string
	Err         error
}

func (e ErrMissingSymbol) Error() string {
	return fmt.Sprintf("library '%s' has no symbol '%s': %v", e.LibraryPath, e.Symbol, e.Err)
}

func (e ErrMissingSymbol) Unwrap() error {
	return e.Err
}

type Library struct {
	Path string

	dl            uintptr
	omxInit       uintptr
	omxDeinit     uintptr
	omxGetHandle  uintptr
	omxFreeHandle uintptr
}

var _ engine.Library = (*Library)(nil)

var nextComponentID atomic.Uint64

// Load opens the core library at the given path.
func Load(ctx context.Context, path string) (_ret *Library, _err error) {
	logger.Debugf(ctx, "Load(ctx, '%s')", path)
	defer func() { logger.Debugf(ctx, "/Load(ctx, '%s'): %v", path, _err) }()

	dl, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	l := &Library{Path: path, dl: dl}
	for _, sym := range []struct {
		Name string
		Dst  *uintptr
	}{
		{Name: "OMX_Init", Dst: &l.omxInit},
		{Name: "OMX_Deinit", Dst: &l.omxDeinit},
		{Name: "OMX_GetHandle", Dst: &l.omxGetHandle},
		{Name: "OMX_FreeHandle", Dst: &l.omxFreeHandle},
	} {
		addr, err := purego.Dlsym(dl, sym.Name)
		if err != nil {
			if closeErr := purego.Dlclose(dl); closeErr != nil {
				logger.Errorf(ctx, "unable to close '%s': %v", path, closeErr)
			}
			return nil, ErrMissingSymbol{LibraryPath: path, Symbol: sym.Name, Err: err}
		}
		*sym.Dst = addr
	}
	return l, nil
}

// Loader is a registry-compatible loader treating library names as paths.
func Loader(ctx context.Context, libraryName string) (engine.Library, error) {
	return Load(ctx, libraryName)
}

func (l *Library) Init(ctx context.Context) error {
	logger.Debugf(ctx, "OMX_Init: %s", l.Path)
	r1, _, _ := purego.SyscallN(l.omxInit)
	return errorFromNative(r1)
}

func (l *Library) Deinit(ctx context.Context) error {
	logger.Debugf(ctx, "OMX_Deinit: %s", l.Path)
	r1, _, _ := purego.SyscallN(l.omxDeinit)
	return errorFromNative(r1)
}

func (l *Library) GetHandle(
	ctx context.Context,
	componentName string,
	callbacks engine.Callbacks,
) (_ret engine.Handle, _err error) {
	logger.Debugf(ctx, "GetHandle(ctx, '%s')", componentName)
	defer func() { logger.Debugf(ctx, "/GetHandle(ctx, '%s'): %v", componentName, _err) }()

	name, err := unix.BytePtrFromString(componentName)
	if err != nil {
		return nil, fmt.Errorf("invalid component name '%s': %w", componentName, err)
	}

	c := newComponent(ctx, nextComponentID.Add(1), componentName, callbacks)
	components.Store(c.id, c)

	var handle uintptr
	r1, _, _ := purego.SyscallN(
		l.omxGetHandle,
		uintptr(unsafe.Pointer(&handle)),
		uintptr(unsafe.Pointer(name)),
		uintptr(c.id),
		uintptr(unsafe.Pointer(nativeCallbacks())),
	)
	if err := errorFromNative(r1); err != nil {
		components.Delete(c.id)
		return nil, err
	}
	if handle == 0 {
		components.Delete(c.id)
		return nil, engine.ErrorUndefined
	}
	c.handle = handle
	return c, nil
}

func (l *Library) FreeHandle(ctx context.Context, handle engine.Handle) error {
	c, ok := handle.(*Component)
	if !ok {
		return engine.ErrorInvalidComponent
	}
	logger.Debugf(ctx, "OMX_FreeHandle: %s", c.Name)
	r1, _, _ := purego.SyscallN(l.omxFreeHandle, c.handle)
	if err := errorFromNative(r1); err != nil {
		return err
	}
	components.Delete(c.id)
	return nil
}

func (l *Library) Close() error {
	return purego.Dlclose(l.dl)
}

func errorFromNative(r1 uintptr) error {
	return engine.ErrorCode(uint32(r1)).AsError()
}
