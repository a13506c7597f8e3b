// registry.go implements the process-wide, reference-counted table of loaded engine libraries.

// Package registry loads engine libraries once per name and runs their
// one-time init/deinit according to the number of clients using them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xsync"
)

// Registry is an explicit (injectable) replacement for a global table of
// loaded libraries. A process normally has one.
type Registry struct {
	locker  xsync.Mutex
	loader  Loader
	entries map[string]*Implementation
	closed  bool
}

func New(loader Loader) *Registry {
	return &Registry{
		loader:  loader,
		entries: map[string]*Implementation{},
	}
}

// Implementation is a cached library with its client counter.
type Implementation struct {
	Name    string
	Library engine.Library

	locker      xsync.Mutex
	clientCount uint
	invalid     bool
}

func (impl *Implementation) ClientCount(ctx context.Context) uint {
	return xsync.DoR1(ctx, &impl.locker, func() uint {
		return impl.clientCount
	})
}

// Acquire returns a reference to the library, loading it if needed and
// running its Init if this is the first client.
func (r *Registry) Acquire(
	ctx context.Context,
	libraryName string,
) (_ret *Ref, _err error) {
	logger.Debugf(ctx, "Acquire(ctx, '%s')", libraryName)
	defer func() { logger.Debugf(ctx, "/Acquire(ctx, '%s'): %v", libraryName, _err) }()

	for {
		impl, err := r.lookupOrLoad(ctx, libraryName)
		if err != nil {
			return nil, err
		}

		ok, err := r.addClient(ctx, impl)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debugf(ctx, "entry '%s' was invalidated concurrently, retrying", libraryName)
			r.forget(ctx, impl)
			continue
		}
		return newRef(r, impl), nil
	}
}

func (r *Registry) lookupOrLoad(
	ctx context.Context,
	libraryName string,
) (*Implementation, error) {
	return xsync.DoA2R2(ctx, &r.locker, r.lookupOrLoadLocked, ctx, libraryName)
}

func (r *Registry) lookupOrLoadLocked(
	ctx context.Context,
	libraryName string,
) (*Implementation, error) {
	if r.closed {
		return nil, ErrClosed{}
	}
	if impl, ok := r.entries[libraryName]; ok {
		return impl, nil
	}

	logger.Debugf(ctx, "loading library '%s'", libraryName)
	lib, err := r.loader.Load(ctx, libraryName)
	if err != nil {
		return nil, ErrLoad{LibraryName: libraryName, Err: err}
	}
	impl := &Implementation{
		Name:    libraryName,
		Library: lib,
	}
	r.entries[libraryName] = impl
	return impl, nil
}

// addClient returns false if the entry was invalidated and must not be used.
func (r *Registry) addClient(
	ctx context.Context,
	impl *Implementation,
) (_ok bool, _err error) {
	var closeLibrary bool
	impl.locker.Do(ctx, func() {
		if impl.invalid {
			return
		}
		if impl.clientCount == 0 {
			logger.Debugf(ctx, "initializing library '%s'", impl.Name)
			if err := impl.Library.Init(ctx); err != nil {
				impl.invalid = true
				closeLibrary = true
				_err = ErrEngineInit{LibraryName: impl.Name, Err: err}
				return
			}
		}
		impl.clientCount++
		_ok = true
	})
	if closeLibrary {
		r.forget(ctx, impl)
		if err := impl.Library.Close(); err != nil {
			logger.Errorf(ctx, "unable to unload library '%s': %v", impl.Name, err)
		}
	}
	return
}

func (r *Registry) forget(ctx context.Context, impl *Implementation) {
	r.locker.Do(ctx, func() {
		if r.entries[impl.Name] == impl {
			delete(r.entries, impl.Name)
		}
	})
}

func (r *Registry) release(
	ctx context.Context,
	impl *Implementation,
) (_err error) {
	logger.Debugf(ctx, "release(ctx, '%s')", impl.Name)
	defer func() { logger.Debugf(ctx, "/release(ctx, '%s'): %v", impl.Name, _err) }()
	impl.locker.Do(ctx, func() {
		if impl.clientCount == 0 {
			_err = fmt.Errorf("library '%s' has no clients", impl.Name)
			return
		}
		impl.clientCount--
		if impl.clientCount > 0 {
			return
		}
		logger.Debugf(ctx, "deinitializing library '%s'", impl.Name)
		_err = impl.Library.Deinit(ctx)
	})
	return
}

// Lookup returns the cached entry for the library, if any.
func (r *Registry) Lookup(ctx context.Context, libraryName string) *Implementation {
	return xsync.DoR1(ctx, &r.locker, func() *Implementation {
		return r.entries[libraryName]
	})
}

// Close deinitializes the libraries that still have clients and unloads
// every cached library. Further Acquire calls fail with ErrClosed.
func (r *Registry) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	entries := xsync.DoR1(ctx, &r.locker, func() map[string]*Implementation {
		entries := r.entries
		r.entries = map[string]*Implementation{}
		r.closed = true
		return entries
	})

	var result []error
	for name, impl := range entries {
		impl.locker.Do(ctx, func() {
			impl.invalid = true
			if impl.clientCount == 0 {
				return
			}
			logger.Warnf(ctx, "library '%s' still has %d clients", name, impl.clientCount)
			impl.clientCount = 0
			if err := impl.Library.Deinit(ctx); err != nil {
				result = append(result, fmt.Errorf("unable to deinitialize '%s': %w", name, err))
			}
		})
		if err := impl.Library.Close(); err != nil {
			result = append(result, fmt.Errorf("unable to unload '%s': %w", name, err))
		}
	}
	return errors.Join(result...)
}

// Ref is a client reference to a loaded library. Dropping the last
// reference of a library runs its Deinit.
type Ref struct {
	registry    *Registry
	impl        *Implementation
	releaseOnce sync.Once
	releaseErr  error
}

func newRef(r *Registry, impl *Implementation) *Ref {
	return &Ref{
		registry: r,
		impl:     impl,
	}
}

func (ref *Ref) Library() engine.Library {
	return ref.impl.Library
}

func (ref *Ref) Implementation() *Implementation {
	return ref.impl
}

// Release drops the reference; calling it more than once is a no-op.
func (ref *Ref) Release(ctx context.Context) error {
	ref.releaseOnce.Do(func() {
		ref.releaseErr = ref.registry.release(ctx, ref.impl)
	})
	return ref.releaseErr
}
