// library.go implements an in-process engine library with observable init/deinit counters.

// Package simulated provides an in-process engine that behaves like a
// well-mannered codec component (with knobs to make it misbehave). It raises
// all callbacks from its own goroutine.
package simulated

import (
	"context"
	"sync/atomic"

	"github.com/xaionaro-go/avomx/engine"
	"github.com/xaionaro-go/avomx/logger"
	"github.com/xaionaro-go/xsync"
)

// Transform converts the payload of one input buffer into output data.
type Transform func(in []byte) []byte

// Config defines the components created by a Library.
type Config struct {
	Ports []engine.PortDefinition

	// Transform defaults to copying the input.
	Transform Transform

	// EmitSettingsChanged makes the component raise a settings-changed event
	// on the output port after consuming the first input buffer.
	EmitSettingsChanged bool
}

func DefaultConfig() Config {
	return Config{
		Ports: []engine.PortDefinition{{
			Index:          0,
			Direction:      engine.DirectionInput,
			BufferCountMin: 2,
			BufferCount:    4,
			BufferSize:     1024,
			Enabled:        true,
		}, {
			Index:          1,
			Direction:      engine.DirectionOutput,
			BufferCountMin: 2,
			BufferCount:    4,
			BufferSize:     1024,
			Enabled:        true,
		}},
	}
}

type Library struct {
	Config Config

	InitCount   atomic.Int64
	DeinitCount atomic.Int64
	InitError   error

	locker     xsync.Mutex
	components []*Component
}

var _ engine.Library = (*Library)(nil)

func NewLibrary(cfg Config) *Library {
	return &Library{Config: cfg}
}

func (l *Library) Init(ctx context.Context) error {
	l.InitCount.Add(1)
	return l.InitError
}

func (l *Library) Deinit(ctx context.Context) error {
	l.DeinitCount.Add(1)
	return nil
}

func (l *Library) GetHandle(
	ctx context.Context,
	componentName string,
	callbacks engine.Callbacks,
) (engine.Handle, error) {
	logger.Debugf(ctx, "GetHandle(ctx, '%s')", componentName)
	c := newComponent(ctx, componentName, l.Config, callbacks)
	l.locker.Do(ctx, func() {
		l.components = append(l.components, c)
	})
	return c, nil
}

func (l *Library) FreeHandle(ctx context.Context, handle engine.Handle) error {
	c, ok := handle.(*Component)
	if !ok {
		return engine.ErrorInvalidComponent
	}
	c.close(ctx)
	return nil
}

// Components returns all components created by the library.
func (l *Library) Components(ctx context.Context) []*Component {
	return xsync.DoR1(ctx, &l.locker, func() []*Component {
		return append([]*Component(nil), l.components...)
	})
}

func (l *Library) Close() error {
	return nil
}

// Loader returns a registry-compatible loader function creating a fresh
// library per name with the given config.
func Loader(cfg Config) func(ctx context.Context, libraryName string) (engine.Library, error) {
	return func(ctx context.Context, libraryName string) (engine.Library, error) {
		logger.Debugf(ctx, "loading simulated library '%s'", libraryName)
		return NewLibrary(cfg), nil
	}
}
