// loader.go defines how the registry obtains engine libraries.

package registry

import (
	"context"
	"strings"

	"github.com/xaionaro-go/avomx/engine"
)

// Loader opens an engine library by name. A loader must not return a
// partially initialized library: on error everything it opened is closed.
type Loader interface {
	Load(ctx context.Context, libraryName string) (engine.Library, error)
}

// LoaderFunc is a function implementing Loader.
type LoaderFunc func(ctx context.Context, libraryName string) (engine.Library, error)

var _ Loader = LoaderFunc(nil)

func (fn LoaderFunc) Load(ctx context.Context, libraryName string) (engine.Library, error) {
	return fn(ctx, libraryName)
}

// PrefixLoader dispatches library names of form "<prefix>:<rest>" to the
// loader registered for the prefix, and everything else to Default.
type PrefixLoader struct {
	Default  Loader
	Prefixed map[string]Loader
}

var _ Loader = (*PrefixLoader)(nil)

func (l *PrefixLoader) Load(ctx context.Context, libraryName string) (engine.Library, error) {
	if prefix, rest, ok := strings.Cut(libraryName, ":"); ok {
		if loader, ok := l.Prefixed[prefix]; ok {
			return loader.Load(ctx, rest)
		}
	}
	if l.Default == nil {
		return nil, engine.ErrNotSupported{What: "loading '" + libraryName + "'"}
	}
	return l.Default.Load(ctx, libraryName)
}
