//go:build !(linux && (amd64 || arm64))

// library_other.go reports that native libraries cannot be loaded on this platform.

// Package omxil binds the engine interfaces to a native OpenMAX IL core
// library loaded at runtime (no cgo).
package omxil

import (
	"context"

	"github.com/xaionaro-go/avomx/engine"
)

func Load(ctx context.Context, path string) (engine.Library, error) {
	return nil, engine.ErrNotSupported{What: "loading OpenMAX IL libraries"}
}

// Loader is a registry-compatible loader treating library names as paths.
func Loader(ctx context.Context, libraryName string) (engine.Library, error) {
	return Load(ctx, libraryName)
}
