// set_finalizer.go provides helpers to release native resources on garbage collection.

package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/avomx/logger"
)

// SetFinalizerFree makes the garbage collector call Free on the object
// if it was not freed explicitly.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T", freer)
		freer.Free()
	})
}

// ClearFinalizer undoes SetFinalizerFree after an explicit free.
func ClearFinalizer(obj any) {
	runtime.SetFinalizer(obj, nil)
}
