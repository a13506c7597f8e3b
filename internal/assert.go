// assert.go provides a panicking check for invariants that only a bug can break.

// Package internal contains helpers shared by the packages of the module.
package internal

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Assertf panics (through the logger from ctx, so the message is logged
// first) with the formatted message if cond does not hold.
func Assertf(
	ctx context.Context,
	cond bool,
	format string,
	args ...any,
) {
	if cond {
		return
	}
	logger.Panic(ctx, "invariant violated: "+fmt.Sprintf(format, args...))
}
