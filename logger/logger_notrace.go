//go:build !debug_trace
// +build !debug_trace

// logger_notrace.go compiles trace logging out unless the debug_trace build tag is set.

package logger

import (
	"context"
)

func Tracef(ctx context.Context, format string, args ...any) {}
