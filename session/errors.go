// errors.go defines the errors returned by session and port operations.

package session

import (
	"fmt"

	"github.com/xaionaro-go/avomx/engine"
)

// ErrCommand means the engine rejected an issued command.
type ErrCommand struct {
	Command engine.Command
	Param   uint32
	Err     error
}

func (e ErrCommand) Error() string {
	return fmt.Sprintf("the engine rejected command %s(%d): %v", e.Command, e.Param, e.Err)
}

func (e ErrCommand) Unwrap() error {
	return e.Err
}

// ErrInterrupted means a blocking operation was released by a flush (or a
// paused port) instead of completing.
type ErrInterrupted struct {
	Cause error
}

func (e ErrInterrupted) Error() string {
	if e.Cause == nil {
		return "interrupted by a flush"
	}
	return fmt.Sprintf("interrupted: %v", e.Cause)
}

func (e ErrInterrupted) Unwrap() error {
	return e.Cause
}

func (ErrInterrupted) Is(target error) bool {
	_, ok := target.(ErrInterrupted)
	return ok
}

// ErrUnrecoverable is returned by lifecycle operations that skipped the
// engine round-trip because the engine reported an unrecoverable error.
type ErrUnrecoverable struct {
	Code engine.ErrorCode
}

func (e ErrUnrecoverable) Error() string {
	return fmt.Sprintf("the engine is in an unrecoverable error state: %v", e.Code)
}

func (e ErrUnrecoverable) Unwrap() error {
	return e.Code
}

// ErrNoPort means there is no port configured with the given index.
type ErrNoPort struct {
	Index uint32
}

func (e ErrNoPort) Error() string {
	return fmt.Sprintf("port #%d is not configured", e.Index)
}

// ErrPortIndex means the port index is outside [0, MaxPorts).
type ErrPortIndex struct {
	Index uint32
}

func (e ErrPortIndex) Error() string {
	return fmt.Sprintf("port index %d is out of range [0, %d)", e.Index, MaxPorts)
}

// ErrBuffersAllocated means a port cannot be reconfigured while it holds buffers.
type ErrBuffersAllocated struct {
	Index uint32
}

func (e ErrBuffersAllocated) Error() string {
	return fmt.Sprintf("port #%d still has allocated buffers", e.Index)
}

// ErrClosed is returned by operations on a closed session.
type ErrClosed struct{}

func (ErrClosed) Error() string {
	return "the session is closed"
}
