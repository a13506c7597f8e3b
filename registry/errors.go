// errors.go defines the errors returned by the implementation registry.

package registry

import (
	"fmt"
)

// ErrLoad means the library could not be opened or lacks a required entry point.
type ErrLoad struct {
	LibraryName string
	Err         error
}

func (e ErrLoad) Error() string {
	return fmt.Sprintf("unable to load engine library '%s': %v", e.LibraryName, e.Err)
}

func (e ErrLoad) Unwrap() error {
	return e.Err
}

// ErrEngineInit means the one-time library initialization failed.
type ErrEngineInit struct {
	LibraryName string
	Err         error
}

func (e ErrEngineInit) Error() string {
	return fmt.Sprintf("unable to initialize engine library '%s': %v", e.LibraryName, e.Err)
}

func (e ErrEngineInit) Unwrap() error {
	return e.Err
}

// ErrClosed is returned when acquiring from a registry that was closed.
type ErrClosed struct{}

func (ErrClosed) Error() string {
	return "the registry is closed"
}
