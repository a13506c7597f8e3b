// consts.go defines states, commands, events and directions with their names.

package engine

import (
	"fmt"
)

type State uint32

const (
	StateInvalid = State(iota)
	StateLoaded
	StateIdle
	StateExecuting
	StatePause
	StateWaitForResources
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateLoaded:
		return "Loaded"
	case StateIdle:
		return "Idle"
	case StateExecuting:
		return "Executing"
	case StatePause:
		return "Pause"
	case StateWaitForResources:
		return "WaitForResources"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(s))
	}
}

type Command uint32

const (
	CommandStateSet = Command(iota)
	CommandFlush
	CommandPortDisable
	CommandPortEnable
	CommandMarkBuffer
)

func (c Command) String() string {
	switch c {
	case CommandStateSet:
		return "StateSet"
	case CommandFlush:
		return "Flush"
	case CommandPortDisable:
		return "PortDisable"
	case CommandPortEnable:
		return "PortEnable"
	case CommandMarkBuffer:
		return "MarkBuffer"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(c))
	}
}

type EventKind uint32

const (
	EventCmdComplete = EventKind(iota)
	EventError
	EventMark
	EventPortSettingsChanged
	EventBufferFlag
	EventResourcesAcquired
	EventComponentResumed
	EventDynamicResourcesAvailable
	EventPortFormatDetected
)

func (k EventKind) String() string {
	switch k {
	case EventCmdComplete:
		return "CmdComplete"
	case EventError:
		return "Error"
	case EventMark:
		return "Mark"
	case EventPortSettingsChanged:
		return "PortSettingsChanged"
	case EventBufferFlag:
		return "BufferFlag"
	case EventResourcesAcquired:
		return "ResourcesAcquired"
	case EventComponentResumed:
		return "ComponentResumed"
	case EventDynamicResourcesAvailable:
		return "DynamicResourcesAvailable"
	case EventPortFormatDetected:
		return "PortFormatDetected"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(k))
	}
}

type Direction uint32

const (
	DirectionInput = Direction(iota)
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(d))
	}
}

// ErrNotSupported is returned by engine implementations unavailable on
// the current platform.
type ErrNotSupported struct {
	What string
}

func (e ErrNotSupported) Error() string {
	return fmt.Sprintf("%s is not supported on this platform", e.What)
}
