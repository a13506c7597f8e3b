// error_code.go defines the engine error codes, their names and their severity classes.

package engine

import (
	"fmt"
)

// ErrorCode is an error reported by the engine, either as a return value of
// an entry point or through an EventError event.
type ErrorCode uint32

const (
	ErrorNone                               = ErrorCode(0)
	ErrorInsufficientResources              = ErrorCode(0x80001000)
	ErrorUndefined                          = ErrorCode(0x80001001)
	ErrorInvalidComponentName               = ErrorCode(0x80001002)
	ErrorComponentNotFound                  = ErrorCode(0x80001003)
	ErrorInvalidComponent                   = ErrorCode(0x80001004)
	ErrorBadParameter                       = ErrorCode(0x80001005)
	ErrorNotImplemented                     = ErrorCode(0x80001006)
	ErrorUnderflow                          = ErrorCode(0x80001007)
	ErrorOverflow                           = ErrorCode(0x80001008)
	ErrorHardware                           = ErrorCode(0x80001009)
	ErrorInvalidState                       = ErrorCode(0x8000100A)
	ErrorStreamCorrupt                      = ErrorCode(0x8000100B)
	ErrorPortsNotCompatible                 = ErrorCode(0x8000100C)
	ErrorResourcesLost                      = ErrorCode(0x8000100D)
	ErrorNoMore                             = ErrorCode(0x8000100E)
	ErrorVersionMismatch                    = ErrorCode(0x8000100F)
	ErrorNotReady                           = ErrorCode(0x80001010)
	ErrorTimeout                            = ErrorCode(0x80001011)
	ErrorSameState                          = ErrorCode(0x80001012)
	ErrorResourcesPreempted                 = ErrorCode(0x80001013)
	ErrorPortUnresponsiveDuringAllocation   = ErrorCode(0x80001014)
	ErrorPortUnresponsiveDuringDeallocation = ErrorCode(0x80001015)
	ErrorPortUnresponsiveDuringStop         = ErrorCode(0x80001016)
	ErrorIncorrectStateTransition           = ErrorCode(0x80001017)
	ErrorIncorrectStateOperation            = ErrorCode(0x80001018)
	ErrorUnsupportedSetting                 = ErrorCode(0x80001019)
	ErrorUnsupportedIndex                   = ErrorCode(0x8000101A)
	ErrorBadPortIndex                       = ErrorCode(0x8000101B)
	ErrorPortUnpopulated                    = ErrorCode(0x8000101C)
	ErrorComponentSuspended                 = ErrorCode(0x8000101D)
	ErrorDynamicResourcesUnavailable        = ErrorCode(0x8000101E)
	ErrorMbErrorsInFrame                    = ErrorCode(0x8000101F)
	ErrorFormatNotDetected                  = ErrorCode(0x80001020)
	ErrorContentPipeOpenFailed              = ErrorCode(0x80001021)
	ErrorContentPipeCreationFailed          = ErrorCode(0x80001022)
	ErrorSeparateTablesUsed                 = ErrorCode(0x80001023)
	ErrorTunnelingUnsupported               = ErrorCode(0x80001024)
)

var errorNames = map[ErrorCode]string{
	ErrorNone:                               "None",
	ErrorInsufficientResources:              "Insufficient Resources",
	ErrorUndefined:                          "Undefined",
	ErrorInvalidComponentName:               "Invalid Component Name",
	ErrorComponentNotFound:                  "Component Not Found",
	ErrorInvalidComponent:                   "Invalid Component",
	ErrorBadParameter:                       "Bad Parameter",
	ErrorNotImplemented:                     "Not Implemented",
	ErrorUnderflow:                          "Underflow",
	ErrorOverflow:                           "Overflow",
	ErrorHardware:                           "Hardware Error",
	ErrorInvalidState:                       "Invalid State",
	ErrorStreamCorrupt:                      "Stream Corrupt",
	ErrorPortsNotCompatible:                 "Ports Not Compatible",
	ErrorResourcesLost:                      "Resources Lost",
	ErrorNoMore:                             "No More",
	ErrorVersionMismatch:                    "Version Mismatch",
	ErrorNotReady:                           "Not Ready",
	ErrorTimeout:                            "Timeout",
	ErrorSameState:                          "Same State",
	ErrorResourcesPreempted:                 "Resources Preempted",
	ErrorPortUnresponsiveDuringAllocation:   "Port Unresponsive During Allocation",
	ErrorPortUnresponsiveDuringDeallocation: "Port Unresponsive During Deallocation",
	ErrorPortUnresponsiveDuringStop:         "Port Unresponsive During Stop",
	ErrorIncorrectStateTransition:           "Incorrect State Transition",
	ErrorIncorrectStateOperation:            "Incorrect State Operation",
	ErrorUnsupportedSetting:                 "Unsupported Setting",
	ErrorUnsupportedIndex:                   "Unsupported Index",
	ErrorBadPortIndex:                       "Bad Port Index",
	ErrorPortUnpopulated:                    "Port Unpopulated",
	ErrorComponentSuspended:                 "Component Suspended",
	ErrorDynamicResourcesUnavailable:        "Dynamic Resources Unavailable",
	ErrorMbErrorsInFrame:                    "MacroBlock Errors In Frame",
	ErrorFormatNotDetected:                  "Format Not Detected",
	ErrorContentPipeOpenFailed:              "Content Pipe Open Failed",
	ErrorContentPipeCreationFailed:          "Content Pipe Creation Failed",
	ErrorSeparateTablesUsed:                 "Separate Tables Used",
	ErrorTunnelingUnsupported:               "Tunneling Unsupported",
}

func (e ErrorCode) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%08X)", uint32(e))
}

func (e ErrorCode) Error() string {
	return fmt.Sprintf("engine error 0x%08X: %s", uint32(e), e.String())
}

// IsUnrecoverable reports whether after this error the component can no
// longer be trusted to acknowledge commands or return buffers.
func (e ErrorCode) IsUnrecoverable() bool {
	switch e {
	case ErrorInvalidState, ErrorInsufficientResources, ErrorFormatNotDetected:
		return true
	}
	return false
}

// AsError returns nil for ErrorNone and the code itself otherwise.
func (e ErrorCode) AsError() error {
	if e == ErrorNone {
		return nil
	}
	return e
}
