//go:build linux && (amd64 || arm64)

// structs.go mirrors the native structures exchanged with an OpenMAX IL library (LP64 layout).

package omxil

import (
	"unsafe"
)

// specVersion is nVersion 1.1.2.0 (major, minor, revision, step; little endian).
const specVersion = uint32(1) | uint32(1)<<8 | uint32(2)<<16

const indexParamPortDefinition = uint32(0x02000001)

// componentType is OMX_COMPONENTTYPE. Every function pointer takes the
// component handle as its first argument.
type componentType struct {
	Size               uint32
	Version            uint32
	ComponentPrivate   uintptr
	ApplicationPrivate uintptr

	GetComponentVersion    uintptr
	SendCommand            uintptr
	GetParameter           uintptr
	SetParameter           uintptr
	GetConfig              uintptr
	SetConfig              uintptr
	GetExtensionIndex      uintptr
	GetState               uintptr
	ComponentTunnelRequest uintptr
	UseBuffer              uintptr
	AllocateBuffer         uintptr
	FreeBuffer             uintptr
	EmptyThisBuffer        uintptr
	FillThisBuffer         uintptr
	SetCallbacks           uintptr
	ComponentDeInit        uintptr
	UseEGLImage            uintptr
	ComponentRoleEnum      uintptr
}

// bufferHeader is OMX_BUFFERHEADERTYPE.
type bufferHeader struct {
	Size                uint32
	Version             uint32
	Buffer              uintptr
	AllocLen            uint32
	FilledLen           uint32
	Offset              uint32
	AppPrivate          uintptr
	PlatformPrivate     uintptr
	InputPortPrivate    uintptr
	OutputPortPrivate   uintptr
	MarkTargetComponent uintptr
	MarkData            uintptr
	TickCount           uint32
	TimeStamp           int64
	Flags               uint32
	OutputPortIndex     uint32
	InputPortIndex      uint32
}

// portDefinitionParam is OMX_PARAM_PORTDEFINITIONTYPE; the domain-specific
// format union is kept opaque.
type portDefinitionParam struct {
	Size              uint32
	Version           uint32
	PortIndex         uint32
	Dir               uint32
	BufferCountActual uint32
	BufferCountMin    uint32
	BufferSize        uint32
	Enabled           uint32
	Populated         uint32
	Domain            uint32
	Format            [8]uint64
	BuffersContiguous uint32
	BufferAlignment   uint32
}

// callbackType is OMX_CALLBACKTYPE.
type callbackType struct {
	EventHandler    uintptr
	EmptyBufferDone uintptr
	FillBufferDone  uintptr
}

func newPortDefinitionParam(portIndex uint32) *portDefinitionParam {
	return &portDefinitionParam{
		Size:      uint32(unsafe.Sizeof(portDefinitionParam{})),
		Version:   specVersion,
		PortIndex: portIndex,
	}
}

func boolToNative(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
