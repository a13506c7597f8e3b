// buffer.go defines the buffer handle moved across the engine boundary.

package engine

// Buffer is an engine-recognized buffer handle. The memory behind Data
// belongs to the engine implementation and is valid until FreeBuffer.
type Buffer struct {
	Data      []byte
	FilledLen uint32
	Offset    uint32
	Flags     BufferFlag
	Timestamp int64

	InputPortIndex  uint32
	OutputPortIndex uint32

	// Opaque is reserved for the engine implementation.
	Opaque any
}

// Payload returns the filled part of the buffer.
func (b *Buffer) Payload() []byte {
	end := int(b.Offset) + int(b.FilledLen)
	if end > len(b.Data) {
		end = len(b.Data)
	}
	if int(b.Offset) >= end {
		return nil
	}
	return b.Data[b.Offset:end]
}

// SetPayload copies data into the buffer and returns the amount copied.
func (b *Buffer) SetPayload(data []byte) int {
	n := copy(b.Data, data)
	b.Offset = 0
	b.FilledLen = uint32(n)
	return n
}

type BufferFlag uint32

const (
	BufferFlagEOS         = BufferFlag(0x00000001)
	BufferFlagStartTime   = BufferFlag(0x00000002)
	BufferFlagDecodeOnly  = BufferFlag(0x00000004)
	BufferFlagDataCorrupt = BufferFlag(0x00000008)
	BufferFlagEndOfFrame  = BufferFlag(0x00000010)
	BufferFlagSyncFrame   = BufferFlag(0x00000020)
	BufferFlagExtraData   = BufferFlag(0x00000040)
	BufferFlagCodecConfig = BufferFlag(0x00000080)
)

func (f BufferFlag) Has(other BufferFlag) bool {
	return f&other == other
}
