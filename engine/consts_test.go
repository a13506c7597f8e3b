package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodeNames(t *testing.T) {
	require.Equal(t, "Invalid State", ErrorInvalidState.String())
	require.Equal(t, "Format Not Detected", ErrorFormatNotDetected.String())
	require.Equal(t, "UNKNOWN(0x00000042)", ErrorCode(0x42).String())
	require.Contains(t, ErrorHardware.Error(), "Hardware Error")
}

func TestErrorCodeClasses(t *testing.T) {
	for _, code := range []ErrorCode{ErrorInvalidState, ErrorInsufficientResources, ErrorFormatNotDetected} {
		require.True(t, code.IsUnrecoverable(), code.String())
	}
	for _, code := range []ErrorCode{ErrorStreamCorrupt, ErrorUndefined, ErrorHardware, ErrorNone} {
		require.False(t, code.IsUnrecoverable(), code.String())
	}
}

func TestErrorCodeAsError(t *testing.T) {
	require.NoError(t, ErrorNone.AsError())
	err := ErrorBadParameter.AsError()
	var code ErrorCode
	require.True(t, errors.As(err, &code))
	require.Equal(t, ErrorBadParameter, code)
}

func TestStateNames(t *testing.T) {
	require.Equal(t, "Executing", StateExecuting.String())
	require.Equal(t, "WaitForResources", StateWaitForResources.String())
	require.Equal(t, "PortEnable", CommandPortEnable.String())
	require.Equal(t, "BufferFlag", EventBufferFlag.String())
	require.Equal(t, "output", DirectionOutput.String())
}

func TestBufferPayload(t *testing.T) {
	buf := &Buffer{Data: make([]byte, 8)}
	require.Nil(t, buf.Payload())
	require.Equal(t, 3, buf.SetPayload([]byte("abc")))
	require.Equal(t, []byte("abc"), buf.Payload())
	require.Equal(t, 8, buf.SetPayload([]byte("0123456789")))
	require.Equal(t, []byte("01234567"), buf.Payload())
	require.True(t, (BufferFlagEOS | BufferFlagSyncFrame).Has(BufferFlagEOS))
	require.False(t, BufferFlagSyncFrame.Has(BufferFlagEOS))
}
