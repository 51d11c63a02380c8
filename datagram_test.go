package quicmux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatagramSendBytesRejectsOversizeAndUnsupported(t *testing.T) {
	d := NewDatagramChannel(0)
	err := d.SendBytes([]byte("hi"))
	require.Error(t, err)

	d2 := NewDatagramChannel(4)
	require.NoError(t, d2.SendBytes([]byte("ok")))
	err = d2.SendBytes([]byte("too long"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestDatagramSendBytesRejectsPayloadExactlyAtRemoteMax(t *testing.T) {
	// Spec accept rule is 1 + payload.len() <= remote_max_size, so a
	// payload of exactly remoteMax bytes must be refused: the leading
	// DATAGRAM frame type byte always costs 1 extra byte.
	d := NewDatagramChannel(4)
	err := d.SendBytes([]byte("four"))
	require.ErrorIs(t, err, ErrInvalidInput)

	d2 := NewDatagramChannel(4)
	require.NoError(t, d2.SendBytes([]byte("thr")))
}

func TestTryReadDatagramPrefersLengthFieldWhenRoomAllows(t *testing.T) {
	d := NewDatagramChannel(100)
	require.NoError(t, d.SendBytes([]byte("hello")))

	frame, padding, ok := d.TryReadDatagram(100)
	require.True(t, ok)
	require.True(t, frame.HasLen)
	require.Equal(t, 0, padding)
}

func TestTryReadDatagramOmitsLengthWhenOnlyNoLenFits(t *testing.T) {
	d := NewDatagramChannel(100)
	data := make([]byte, 10)
	require.NoError(t, d.SendBytes(data))

	// withLen needs 1 (type) + 1 (len varint) + 10 = 12.
	// noLen needs 1 (type) + 10 = 11.
	frame, padding, ok := d.TryReadDatagram(11)
	require.True(t, ok)
	require.False(t, frame.HasLen)
	require.Equal(t, 0, padding)

	d2 := NewDatagramChannel(100)
	require.NoError(t, d2.SendBytes(data))
	frame2, padding2, ok := d2.TryReadDatagram(13)
	require.True(t, ok)
	require.True(t, frame2.HasLen)
	require.Equal(t, 0, padding2)
}

func TestUpdateRemoteMaxDatagramFrameSizeIsMonotonic(t *testing.T) {
	d := NewDatagramChannel(10)
	require.NoError(t, d.UpdateRemoteMaxDatagramFrameSize(20))
	err := d.UpdateRemoteMaxDatagramFrameSize(5)
	require.Error(t, err)
}

func TestDatagramChannelOnConnErrorDrainsQueue(t *testing.T) {
	d := NewDatagramChannel(100)
	require.NoError(t, d.SendBytes([]byte("queued")))
	d.OnConnError(ErrConnClosed)
	err := d.SendBytes([]byte("more"))
	require.Error(t, err)
	_, _, ok := d.TryReadDatagram(100)
	require.False(t, ok)
}
