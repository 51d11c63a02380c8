package quicmux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanStreamFrameOmitsLengthWhenFlushWithBuffer(t *testing.T) {
	// Stream id 4 (1-byte varint), offset 0, a capacity that exactly fits
	// type byte + id + 10 bytes of data with no length field.
	dataLen, padding, form, ok := planStreamFrame(StreamId(4), 12, 0, 100, 100)
	require.True(t, ok)
	require.Equal(t, formNoLen, form)
	require.Equal(t, 0, padding)
	require.Equal(t, 10, dataLen)
}

func TestPlanStreamFrameCarriesLengthWhenRoomRemains(t *testing.T) {
	// Plenty of room beyond what a length-prefixed frame needs.
	dataLen, padding, form, ok := planStreamFrame(StreamId(4), 64, 0, 10, 10)
	require.True(t, ok)
	require.Equal(t, formWithLen, form)
	require.Equal(t, 0, padding)
	require.Equal(t, 10, dataLen)
}

func TestPlanStreamFramePadsWhenLengthFieldWouldNotFit(t *testing.T) {
	// headerBase = 1 (type) + 1 (id varint) = 2. dataLen=64 needs a
	// 2-byte length varint, so withLenTotal=68 while noLenTotal=66; a
	// capacity of 67 fits the no-len form with one spare byte but not the
	// with-len form.
	dataLen, padding, form, ok := planStreamFrame(StreamId(4), 67, 0, 64, 64)
	require.True(t, ok)
	require.Equal(t, formPaddingThenNoLen, form)
	require.Equal(t, 64, dataLen)
	require.Equal(t, 1, padding)
}

func TestPlanStreamFrameRefusesWhenNothingFits(t *testing.T) {
	_, _, _, ok := planStreamFrame(StreamId(4), 1, 0, 10, 10)
	require.False(t, ok)
}

func TestStreamFrameEncodeRoundTripsOffsetAndLength(t *testing.T) {
	f := StreamFrame{ID: 4, Offset: 100, Data: []byte("hello"), Fin: true}
	buf := f.encode(nil, true)

	typ := buf[0]
	require.NotZero(t, typ&0x01) // FIN
	require.NotZero(t, typ&0x02) // LEN
	require.NotZero(t, typ&0x04) // OFF

	rest := buf[1:]
	id, n, ok := getVarint(rest)
	require.True(t, ok)
	require.EqualValues(t, f.ID, id)
	rest = rest[n:]

	off, n, ok := getVarint(rest)
	require.True(t, ok)
	require.Equal(t, f.Offset, off)
	rest = rest[n:]

	ln, n, ok := getVarint(rest)
	require.True(t, ok)
	require.EqualValues(t, len(f.Data), ln)
	rest = rest[n:]

	require.Equal(t, f.Data, rest)
}
