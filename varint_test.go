package quicmux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 63, 64, 16383, 16384, 1073741823, 1073741824, VarintMax}
	for _, v := range cases {
		buf := putVarint(nil, v)
		got, n, ok := getVarint(buf)
		require.True(t, ok)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestVarintLenMatchesEncodedSize(t *testing.T) {
	for _, v := range []uint64{0, 63, 64, 16383, 16384, 1073741823, 1073741824, VarintMax} {
		require.Equal(t, varintLen(v), len(putVarint(nil, v)))
	}
}

func TestGetVarintIncomplete(t *testing.T) {
	buf := putVarint(nil, 1073741824)
	_, _, ok := getVarint(buf[:2])
	require.False(t, ok)
}
