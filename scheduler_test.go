package quicmux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStreams(t *testing.T) *Streams {
	t.Helper()
	params := DefaultParameters()
	return NewStreams(RoleClient, params)
}

func TestSchedulerDrainsControlFramesFirst(t *testing.T) {
	streams := newTestStreams(t)
	sched := NewScheduler(streams, nil)
	sched.SendFrame(MaxStreamDataFrame{StreamID_: 4, MaxStreamData: 100})

	buf := make([]byte, 0, 64)
	out, encoded, freshUsed := sched.PackFrames(buf, unlimitedConnBudget)
	require.NotEmpty(t, out)
	require.Len(t, encoded, 1)
	require.Equal(t, FrameTypeMaxStreamData, encoded[0].Type)
	require.Zero(t, freshUsed)
}

func TestSchedulerPacksQueuedStreamData(t *testing.T) {
	streams := newTestStreams(t)
	streams.IDs().PermitMaxSID(DirBidi, 1)
	_, _, err := streams.OpenBidi(context.Background())
	require.NoError(t, err)

	ids := streams.Sendable()
	require.Len(t, ids, 1)
	send, ok := streams.SendStreamByID(ids[0])
	require.True(t, ok)
	_, err = send.Write([]byte("payload"))
	require.NoError(t, err)

	sched := NewScheduler(streams, nil)
	buf := make([]byte, 0, 1200)
	out, encoded, freshUsed := sched.PackFrames(buf, unlimitedConnBudget)
	require.NotEmpty(t, out)
	require.NotEmpty(t, encoded)
	require.EqualValues(t, 7, freshUsed)
}

func TestSchedulerCapsFreshBytesAtConnectionFlowLimit(t *testing.T) {
	streams := newTestStreams(t)
	streams.IDs().PermitMaxSID(DirBidi, 1)
	_, _, err := streams.OpenBidi(context.Background())
	require.NoError(t, err)

	ids := streams.Sendable()
	require.Len(t, ids, 1)
	send, ok := streams.SendStreamByID(ids[0])
	require.True(t, ok)
	_, err = send.Write([]byte("0123456789"))
	require.NoError(t, err)

	sched := NewScheduler(streams, nil)
	buf := make([]byte, 0, 1200)
	out, _, freshUsed := sched.PackFrames(buf, 4)
	require.NotEmpty(t, out)
	require.EqualValues(t, 4, freshUsed, "fresh stream bytes must be capped at the connection flow limit")
}

func TestSchedulerPacksDatagramWhenRoomRemains(t *testing.T) {
	streams := newTestStreams(t)
	dg := NewDatagramChannel(1200)
	require.NoError(t, dg.SendBytes([]byte("hi")))

	sched := NewScheduler(streams, dg)
	buf := make([]byte, 0, 64)
	out, encoded, freshUsed := sched.PackFrames(buf, unlimitedConnBudget)
	require.NotEmpty(t, out)
	require.Equal(t, FrameTypeDatagramWithLen, encoded[len(encoded)-1].Type)
	require.Zero(t, freshUsed)
}
