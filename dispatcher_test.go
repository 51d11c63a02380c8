package quicmux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	frames []StreamCtlFrame
}

func (r *recordingSink) SendFrame(frames ...StreamCtlFrame) {
	r.frames = append(r.frames, frames...)
}

var _ SendFrame[StreamCtlFrame] = (*recordingSink)(nil)

func TestDispatcherRejectsResetStreamForLocalUniSend(t *testing.T) {
	streams := NewStreams(RoleClient, DefaultParameters())
	sink := &recordingSink{}
	d := NewDispatcher(streams, sink)

	streams.IDs().PermitMaxSID(DirUni, 1)
	send, err := streams.OpenUni(context.Background())
	require.NoError(t, err)
	require.NotNil(t, send)

	err = d.RecvResetStream(ResetStreamFrame{StreamID_: send.id, AppErrorCode: 1, FinalSize: 0})
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, KindStreamState, te.Kind)
}

func TestDispatcherStopSendingQueuesResetWithZeroCode(t *testing.T) {
	streams := NewStreams(RoleClient, DefaultParameters())
	sink := &recordingSink{}
	d := NewDispatcher(streams, sink)

	streams.IDs().PermitMaxSID(DirBidi, 1)
	send, _, err := streams.OpenBidi(context.Background())
	require.NoError(t, err)
	_, err = send.Write([]byte("data"))
	require.NoError(t, err)

	err = d.RecvStopSending(StopSendingFrame{StreamID_: send.id, AppErrorCode: 42})
	require.NoError(t, err)
	require.Len(t, sink.frames, 1)
	reset, ok := sink.frames[0].(ResetStreamFrame)
	require.True(t, ok)
	require.EqualValues(t, 0, reset.AppErrorCode)
}

func TestDispatcherRecvMaxStreamDataAppliesCredit(t *testing.T) {
	streams := NewStreams(RoleClient, DefaultParameters())
	sink := &recordingSink{}
	d := NewDispatcher(streams, sink)

	streams.IDs().PermitMaxSID(DirBidi, 1)
	send, _, err := streams.OpenBidi(context.Background())
	require.NoError(t, err)

	before := send.flow.Avail()
	err = d.RecvMaxStreamData(MaxStreamDataFrame{StreamID_: send.id, MaxStreamData: before + 1000})
	require.NoError(t, err)
	require.EqualValues(t, before+1000, send.flow.Avail())
}

func TestDispatcherRecvMaxStreamsPermitsOpen(t *testing.T) {
	streams := NewStreams(RoleClient, DefaultParameters())
	sink := &recordingSink{}
	d := NewDispatcher(streams, sink)

	_, ok := streams.IDs().TryOpenLocal(DirBidi)
	require.False(t, ok)

	err := d.RecvMaxStreams(MaxStreamsFrame{Dir: DirBidi, MaxStreams: 1})
	require.NoError(t, err)

	_, ok = streams.IDs().TryOpenLocal(DirBidi)
	require.True(t, ok)
}
