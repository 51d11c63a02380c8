package quicmux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const unlimitedConnBudget = 1 << 30

func TestSendStreamWriteThenTryReadEmitsQueuedBytes(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	n, err := ss.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)

	frame, form, padding, dataLen, fresh, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.True(t, fresh)
	require.Equal(t, 11, dataLen)
	require.Equal(t, "hello world", string(frame.Data))
	require.False(t, frame.Fin)
	require.Equal(t, 0, padding)
	_ = form
}

func TestSendStreamCloseEmitsFinOnceDataDrained(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, err := ss.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, ss.Close())

	frame, _, _, dataLen, _, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, 3, dataLen)
	require.True(t, frame.Fin)
	require.Equal(t, SendDataSent, ss.State())

	_, _, _, _, _, ok = ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.False(t, ok)
}

func TestSendStreamRespectsFlowControlBudget(t *testing.T) {
	flow := NewSendFlow(5)
	ss := NewSendStream(4, nil, flow)
	_, err := ss.Write([]byte("0123456789"))
	require.NoError(t, err)

	frame, _, _, dataLen, _, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, 5, dataLen)
	require.Equal(t, "01234", string(frame.Data))

	_, _, _, _, _, ok = ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.False(t, ok, "no more flow control credit")

	flow.Credit(10)
	frame, _, _, dataLen, _, ok = ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, 5, dataLen)
	require.Equal(t, "56789", string(frame.Data))
}

func TestSendStreamRespectsConnectionFlowBudget(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, err := ss.Write([]byte("0123456789"))
	require.NoError(t, err)

	// The per-stream and per-call budgets are generous, but the
	// connection-level budget caps fresh bytes to 4.
	frame, _, _, dataLen, fresh, ok := ss.TryRead(1200, 4096, 4)
	require.True(t, ok)
	require.True(t, fresh)
	require.Equal(t, 4, dataLen)
	require.Equal(t, "0123", string(frame.Data))
}

func TestSendStreamOnDataAckedTransitionsToDataRecvd(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, _ = ss.Write([]byte("abc"))
	require.NoError(t, ss.Close())

	frame, _, _, _, _, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, SendDataSent, ss.State())

	ss.OnDataAcked(frame.Offset, uint64(len(frame.Data)))
	require.Equal(t, SendDataRecvd, ss.State())
}

func TestSendStreamOnDataAckedOutOfOrderDoesNotPrematurelyCompleteStream(t *testing.T) {
	// A disjoint, out-of-order ack of [5,10) must not satisfy the
	// fin_offset(10) coverage check while [0,5) is still unacked.
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, _ = ss.Write([]byte("0123456789"))
	require.NoError(t, ss.Close())

	frame, _, _, _, _, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, 10, len(frame.Data))

	ss.OnDataAcked(5, 5)
	require.Equal(t, SendDataSent, ss.State(), "acking only [5,10) must not complete the stream")

	ss.OnDataAcked(0, 5)
	require.Equal(t, SendDataRecvd, ss.State(), "acking the remaining [0,5) must now complete it")
}

func TestSendStreamStopQueuesResetAndCancels(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, _ = ss.Write([]byte("abc"))

	reset, ok := ss.Stop(7)
	require.True(t, ok)
	require.EqualValues(t, 7, reset.AppErrorCode)
	require.Equal(t, SendResetSent, ss.State())

	select {
	case <-ss.Cancelled():
	default:
		t.Fatal("expected Cancelled channel to be closed after Stop")
	}

	_, ok = ss.Stop(8)
	require.False(t, ok, "Stop is not repeatable once reset is in flight")
}

func TestSendStreamMayLossDataReopensForRetransmission(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, _ = ss.Write([]byte("abc"))
	require.NoError(t, ss.Close())

	frame, _, _, _, _, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, SendDataSent, ss.State())

	ss.MayLossData(frame.Offset, uint64(len(frame.Data)))
	require.Equal(t, SendSending, ss.State())

	// The lost bytes must actually be re-emitted, not just the state flip.
	retrans, _, _, dataLen, fresh, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.False(t, fresh, "retransmission must not be charged as fresh flow-control usage")
	require.Equal(t, 3, dataLen)
	require.Equal(t, uint64(0), retrans.Offset)
	require.Equal(t, "abc", string(retrans.Data))
	require.True(t, retrans.Fin)
}

func TestSendStreamMayLossDataRetransmitsBeforeFreshBytes(t *testing.T) {
	// Scenario: 1000 bytes written and sent in one chunk, [0,500) is then
	// marked lost. The next try_read must re-emit offset 0 len 500 before
	// any fresh byte, even though there are no fresh bytes queued here to
	// compete with (queued is empty after the first full send).
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := ss.Write(data)
	require.NoError(t, err)

	frame, _, _, dataLen, _, ok := ss.TryRead(2000, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.Equal(t, 1000, dataLen)
	require.Equal(t, uint64(0), frame.Offset)

	ss.MayLossData(0, 500)

	retrans, _, _, dataLen, fresh, ok := ss.TryRead(2000, 4096, unlimitedConnBudget)
	require.True(t, ok)
	require.False(t, fresh)
	require.Equal(t, 500, dataLen)
	require.Equal(t, uint64(0), retrans.Offset)
	require.Equal(t, data[:500], retrans.Data)
}

func TestSendStreamAckCancelsPendingRetransmission(t *testing.T) {
	ss := NewSendStream(4, nil, NewSendFlow(1<<20))
	_, _ = ss.Write([]byte("abc"))
	require.NoError(t, ss.Close())

	frame, _, _, _, _, ok := ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.True(t, ok)

	ss.MayLossData(frame.Offset, uint64(len(frame.Data)))
	require.Equal(t, SendSending, ss.State())

	// The retransmit was never sent, but an ack for the original range
	// still arrives (e.g. a very late original ack): it must cancel the
	// pending retransmission rather than leaving it queued forever.
	ss.OnDataAcked(frame.Offset, uint64(len(frame.Data)))
	require.Equal(t, SendDataRecvd, ss.State())

	_, _, _, _, _, ok = ss.TryRead(1200, 4096, unlimitedConnBudget)
	require.False(t, ok, "nothing left to retransmit once the ack cancelled it")
}
