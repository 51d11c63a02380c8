package quicmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamIdEncodesInitiatorAndDirection(t *testing.T) {
	id := makeStreamID(3, true, DirUni)
	require.True(t, id.ServerInitiated())
	require.Equal(t, DirUni, id.Dir())
	require.EqualValues(t, 3, id.Seq())
}

func TestTryOpenLocalRespectsPeerAdvertisedLimit(t *testing.T) {
	r := NewStreamRegistry(RoleClient, 0, 0)
	_, ok := r.TryOpenLocal(DirBidi)
	require.False(t, ok, "no MAX_STREAMS credit yet")

	r.PermitMaxSID(DirBidi, 2)
	id1, ok := r.TryOpenLocal(DirBidi)
	require.True(t, ok)
	id2, ok := r.TryOpenLocal(DirBidi)
	require.True(t, ok)
	require.NotEqual(t, id1, id2)

	_, ok = r.TryOpenLocal(DirBidi)
	require.False(t, ok)
}

func TestOpenLocalBlocksUntilCredited(t *testing.T) {
	r := NewStreamRegistry(RoleClient, 0, 0)

	done := make(chan struct{})
	var openErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, openErr = r.OpenLocal(ctx, DirBidi)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	r.PermitMaxSID(DirBidi, 1)

	select {
	case <-done:
		require.NoError(t, openErr)
	case <-time.After(time.Second):
		t.Fatal("OpenLocal never woke up after PermitMaxSID")
	}
}

func TestAcceptRemoteOpensSkippedIDsInOrder(t *testing.T) {
	r := NewStreamRegistry(RoleServer, 10, 10)
	sid := makeStreamID(2, false, DirBidi) // client-initiated bidi, seq 2

	outcome, err := r.AcceptRemote(sid)
	require.NoError(t, err)
	require.False(t, outcome.Old)
	require.Len(t, outcome.Opened, 3)
	require.Equal(t, makeStreamID(0, false, DirBidi), outcome.Opened[0])
	require.Equal(t, makeStreamID(1, false, DirBidi), outcome.Opened[1])
	require.Equal(t, sid, outcome.Opened[2])

	again, err := r.AcceptRemote(sid)
	require.NoError(t, err)
	require.True(t, again.Old)
}

func TestAcceptRemoteEnforcesStreamLimit(t *testing.T) {
	r := NewStreamRegistry(RoleServer, 1, 0)
	sid := makeStreamID(5, false, DirBidi)
	_, err := r.AcceptRemote(sid)
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, KindStreamLimit, te.Kind)
}

func TestOnConnErrorWakesBlockedOpenLocal(t *testing.T) {
	r := NewStreamRegistry(RoleClient, 0, 0)

	done := make(chan error, 1)
	go func() {
		_, err := r.OpenLocal(context.Background(), DirBidi)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	r.OnConnError(ErrConnClosed)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("OpenLocal never woke up after OnConnError")
	}
}
