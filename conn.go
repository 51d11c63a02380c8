package quicmux

import (
	"context"
	"sync"
)

// Connection is the per-connection object that wires together every
// component spec.md and SPEC_FULL.md describe: the stream table, the
// datagram channel, the frame scheduler, the control-frame dispatcher,
// the background watcher, and the external collaborators (transport,
// congestion control). It replaces the teacher's monolithic Connection
// (connection.go), which hand-rolled the stream table and had no
// datagram, scheduler, or dispatcher concept at all; the packet
// encode/decode and handshake pieces of the teacher's Connection remain
// out of scope per spec.md section 1 and are represented here only as
// the Transport and CongestionControl collaborator fields.
type Connection struct {
	role   Role
	params Parameters

	Streams   *Streams
	Datagrams *DatagramChannel
	Scheduler *Scheduler
	Dispatch  *Dispatcher
	Watcher   *Watcher
	CC        CongestionControl
	Transport Transport

	errOnce sync.Once
	errCh   chan error
}

// NewConnection assembles a Connection for role using the negotiated
// parameters, a congestion controller, and a bound transport.
func NewConnection(role Role, params Parameters, cc CongestionControl, transport Transport) *Connection {
	streams := NewStreams(role, params)
	datagrams := NewDatagramChannel(params.MaxDatagramFrameSize)
	scheduler := NewScheduler(streams, datagrams)
	dispatch := NewDispatcher(streams, scheduler)
	watcher := NewWatcher(streams, datagrams)

	return &Connection{
		role:      role,
		params:    params,
		Streams:   streams,
		Datagrams: datagrams,
		Scheduler: scheduler,
		Dispatch:  dispatch,
		Watcher:   watcher,
		CC:        cc,
		Transport: transport,
		errCh:     make(chan error, 1),
	}
}

// Run starts the connection's background watcher; it blocks until ctx is
// cancelled or the connection fails fatally.
func (c *Connection) Run(ctx context.Context) error {
	return c.Watcher.Run(ctx, c.errCh)
}

// Abort records a fatal, connection-scoped error and propagates it to
// every component (spec.md section 5's terminal error state). It is
// idempotent: only the first call's error is recorded.
func (c *Connection) Abort(err error) {
	c.errOnce.Do(func() {
		c.errCh <- err
		close(c.errCh)
	})
}

// SendPacket asks the congestion controller for a send opportunity, packs
// a packet via the Scheduler under the connection's current flow budget,
// and hands it to the Transport. The packet header/AEAD framing around
// the frames the Scheduler returns is the packet serializer's job (out of
// scope, spec.md section 1); SendPacket only demonstrates how the pieces
// this package does own compose.
func (c *Connection) SendPacket(ctx context.Context, buf []byte) ([]byte, []Encoded, error) {
	budget, err := c.CC.PollSend(ctx)
	if err != nil {
		return nil, nil, err
	}
	if budget < cap(buf) {
		buf = buf[:0:budget]
	}
	connFlow := c.Streams.ConnSendFlow()
	out, encoded, freshUsed := c.Scheduler.PackFrames(buf, connFlow.Avail())
	if freshUsed > 0 {
		connFlow.Reserve(freshUsed)
	}
	if len(out) == 0 {
		return out, encoded, nil
	}
	c.CC.OnPktSent(len(out), true, true)
	if err := c.Transport.Send(out); err != nil {
		return nil, nil, err
	}
	return out, encoded, nil
}
