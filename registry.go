package quicmux

import (
	"context"
	"sort"
	"sync"
)

// Streams is the top-level stream table: it owns stream ID allocation,
// the per-ID send/recv state machines, and the accept queues remote
// stream opens populate. It is the generalization of the teacher's
// streamSet (referenced but never defined in connection.go) onto the
// full table described in spec.md section 4.1, grounded additionally on
// original_source's qrecovery/src/streams/data.rs RawDataStreams for the
// accept-queue / background-watcher shape.
type Streams struct {
	role   Role
	ids    *StreamRegistry
	params Parameters

	mu    sync.Mutex
	sends map[StreamId]*SendStream
	recvs map[StreamId]*RecvStream

	acceptBidi chan StreamId
	acceptUni  chan StreamId

	connSend *SendFlow
	connRecv *RecvFlow

	closed   bool
	closeErr error
}

// NewStreams builds a stream table for role, seeded with the negotiated
// transport parameters (spec.md section 4.1 / SPEC_FULL.md Data Model).
func NewStreams(role Role, params Parameters) *Streams {
	return &Streams{
		role:       role,
		ids:        NewStreamRegistry(role, params.InitialMaxStreamsBidi, params.InitialMaxStreamsUni),
		params:     params,
		sends:      make(map[StreamId]*SendStream),
		recvs:      make(map[StreamId]*RecvStream),
		acceptBidi: make(chan StreamId, 16),
		acceptUni:  make(chan StreamId, 16),
		connSend:   NewSendFlow(params.InitialMaxData),
		connRecv:   NewRecvFlow(params.InitialMaxData),
	}
}

func (s *Streams) streamSendFlow(dir Direction, local bool) uint64 {
	switch {
	case dir == DirUni && local:
		return s.params.InitialMaxStreamDataUni
	case dir == DirUni && !local:
		return 0 // a uni stream we opened has no recv half, and vice versa
	case local:
		return s.params.InitialMaxStreamDataBidiLocal
	default:
		return s.params.InitialMaxStreamDataBidiRemote
	}
}

func (s *Streams) streamRecvWindow() uint64 {
	return s.params.StreamReceiveWindow
}

// OpenBidi allocates the next local bidirectional stream, blocking until
// the peer's MAX_STREAMS(bidi) permits it or ctx is cancelled.
func (s *Streams) OpenBidi(ctx context.Context) (*SendStream, *RecvStream, error) {
	id, err := s.ids.OpenLocal(ctx, DirBidi)
	if err != nil {
		return nil, nil, err
	}
	send, recv := s.register(id, true)
	return send, recv, nil
}

// OpenUni allocates the next local unidirectional stream.
func (s *Streams) OpenUni(ctx context.Context) (*SendStream, error) {
	id, err := s.ids.OpenLocal(ctx, DirUni)
	if err != nil {
		return nil, err
	}
	send, _ := s.register(id, true)
	return send, nil
}

func (s *Streams) register(id StreamId, local bool) (*SendStream, *RecvStream) {
	dir := id.Dir()
	var send *SendStream
	var recv *RecvStream

	// Whether this endpoint owns the send half and/or recv half depends
	// on direction and who opened it (RFC 9000 section 2.1): a bidi
	// stream has both halves regardless of opener; a uni stream's opener
	// owns only the send half, the peer only the recv half.
	wantSend := dir == DirBidi || local
	wantRecv := dir == DirBidi || !local

	s.mu.Lock()
	defer s.mu.Unlock()
	if wantSend {
		send = NewSendStream(id, nil, NewSendFlow(s.streamSendFlow(dir, local)))
		s.sends[id] = send
	}
	if wantRecv {
		recv = NewRecvStream(id, nil, NewRecvFlow(s.streamRecvWindow()))
		s.recvs[id] = recv
	}
	return send, recv
}

// AcceptBidi blocks until the peer opens a bidirectional stream.
func (s *Streams) AcceptBidi(ctx context.Context) (*SendStream, *RecvStream, error) {
	select {
	case id := <-s.acceptBidi:
		s.mu.Lock()
		send, recv := s.sends[id], s.recvs[id]
		s.mu.Unlock()
		return send, recv, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// AcceptUni blocks until the peer opens a unidirectional stream.
func (s *Streams) AcceptUni(ctx context.Context) (*RecvStream, error) {
	select {
	case id := <-s.acceptUni:
		s.mu.Lock()
		recv := s.recvs[id]
		s.mu.Unlock()
		return recv, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// observeRemote runs AcceptRemote and, for every newly opened ID,
// registers its state machines and enqueues it on the matching accept
// channel. It is the shared entry point both HandleStreamFrame and the
// control-frame dispatcher use before touching a possibly-unseen remote
// stream ID.
func (s *Streams) observeRemote(sid StreamId) error {
	if sid.ServerInitiated() == (s.role == RoleServer) {
		return nil // locally initiated: only OpenBidi/OpenUni open these
	}
	outcome, err := s.ids.AcceptRemote(sid)
	if err != nil {
		return err
	}
	if outcome.Old {
		return nil
	}
	for _, id := range outcome.Opened {
		s.register(id, false)
		if id.Dir() == DirUni {
			select {
			case s.acceptUni <- id:
			default:
			}
		} else {
			select {
			case s.acceptBidi <- id:
			default:
			}
		}
	}
	return nil
}

// HandleStreamFrame applies an inbound STREAM frame, auto-opening the
// target stream (and every lower unopened ID in its quadrant) per
// spec.md section 3's monotonic-opening rule.
func (s *Streams) HandleStreamFrame(f StreamFrame) error {
	if f.ID.Dir() == DirUni && s.localOwnsSend(f.ID) {
		return newTransportError(KindStreamState, FrameTypeStream,
			"received STREAM frame for a send-only local unidirectional stream")
	}
	if err := s.observeRemote(f.ID); err != nil {
		return err
	}
	s.mu.Lock()
	recv := s.recvs[f.ID]
	s.mu.Unlock()
	if recv == nil {
		return ErrStreamNotFound
	}
	return recv.RecvData(f.Offset, f.Data, f.Fin)
}

func (s *Streams) localOwnsSend(id StreamId) bool {
	isLocal := (id.ServerInitiated() && s.role == RoleServer) || (!id.ServerInitiated() && s.role == RoleClient)
	return isLocal && id.Dir() == DirUni
}

// SendStreamByID looks up the send half of a stream, if this endpoint
// owns one.
func (s *Streams) SendStreamByID(id StreamId) (*SendStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sends[id]
	return v, ok
}

// RecvStreamByID looks up the recv half of a stream, if this endpoint
// owns one.
func (s *Streams) RecvStreamByID(id StreamId) (*RecvStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.recvs[id]
	return v, ok
}

// ConnSendFlow returns the connection-wide send flow budget (MAX_DATA).
func (s *Streams) ConnSendFlow() *SendFlow { return s.connSend }

// ConnRecvFlow returns the connection-wide recv flow budget (MAX_DATA).
func (s *Streams) ConnRecvFlow() *RecvFlow { return s.connRecv }

// IDs returns the underlying stream ID registry, for the control-frame
// dispatcher to apply MAX_STREAMS credit.
func (s *Streams) IDs() *StreamRegistry { return s.ids }

// Sendable returns the IDs of every send stream currently known, in a
// stable order, for the frame scheduler's round-robin cursor to walk.
func (s *Streams) Sendable() []StreamId {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]StreamId, 0, len(s.sends))
	for id := range s.sends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OnConnError marks every stream, and the ID registry, terminal.
func (s *Streams) OnConnError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = err
	sends := make([]*SendStream, 0, len(s.sends))
	for _, v := range s.sends {
		sends = append(sends, v)
	}
	recvs := make([]*RecvStream, 0, len(s.recvs))
	for _, v := range s.recvs {
		recvs = append(recvs, v)
	}
	s.mu.Unlock()

	s.ids.OnConnError(err)
	for _, v := range sends {
		v.OnConnError(err)
	}
	for _, v := range recvs {
		v.OnConnError(err)
	}
}
