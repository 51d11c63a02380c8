package quicmux

import (
	"context"
	"sync"
)

// Role determines whether an endpoint is the client or server side of a
// connection, kept from the teacher's connection.go Role type.
type Role uint8

const (
	RoleClient Role = 1
	RoleServer Role = 2
)

// Direction is one of the two stream directions a StreamId quadrant
// encodes.
type Direction uint8

const (
	DirBidi Direction = 0
	DirUni  Direction = 1
)

func (d Direction) String() string {
	if d == DirUni {
		return "uni"
	}
	return "bidi"
}

// StreamId is a 62-bit stream identifier. Its two low bits encode which
// endpoint initiated it (client=0, server=1) and its direction
// (bidi=0, uni=1), per RFC 9000 section 2.1. IDs within a quadrant are
// monotonic: observing ID n implicitly opens every lower, not-yet-opened
// ID in the same quadrant (spec.md section 3).
type StreamId uint64

const (
	bitServerInitiated = uint64(0x1)
	bitUni             = uint64(0x2)
)

// ServerInitiated reports whether id was opened by the server.
func (id StreamId) ServerInitiated() bool { return uint64(id)&bitServerInitiated != 0 }

// Dir reports whether id is a bidirectional or unidirectional stream.
func (id StreamId) Dir() Direction {
	if uint64(id)&bitUni != 0 {
		return DirUni
	}
	return DirBidi
}

// Seq returns the ordinal of id within its quadrant: the 0-based count of
// how many streams in that quadrant were opened before it.
func (id StreamId) Seq() uint64 { return uint64(id) >> 2 }

func makeStreamID(seq uint64, serverInitiated bool, dir Direction) StreamId {
	var bits uint64
	if serverInitiated {
		bits |= bitServerInitiated
	}
	if dir == DirUni {
		bits |= bitUni
	}
	return StreamId(seq<<2 | bits)
}

// quadrantState is one of the four {local,remote} x {bidi,uni} partitions
// from spec.md's StreamLimits entity: a next-to-allocate counter and a
// peer- (for local) or self- (for remote) advertised maximum, plus the
// waiters blocked on a future MAX_STREAMS increase.
type quadrantState struct {
	next    uint64
	max     uint64
	waiters []chan struct{}
}

func (q *quadrantState) wakeAll() {
	for _, ch := range q.waiters {
		close(ch)
	}
	q.waiters = nil
}

// AcceptOutcome is the result of StreamRegistry.AcceptRemote: either the ID
// was already open (Old, idempotent re-observation) or it is New and
// carries every skipped ID in the quadrant that this observation implicitly
// opened, in increasing order, including sid itself.
type AcceptOutcome struct {
	Old     bool
	Opened  []StreamId
}

// StreamRegistry implements spec.md section 4.1: it tracks active stream
// IDs, allocates local IDs under the peer-advertised max_streams, and
// validates/auto-opens remote IDs up to our own advertised max_streams.
// It is the teacher's streamSet (connection.go) generalized to the full
// state machine described in spec.md rather than the teacher's untracked
// subset.
type StreamRegistry struct {
	role Role

	mu     sync.Mutex
	local  [2]quadrantState // indexed by Direction; limit is peer-advertised
	remote [2]quadrantState // indexed by Direction; limit is self-advertised

	closed   bool
	closeErr error
}

// NewStreamRegistry creates a registry for the given role with the local
// (our) advertised maximums for remote-initiated bidi/uni streams. The
// maximums we may allocate from (peer-advertised) start at zero and are
// raised by PermitMaxSID as MAX_STREAMS frames arrive.
func NewStreamRegistry(role Role, maxRemoteBidi, maxRemoteUni uint64) *StreamRegistry {
	r := &StreamRegistry{role: role}
	r.remote[DirBidi].max = maxRemoteBidi
	r.remote[DirUni].max = maxRemoteUni
	return r
}

// TryOpenLocal allocates the next unused local ID in the given direction
// if allocated < maximum. It returns ok == false, with no side effect, if
// the peer-advertised limit has not yet been raised far enough.
func (r *StreamRegistry) TryOpenLocal(dir Direction) (StreamId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	q := &r.local[dir]
	if q.next >= q.max {
		return 0, false
	}
	seq := q.next
	q.next++
	return makeStreamID(seq, r.role == RoleServer, dir), true
}

// OpenLocal allocates the next local ID in dir, blocking until the peer
// raises MAX_STREAMS(dir) far enough to permit it. Cancelling ctx before
// allocation releases no ID (spec.md section 5, Cancellation).
func (r *StreamRegistry) OpenLocal(ctx context.Context, dir Direction) (StreamId, error) {
	for {
		if id, ok := r.TryOpenLocal(dir); ok {
			return id, nil
		}

		r.mu.Lock()
		if r.closed {
			err := r.closeErr
			r.mu.Unlock()
			return 0, brokenPipe(err)
		}
		ch := make(chan struct{})
		q := &r.local[dir]
		q.waiters = append(q.waiters, ch)
		r.mu.Unlock()

		select {
		case <-ch:
			// Permit raised (or registry closed, which also wakes
			// waiters); loop to retry the allocation.
		case <-ctx.Done():
			r.removeWaiter(dir, ch)
			return 0, ctx.Err()
		}
	}
}

func (r *StreamRegistry) removeWaiter(dir Direction, target chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := &r.local[dir]
	for i, ch := range q.waiters {
		if ch == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// AcceptRemote validates and records an observed remote stream ID. The
// caller is responsible for checking sid's role against the connection's
// dispatch rules (spec.md section 4.6) before calling this; AcceptRemote
// only enforces the stream-count limit and the monotonic-opening
// invariant.
func (r *StreamRegistry) AcceptRemote(sid StreamId) (AcceptOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return AcceptOutcome{}, brokenPipe(r.closeErr)
	}

	dir := sid.Dir()
	q := &r.remote[dir]
	seq := sid.Seq()

	if seq >= q.max {
		return AcceptOutcome{}, newTransportError(KindStreamLimit, FrameTypeStream,
			"remote stream id exceeds advertised max_streams")
	}

	if seq < q.next {
		return AcceptOutcome{Old: true}, nil
	}

	opened := make([]StreamId, 0, seq-q.next+1)
	for s := q.next; s <= seq; s++ {
		opened = append(opened, makeStreamID(s, sid.ServerInitiated(), dir))
	}
	q.next = seq + 1
	return AcceptOutcome{Opened: opened}, nil
}

// PermitMaxSID processes a peer MAX_STREAMS(dir) frame. It is monotonic:
// decreases (an out-of-order or duplicate frame) are ignored.
func (r *StreamRegistry) PermitMaxSID(dir Direction, n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := &r.local[dir]
	if n <= q.max {
		return
	}
	q.max = n
	q.wakeAll()
}

// OnConnError marks the registry terminal: every OpenLocal waiter is woken
// with the terminal error, and subsequent operations return it without
// further side effects.
func (r *StreamRegistry) OnConnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.closeErr = err
	for d := range r.local {
		r.local[d].wakeAll()
	}
}
