package quicmux

import "sync"

// DefaultTokens is the per-round fairness budget each active stream
// receives from the scheduler before it must yield to the next stream in
// the round-robin order, grounded on original_source's
// qrecovery/src/streams/data.rs try_read_data (DEFAULT_TOKENS = 4096).
const DefaultTokens = 4096

// Scheduler is the frame scheduler of spec.md section 4.4: given a
// caller-owned packet buffer, it packs queued control frames first (they
// are cheap and latency-sensitive), then STREAM frames from active
// streams under a fair round-robin token budget, then at most one
// DATAGRAM frame if room remains. The teacher has no equivalent — its
// connection.go writes exactly one stream's queued chunks per call with
// no fairness policy — so this is built fresh from the spec and the
// Rust round-robin algorithm.
type Scheduler struct {
	mu sync.Mutex

	streams   *Streams
	datagrams *DatagramChannel

	ctlQueue []StreamCtlFrame
	cursor   int // index into the last Sendable() snapshot, for round-robin fairness
}

// NewScheduler builds a scheduler over the given stream table and
// datagram channel.
func NewScheduler(streams *Streams, datagrams *DatagramChannel) *Scheduler {
	return &Scheduler{streams: streams, datagrams: datagrams}
}

// SendFrame implements SendFrame[StreamCtlFrame]: the dispatcher and the
// stream state machines enqueue control frames here for the next
// PackFrames call to drain.
func (s *Scheduler) SendFrame(frames ...StreamCtlFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctlQueue = append(s.ctlQueue, frames...)
}

// Encoded is one frame already serialized by PackFrames, tagged with its
// type for ack-handling callers (the recovery layer) to route acks and
// losses back to the right component (spec.md section 6).
type Encoded struct {
	Type FrameType
	Data []byte
}

// PackFrames fills buf (from its current length up to cap(buf)) with as
// many frames as fit, returning the extended slice, a description of
// each frame written, and the number of fresh (non-retransmission)
// stream bytes it charged against flowLimit. flowLimit is the
// connection-level send flow budget currently available (spec.md
// section 4.4's "flow budget obtained from the flow controller"); the
// caller is expected to have read it from the connection's SendFlow and,
// after this call, Reserve the returned amount from that same SendFlow.
// Retransmissions never count against flowLimit, since those bytes were
// already charged the first time they were sent.
func (s *Scheduler) PackFrames(buf []byte, flowLimit uint64) ([]byte, []Encoded, uint64) {
	var encoded []Encoded
	var freshUsed uint64

	s.mu.Lock()
	for len(s.ctlQueue) > 0 {
		f := s.ctlQueue[0]
		n, ok := encodeCtlFrame(f)
		if !ok || len(buf)+len(n) > cap(buf) {
			break
		}
		buf = append(buf, n...)
		encoded = append(encoded, Encoded{Type: f.FrameType(), Data: n})
		s.ctlQueue = s.ctlQueue[1:]
	}
	s.mu.Unlock()

	ids := s.streams.Sendable()
	if len(ids) > 0 {
		start := s.cursor % len(ids)
		for i := 0; i < len(ids); i++ {
			id := ids[(start+i)%len(ids)]
			send, ok := s.streams.SendStreamByID(id)
			if !ok {
				continue
			}
			tokens := DefaultTokens
			for tokens > 0 {
				remaining := cap(buf) - len(buf)
				if remaining <= 0 {
					break
				}
				connBudget := int64(flowLimit) - int64(freshUsed)
				if connBudget < 0 {
					connBudget = 0
				}
				frame, form, padding, n, fresh, ok := send.TryRead(remaining, tokens, int(connBudget))
				if !ok {
					break
				}
				buf = frame.encodeForm(buf, form, padding)
				encoded = append(encoded, Encoded{Type: FrameTypeStream, Data: nil})
				if fresh {
					freshUsed += uint64(n)
				}
				tokens -= n
				if n == 0 {
					break
				}
			}
		}
		s.cursor = (start + 1) % len(ids)
	}

	if remaining := cap(buf) - len(buf); remaining > 0 && s.datagrams != nil {
		if frame, padding, ok := s.datagrams.TryReadDatagram(remaining); ok {
			for i := 0; i < padding; i++ {
				buf = append(buf, byte(FrameTypePadding))
			}
			buf = frame.encode(buf)
			encoded = append(encoded, Encoded{Type: frame.FrameType(), Data: nil})
		}
	}

	return buf, encoded, freshUsed
}

func encodeCtlFrame(f StreamCtlFrame) ([]byte, bool) {
	var buf []byte
	switch v := f.(type) {
	case ResetStreamFrame:
		buf = append(buf, byte(FrameTypeResetStream))
		buf = putVarint(buf, uint64(v.StreamID_))
		buf = putVarint(buf, uint64(v.AppErrorCode))
		buf = putVarint(buf, v.FinalSize)
	case StopSendingFrame:
		buf = append(buf, byte(FrameTypeStopSending))
		buf = putVarint(buf, uint64(v.StreamID_))
		buf = putVarint(buf, uint64(v.AppErrorCode))
	case MaxStreamDataFrame:
		buf = append(buf, byte(FrameTypeMaxStreamData))
		buf = putVarint(buf, uint64(v.StreamID_))
		buf = putVarint(buf, v.MaxStreamData)
	case MaxStreamsFrame:
		buf = append(buf, byte(v.FrameType()))
		buf = putVarint(buf, v.MaxStreams)
	case StreamDataBlockedFrame:
		buf = append(buf, byte(FrameTypeStreamDataBlkd))
		buf = putVarint(buf, uint64(v.StreamID_))
		buf = putVarint(buf, v.Limit)
	case StreamsBlockedFrame:
		buf = append(buf, byte(v.FrameType()))
		buf = putVarint(buf, v.Limit)
	default:
		return nil, false
	}
	return buf, true
}

var _ SendFrame[StreamCtlFrame] = (*Scheduler)(nil)
