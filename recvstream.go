package quicmux

import (
	"io"
	"sync"
)

// RecvState is the receive-side stream state machine of spec.md section
// 4.3, the full RFC 9000 section 3.2 state set (the teacher's
// recvStreamBase tracked only a subset of these).
type RecvState uint8

const (
	RecvRecv       RecvState = iota // still receiving, final size unknown
	RecvSizeKnown                   // FIN observed, final size fixed
	RecvDataRecvd                   // every byte up to final size has arrived
	RecvDataRead                    // application has read every byte
	RecvResetRecvd                  // peer reset the stream
	RecvResetRead                   // application observed the reset
)

func (s RecvState) String() string {
	switch s {
	case RecvRecv:
		return "Recv"
	case RecvSizeKnown:
		return "SizeKnown"
	case RecvDataRecvd:
		return "DataRecvd"
	case RecvDataRead:
		return "DataRead"
	case RecvResetRecvd:
		return "ResetRecvd"
	case RecvResetRead:
		return "ResetRead"
	default:
		return "Unknown"
	}
}

// RecvStream is the receive-side half of a stream, grounded on the
// teacher's recvStreamBase (stream.go) for its chunk reassembly and
// read-draining loop, and on original_source's qrecovery/src/streams/
// data.rs recv_data / recv_stream_control for final-size and reset
// validation the teacher never implemented.
type RecvStream struct {
	mu  sync.Mutex
	id  StreamId
	log loggingFunction

	state RecvState

	chunks       []byteRange
	readOffset   uint64 // next byte the application will read
	lastReceived uint64 // high-water mark of offset+len seen
	finalSize    uint64
	finalKnown   bool

	flow *RecvFlow

	pendingWindowUpdate uint64
	hasPendingUpdate    bool

	stopCode    *ErrorCode // peer RESET_STREAM's error code, set by RecvReset
	appStopCode *ErrorCode // local StopSending's error code; kept distinct from stopCode
	stopEmitted bool       // StopSending has already produced its frame

	closeErr error
}

// NewRecvStream constructs a recv stream advertising the given flow
// control window.
func NewRecvStream(id StreamId, log loggingFunction, flow *RecvFlow) *RecvStream {
	if log == nil {
		log = nullLogger()
	}
	return &RecvStream{id: id, log: log, state: RecvRecv, flow: flow}
}

// RecvData processes an inbound STREAM frame's payload. It validates the
// frame against the stream's flow control window and any previously fixed
// final size before reassembling it (spec.md section 4.3).
func (s *RecvStream) RecvData(offset uint64, data []byte, fin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == RecvResetRecvd || s.state == RecvResetRead {
		return nil // peer reset already terminated the stream; ignore stragglers
	}

	end := offset + uint64(len(data))
	if err := s.flow.OnData(offset, uint64(len(data))); err != nil {
		return err
	}

	if s.finalKnown && end > s.finalSize {
		return newTransportError(KindFinalSize, FrameTypeStream,
			"data extends beyond previously observed final size")
	}
	if fin {
		if s.finalKnown && s.finalSize != end {
			return newTransportError(KindFinalSize, FrameTypeStream,
				"FIN final size conflicts with a previous FIN")
		}
		s.finalSize = end
		s.finalKnown = true
	}

	if end > s.lastReceived {
		s.lastReceived = end
	}

	if len(data) > 0 {
		s.insertSorted(byteRange{start: offset, end: end, data: append([]byte(nil), data...)})
	}

	if s.finalKnown && s.state == RecvRecv {
		s.state = RecvSizeKnown
	}
	if s.finalKnown && s.readOffset >= s.finalSize {
		s.state = RecvDataRead
	} else if s.finalKnown && s.contiguousThrough(s.finalSize) {
		s.state = RecvDataRecvd
	}

	return nil
}

func (s *RecvStream) contiguousThrough(target uint64) bool {
	have := s.readOffset
	for _, c := range s.chunks {
		if c.start > have {
			return false
		}
		if c.end > have {
			have = c.end
		}
	}
	return have >= target
}

func (s *RecvStream) insertSorted(c byteRange) {
	n := len(s.chunks)
	if n == 0 || c.start >= s.chunks[n-1].start {
		s.chunks = append(s.chunks, c)
		return
	}
	i := 0
	for ; i < n; i++ {
		if c.start < s.chunks[i].start {
			break
		}
	}
	tmp := make([]byteRange, 0, n+1)
	tmp = append(tmp, s.chunks[:i]...)
	tmp = append(tmp, c)
	tmp = append(tmp, s.chunks[i:]...)
	s.chunks = tmp
}

// Read drains reassembled, in-order bytes into b, the same chunk-draining
// loop as the teacher's recvStreamBase.read.
func (s *RecvStream) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return 0, brokenPipe(s.closeErr)
	}

	read := 0
	for len(b) > 0 && len(s.chunks) > 0 {
		c := s.chunks[0]
		if c.start > s.readOffset {
			break // gap: nothing more contiguous to deliver yet
		}
		skip := s.readOffset - c.start
		if skip >= uint64(len(c.data)) {
			s.chunks = s.chunks[1:]
			continue
		}
		avail := c.data[skip:]
		n := copy(b, avail)
		s.readOffset += uint64(n)
		b = b[n:]
		read += n
		if uint64(n) == uint64(len(avail)) {
			s.chunks = s.chunks[1:]
		} else {
			s.chunks[0] = byteRange{start: c.start + skip + uint64(n), end: c.end, data: avail[n:]}
		}
	}

	if read > 0 {
		if newLimit, should := s.flow.OnRead(uint64(read)); should {
			s.pendingWindowUpdate = newLimit
			s.hasPendingUpdate = true
		}
	}

	if s.finalKnown && s.readOffset >= s.finalSize {
		s.state = RecvDataRead
	}

	if read == 0 {
		switch s.state {
		case RecvRecv, RecvSizeKnown:
			return 0, ErrWouldBlock
		case RecvDataRead:
			return 0, io.EOF
		case RecvResetRecvd, RecvResetRead:
			s.state = RecvResetRead
			if s.closeErr != nil {
				return 0, brokenPipe(s.closeErr)
			}
			code := ErrorCode(0)
			if s.stopCode != nil {
				code = *s.stopCode
			}
			return 0, &StreamResetError{StreamID: s.id, AppErrorCode: code}
		default:
			return 0, io.EOF
		}
	}
	return read, nil
}

// NeedUpdateWindow reports whether a MAX_STREAM_DATA frame should be sent
// since the last call, and the new limit to advertise if so.
func (s *RecvStream) NeedUpdateWindow() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasPendingUpdate {
		return 0, false
	}
	s.hasPendingUpdate = false
	return s.pendingWindowUpdate, true
}

// RecvReset processes an inbound RESET_STREAM frame.
func (s *RecvStream) RecvReset(finalSize uint64, code ErrorCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalKnown && s.finalSize != finalSize {
		return newTransportError(KindFinalSize, FrameTypeResetStream,
			"RESET_STREAM final size conflicts with previously observed data")
	}
	if finalSize < s.lastReceived {
		return newTransportError(KindFinalSize, FrameTypeResetStream,
			"RESET_STREAM final size smaller than data already received")
	}
	s.finalSize = finalSize
	s.finalKnown = true
	s.stopCode = &code
	s.state = RecvResetRecvd
	s.chunks = nil
	return nil
}

// IsStoppedByApp reports whether the application abandoned reading
// (StopSending was called) and, if so, the error code to send. It is
// gated on appStopCode specifically, not stopCode, so a peer-initiated
// RESET_STREAM (which also sets stopCode, via RecvReset) never makes
// this spuriously report a local app-initiated stop.
func (s *RecvStream) IsStoppedByApp() (ErrorCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appStopCode != nil {
		return *s.appStopCode, true
	}
	return 0, false
}

// StopSending abandons reading and requests that the peer stop sending,
// emitting a STOP_SENDING frame (spec.md section 4.3). It yields a frame
// exactly once: a repeat call, even before any state transition, returns
// ok == false since the first call already committed the app's decision
// to stop.
func (s *RecvStream) StopSending(code ErrorCode) (StopSendingFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case RecvDataRead, RecvResetRecvd, RecvResetRead:
		return StopSendingFrame{}, false
	}
	if s.stopEmitted {
		return StopSendingFrame{}, false
	}
	s.stopEmitted = true
	s.appStopCode = &code
	s.chunks = nil
	return StopSendingFrame{StreamID_: s.id, AppErrorCode: code}, true
}

// OnConnError marks the stream terminal due to a connection-wide error.
func (s *RecvStream) OnConnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr == nil {
		s.closeErr = err
	}
}

// State returns the current receive-side state.
func (s *RecvStream) State() RecvState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

var _ io.Reader = (*RecvStream)(nil)
