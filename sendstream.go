package quicmux

import (
	"io"
	"sync"
)

// SendState is the send-side stream state machine of spec.md section 4.2,
// a renaming of the teacher's SendStreamState onto the full RFC 9000
// section 3.1 state set (the teacher tracked only a subset).
type SendState uint8

const (
	SendReady      SendState = iota // no data queued yet
	SendSending                     // data queued/in flight; FIN, if queued, not yet sent
	SendDataSent                    // all data (incl. FIN) queued/sent, awaiting ack
	SendDataRecvd                   // peer has acked every byte including FIN
	SendResetSent                   // RESET_STREAM queued/sent, awaiting ack
	SendResetRecvd                  // peer has acked the RESET_STREAM
)

func (s SendState) String() string {
	switch s {
	case SendReady:
		return "Ready"
	case SendSending:
		return "Sending"
	case SendDataSent:
		return "DataSent"
	case SendDataRecvd:
		return "DataRecvd"
	case SendResetSent:
		return "ResetSent"
	case SendResetRecvd:
		return "ResetRecvd"
	default:
		return "Unknown"
	}
}

// byteRange is a half-open [Start, End) span of stream-offset bytes,
// used for queued-but-unsent chunks, sent-but-unacked/loss-marked
// retained data, and pure ack-coverage bookkeeping.
type byteRange struct {
	start uint64
	end   uint64
	data  []byte // empty for pure bookkeeping ranges (ack coverage only)
}

// SendStream is the send-side half of a stream, grounded on the teacher's
// sendStreamBase (stream.go) for its layering and logging discipline, and
// on original_source's qrecovery/src/send/outgoing.rs for the exact
// state transitions and retransmission ("may_loss_data") semantics.
type SendStream struct {
	mu  sync.Mutex
	id  StreamId
	log loggingFunction

	state SendState

	queued      []byteRange // not yet handed to try_read
	writeOffset uint64      // end of everything ever queued

	inFlight []byteRange // sent, not yet acked; data retained in case of loss
	lost     []byteRange // loss-marked, data retained; drained oldest-offset-first by try_read

	ackedRanges []byteRange // disjoint, merged, ordered by start — the real ack_ranges set

	finOffset  uint64
	finQueued  bool
	finAcked   bool

	flow *SendFlow

	resetCode *ErrorCode

	cancelOnce sync.Once
	cancelCh   chan struct{}

	closeErr error
}

// NewSendStream constructs a send stream with the given peer-advertised
// initial flow control window.
func NewSendStream(id StreamId, log loggingFunction, flow *SendFlow) *SendStream {
	if log == nil {
		log = nullLogger()
	}
	return &SendStream{
		id:       id,
		log:      log,
		state:    SendReady,
		flow:     flow,
		cancelCh: make(chan struct{}),
	}
}

// Write queues data for later emission. It never blocks; flow control is
// applied lazily in TryRead.
func (s *SendStream) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return 0, brokenPipe(s.closeErr)
	}
	switch s.state {
	case SendReady:
		s.state = SendSending
	case SendSending:
		// ok
	default:
		return 0, ErrStreamClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	cp := append([]byte(nil), data...)
	s.queued = append(s.queued, byteRange{start: s.writeOffset, end: s.writeOffset + uint64(len(cp)), data: cp})
	s.writeOffset += uint64(len(cp))
	s.log(logTypeStream, "stream %d: queued %d bytes at offset %d", s.id, len(cp), s.writeOffset-uint64(len(cp)))
	return len(cp), nil
}

// Close marks the stream finished: a FIN will be emitted once all queued
// data has been sent.
func (s *SendStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SendReady, SendSending:
		s.finOffset = s.writeOffset
		s.finQueued = true
		if len(s.queued) == 0 && s.ackedThrough() >= s.writeOffset {
			s.state = SendDataSent
		} else {
			s.state = SendSending
		}
	default:
		// no-op: already closing/closed/reset
	}
	return nil
}

// TryRead packs up to capacity bytes (subject to the per-stream send
// budget, the caller-supplied scheduler budget, and connBudget, the
// connection-level flow budget still available to fresh bytes this
// round) into a STREAM frame, the spec.md section 4.2 try_read
// operation. Loss-marked ranges are drained oldest-offset-first before
// any fresh byte is considered, matching original_source's
// qrecovery/src/send/outgoing.rs priority; retransmissions are exempt
// from connBudget since those bytes were already charged to the
// connection's flow budget the first time they were sent. The final
// bool return is ok; the one before it, fresh, tells the caller whether
// dataLen bytes should be charged against its own flow budget (true for
// newly queued bytes, false for a retransmission).
func (s *SendStream) TryRead(capacity int, budget int, connBudget int) (frame StreamFrame, form streamFrameForm, padding int, dataLen int, fresh bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SendSending && s.state != SendReady {
		return StreamFrame{}, formNoLen, 0, 0, false, false
	}

	if len(s.lost) > 0 {
		return s.tryReadLost(capacity, budget)
	}

	if len(s.queued) == 0 {
		if s.finQueued && !s.finAcked {
			// Pure FIN frame with no data.
			f, form, padding, n, ok := s.emitFin(capacity)
			return f, form, padding, n, false, ok
		}
		return StreamFrame{}, formNoLen, 0, 0, false, false
	}

	chunk := s.queued[0]
	avail := uint64(budget)
	if f := s.flow.Avail(); f < avail {
		avail = f
	}
	if c := uint64(connBudget); c < avail {
		avail = c
	}
	chunkAvail := chunk.end - chunk.start
	if avail < chunkAvail {
		chunkAvail = avail
	}
	if chunkAvail == 0 {
		// No budget, flow control credit, or connection flow budget
		// available right now.
		return StreamFrame{}, formNoLen, 0, 0, false, false
	}

	dLen, pad, frm, ok := planStreamFrame(s.id, capacity, chunk.start, int(chunkAvail), int(avail))
	if !ok || dLen == 0 {
		return StreamFrame{}, formNoLen, 0, 0, false, false
	}
	s.flow.Reserve(uint64(dLen))

	data := chunk.data[:dLen]
	fin := false
	if s.finQueued && chunk.start+uint64(dLen) == s.finOffset && dLen == int(chunkAvail) {
		fin = true
	}

	f := StreamFrame{ID: s.id, Offset: chunk.start, Data: data, Fin: fin}
	sent := append([]byte(nil), data...)
	s.inFlight = append(s.inFlight, byteRange{start: chunk.start, end: chunk.start + uint64(dLen), data: sent})

	if dLen == int(chunk.end-chunk.start) {
		s.queued = s.queued[1:]
	} else {
		s.queued[0] = byteRange{start: chunk.start + uint64(dLen), end: chunk.end, data: chunk.data[dLen:]}
	}

	if fin && len(s.queued) == 0 {
		s.state = SendDataSent
	}

	s.log(logTypeStream, "stream %d: try_read emitted %d bytes at offset %d fin=%v", s.id, dLen, f.Offset, fin)
	return f, frm, pad, dLen, true, true
}

// tryReadLost drains the oldest loss-marked range first, as spec.md
// section 4.2 requires. It never reserves new flow-control credit and
// is never charged against the connection's flow budget: these bytes
// occupied that budget the first time TryRead sent them.
func (s *SendStream) tryReadLost(capacity int, budget int) (StreamFrame, streamFrameForm, int, int, bool, bool) {
	chunk := s.lost[0]
	avail := uint64(budget)
	chunkAvail := chunk.end - chunk.start
	if avail < chunkAvail {
		chunkAvail = avail
	}
	if chunkAvail == 0 {
		return StreamFrame{}, formNoLen, 0, 0, false, false
	}

	dataLen, padding, form, ok := planStreamFrame(s.id, capacity, chunk.start, int(chunkAvail), int(chunkAvail))
	if !ok || dataLen == 0 {
		return StreamFrame{}, formNoLen, 0, 0, false, false
	}

	data := chunk.data[:dataLen]
	fin := false
	if s.finQueued && len(s.queued) == 0 && chunk.start+uint64(dataLen) == s.finOffset && dataLen == int(chunkAvail) {
		fin = true
	}

	frame := StreamFrame{ID: s.id, Offset: chunk.start, Data: data, Fin: fin}
	sent := append([]byte(nil), data...)
	s.inFlight = append(s.inFlight, byteRange{start: chunk.start, end: chunk.start + uint64(dataLen), data: sent})

	if dataLen == int(chunk.end-chunk.start) {
		s.lost = s.lost[1:]
	} else {
		s.lost[0] = byteRange{start: chunk.start + uint64(dataLen), end: chunk.end, data: chunk.data[dataLen:]}
	}

	if fin && len(s.lost) == 0 && len(s.queued) == 0 {
		s.state = SendDataSent
	}

	s.log(logTypeStream, "stream %d: try_read retransmitted %d bytes at offset %d fin=%v", s.id, dataLen, frame.Offset, fin)
	return frame, form, padding, dataLen, false, true
}

func (s *SendStream) emitFin(capacity int) (StreamFrame, streamFrameForm, int, int, bool) {
	headerBase := 1 + varintLen(uint64(s.id))
	if s.finOffset != 0 {
		headerBase += varintLen(s.finOffset)
	}
	if headerBase > capacity {
		return StreamFrame{}, formNoLen, 0, 0, false
	}
	form := formWithLen
	if headerBase+varintLen(0) > capacity {
		// Only the length-less form fits, and it fills the buffer exactly.
		form = formNoLen
	}
	s.state = SendDataSent
	return StreamFrame{ID: s.id, Offset: s.finOffset, Data: nil, Fin: true}, form, 0, 0, true
}

// OnDataAcked processes an acknowledgment for [offset, offset+length),
// merging it into the disjoint acked_ranges set rather than a single
// high-watermark: an out-of-order ack of a non-zero-offset range must
// not, by itself, satisfy the fin_offset coverage check while
// [0, offset) remains unacked (spec.md section 3's DataRecvd
// invariant). Once every queued byte plus the FIN has been acked, the
// stream transitions to DataRecvd.
func (s *SendStream) OnDataAcked(offset, length uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if length == 0 {
		return
	}
	end := offset + length

	if r, ok := removeExactRange(s.inFlight, offset, end); ok {
		s.inFlight = r
	} else if r, ok := removeExactRange(s.lost, offset, end); ok {
		// An ack can arrive for a range already marked lost (the loss
		// detector guessed wrong, or the retransmit and the original
		// both reached the peer); cancel the now-unnecessary
		// retransmission.
		s.lost = r
	}

	s.ackedRanges = insertMergedRange(s.ackedRanges, offset, end)

	if s.finQueued && s.ackedThrough() >= s.finOffset {
		s.finAcked = true
	}
	if (s.state == SendDataSent || s.state == SendSending) && s.finAcked && len(s.queued) == 0 {
		// Every byte in [0, finOffset) is acked: whatever sent or
		// loss-marked ranges are still tracked need no retransmission.
		s.inFlight = nil
		s.lost = nil
		s.state = SendDataRecvd
	}
}

// ackedThrough returns the contiguous count of bytes acked starting at
// offset 0, the quantity spec.md section 3 actually requires reach
// fin_offset before a stream may enter DataRecvd.
func (s *SendStream) ackedThrough() uint64 {
	have := uint64(0)
	for _, r := range s.ackedRanges {
		if r.start > have {
			break
		}
		if r.end > have {
			have = r.end
		}
	}
	return have
}

func removeExactRange(ranges []byteRange, start, end uint64) ([]byteRange, bool) {
	for i, r := range ranges {
		if r.start == start && r.end == end {
			return append(ranges[:i:i], ranges[i+1:]...), true
		}
	}
	return ranges, false
}

// insertMergedRange inserts [start, end) into a sorted, merged set of
// disjoint ranges, coalescing it with any overlapping or adjacent
// neighbors. Grounded on recvstream.go's insertSorted, generalized to
// also merge rather than just order, since ack ranges (unlike recv
// chunks) need to collapse to track contiguous coverage cheaply.
func insertMergedRange(ranges []byteRange, start, end uint64) []byteRange {
	i := 0
	for ; i < len(ranges); i++ {
		if start < ranges[i].start {
			break
		}
	}
	merged := make([]byteRange, 0, len(ranges)+1)
	merged = append(merged, ranges[:i]...)
	merged = append(merged, byteRange{start: start, end: end})
	merged = append(merged, ranges[i:]...)

	out := merged[:1]
	for _, r := range merged[1:] {
		last := &out[len(out)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// MayLossData marks a previously sent range as lost, moving its
// retained bytes from inFlight into the loss queue so a future TryRead
// retransmits them oldest-offset-first (spec.md section 4.2).
func (s *SendStream) MayLossData(offset, length uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if length == 0 {
		return
	}
	end := offset + length
	var keep []byteRange
	for _, r := range s.inFlight {
		lo, hi := max(r.start, offset), min(r.end, end)
		if lo >= hi {
			keep = append(keep, r)
			continue
		}
		if r.start < lo {
			keep = append(keep, byteRange{start: r.start, end: lo, data: r.data[:lo-r.start]})
		}
		if hi < r.end {
			keep = append(keep, byteRange{start: hi, end: r.end, data: r.data[hi-r.start:]})
		}
		s.lost = insertLostRange(s.lost, byteRange{start: lo, end: hi, data: r.data[lo-r.start : hi-r.start]})
	}
	s.inFlight = keep
	if s.state == SendDataSent {
		s.state = SendSending
	}
}

// insertLostRange keeps the loss queue ordered by offset so try_read
// always retransmits the oldest loss first.
func insertLostRange(lost []byteRange, r byteRange) []byteRange {
	i := 0
	for ; i < len(lost); i++ {
		if r.start < lost[i].start {
			break
		}
	}
	out := make([]byteRange, 0, len(lost)+1)
	out = append(out, lost[:i]...)
	out = append(out, r)
	out = append(out, lost[i:]...)
	return out
}

// Stop abandons sending in response to local app cancellation or a peer
// STOP_SENDING, queuing a RESET_STREAM with the given application error
// code (spec.md section 4.2's stop / cancel operation).
func (s *SendStream) Stop(code ErrorCode) (ResetStreamFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SendResetSent, SendResetRecvd, SendDataRecvd:
		return ResetStreamFrame{}, false
	}
	s.resetCode = &code
	s.state = SendResetSent
	s.queued = nil
	s.inFlight = nil
	s.lost = nil
	s.signalCancelled()
	return ResetStreamFrame{StreamID_: s.id, AppErrorCode: code, FinalSize: s.writeOffset}, true
}

// OnResetAcked processes acknowledgment of the queued RESET_STREAM.
func (s *SendStream) OnResetAcked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SendResetSent {
		s.state = SendResetRecvd
	}
}

// OnConnError marks the stream terminal due to a connection-wide error.
func (s *SendStream) OnConnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return
	}
	s.closeErr = err
	s.signalCancelled()
}

func (s *SendStream) signalCancelled() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Cancelled returns a channel that closes once the stream is reset
// (locally or via connection error), letting a caller select on
// cancellation instead of polling.
func (s *SendStream) Cancelled() <-chan struct{} { return s.cancelCh }

// State returns the current send-side state.
func (s *SendStream) State() SendState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

var _ io.Writer = (*SendStream)(nil)
