package quicmux

import "sync"

// SendFlow tracks one direction of a flow-control budget on the sending
// side: how much has already been reserved against the peer's advertised
// limit, and the limit itself. The same type serves both the per-stream
// MAX_STREAM_DATA budget and the connection-wide MAX_DATA budget (spec.md
// section 4.2's "update_window" and section 5's aggregate accounting),
// mirroring how the teacher's flowControl fields track kInitialMaxData /
// kInitialMaxStreamData against bytes actually written.
type SendFlow struct {
	mu      sync.Mutex
	sent    uint64
	limit   uint64
	waiters []chan struct{}
}

// NewSendFlow creates a send-side flow budget starting at the given
// peer-advertised limit (e.g. the transport parameter's
// initial_max_stream_data_*, or initial_max_data).
func NewSendFlow(initialLimit uint64) *SendFlow {
	return &SendFlow{limit: initialLimit}
}

// Avail returns how many more bytes may currently be sent.
func (f *SendFlow) Avail() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.avail()
}

func (f *SendFlow) avail() uint64 {
	if f.sent >= f.limit {
		return 0
	}
	return f.limit - f.sent
}

// Reserve consumes up to want bytes of budget and returns how many it
// actually granted (0 <= got <= want). It never blocks; callers that need
// to wait for more budget should watch Wait() and retry.
func (f *SendFlow) Reserve(want uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	got := f.avail()
	if got > want {
		got = want
	}
	f.sent += got
	return got
}

// Credit raises the limit in response to a MAX_STREAM_DATA / MAX_DATA
// frame. It is monotonic: a frame that would lower the limit, reordered or
// duplicated on the wire, is ignored, and it wakes anyone blocked in Wait.
func (f *SendFlow) Credit(newLimit uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if newLimit <= f.limit {
		return
	}
	f.limit = newLimit
	for _, ch := range f.waiters {
		close(ch)
	}
	f.waiters = nil
}

// Wait returns a channel that closes the next time Credit raises the
// limit. Callers check Avail() again after it fires, since multiple
// waiters can race for the same new budget.
func (f *SendFlow) Wait() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	if f.avail() > 0 {
		close(ch)
		return ch
	}
	f.waiters = append(f.waiters, ch)
	return ch
}

// RecvFlow tracks one direction of a flow-control budget on the receiving
// side: data actually observed on the wire (which must never exceed the
// advertised limit), data delivered to the application, and when to issue
// a fresh MAX_STREAM_DATA / MAX_DATA frame as the application reads.
type RecvFlow struct {
	mu         sync.Mutex
	received   uint64 // high-water mark of offset+len seen
	consumed   uint64 // bytes delivered to the application
	limit      uint64 // locally advertised limit
	windowSize uint64 // step size for limit increases
}

// NewRecvFlow creates a recv-side flow budget that advertises
// windowSize bytes of room at a time.
func NewRecvFlow(windowSize uint64) *RecvFlow {
	return &RecvFlow{limit: windowSize, windowSize: windowSize}
}

// OnData records that data has been observed up to offset+len. It
// returns a FLOW_CONTROL_ERROR TransportError if that exceeds the
// currently advertised limit.
func (f *RecvFlow) OnData(offset, length uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := offset + length
	if end > f.limit {
		return newTransportError(KindFlowControl, FrameTypeStream,
			"received data beyond advertised flow control limit")
	}
	if end > f.received {
		f.received = end
	}
	return nil
}

// OnRead advances the consumed counter as the application drains data and
// reports whether a new MAX_STREAM_DATA / MAX_DATA frame should be sent,
// along with the new limit to advertise. It uses the common sliding-window
// policy: once consumed crosses half of the current window, slide the
// window forward by windowSize from consumed.
func (f *RecvFlow) OnRead(n uint64) (newLimit uint64, shouldSend bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed += n
	if f.windowSize == 0 {
		return 0, false
	}
	threshold := f.limit - f.windowSize/2
	if f.consumed < threshold {
		return 0, false
	}
	candidate := f.consumed + f.windowSize
	if candidate <= f.limit {
		return 0, false
	}
	f.limit = candidate
	return f.limit, true
}

// Limit returns the currently advertised limit.
func (f *RecvFlow) Limit() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}
