package quicmux

import "sync"

// DatagramChannel is the unreliable, unordered datagram channel of
// spec.md section 4.5 (RFC 9221), grounded on original_source's
// qunreliable/src/writer.rs RawDatagramWriter/DatagramWriter for the
// padding-first encoding algorithm and the monotonic remote-max-size
// bookkeeping; the teacher repo predates RFC 9221 and has no equivalent.
type DatagramChannel struct {
	mu sync.Mutex

	queue [][]byte

	remoteMax uint64 // 0 until the peer's max_datagram_frame_size transport parameter arrives
	sawRemote bool

	state ErrState
}

// NewDatagramChannel creates a channel. remoteMax is the peer's
// max_datagram_frame_size transport parameter, or 0 if datagrams are not
// supported by the peer yet.
func NewDatagramChannel(remoteMax uint64) *DatagramChannel {
	return &DatagramChannel{remoteMax: remoteMax, sawRemote: remoteMax != 0}
}

// SendBytes enqueues data whole: DATAGRAM frames are never fragmented, so
// data larger than the peer's advertised max_datagram_frame_size is
// rejected outright rather than split.
func (d *DatagramChannel) SendBytes(data []byte) error {
	if err := d.state.Err(); err != nil {
		return brokenPipe(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.remoteMax == 0 {
		return newTransportError(KindProtocolViolation, FrameTypeDatagram,
			"peer has not advertised datagram support")
	}
	if 1+uint64(len(data)) > d.remoteMax {
		return ErrInvalidInput
	}
	d.queue = append(d.queue, append([]byte(nil), data...))
	return nil
}

// TryReadDatagram packs the next queued datagram into a buffer of the
// given capacity. Per the padding-first algorithm: if the datagram (with
// its length field) fits, it is emitted with a length so later frames can
// follow it in the same packet; if it only fits without a length field,
// it is emitted length-less as the packet's final frame, and the caller
// is told how many PADDING bytes to emit first to push it flush against
// the end of the buffer.
func (d *DatagramChannel) TryReadDatagram(capacity int) (frame DatagramFrame, padding int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return DatagramFrame{}, 0, false
	}
	data := d.queue[0]

	withLen := DatagramFrame{Data: data, HasLen: true}
	if withLen.encodingSize() <= capacity {
		d.queue = d.queue[1:]
		return withLen, 0, true
	}

	noLen := DatagramFrame{Data: data, HasLen: false}
	noLenSize := noLen.encodingSize()
	if noLenSize <= capacity {
		d.queue = d.queue[1:]
		return noLen, capacity - noLenSize, true
	}

	return DatagramFrame{}, 0, false
}

// UpdateRemoteMaxDatagramFrameSize records the peer's
// max_datagram_frame_size. It is monotonic: since RFC 9221 transport
// parameters are negotiated once, a second call observing a smaller value
// than the first indicates a malformed or conflicting parameter set.
func (d *DatagramChannel) UpdateRemoteMaxDatagramFrameSize(n uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sawRemote && n < d.remoteMax {
		return newTransportError(KindProtocolViolation, FrameTypeDatagram,
			"max_datagram_frame_size decreased from a previously observed value")
	}
	d.remoteMax = n
	d.sawRemote = true
	return nil
}

// OnConnError marks the channel terminal.
func (d *DatagramChannel) OnConnError(err error) {
	if !d.state.Fail(err) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = nil
}
