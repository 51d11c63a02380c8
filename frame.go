package quicmux

import "fmt"

// FrameType identifies the wire frame types this package produces or
// consumes. Only the frame bodies relevant to stream multiplexing and
// datagrams are modeled; the packet header / AEAD framing around them is
// the packet parser's job (out of scope, spec.md section 1).
type FrameType uint8

const (
	FrameTypeStream           FrameType = 0x08 // 0x08..0x0f, OFF/LEN/FIN bits
	FrameTypeResetStream      FrameType = 0x04
	FrameTypeStopSending      FrameType = 0x05
	FrameTypeMaxStreamData    FrameType = 0x11
	FrameTypeMaxStreamsBidi   FrameType = 0x12
	FrameTypeMaxStreamsUni    FrameType = 0x13
	FrameTypeStreamDataBlkd   FrameType = 0x15
	FrameTypeStreamsBlkdBidi  FrameType = 0x16
	FrameTypeStreamsBlkdUni   FrameType = 0x17
	FrameTypeDatagram         FrameType = 0x30
	FrameTypeDatagramWithLen  FrameType = 0x31
	FrameTypePadding          FrameType = 0x00
)

func (t FrameType) String() string {
	switch {
	case t >= 0x08 && t <= 0x0f:
		return "STREAM"
	case t == FrameTypeResetStream:
		return "RESET_STREAM"
	case t == FrameTypeStopSending:
		return "STOP_SENDING"
	case t == FrameTypeMaxStreamData:
		return "MAX_STREAM_DATA"
	case t == FrameTypeMaxStreamsBidi, t == FrameTypeMaxStreamsUni:
		return "MAX_STREAMS"
	case t == FrameTypeStreamDataBlkd:
		return "STREAM_DATA_BLOCKED"
	case t == FrameTypeStreamsBlkdBidi, t == FrameTypeStreamsBlkdUni:
		return "STREAMS_BLOCKED"
	case t == FrameTypeDatagram, t == FrameTypeDatagramWithLen:
		return "DATAGRAM"
	case t == FrameTypePadding:
		return "PADDING"
	default:
		return fmt.Sprintf("FRAME(0x%02x)", uint8(t))
	}
}

// StreamFrame is the body of a STREAM frame (RFC 9000 section 19.8): a
// type byte encoding {OFF, LEN, FIN}, an optional offset varint, an
// optional length varint, then raw data.
type StreamFrame struct {
	ID     StreamId
	Offset uint64
	Data   []byte
	Fin    bool
}

func (f StreamFrame) FrameType() FrameType { return FrameTypeStream }

// headerLen returns the encoded size of everything but the data, given
// whether the length field is carried.
func (f StreamFrame) headerLen(withLen bool) int {
	n := 1 // type byte
	n += varintLen(uint64(f.ID))
	if f.Offset != 0 {
		n += varintLen(f.Offset)
	}
	if withLen {
		n += varintLen(uint64(len(f.Data)))
	}
	return n
}

// encode appends the wire encoding of f (with or without the length field)
// to buf and returns the extended slice.
func (f StreamFrame) encode(buf []byte, withLen bool) []byte {
	typ := byte(FrameTypeStream)
	if f.Offset != 0 {
		typ |= 0x04 // OFF
	}
	if withLen {
		typ |= 0x02 // LEN
	}
	if f.Fin {
		typ |= 0x01 // FIN
	}
	buf = append(buf, typ)
	buf = putVarint(buf, uint64(f.ID))
	if f.Offset != 0 {
		buf = putVarint(buf, f.Offset)
	}
	if withLen {
		buf = putVarint(buf, uint64(len(f.Data)))
	}
	buf = append(buf, f.Data...)
	return buf
}

// encodeForm appends f to buf using the layout form and padding decided by
// planStreamFrame / SendStream.TryRead, so the scheduler never has to
// re-derive which header shape fits.
func (f StreamFrame) encodeForm(buf []byte, form streamFrameForm, padding int) []byte {
	switch form {
	case formPaddingThenNoLen:
		for i := 0; i < padding; i++ {
			buf = append(buf, byte(FrameTypePadding))
		}
		return f.encode(buf, false)
	case formWithLen:
		return f.encode(buf, true)
	default:
		return f.encode(buf, false)
	}
}

// streamFrameForm is the outcome of deciding how to lay a STREAM frame out
// in the remaining packet buffer, per spec.md section 4.2 / section 6.
type streamFrameForm int

const (
	formWithLen streamFrameForm = iota
	formNoLen
	formPaddingThenNoLen
)

// planStreamFrame decides the data length and length-field strategy for a
// STREAM frame on stream id for the chunk starting at offset, carrying up
// to min(budget, chunkAvail) bytes into a buffer of the given capacity. It
// implements spec.md section 4.2's try_read rule verbatim:
//
//	"if the frame sits at the end of the packet buffer, length MAY be
//	omitted (one-byte savings), otherwise length MUST be present; if
//	length would not fit but data would, pad first, then emit the
//	length-less frame as the final frame."
func planStreamFrame(id StreamId, capacity int, offset uint64, chunkAvail, budget int) (dataLen, padding int, form streamFrameForm, ok bool) {
	headerBase := 1 + varintLen(uint64(id))
	if offset != 0 {
		headerBase += varintLen(offset)
	}

	maxNoLen := capacity - headerBase
	if maxNoLen < 0 {
		return 0, 0, formNoLen, false
	}

	dataLen = budget
	if chunkAvail < dataLen {
		dataLen = chunkAvail
	}
	if maxNoLen < dataLen {
		dataLen = maxNoLen
	}
	if dataLen < 0 {
		dataLen = 0
	}
	if dataLen == 0 && chunkAvail != 0 {
		// Nothing fits at all (not even a single byte of a non-empty
		// chunk): refuse rather than emit a frame that carries no data
		// when data was actually expected.
		return 0, 0, formNoLen, false
	}

	noLenTotal := headerBase + dataLen
	withLenTotal := headerBase + varintLen(uint64(dataLen)) + dataLen

	switch {
	case dataLen == maxNoLen:
		// The frame, without a length field, exactly fills the buffer:
		// it sits at the end of the packet. Omit the length field.
		return dataLen, 0, formNoLen, true
	case withLenTotal <= capacity:
		// Room to carry an explicit length and still leave space in buf
		// for whatever the caller packs next.
		return dataLen, 0, formWithLen, true
	case noLenTotal <= capacity:
		// The length field would not fit, but the data would: pad first,
		// then emit the length-less frame as the final frame.
		return dataLen, capacity - noLenTotal, formPaddingThenNoLen, true
	default:
		return 0, 0, formNoLen, false
	}
}

// DatagramFrame is the body of a DATAGRAM frame (RFC 9221): type 0x30
// (no length) or 0x31 (with a length varint), then the payload.
type DatagramFrame struct {
	Data   []byte
	HasLen bool
}

func (f DatagramFrame) FrameType() FrameType {
	if f.HasLen {
		return FrameTypeDatagramWithLen
	}
	return FrameTypeDatagram
}

func (f DatagramFrame) encodingSize() int {
	n := 1
	if f.HasLen {
		n += varintLen(uint64(len(f.Data)))
	}
	return n + len(f.Data)
}

func (f DatagramFrame) encode(buf []byte) []byte {
	buf = append(buf, byte(f.FrameType()))
	if f.HasLen {
		buf = putVarint(buf, uint64(len(f.Data)))
	}
	buf = append(buf, f.Data...)
	return buf
}

// StreamCtlFrame is the union of the control frames the dispatcher routes:
// RESET_STREAM, STOP_SENDING, MAX_STREAM_DATA, MAX_STREAMS,
// STREAM_DATA_BLOCKED, STREAMS_BLOCKED.
type StreamCtlFrame interface {
	FrameType() FrameType
	StreamID() StreamId
}

type ResetStreamFrame struct {
	StreamID_    StreamId
	AppErrorCode ErrorCode
	FinalSize    uint64
}

func (f ResetStreamFrame) FrameType() FrameType { return FrameTypeResetStream }
func (f ResetStreamFrame) StreamID() StreamId   { return f.StreamID_ }

type StopSendingFrame struct {
	StreamID_    StreamId
	AppErrorCode ErrorCode
}

func (f StopSendingFrame) FrameType() FrameType { return FrameTypeStopSending }
func (f StopSendingFrame) StreamID() StreamId   { return f.StreamID_ }

type MaxStreamDataFrame struct {
	StreamID_     StreamId
	MaxStreamData uint64
}

func (f MaxStreamDataFrame) FrameType() FrameType { return FrameTypeMaxStreamData }
func (f MaxStreamDataFrame) StreamID() StreamId   { return f.StreamID_ }

type MaxStreamsFrame struct {
	Dir        Direction
	MaxStreams uint64
}

func (f MaxStreamsFrame) FrameType() FrameType {
	if f.Dir == DirUni {
		return FrameTypeMaxStreamsUni
	}
	return FrameTypeMaxStreamsBidi
}

// StreamID is not meaningful for a connection-scoped MAX_STREAMS frame;
// return the zero value so callers routing by StreamCtlFrame.StreamID
// never mistake this for a per-stream frame.
func (f MaxStreamsFrame) StreamID() StreamId { return 0 }

type StreamDataBlockedFrame struct {
	StreamID_ StreamId
	Limit     uint64
}

func (f StreamDataBlockedFrame) FrameType() FrameType { return FrameTypeStreamDataBlkd }
func (f StreamDataBlockedFrame) StreamID() StreamId   { return f.StreamID_ }

type StreamsBlockedFrame struct {
	Dir   Direction
	Limit uint64
}

func (f StreamsBlockedFrame) FrameType() FrameType {
	if f.Dir == DirUni {
		return FrameTypeStreamsBlkdUni
	}
	return FrameTypeStreamsBlkdBidi
}
func (f StreamsBlockedFrame) StreamID() StreamId { return 0 }

// SendFrame is the collaborator interface named in spec.md section 6: a
// sink that enqueues a control frame of kind F for future emission by the
// packetizer. The teacher's connection.go plays this role with its
// outputClearQ/outputProtectedQ queues and sendFrame method; we keep the
// same shape as a generic interface so stream-level code never needs a
// back-reference to a concrete Connection (spec.md section 9's "cyclic
// back-references" note).
type SendFrame[F any] interface {
	SendFrame(frames ...F)
}

// ReceiveFrame is the dual: a collaborator that accepts a decoded frame
// and returns its semantic output (or an error).
type ReceiveFrame[F any, O any] interface {
	RecvFrame(frame F) (O, error)
}
