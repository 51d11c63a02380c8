package quicmux

import (
	"errors"
	"fmt"
)

// ErrorCode is an application or transport error code carried on
// RESET_STREAM / STOP_SENDING / CONNECTION_CLOSE frames.
type ErrorCode uint64

// TransportErrorKind classifies the protocol-level errors this package can
// raise. These map onto RFC 9000 section 20.1 transport error codes; we
// keep the mapping as a comment rather than a const block of wire values
// since wire-level CONNECTION_CLOSE encoding belongs to the packet codec,
// which is out of scope here.
type TransportErrorKind uint8

const (
	// KindStreamLimit: peer opened a stream ID beyond the advertised
	// max_streams. Wire code: STREAM_LIMIT_ERROR (0x04).
	KindStreamLimit TransportErrorKind = iota + 1
	// KindStreamState: a frame arrived for a stream in a state, or a
	// role/direction combination, that cannot legally produce it. Wire
	// code: STREAM_STATE_ERROR (0x05).
	KindStreamState
	// KindFlowControl: received data exceeded a stream or connection flow
	// window. Wire code: FLOW_CONTROL_ERROR (0x03).
	KindFlowControl
	// KindFinalSize: data conflicts with a previously fixed final size, or
	// RESET_STREAM contradicts observed bytes. Wire code:
	// FINAL_SIZE_ERROR (0x06).
	KindFinalSize
	// KindProtocolViolation: datagram max size reduced below a previously
	// observed value, or another malformed combination. Wire code:
	// PROTOCOL_VIOLATION (0x0a).
	KindProtocolViolation
)

func (k TransportErrorKind) String() string {
	switch k {
	case KindStreamLimit:
		return "STREAM_LIMIT_ERROR"
	case KindStreamState:
		return "STREAM_STATE_ERROR"
	case KindFlowControl:
		return "FLOW_CONTROL_ERROR"
	case KindFinalSize:
		return "FINAL_SIZE_ERROR"
	case KindProtocolViolation:
		return "PROTOCOL_VIOLATION"
	default:
		return "UNKNOWN_ERROR"
	}
}

// TransportError is a terminal, connection-scoped protocol error. Once a
// TransportError is recorded in a connection's error state, every public
// operation on its stream/datagram tables returns it unchanged rather than
// performing any further side effect. Application-facing readers/writers
// adopt the "broken pipe" framing required by spec.md section 7.
type TransportError struct {
	Kind      TransportErrorKind
	FrameType FrameType
	Reason    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v on %v: %s", e.Kind, e.FrameType, e.Reason)
}

func newTransportError(kind TransportErrorKind, ft FrameType, reason string) *TransportError {
	return &TransportError{Kind: kind, FrameType: ft, Reason: reason}
}

// BrokenPipeError is what application-facing readers/writers see once the
// connection has entered a terminal error state. It wraps the underlying
// TransportError so callers can still errors.As into it if they need the
// kind, while presenting a "broken pipe" message to less careful callers.
type BrokenPipeError struct {
	Underlying error
}

func (e *BrokenPipeError) Error() string {
	return fmt.Sprintf("broken pipe: %v", e.Underlying)
}

func (e *BrokenPipeError) Unwrap() error { return e.Underlying }

func brokenPipe(err error) error {
	if err == nil {
		return nil
	}
	return &BrokenPipeError{Underlying: err}
}

// StreamResetError is what RecvStream.Read returns once the application
// has observed a peer RESET_STREAM, carrying the application error code
// the peer supplied.
type StreamResetError struct {
	StreamID     StreamId
	AppErrorCode ErrorCode
}

func (e *StreamResetError) Error() string {
	return fmt.Sprintf("quicmux: stream %d reset by peer with code %d", e.StreamID, e.AppErrorCode)
}

// Sentinel errors used internally, in the same spirit as the teacher's
// ErrorWouldBlock / ErrorStreamIsClosed / ErrorConnIsClosed.
var (
	ErrWouldBlock     = errors.New("quicmux: would block")
	ErrStreamClosed   = errors.New("quicmux: stream is closed")
	ErrConnClosed     = errors.New("quicmux: connection is closed")
	ErrInvalidInput   = errors.New("quicmux: invalid input")
	ErrStreamNotFound = errors.New("quicmux: stream not found")
)

// assert panics on a genuine invariant violation — the same discipline the
// teacher uses (connection.go's bare `assert(...)` calls) for conditions
// that should be provably unreachable given correct internal bookkeeping,
// as opposed to errors arising from untrusted peer input (which always use
// TransportError instead).
func assert(cond bool, msg string) {
	if !cond {
		panic("quicmux: invariant violated: " + msg)
	}
}
