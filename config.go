package quicmux

// Parameters holds the subset of RFC 9000 transport parameters this
// package's components consume, grounded on original_source's
// qbase/src/config.rs TransportParameters struct. Parsing/negotiating
// these from a peer's transport parameter extension is the handshake
// collaborator's job (spec.md section 1); this package only needs the
// negotiated values.
type Parameters struct {
	InitialMaxData                 uint64
	InitialMaxStreamDataBidiLocal   uint64
	InitialMaxStreamDataBidiRemote  uint64
	InitialMaxStreamDataUni         uint64
	InitialMaxStreamsBidi           uint64
	InitialMaxStreamsUni            uint64
	MaxDatagramFrameSize            uint64
	// StreamReceiveWindow sizes the sliding window used to decide when to
	// issue a fresh MAX_STREAM_DATA for every stream's receive half; it has
	// no RFC 9000 wire representation of its own and is a local policy
	// knob, the same role kInitialMaxStreamData played as a literal
	// constant in the teacher's stream.go.
	StreamReceiveWindow uint64
}

// DefaultParameters returns conservative defaults in the teacher's
// kInitialMaxData / kInitialMaxStreamData / kConcurrentStreamsBidi /
// kConcurrentStreamsUni spirit (connection.go), sized for the same
// "a handful of streams, a modest window" deployment profile.
func DefaultParameters() Parameters {
	return Parameters{
		InitialMaxData:                 1 << 20,
		InitialMaxStreamDataBidiLocal:  1 << 16,
		InitialMaxStreamDataBidiRemote: 1 << 16,
		InitialMaxStreamDataUni:        1 << 16,
		InitialMaxStreamsBidi:          100,
		InitialMaxStreamsUni:           100,
		MaxDatagramFrameSize:           0,
		StreamReceiveWindow:            1 << 16,
	}
}
