package quicmux

// Handshake is the cryptographic handshake collaborator named in spec.md
// section 1: this package needs only the transport parameters it
// negotiates, not the handshake itself. Grounded on the teacher's tls.go
// TlsConfig/tlsConn shape (a config object plus a per-connection driver),
// generalized into an interface so a real implementation (TLS 1.3 via
// crypto/tls, once it grows QUIC transport-parameter extension support,
// or a dedicated QUIC-TLS library) can be substituted without this
// package depending on its wire format.
//
// The teacher's only third-party dependency, github.com/bifurcation/mint,
// is deliberately not carried forward: no source for it is present
// anywhere in the retrieval pack to ground an adaptation against, it
// targets a pre-final, pre-RFC 9000 draft of QUIC-TLS (ALPN token
// "hq-11"), and the handshake is out of scope for this package regardless
// (spec.md section 1).
type Handshake interface {
	// Advance feeds in handshake bytes received from the peer and returns
	// bytes to send in response, if any.
	Advance(input []byte) ([]byte, error)
	// Done reports whether the handshake has completed.
	Done() bool
	// PeerParameters returns the transport parameters the peer advertised,
	// once Done reports true.
	PeerParameters() (Parameters, bool)
}
