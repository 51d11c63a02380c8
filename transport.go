package quicmux

import "net"

// UdpPacket describes a UDP packet crossing the wire boundary.
type UdpPacket struct {
	DestAddr *net.UDPAddr
	SrcAddr  *net.UDPAddr
	Data     []byte
}

// Transport is the UDP socket abstraction named as an external
// collaborator in spec.md section 1: Connection.SendPacket hands it
// fully-framed packets and never touches a net.UDPConn directly, so
// tests can swap in an in-memory transport the way the teacher's tests
// do. Kept from the teacher's transport.go with a Close added, since a
// per-connection Transport (unlike the teacher's single long-lived
// factory-bound socket) needs an explicit teardown hook once a
// connection's close path releases it.
type Transport interface {
	// Send writes a packet.
	Send([]byte) error
	// Close releases any resources bound to this transport.
	Close() error
}

// TransportFactory makes transports bound to a specific remote address.
type TransportFactory interface {
	// MakeTransport makes a transport object bound to remote.
	MakeTransport(remote *net.UDPAddr) (Transport, error)
}
