package quicmux

import (
	"fmt"
	"net"
)

// UdpTransport is the concrete Transport backed by a bound *net.UDPConn,
// kept from the teacher's udp_transport.go with its logf call replaced by
// the logrus-backed loggingFunction (logging.go) and a Close added to
// satisfy the generalized Transport interface.
type UdpTransport struct {
	log loggingFunction
	u   *net.UDPConn
	r   *net.UDPAddr
}

// Send writes p to the transport's bound remote address.
func (t *UdpTransport) Send(p []byte) error {
	t.log(logTypeConn, "sending message of len %v to %v", len(p), t.r)
	n, err := t.u.WriteToUDP(p, t.r)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("quicmux: incomplete write: wrote %d of %d bytes", n, len(p))
	}
	return nil
}

// Close is a no-op: the underlying *net.UDPConn is shared across every
// Transport a UdpTransportFactory has produced, so only the factory's
// owner closes it.
func (t *UdpTransport) Close() error { return nil }

func NewUdpTransport(log loggingFunction, u *net.UDPConn, r *net.UDPAddr) *UdpTransport {
	if log == nil {
		log = nullLogger()
	}
	return &UdpTransport{log: log, u: u, r: r}
}

// UdpTransportFactory makes UdpTransports sharing a single bound socket,
// one per remote address, the way a QUIC server fans one listening socket
// out across many connections.
type UdpTransportFactory struct {
	log   loggingFunction
	local *net.UDPConn
}

func (f *UdpTransportFactory) MakeTransport(remote *net.UDPAddr) (Transport, error) {
	f.log(logTypeConn, "making transport with remote addr %v", remote)
	return NewUdpTransport(f.log, f.local, remote), nil
}

func NewUdpTransportFactory(log loggingFunction, sock *net.UDPConn) *UdpTransportFactory {
	if log == nil {
		log = nullLogger()
	}
	return &UdpTransportFactory{log: log, local: sock}
}

var _ Transport = (*UdpTransport)(nil)
var _ TransportFactory = (*UdpTransportFactory)(nil)
