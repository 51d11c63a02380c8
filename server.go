package quicmux

import (
	"net"
	"sync"
)

// ServerHandler is notified when the router creates a new Connection,
// kept from the teacher's server.go ServerHandler interface.
type ServerHandler interface {
	// NewConnection is called once a new connection has been created.
	NewConnection(c *Connection)
}

// ConnectionRouter fans inbound packets out across a set of Connections
// by connection ID (falling back to remote address before the
// connection ID is known), generalizing the teacher's Server
// (addrTable/idTable) with the registration/revocation shape of
// original_source's qconnection/src/router.rs ArcRouter/RouterRegistry.
// Unlike the teacher's Server.Input, ConnectionRouter.Dispatch never
// touches raw packet bytes: extracting a destination connection ID from
// the wire is the packet parser's job (spec.md section 1's named
// external collaborator), so Dispatch takes the already-extracted ID.
//
// ConnectionRouter uses a plain map behind a mutex rather than a
// concurrent map type: original_source's router uses dashmap, but no Go
// concurrent-map library appears anywhere in the retrieval pack to
// ground an equivalent import on, and the router's hot path (one lookup
// plus occasional insert per packet) does not warrant inventing a
// dependency the corpus never reached for.
type ConnectionRouter struct {
	mu       sync.Mutex
	byAddr   map[string]*Connection
	byConnID map[string]*Connection

	handler      ServerHandler
	transFactory TransportFactory
	role         Role
	params       Parameters
	newCC        func() CongestionControl
}

// NewConnectionRouter creates a router that makes transports via factory
// and congestion controllers via newCC for each new Connection it
// accepts.
func NewConnectionRouter(role Role, params Parameters, factory TransportFactory, newCC func() CongestionControl, handler ServerHandler) *ConnectionRouter {
	return &ConnectionRouter{
		byAddr:       make(map[string]*Connection),
		byConnID:     make(map[string]*Connection),
		handler:      handler,
		transFactory: factory,
		role:         role,
		params:       params,
		newCC:        newCC,
	}
}

// SetHandler replaces the router's new-connection handler.
func (r *ConnectionRouter) SetHandler(h ServerHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Dispatch finds or creates the Connection for a packet's destination
// connection ID (falling back to its source address for the first packet
// of a new connection, before a connection ID has been assigned).
func (r *ConnectionRouter) Dispatch(connID string, addr *net.UDPAddr) (*Connection, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if connID != "" {
		if c, ok := r.byConnID[connID]; ok {
			return c, false, nil
		}
	}
	if c, ok := r.byAddr[addr.String()]; ok {
		return c, false, nil
	}

	transport, err := r.transFactory.MakeTransport(addr)
	if err != nil {
		return nil, false, err
	}
	c := NewConnection(r.role, r.params, r.newCC(), transport)
	r.byAddr[addr.String()] = c
	if connID != "" {
		r.byConnID[connID] = c
	}
	if r.handler != nil {
		r.handler.NewConnection(c)
	}
	return c, true, nil
}

// Register associates connID with an already-dispatched connection, for
// when the handshake assigns or changes the connection ID after the
// first packet (RFC 9000 section 5.1, and the same moment the teacher's
// Server.Input deferred table insertion for).
func (r *ConnectionRouter) Register(connID string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConnID[connID] = c
}

// Revoke removes a connection ID from the routing table, mirroring
// original_source's RevokeRouter: once a connection retires a connection
// ID (NEW_CONNECTION_ID / RETIRE_CONNECTION_ID), packets addressed to it
// should stop routing here.
func (r *ConnectionRouter) Revoke(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConnID, connID)
}

// ConnectionCount reports how many distinct connections are routable by
// connection ID or by remote address.
func (r *ConnectionRouter) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[*Connection]struct{}, len(r.byConnID))
	for _, c := range r.byConnID {
		seen[c] = struct{}{}
	}
	for _, c := range r.byAddr {
		seen[c] = struct{}{}
	}
	return len(seen)
}
