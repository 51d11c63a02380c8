package quicmux

import "sync"

// ErrState is the Either[Healthy, Terminal] wrapper of spec.md section 5:
// once a connection-scoped component observes a terminal error, every
// later operation should see the same error without re-running whatever
// produced it. It is the shared primitive behind the closed/closeErr
// field pairs scattered through StreamRegistry, SendStream, RecvStream,
// and Streams — each of those predates this type and inlines the same
// two fields under its own mutex, which already serializes the rest of
// their state; DatagramChannel uses ErrState directly since it has no
// other state needing the same lock.
type ErrState struct {
	mu  sync.Mutex
	err error
}

// Fail records err as terminal if nothing was recorded yet, and reports
// whether this call is the one that did so.
func (e *ErrState) Fail(err error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return false
	}
	e.err = err
	return true
}

// Err returns the recorded terminal error, or nil if still healthy.
func (e *ErrState) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
