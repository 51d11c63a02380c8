package quicmux

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Watcher is the per-connection background task of SPEC_FULL.md's
// Domain Stack section. Run's goroutine group watches one event: the
// connection entering its terminal error state. Newly sendable data after
// a MAX_STREAM_DATA credit or a MAX_STREAMS increase wakes Notify() only
// through an explicit WakeOnCredit call; Run does not watch per-stream
// cancellation, stop or window events. The teacher's Connection drives everything from a
// synchronous Input()/CheckTimer() poll loop with no background
// goroutine; original_source's qrecovery background-watcher tasks
// (data.rs create_sender/create_recver) are the model for running this as
// an explicit task instead, which golang.org/x/sync/errgroup expresses
// idiomatically in Go.
type Watcher struct {
	streams   *Streams
	datagrams *DatagramChannel
	notify    chan struct{}
}

// NewWatcher builds a watcher over a connection's stream table and
// datagram channel.
func NewWatcher(streams *Streams, datagrams *DatagramChannel) *Watcher {
	return &Watcher{streams: streams, datagrams: datagrams, notify: make(chan struct{}, 1)}
}

// Notify returns a channel that receives a value whenever the watcher
// observes a condition worth re-running the scheduler for. It is
// buffered to size 1 and coalesces bursts, the same "wake, don't queue"
// policy as a Go context.Done() consumer.
func (w *Watcher) Notify() <-chan struct{} { return w.notify }

func (w *Watcher) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled or a fatal connection error occurs on
// connErr, in which case it propagates the error to every stream and the
// datagram channel (spec.md section 5's terminal error state) and wakes
// any scheduler waiting on Notify() one last time so it can observe the
// now-terminal tables and unwind. Cancelling ctx stops the watcher
// without itself being a connection error.
func (w *Watcher) Run(ctx context.Context, connErr <-chan error) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-connErr:
			if !ok {
				return nil
			}
			w.streams.OnConnError(err)
			w.datagrams.OnConnError(err)
			w.wake()
			return err
		}
	})

	return g.Wait()
}

// WakeOnCredit should be called by anything that raises a flow-control or
// stream-count limit (MAX_STREAM_DATA, MAX_DATA, MAX_STREAMS handling in
// the Dispatcher) so a scheduler blocked between packets notices newly
// sendable data without polling.
func (w *Watcher) WakeOnCredit() { w.wake() }
