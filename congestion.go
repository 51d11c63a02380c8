package quicmux

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// CongestionControl is the external collaborator seam of spec.md
// section 1: the scheduler consults it before packing a packet and
// reports back what it sent, but this package implements none of the
// actual congestion control algorithm (BBR, NewReno, ...). Grounded on
// original_source's qcongestion/src/lib.rs CongestionControl trait,
// trimmed to the subset the scheduler actually drives: whether budget is
// available to send, and post-send/ack bookkeeping.
type CongestionControl interface {
	// PollSend blocks until congestion control permits sending, or ctx is
	// done, returning the number of bytes currently permitted.
	PollSend(ctx context.Context) (int, error)
	// OnPktSent records that sentBytes were just sent.
	OnPktSent(sentBytes int, ackEliciting bool, inFlight bool)
	// OnAck records that ackedBytes were acknowledged, with rtt the latest
	// round-trip sample.
	OnAck(ackedBytes int, rtt time.Duration)
	// NeedAck reports whether the next outgoing packet should carry an ACK.
	NeedAck() bool
	// PTOTime returns the current probe-timeout duration.
	PTOTime() time.Duration
}

// PacedController is a minimal CongestionControl built on
// golang.org/x/time/rate: a token-bucket pacer standing in for the real
// algorithm, sufficient to exercise the scheduler's seam and for tests
// that don't care about loss-based window adjustment. A production
// deployment supplies its own CongestionControl (BBR/NewReno/Cubic);
// this is the teacher-idiom placeholder, not a transport-layer congestion
// controller.
type PacedController struct {
	limiter *rate.Limiter
	pto     time.Duration
}

// NewPacedController builds a PacedController permitting burst bytes per
// send and refilling at bytesPerSec.
func NewPacedController(bytesPerSec float64, burst int) *PacedController {
	return &PacedController{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		pto:     200 * time.Millisecond,
	}
}

func (p *PacedController) PollSend(ctx context.Context) (int, error) {
	if err := p.limiter.WaitN(ctx, 1); err != nil {
		return 0, err
	}
	return p.limiter.Burst(), nil
}

func (p *PacedController) OnPktSent(sentBytes int, ackEliciting bool, inFlight bool) {
	p.limiter.ReserveN(time.Now(), sentBytes)
}

func (p *PacedController) OnAck(ackedBytes int, rtt time.Duration) {
	if rtt > 0 {
		p.pto = 2 * rtt
	}
}

func (p *PacedController) NeedAck() bool { return false }

func (p *PacedController) PTOTime() time.Duration { return p.pto }

var _ CongestionControl = (*PacedController)(nil)
