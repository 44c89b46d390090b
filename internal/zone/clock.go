package zone

import (
	"context"
	"time"
)

// ClockSource is what drives a routing-zone worker's tick cadence (spec
// §4.3 "clock source selection"). Wait blocks until the next tick should
// run, or ctx is cancelled first.
type ClockSource interface {
	Wait(ctx context.Context) error
}

// providedClock drives a Provided-clock sink: the bar owns the timing, so
// ticks come from a monotonic ticker sized from the sink's own rate and
// period (spec §4.3: "Provided... a monotonic timer derived from the
// sink's rate and period size").
type providedClock struct {
	period time.Duration
	ticker *time.Ticker
}

// NewProvidedClock builds the ClockSource for a Provided-clock sink with
// the given sample rate and period size.
func NewProvidedClock(sampleRate, periodSize int) ClockSource {
	return &providedClock{
		period: time.Duration(periodSize) * time.Second / time.Duration(sampleRate),
	}
}

func (c *providedClock) Wait(ctx context.Context) error {
	if c.ticker == nil {
		c.ticker = time.NewTicker(c.period)
	}
	select {
	case <-ctx.Done():
		c.ticker.Stop()
		return ctx.Err()
	case <-c.ticker.C:
		return nil
	}
}

// SignalClock drives a Received/ReceivedAsync sink: the endpoint itself
// owns timing, and the worker ticks whenever the sink reports its own
// period-complete signal (spec §4.3: "Received... driven by the sink's own
// period-complete notification"). Signal is called by whatever stands in
// for the endpoint — a probe, a test, or a platform shim.
type SignalClock struct {
	signal chan struct{}
}

// NewSignalClock creates a SignalClock with its notify channel buffered to
// one pending tick, so a burst of signals never blocks the notifier.
func NewSignalClock() *SignalClock {
	return &SignalClock{signal: make(chan struct{}, 1)}
}

// Signal reports that the sink has completed a period and the worker
// should run its next tick. Non-blocking: a signal arriving while one is
// already pending is coalesced, matching a real period-complete interrupt
// that can only ever be "pending" once.
func (c *SignalClock) Signal() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *SignalClock) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.signal:
		return nil
	}
}
