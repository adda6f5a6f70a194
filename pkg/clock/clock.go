// Package clock abstracts timers and tickers so the idle reaper can be driven
// deterministically in tests.
//
// Production code uses Real(). Tests use Fake(start) and move time with
// Advance; AfterFunc callbacks fire synchronously inside Advance.
package clock

import "time"

// Clock is the subset of the time package the recruitment engine needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once, in its own goroutine (real) or inside
	// Advance (fake), after d elapses.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call if it has not fired yet.
	Stop() bool
}

// Ticker delivers periodic ticks. C has capacity 1; late ticks are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}
