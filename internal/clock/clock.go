// Package clock provides the millisecond epoch time source shared by the
// store, scheduler and heartbeat loop, and a frozen implementation so tests
// can control "now" instead of racing the wall clock.
package clock

import "time"

// Clock returns the current time as Unix milliseconds.
type Clock interface {
	NowMillis() int64
}

// Real is the production clock, backed by time.Now.
type Real struct{}

func (Real) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Frozen is a test clock pinned to a fixed instant, advanced explicitly.
type Frozen struct {
	millis int64
}

// NewFrozen returns a Frozen clock starting at the given Unix milliseconds.
func NewFrozen(startMillis int64) *Frozen {
	return &Frozen{millis: startMillis}
}

func (f *Frozen) NowMillis() int64 {
	return f.millis
}

// Advance moves the frozen clock forward by delta milliseconds.
func (f *Frozen) Advance(delta int64) {
	f.millis += delta
}
