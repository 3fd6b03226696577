package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Faults tracks the transient mandatory-channel fault indicator. Every
// skipped cycle is counted, but log lines and gauge writes only happen
// on state transitions so a long outage does not spam at cycle rate.
type Faults struct {
	mu      sync.Mutex
	active  bool
	kind    string
	onRaise []func(kind string)
	onClear []func()
}

func NewFaults() *Faults {
	return &Faults{}
}

// OnRaise registers fn to run on each raise transition. Register before
// the driver starts; fn must not block.
func (f *Faults) OnRaise(fn func(kind string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRaise = append(f.onRaise, fn)
}

// OnClear registers fn to run on each clear transition.
func (f *Faults) OnClear(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClear = append(f.onClear, fn)
}

// Report raises the fault for one skipped cycle.
func (f *Faults) Report(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cycleSkipsTotal.WithLabelValues(kind).Inc()
	if f.active && f.kind == kind {
		return
	}
	f.active = true
	f.kind = kind
	faultGauge.Set(1)
	log.Printf("pipeline: %s channel unavailable, fault raised", kind)
	for _, fn := range f.onRaise {
		fn(kind)
	}
}

// Clear drops the fault after a cycle with successful mandatory reads.
func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.active {
		return
	}
	f.active = false
	f.kind = ""
	faultGauge.Set(0)
	log.Printf("pipeline: fault cleared")
	for _, fn := range f.onClear {
		fn()
	}
}

// Current returns the active fault kind, if any.
func (f *Faults) Current() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kind, f.active
}

// Watchdog records pipeline liveness. The driver stamps it exactly
// once per cycle; health endpoints poll it to detect a stalled loop.
type Watchdog struct {
	mu      sync.Mutex
	clk     clock.Clock
	timeout time.Duration
	last    time.Time
	count   uint64
}

func NewWatchdog(clk clock.Clock, timeout time.Duration) *Watchdog {
	return &Watchdog{clk: clk, timeout: timeout}
}

// Service stamps the liveness signal.
func (w *Watchdog) Service() {
	w.mu.Lock()
	w.last = w.clk.Now()
	w.count++
	w.mu.Unlock()
}

// Healthy reports whether the loop serviced the watchdog within the
// timeout. Never true before the first cycle.
func (w *Watchdog) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.last.IsZero() && w.clk.Now().Sub(w.last) <= w.timeout
}

// Services returns how many times the watchdog has been serviced.
func (w *Watchdog) Services() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
