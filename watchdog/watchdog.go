// Package watchdog decides whether unsolicited telemetry is worth pushing.
//
// Request inactivity is measured in scheduling ticks of the request loop.
// After threshold consecutive idle ticks the stream is suspended; the next
// processed request reactivates it. This keeps an idle or disconnected
// client from receiving broadcasts into the void indefinitely.
//
// Tick and Touch are called from the request loop only. Enabled is the one
// atomic flag shared with the telemetry pusher goroutine.
package watchdog

import (
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"

	"github.com/loopdev/pidserver/log2"
)

type State uint32

const (
	StateActive State = iota
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuspended:
		return "suspended"
	}
	return "unknown!"
}

type Watchdog struct {
	state     uint32
	idleTicks uint32
	threshold uint32
	lastReq   *atomic_clock.Clock
	log       *log2.Log
}

// New creates a Watchdog in active state.
// threshold is the number of consecutive idle ticks before suspension.
func New(threshold uint32, log *log2.Log) *Watchdog {
	return &Watchdog{
		state:     uint32(StateActive),
		threshold: threshold,
		lastReq:   atomic_clock.New(),
		log:       log,
	}
}

// NewTimeout derives the tick threshold from a wall-clock inactivity
// timeout and the request loop tick period. Original device firmware used
// 15s / 20ms = 750 ticks.
func NewTimeout(timeout, tick time.Duration, log *log2.Log) *Watchdog {
	if tick <= 0 || timeout < tick {
		log.Fatalf("watchdog timeout=%v tick=%v invalid", timeout, tick)
	}
	return New(uint32(timeout/tick), log)
}

func (w *Watchdog) State() State {
	return State(atomic.LoadUint32(&w.state))
}

// Enabled reports whether the telemetry pusher should send.
func (w *Watchdog) Enabled() bool { return w.State() == StateActive }

func (w *Watchdog) IdleTicks() uint32 { return atomic.LoadUint32(&w.idleTicks) }

func (w *Watchdog) Threshold() uint32 { return w.threshold }

// SinceLastRequest returns time since the last processed request,
// zero duration origin if none was processed yet.
func (w *Watchdog) SinceLastRequest() time.Duration {
	return atomic_clock.Since(w.lastReq)
}

// Tick records one scheduling tick with no request processed.
// Returns true on the tick that transitions active->suspended, which
// happens exactly when the counter reaches the threshold. The counter
// keeps counting afterwards without re-entering the transition.
func (w *Watchdog) Tick() bool {
	n := atomic.AddUint32(&w.idleTicks, 1)
	if n == w.threshold && w.State() == StateActive {
		atomic.StoreUint32(&w.state, uint32(StateSuspended))
		w.log.Infof("watchdog no requests for %d ticks, stream suspended", n)
		return true
	}
	return false
}

// Touch records one successfully processed request: the idle counter
// resets and a suspended stream reactivates. Returns true on the
// suspended->active transition.
func (w *Watchdog) Touch() bool {
	atomic.StoreUint32(&w.idleTicks, 0)
	w.lastReq.SetNow()
	if w.State() == StateSuspended {
		atomic.StoreUint32(&w.state, uint32(StateActive))
		w.log.Infof("watchdog request processed, stream reactivated")
		return true
	}
	return false
}
