package eratracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler defers fn by d and returns a cancel func. Tests substitute a
// manual implementation; the default is time.AfterFunc.
type Scheduler func(d time.Duration, fn func()) (cancel func() bool)

func systemScheduler(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Watchdog guards the era cadence: if no era change is observed within its
// window it fires the reconnect hook, then rearms itself so a relay node
// that stays silent keeps getting kicked. Arm replaces any pending deadline.
type Watchdog struct {
	period   time.Duration
	onFire   func()
	schedule Scheduler
	log      zerolog.Logger

	mu     sync.Mutex
	cancel func() bool
	fires  uint64
}

func newWatchdog(period time.Duration, onFire func(), schedule Scheduler, log zerolog.Logger) *Watchdog {
	if schedule == nil {
		schedule = systemScheduler
	}
	return &Watchdog{
		period:   period,
		onFire:   onFire,
		schedule: schedule,
		log:      log,
	}
}

// Arm starts (or restarts) the window. Called once on tracker start and
// again on every observed era advance.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armLocked()
}

func (w *Watchdog) armLocked() {
	if w.cancel != nil {
		w.cancel()
	}
	w.cancel = w.schedule(w.period, w.fired)
}

// Disarm cancels the pending deadline.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// Fires returns how often the watchdog has gone off since start.
func (w *Watchdog) Fires() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fires
}

func (w *Watchdog) fired() {
	w.mu.Lock()
	w.fires++
	n := w.fires
	w.mu.Unlock()

	w.log.Warn().
		Dur("period", w.period).
		Uint64("fire_count", n).
		Msg("watchdog fired: no era change observed, forcing relay reconnect")

	if w.onFire != nil {
		w.onFire()
	}

	w.mu.Lock()
	w.armLocked()
	w.mu.Unlock()
}
