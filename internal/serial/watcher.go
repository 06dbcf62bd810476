package serial

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("dinoflash.serial")

// DefaultPollInterval is the delay between port scans.
const DefaultPollInterval = 2 * time.Second

// ErrWatcherActive is returned when a second watch loop is started while
// another one is running. Only one loop may claim ports at a time.
const ErrWatcherActive = errors.ConstError("port watcher already running")

var activeWatch sync.Mutex

// Watcher polls a Resolver in the background and reports transitions.
type Watcher struct {
	Resolver *Resolver
	Clock    clock.Clock
	Interval time.Duration

	paused atomic.Bool
	reset  atomic.Bool
}

// NewWatcher returns a Watcher polling at DefaultPollInterval.
func NewWatcher(r *Resolver, clk clock.Clock) *Watcher {
	return &Watcher{Resolver: r, Clock: clk, Interval: DefaultPollInterval}
}

// Pause stops scanning while a session owns the port.
func (w *Watcher) Pause() { w.paused.Store(true) }

// Resume restarts scanning. The next scan is always reported, even if the
// status did not change while paused.
func (w *Watcher) Resume() {
	w.reset.Store(true)
	w.paused.Store(false)
}

// Run scans until ctx is done, calling onChange only when the resolution
// differs from the previous one. The stop signal is checked once per
// iteration.
func (w *Watcher) Run(ctx context.Context, onChange func(Resolution)) error {
	if !activeWatch.TryLock() {
		return ErrWatcherActive
	}
	defer activeWatch.Unlock()

	var last Resolution
	first := true
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !w.paused.Load() {
			if w.reset.Swap(false) {
				first = true
			}
			res, err := w.Resolver.Resolve()
			if err != nil {
				logger.Warningf("port scan: %v", err)
			} else if first || !res.Equal(last) {
				logger.Debugf("port status %s", res)
				last = res
				first = false
				onChange(res)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-w.Clock.After(w.Interval):
		}
	}
}
