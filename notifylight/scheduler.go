package notifylight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// CheckFunc runs one fetch-and-enqueue cycle.
type CheckFunc func(ctx context.Context) error

// AutoChecker runs a CheckFunc immediately on Enable and then once per
// interval. At most one cycle is in flight; ticks that arrive while one runs
// are dropped.
type AutoChecker struct {
	mu       sync.Mutex
	stop     chan struct{}
	interval time.Duration

	running atomic.Bool
	check   CheckFunc
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewAutoChecker(check CheckFunc, clock clockwork.Clock, logger *slog.Logger) *AutoChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AutoChecker{
		check:  check,
		clock:  clock,
		logger: logger.With("component", "AutoChecker"),
	}
}

// Enable starts periodic checking, replacing any previous schedule.
func (a *AutoChecker) Enable(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("auto-check interval must be positive, got %s", interval)
	}

	a.mu.Lock()
	a.stopLocked()
	stop := make(chan struct{})
	ticker := a.clock.NewTicker(interval)
	a.stop = stop
	a.interval = interval
	a.mu.Unlock()

	a.logger.Info("Auto-check enabled", "interval", interval)
	a.trigger()
	go a.loop(ticker, stop)
	return nil
}

// Disable stops future cycles. A cycle already running completes normally.
func (a *AutoChecker) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop == nil {
		return
	}
	a.stopLocked()
	a.logger.Info("Auto-check disabled")
}

// Enabled reports whether a schedule is active and its interval.
func (a *AutoChecker) Enabled() (bool, time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil, a.interval
}

func (a *AutoChecker) stopLocked() {
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
		a.interval = 0
	}
}

func (a *AutoChecker) loop(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				return
			default:
			}
			a.trigger()
		}
	}
}

func (a *AutoChecker) trigger() {
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Debug("Previous check still running, skipping tick")
		return
	}
	go func() {
		defer a.running.Store(false)
		if err := a.check(context.Background()); err != nil {
			a.logger.Warn("Auto-check cycle failed", "err", err)
		}
	}()
}
