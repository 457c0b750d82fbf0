package render

import (
	"time"

	"github.com/banshee-data/pulsewave/internal/timeutil"
)

// Scheduler delivers render ticks.
type Scheduler interface {
	Ticks() <-chan time.Time
	Stop()
}

// ClockScheduler ticks at a fixed rate on a timeutil.Clock. A slow frame
// drops ticks rather than queueing them.
type ClockScheduler struct {
	ticker timeutil.Ticker
}

// NewClockScheduler starts a scheduler at hz frames per second.
func NewClockScheduler(clock timeutil.Clock, hz float64) *ClockScheduler {
	return &ClockScheduler{ticker: clock.NewTicker(timeutil.FrameInterval(hz))}
}

// Ticks implements Scheduler.
func (s *ClockScheduler) Ticks() <-chan time.Time { return s.ticker.C() }

// Stop implements Scheduler.
func (s *ClockScheduler) Stop() { s.ticker.Stop() }
