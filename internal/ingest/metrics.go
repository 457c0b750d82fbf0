package ingest

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/timeutil"
)

// Display is what the vitals panel shows.
type Display struct {
	Metrics
	HRV       int       `json:"hrv"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetricsBoard keeps the latest metrics and a display copy refreshed at most
// once per interval so the panel does not flicker at sample rate.
type MetricsBoard struct {
	clock    timeutil.Clock
	interval time.Duration
	rng      *rand.Rand

	mu      sync.Mutex
	latest  Metrics
	seen    bool
	display Display
}

// NewMetricsBoard returns a board refreshing at most every interval. rng may
// be nil.
func NewMetricsBoard(clock timeutil.Clock, interval time.Duration, rng *rand.Rand) *MetricsBoard {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(clock.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return &MetricsBoard{clock: clock, interval: interval, rng: rng}
}

// Update implements MetricsSink.
func (b *MetricsBoard) Update(m Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = m
	now := b.clock.Now()
	if !b.seen || now.Sub(b.display.UpdatedAt) >= b.interval {
		b.display = Display{Metrics: m, HRV: b.hrvLocked(m.Condition), UpdatedAt: now}
	}
	b.seen = true
}

// Latest returns the most recent metrics regardless of the display interval.
func (b *MetricsBoard) Latest() (Metrics, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.seen
}

// Display returns the rate-limited display values.
func (b *MetricsBoard) Display() Display {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.display
}

// hrvLocked estimates heart rate variability in ms for display. Normal
// rhythm shows 40 to 60, arrhythmia 100 to 150, anything else a flat 30.
func (b *MetricsBoard) hrvLocked(c cue.Condition) int {
	switch c {
	case cue.Normal:
		return 40 + b.rng.IntN(21)
	case cue.Arrhythmia:
		return 100 + b.rng.IntN(51)
	default:
		return 30
	}
}
