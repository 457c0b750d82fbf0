package render

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/timeutil"
	"github.com/banshee-data/pulsewave/internal/waveform"
)

const (
	traceWidth = 2.0
	glowStroke = 6.0
)

// Player plays the audio cue for a condition. It must not block.
type Player interface {
	Play(cue.Condition)
}

// Config holds the loop's construction parameters.
type Config struct {
	AmplitudeDivisor float64
	GridSpacing      int
	Theme            Theme
	Classifier       cue.Classifier
	Clock            timeutil.Clock
}

// FrameStats counts loop activity.
type FrameStats struct {
	Frames        uint64 `json:"frames"`
	Skipped       uint64 `json:"skipped"`
	Cues          uint64 `json:"cues"`
	PresentErrors uint64 `json:"present_errors"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// Loop draws one frame per tick. Tick and Run must be called from a single
// goroutine; OnResize, SetTheme and Stats are safe from any goroutine.
type Loop struct {
	buf        *waveform.Buffer
	machine    *cue.Machine
	player     Player
	hub        *cue.Hub
	surface    Surface
	container  Container
	changes    <-chan struct{}
	classifier cue.Classifier
	clock      timeutil.Clock
	spacing    int

	geom    Geometry
	lastSeq uint64

	theme         atomic.Pointer[Theme]
	resizePending atomic.Bool

	geomMu sync.RWMutex // guards reads of geom from other goroutines

	frames        atomic.Uint64
	skipped       atomic.Uint64
	cues          atomic.Uint64
	presentErrors atomic.Uint64
}

// NewLoop wires a loop. player and hub may be nil. The surface is sized from
// the container before the first frame.
func NewLoop(buf *waveform.Buffer, machine *cue.Machine, player Player, hub *cue.Hub, surface Surface, container Container, cfg Config) *Loop {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.GridSpacing <= 0 {
		cfg.GridSpacing = 50
	}
	l := &Loop{
		buf:        buf,
		machine:    machine,
		player:     player,
		hub:        hub,
		surface:    surface,
		container:  container,
		classifier: cfg.Classifier,
		clock:      cfg.Clock,
		spacing:    cfg.GridSpacing,
		geom: Geometry{
			Capacity:         buf.Capacity(),
			AmplitudeDivisor: cfg.AmplitudeDivisor,
		},
		lastSeq: buf.Seq(),
	}
	if n, ok := container.(Notifier); ok {
		l.changes = n.Changes()
	}
	theme := cfg.Theme
	l.theme.Store(&theme)
	l.resizePending.Store(true)
	return l
}

// OnResize marks the container size as stale. The next Tick re-reads it
// before drawing.
func (l *Loop) OnResize() {
	l.resizePending.Store(true)
}

// SetTheme swaps the palette from the next frame on.
func (l *Loop) SetTheme(t Theme) {
	l.theme.Store(&t)
}

// Theme returns the current palette.
func (l *Loop) Theme() Theme {
	return *l.theme.Load()
}

// Geometry returns the geometry used for the latest frame.
func (l *Loop) Geometry() Geometry {
	l.geomMu.RLock()
	defer l.geomMu.RUnlock()
	return l.geom
}

// Stats returns a copy of the frame counters.
func (l *Loop) Stats() FrameStats {
	g := l.Geometry()
	return FrameStats{
		Frames:        l.frames.Load(),
		Skipped:       l.skipped.Load(),
		Cues:          l.cues.Load(),
		PresentErrors: l.presentErrors.Load(),
		Width:         g.Width,
		Height:        g.Height,
	}
}

// Tick produces one frame: apply a pending resize, snapshot the buffer, draw
// grid and trace, run the cue latch over samples that arrived since the last
// tick, stroke and present. A zero-sized surface skips drawing but the cue
// latch still runs.
func (l *Loop) Tick() {
	l.frames.Add(1)

	// A resize that raced with this tick still lands before drawing.
	select {
	case <-l.changes:
		l.resizePending.Store(true)
	default:
	}

	if l.resizePending.Swap(false) {
		w, h := l.container.Bounds()
		l.geomMu.Lock()
		l.geom.Width, l.geom.Height = w, h
		l.geomMu.Unlock()
		l.surface.Resize(w, h)
		monitoring.Debugf("[Render] surface resized to %dx%d", w, h)
	}

	snap, fresh := l.buf.Read(l.lastSeq)
	l.lastSeq = snap.Seq

	cond := l.machine.Condition()
	theme := l.Theme()
	draw := !l.geom.Empty()

	var trace []Point
	if draw {
		l.surface.Clear(theme.Background)
		l.surface.Grid(l.spacing, theme.Border)
		trace = l.geom.Path(snap.Values)
		l.clip(trace)
	} else {
		l.skipped.Add(1)
	}

	for _, v := range fresh {
		if !l.machine.ObserveSample(v) {
			continue
		}
		// Re-read so a condition change mid-batch picks the new pitch.
		cond = l.machine.Condition()
		l.cues.Add(1)
		if l.player != nil {
			l.player.Play(cond)
		}
		if l.hub != nil {
			l.hub.NotifyCue(cue.CueEvent{Condition: cond, Value: v, At: l.clock.Now()})
		}
	}

	if !draw {
		return
	}

	stroke := theme.Stroke(l.classifier.IsAlert(cond))
	l.surface.Stroke(trace, Glow(stroke), glowStroke)
	l.surface.Stroke(trace, stroke, traceWidth)

	if err := l.surface.Present(); err != nil {
		if n := l.presentErrors.Add(1); n == 1 || n%600 == 0 {
			monitoring.Logf("[Render] present failed (%d so far): %v", n, err)
		}
	}
}

// clip bounds y to one surface height beyond either edge so an extreme
// sample cannot produce a huge path.
func (l *Loop) clip(pts []Point) {
	h := float64(l.geom.Height)
	for i := range pts {
		if pts[i].Y < -h {
			pts[i].Y = -h
		} else if pts[i].Y > 2*h {
			pts[i].Y = 2 * h
		}
	}
}

// Run ticks on every scheduler tick until ctx is cancelled, then stops the
// scheduler. Containers implementing Notifier trigger OnResize.
func (l *Loop) Run(ctx context.Context, s Scheduler) {
	defer s.Stop()

	monitoring.Logf("[Render] loop started")
	for {
		select {
		case <-ctx.Done():
			st := l.Stats()
			monitoring.Logf("[Render] loop stopped: frames=%d skipped=%d cues=%d", st.Frames, st.Skipped, st.Cues)
			return
		case <-l.changes:
			l.OnResize()
		case <-s.Ticks():
			l.Tick()
		}
	}
}
