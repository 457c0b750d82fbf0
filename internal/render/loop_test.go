package render

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/timeutil"
	"github.com/banshee-data/pulsewave/internal/waveform"
)

// fakeSurface records draw calls.
type fakeSurface struct {
	mu         sync.Mutex
	calls      []string
	sizes      [][2]int
	strokes    [][]Point
	colors     []color.Color
	presents   int
	presentErr error
}

func (f *fakeSurface) Resize(w, h int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, [2]int{w, h})
	f.calls = append(f.calls, "resize")
}

func (f *fakeSurface) Clear(color.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "clear")
}

func (f *fakeSurface) Grid(int, color.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "grid")
}

func (f *fakeSurface) Stroke(pts []Point, c color.Color, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stroke")
	f.strokes = append(f.strokes, pts)
	f.colors = append(f.colors, c)
}

func (f *fakeSurface) Present() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "present")
	f.presents++
	return f.presentErr
}

func (f *fakeSurface) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls, f.strokes, f.colors = nil, nil, nil
}

type recordingPlayer struct {
	mu    sync.Mutex
	plays []cue.Condition
}

func (p *recordingPlayer) Play(c cue.Condition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, c)
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

type fixture struct {
	buf       *waveform.Buffer
	machine   *cue.Machine
	player    *recordingPlayer
	hub       *cue.Hub
	surface   *fakeSurface
	container *ResizableContainer
	loop      *Loop
}

func newFixture(t *testing.T, capacity, w, h int) *fixture {
	t.Helper()
	f := &fixture{
		buf:       waveform.New(capacity, 0),
		machine:   cue.NewMachine(cue.DefaultThresholds()),
		player:    &recordingPlayer{},
		hub:       cue.NewHub(),
		surface:   &fakeSurface{},
		container: NewResizableContainer(w, h),
	}
	f.loop = NewLoop(f.buf, f.machine, f.player, f.hub, f.surface, f.container, Config{
		AmplitudeDivisor: 3,
		GridSpacing:      50,
		Theme:            DefaultTheme(),
		Classifier:       cue.DefaultClassifier(),
		Clock:            timeutil.NewMockClock(time.Unix(0, 0)),
	})
	return f
}

func TestTick_DrawOrder(t *testing.T) {
	f := newFixture(t, 4, 800, 300)
	f.loop.Tick()

	assert.Equal(t, []string{"resize", "clear", "grid", "stroke", "stroke", "present"}, f.surface.calls)
	assert.Equal(t, [][2]int{{800, 300}}, f.surface.sizes)
	require.Len(t, f.surface.strokes, 2)
	assert.Len(t, f.surface.strokes[1], 4, "one point per sample")
}

func TestTick_HysteresisAcrossFrames(t *testing.T) {
	f := newFixture(t, 16, 800, 300)
	for _, v := range []float64{0.2, 1.6, 1.6} {
		f.buf.Push(v)
	}
	f.loop.Tick()
	for _, v := range []float64{1.6, 0.3, 1.6} {
		f.buf.Push(v)
	}
	f.loop.Tick()
	// Replaying the whole buffer again must not refire.
	f.loop.Tick()
	f.loop.Tick()

	assert.Equal(t, 2, f.player.count())
	assert.Equal(t, uint64(2), f.loop.Stats().Cues)
}

func TestTick_LaggedBatchPreservesOrder(t *testing.T) {
	f := newFixture(t, 16, 800, 300)
	f.buf.Push(1.7)
	f.loop.Tick()
	require.Equal(t, 1, f.player.count())

	// Ingest outpaced rendering: a dip and the next peak land in one frame.
	f.buf.Push(0.2)
	f.buf.Push(1.8)
	f.loop.Tick()
	assert.Equal(t, 2, f.player.count())
}

func TestTick_CuePitchFollowsCondition(t *testing.T) {
	f := newFixture(t, 8, 800, 300)
	var events []cue.CueEvent
	f.hub.AddCueListener(cue.CueFunc(func(ev cue.CueEvent) { events = append(events, ev) }))

	f.machine.OnCondition(cue.Bradycardia)
	f.buf.Push(1.9)
	f.loop.Tick()

	assert.Equal(t, []cue.Condition{cue.Bradycardia}, f.player.plays)
	require.Len(t, events, 1)
	assert.Equal(t, 1.9, events[0].Value)
	assert.Equal(t, cue.Bradycardia, events[0].Condition)
}

func TestTick_AlertStrokeColour(t *testing.T) {
	f := newFixture(t, 4, 100, 100)
	theme := DefaultTheme()

	f.loop.Tick()
	assert.Equal(t, theme.Pulse, f.surface.colors[1])

	f.surface.reset()
	f.machine.OnCondition(cue.Arrhythmia)
	f.loop.Tick()
	assert.Equal(t, theme.Danger, f.surface.colors[1])
	assert.Equal(t, Glow(theme.Danger), f.surface.colors[0], "glow underlay uses the stroke colour")

	f.surface.reset()
	f.machine.OnCondition(cue.Bradycardia)
	f.loop.Tick()
	assert.Equal(t, theme.Pulse, f.surface.colors[1])
}

func TestTick_ResizeAppliedBeforeDraw(t *testing.T) {
	const n = 800
	f := newFixture(t, n, 800, 300)
	f.loop.Tick()

	f.container.Resize(400, 300)
	f.loop.OnResize()
	f.surface.reset()
	f.loop.Tick()

	assert.Equal(t, "resize", f.surface.calls[0])
	trace := f.surface.strokes[1]
	assert.Equal(t, 400-400.0/n, trace[n-1].X)
	assert.Equal(t, 400, f.loop.Stats().Width)
}

func TestTick_ZeroSizedSkipsDrawButPollsCues(t *testing.T) {
	f := newFixture(t, 8, 0, 0)
	f.buf.Push(0.1)
	f.buf.Push(1.9)
	f.loop.Tick()

	assert.Equal(t, []string{"resize"}, f.surface.calls)
	assert.Equal(t, 1, f.player.count())
	st := f.loop.Stats()
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, uint64(1), st.Skipped)

	// Growing the container resumes drawing.
	f.container.Resize(100, 100)
	f.loop.OnResize()
	f.loop.Tick()
	assert.Contains(t, f.surface.calls, "present")
}

func TestTick_PresentErrorIsNotFatal(t *testing.T) {
	f := newFixture(t, 4, 10, 10)
	f.surface.presentErr = errors.New("display gone")
	f.loop.Tick()
	f.loop.Tick()
	assert.Equal(t, uint64(2), f.loop.Stats().PresentErrors)
	assert.Equal(t, uint64(2), f.loop.Stats().Frames)
}

func TestTick_ClipsExtremeSamples(t *testing.T) {
	f := newFixture(t, 2, 10, 30)
	f.buf.Push(1e9)
	f.buf.Push(-1e9)
	f.loop.Tick()
	trace := f.surface.strokes[1]
	assert.Equal(t, -30.0, trace[0].Y)
	assert.Equal(t, 60.0, trace[1].Y)
}

func TestSetTheme(t *testing.T) {
	f := newFixture(t, 4, 10, 10)
	custom := DefaultTheme()
	custom.Pulse = custom.Danger
	f.loop.SetTheme(custom)
	f.loop.Tick()
	assert.Equal(t, custom.Danger, f.surface.colors[1])
	assert.Equal(t, custom, f.loop.Theme())
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	f := newFixture(t, 4, 10, 10)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sched := NewClockScheduler(clock, 60)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.loop.Run(ctx, sched)
		close(done)
	}()

	frame := timeutil.FrameInterval(60)
	require.Eventually(t, func() bool {
		clock.Advance(frame)
		return f.loop.Stats().Frames >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ContainerNotificationTriggersResize(t *testing.T) {
	f := newFixture(t, 4, 10, 10)
	ticks := make(chan time.Time)
	sched := &chanScheduler{c: ticks}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.loop.Run(ctx, sched)

	ticks <- time.Time{}
	f.container.Resize(20, 10)
	require.Eventually(t, func() bool {
		select {
		case ticks <- time.Time{}:
		default:
		}
		return f.loop.Stats().Width == 20
	}, time.Second, time.Millisecond)
}

func TestRun_ResizeQueuedWithTickLandsFirst(t *testing.T) {
	const n = 800
	for i := 0; i < 50; i++ {
		f := newFixture(t, n, 800, 300)
		f.loop.Tick()
		f.surface.reset()

		ticks := make(chan time.Time, 1)
		f.container.Resize(400, 300)
		ticks <- time.Time{}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			f.loop.Run(ctx, &chanScheduler{c: ticks})
		}()
		require.Eventually(t, func() bool { return f.loop.Stats().Frames == 2 }, time.Second, time.Millisecond)
		cancel()
		<-done

		require.Len(t, f.surface.strokes, 2)
		trace := f.surface.strokes[1]
		require.Equal(t, 400-400.0/n, trace[n-1].X, "trial %d drew at the stale width", i)
	}
}

type chanScheduler struct {
	c chan time.Time
}

func (s *chanScheduler) Ticks() <-chan time.Time { return s.c }
func (s *chanScheduler) Stop()                   {}
