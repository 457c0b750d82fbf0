// Package monitor wires the waveform buffer, cue engine, ingest, render loop
// and audio cue into one running session over a telemetry source.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pulsewave/internal/audio"
	"github.com/banshee-data/pulsewave/internal/config"
	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/ingest"
	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/render"
	"github.com/banshee-data/pulsewave/internal/store"
	"github.com/banshee-data/pulsewave/internal/telemetry"
	"github.com/banshee-data/pulsewave/internal/timeutil"
	"github.com/banshee-data/pulsewave/internal/waveform"
)

// Options configures a Session. Source, Surface and Container are required.
type Options struct {
	Config    *config.MonitorConfig
	Source    telemetry.Source
	Surface   render.Surface
	Container render.Container
	// Output plays cue tones. Nil means silent.
	Output audio.Output
	Clock  timeutil.Clock
	// Scheduler overrides the fixed-rate frame scheduler.
	Scheduler render.Scheduler
	// Store, when set, records the session and its events.
	Store *store.Store
	// SourceName labels the stored session.
	SourceName string
	// Listeners receive transitions and cues in addition to the store.
	Listeners []any
}

// Session is one monitoring run.
type Session struct {
	cfg       *config.MonitorConfig
	clock     timeutil.Clock
	buf       *waveform.Buffer
	machine   *cue.Machine
	hub       *cue.Hub
	board     *ingest.MetricsBoard
	ingest    *ingest.Ingest
	cue       *audio.Cue
	loop      *render.Loop
	source    telemetry.Source
	surface   render.Surface
	container render.Container
	scheduler render.Scheduler

	store     *store.Store
	recorder  *store.Recorder
	sessionID string

	runOnce sync.Once
}

// New builds a session from opts. It opens a stored session when a store is
// configured.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Source == nil || opts.Surface == nil || opts.Container == nil {
		return nil, errors.New("monitor: source, surface and container are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyMonitorConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	thresholds := cue.Thresholds{Low: cfg.GetLowThreshold(), High: cfg.GetHighThreshold()}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	theme, err := render.ParseTheme(cfg.GetTheme())
	if err != nil {
		return nil, fmt.Errorf("monitor: %w", err)
	}
	classifier := cue.NewClassifier(cfg.GetAlertConditions(), cfg.GetElevatedConditions(), cfg.GetDepressedConditions())

	s := &Session{
		cfg:       cfg,
		clock:     clock,
		buf:       waveform.New(cfg.GetCapacity(), cfg.GetFillValue()),
		machine:   cue.NewMachine(thresholds),
		hub:       cue.NewHub(),
		source:    opts.Source,
		surface:   opts.Surface,
		container: opts.Container,
		scheduler: opts.Scheduler,
		store:     opts.Store,
	}
	s.board = ingest.NewMetricsBoard(clock, cfg.GetMetricsInterval(), nil)
	s.ingest = ingest.New(s.buf, s.machine, s.hub, s.board, clock)

	base := audio.DefaultTone()
	base.Duration = cfg.GetToneDuration()
	base.Gain = cfg.GetToneGain()
	s.cue = audio.NewCue(opts.Output, classifier, base, cfg.GetSampleRate())

	s.loop = render.NewLoop(s.buf, s.machine, s.cue, s.hub, s.surface, s.container, render.Config{
		AmplitudeDivisor: cfg.GetAmplitudeDivisor(),
		GridSpacing:      cfg.GetGridSpacing(),
		Theme:            theme,
		Classifier:       classifier,
		Clock:            clock,
	})

	for _, l := range opts.Listeners {
		s.AddListener(l)
	}

	if s.store != nil {
		name := opts.SourceName
		if name == "" {
			name = "unknown"
		}
		id, err := s.store.StartSession(ctx, name, clock.Now())
		if err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
		s.sessionID = id
		s.recorder = store.NewRecorder(s.store, id, cfg.GetStoreQueue())
		s.AddListener(s.recorder)
		monitoring.Logf("[Monitor] recording session %s", id)
	}
	return s, nil
}

// AddListener registers l on the hub for whichever listener interfaces it
// implements.
func (s *Session) AddListener(l any) {
	if tl, ok := l.(cue.TransitionListener); ok {
		s.hub.AddTransitionListener(tl)
	}
	if cl, ok := l.(cue.CueListener); ok {
		s.hub.AddCueListener(cl)
	}
}

// Run starts the transport monitor, ingest and render loop and blocks until
// ctx is cancelled. A transport that ends or fails leaves the display running
// on the last window. Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("monitor: session already run")
	}

	subID, lines := s.source.Subscribe()
	sched := s.scheduler
	if sched == nil {
		sched = render.NewClockScheduler(s.clock, s.cfg.GetFrameRate())
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := s.source.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, telemetry.ErrClosed) {
			monitoring.Logf("[Monitor] telemetry source stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.ingest.Run(ctx, lines)
	}()
	go func() {
		defer wg.Done()
		s.loop.Run(ctx, sched)
	}()

	<-ctx.Done()
	s.source.Unsubscribe(subID)
	if err := s.source.Close(); err != nil {
		monitoring.Logf("[Monitor] closing source: %v", err)
	}
	wg.Wait()

	s.finish()
	st := s.ingest.Stats()
	monitoring.Logf("[Monitor] session ended: accepted=%d dropped=%d", st.Accepted, st.Dropped)
	return nil
}

func (s *Session) finish() {
	if s.recorder != nil {
		s.recorder.Close()
	}
	if s.store != nil && s.sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.EndSession(ctx, s.sessionID, s.clock.Now()); err != nil {
			monitoring.Logf("[Monitor] %v", err)
		}
	}
}

// Reset returns the display and cue engine to their initial state: every
// sample back to the fill value, armed, condition Normal.
func (s *Session) Reset() {
	s.buf.Reset()
	if tr := s.machine.Reset(); tr.Changed {
		s.hub.NotifyTransition(cue.TransitionEvent{Previous: tr.Previous, Current: tr.Current, At: s.clock.Now()})
	}
	monitoring.Logf("[Monitor] session reset")
}

// Buffer returns the sample buffer.
func (s *Session) Buffer() *waveform.Buffer { return s.buf }

// Machine returns the cue state machine.
func (s *Session) Machine() *cue.Machine { return s.machine }

// Hub returns the event hub.
func (s *Session) Hub() *cue.Hub { return s.hub }

// Board returns the metrics board.
func (s *Session) Board() *ingest.MetricsBoard { return s.board }

// Ingest returns the ingest stage.
func (s *Session) Ingest() *ingest.Ingest { return s.ingest }

// Cue returns the audio cue.
func (s *Session) Cue() *audio.Cue { return s.cue }

// Loop returns the render loop.
func (s *Session) Loop() *render.Loop { return s.loop }

// Container returns the viewport container.
func (s *Session) Container() render.Container { return s.container }

// Surface returns the render surface.
func (s *Session) Surface() render.Surface { return s.surface }

// Source returns the telemetry source.
func (s *Session) Source() telemetry.Source { return s.source }

// Store returns the event store, or nil.
func (s *Session) Store() *store.Store { return s.store }

// SessionID returns the stored session ID, empty without a store.
func (s *Session) SessionID() string { return s.sessionID }

// Config returns the session configuration.
func (s *Session) Config() *config.MonitorConfig { return s.cfg }
