// Package sim generates synthetic photoplethysmogram (PPG) telemetry and
// serves it over HTTP the way a bedside pulse monitor backend would.
package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/timeutil"
)

// DefaultSampleRate is the generator rate in samples per second.
const DefaultSampleRate = 100

// Sample is one telemetry message as sent on the wire.
type Sample struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
	BPM       float64 `json:"bpm"`
	Condition string  `json:"condition"`
	SpO2      float64 `json:"spo2"`
	BP        string  `json:"bp"`
}

// State is the generator's current condition summary.
type State struct {
	BPM            float64 `json:"bpm"`
	Condition      string  `json:"condition"`
	Variability    float64 `json:"variability"`
	ScenarioActive bool    `json:"scenario_active"`
}

// Options configures a Simulator.
type Options struct {
	SampleRate float64
	Amplitude  float64
	// NoiseSigma is the standard deviation of additive Gaussian noise.
	NoiseSigma float64
	Clock      timeutil.Clock
	Rand       *rand.Rand
}

// Simulator is a PPG generator whose physiology follows the selected
// condition. It is safe for concurrent use; each Stream keeps its own time
// base.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	clock     timeutil.Clock
	rate      float64
	amplitude float64
	noise     float64
	cond      cue.Condition
	phys      Physiology

	scenarioCancel context.CancelFunc
	scenarioGen    uint64
}

// New creates a Simulator in the Normal condition.
func New(opts Options) *Simulator {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Amplitude == 0 {
		opts.Amplitude = 1.0
	}
	if opts.NoiseSigma < 0 {
		opts.NoiseSigma = 0
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := &Simulator{
		rng:       opts.Rand,
		clock:     opts.Clock,
		rate:      opts.SampleRate,
		amplitude: opts.Amplitude,
		noise:     opts.NoiseSigma,
	}
	s.cond = cue.Normal
	s.phys, _ = PhysiologyFor(cue.Normal, s.rng)
	return s
}

// DefaultOptions mirrors the classic bedside generator: 100 Hz, unit
// amplitude, sigma 0.02 noise.
func DefaultOptions() Options {
	return Options{SampleRate: DefaultSampleRate, Amplitude: 1.0, NoiseSigma: 0.02}
}

// SampleRate returns samples per second.
func (s *Simulator) SampleRate() float64 { return s.rate }

// SetCondition switches the condition. Unknown labels are reported on the
// wire but keep the current physiology.
func (s *Simulator) SetCondition(cond cue.Condition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConditionLocked(cond)
}

func (s *Simulator) setConditionLocked(cond cue.Condition) {
	s.cond = cond
	if p, ok := PhysiologyFor(cond, s.rng); ok {
		s.phys = p
	}
}

// State returns the current condition summary.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		BPM:            s.phys.BPM,
		Condition:      string(s.cond),
		Variability:    s.phys.Variability,
		ScenarioActive: s.scenarioCancel != nil,
	}
}

// Physiology returns the current vitals.
func (s *Simulator) Physiology() Physiology {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phys
}

// Wave evaluates the noise-free PPG shape at t seconds for the given rate:
// a systolic Gaussian at phase 0.2 plus a half-height dicrotic Gaussian at
// phase 0.5.
func Wave(t, bpm, amplitude float64) float64 {
	cycle := 1.0
	if bpm > 0 {
		cycle = 60.0 / bpm
	}
	phase := math.Mod(t, cycle) / cycle
	p1 := amplitude * math.Exp(-((phase-0.2)*(phase-0.2))/(2*0.05*0.05))
	p2 := amplitude * 0.5 * math.Exp(-((phase-0.5)*(phase-0.5))/(2*0.08*0.08))
	return p1 + p2
}

// SampleAt produces the message for t seconds into a stream.
func (s *Simulator) SampleAt(t float64) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := Wave(t, s.phys.BPM, s.amplitude)
	if s.noise > 0 {
		v += s.rng.NormFloat64() * s.noise
	}
	spo2 := s.phys.SpO2 + uniform(s.rng, -0.1, 0.1)
	now := s.clock.Now()
	return Sample{
		Timestamp: float64(now.UnixNano()) / 1e9,
		Value:     v,
		BPM:       s.phys.BPM,
		Condition: string(s.cond),
		SpO2:      math.Round(spo2*10) / 10,
		BP:        s.phys.BP(),
	}
}

// Stream calls fn with one sample per generator tick until ctx is cancelled
// or fn returns an error. The stream's time base starts at zero.
func (s *Simulator) Stream(ctx context.Context, fn func(Sample) error) error {
	dt := 1.0 / s.rate
	ticker := s.clock.NewTicker(time.Duration(dt * float64(time.Second)))
	defer ticker.Stop()

	t := 0.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := fn(s.SampleAt(t)); err != nil {
				return err
			}
			t += dt
		}
	}
}

// StartScenario runs steps in the background, replacing any running
// scenario. When the script finishes the last condition stays selected.
func (s *Simulator) StartScenario(steps []Step) {
	if len(steps) == 0 {
		steps = DefaultScenario
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.scenarioCancel != nil {
		s.scenarioCancel()
	}
	s.scenarioGen++
	gen := s.scenarioGen
	s.scenarioCancel = cancel
	s.mu.Unlock()

	monitoring.Logf("[Sim] scenario started (%d steps)", len(steps))
	go s.runScenario(ctx, gen, steps)
}

func (s *Simulator) runScenario(ctx context.Context, gen uint64, steps []Step) {
	defer func() {
		s.mu.Lock()
		if s.scenarioGen == gen && s.scenarioCancel != nil {
			s.scenarioCancel()
			s.scenarioCancel = nil
		}
		s.mu.Unlock()
	}()

	for _, st := range steps {
		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.setConditionLocked(st.Condition)
		s.mu.Unlock()
		monitoring.Debugf("[Sim] scenario step %s for %v", st.Condition, st.Duration)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(st.Duration):
		}
	}
	monitoring.Logf("[Sim] scenario complete")
}

// StopScenario cancels a running scenario and returns to Normal.
func (s *Simulator) StopScenario() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scenarioCancel != nil {
		s.scenarioCancel()
		s.scenarioCancel = nil
	}
	s.setConditionLocked(cue.Normal)
}

// ScenarioActive reports whether a scenario is running.
func (s *Simulator) ScenarioActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenarioCancel != nil
}
