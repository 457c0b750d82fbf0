package sim

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/timeutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSim(clock timeutil.Clock) *Simulator {
	return New(Options{Clock: clock, Rand: rand.New(rand.NewPCG(1, 2))})
}

func TestWaveShape(t *testing.T) {
	// 75 BPM: 0.8 s cycle, systolic peak at 0.16 s.
	assert.InDelta(t, 1.0, Wave(0.16, 75, 1), 0.001)
	// dicrotic peak at phase 0.5 is about half height
	assert.InDelta(t, 0.5, Wave(0.4, 75, 1), 0.01)
	// trough between beats
	assert.Less(t, Wave(0.72, 75, 1), 0.05)
	// waveform repeats each cycle
	assert.InDelta(t, Wave(0.1, 75, 1), Wave(0.9, 75, 1), 1e-9)
	// zero BPM falls back to a one second cycle
	assert.InDelta(t, 1.0, Wave(0.2, 0, 1), 0.001)
}

func TestPhysiologyFor(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	tests := []struct {
		cond           cue.Condition
		bpm            float64
		variability    float64
		spo2Lo, spo2Hi float64
	}{
		{cue.Normal, 75, 0.05, 97, 99},
		{cue.Tachycardia, 130, 0.02, 94, 96},
		{cue.Bradycardia, 45, 0.1, 94, 97},
		{cue.Arrhythmia, 80, 0.4, 91, 95},
	}
	for _, tt := range tests {
		t.Run(string(tt.cond), func(t *testing.T) {
			for i := 0; i < 50; i++ {
				p, ok := PhysiologyFor(tt.cond, rng)
				require.True(t, ok)
				assert.Equal(t, tt.bpm, p.BPM)
				assert.Equal(t, tt.variability, p.Variability)
				assert.GreaterOrEqual(t, p.SpO2, tt.spo2Lo)
				assert.LessOrEqual(t, p.SpO2, tt.spo2Hi)
			}
		})
	}

	p, _ := PhysiologyFor(cue.Normal, rng)
	assert.Equal(t, "120/80", p.BP())

	for i := 0; i < 50; i++ {
		p, _ := PhysiologyFor(cue.Arrhythmia, rng)
		assert.GreaterOrEqual(t, p.Systolic, 100)
		assert.LessOrEqual(t, p.Systolic, 120)
		assert.GreaterOrEqual(t, p.Diastolic, 60)
		assert.LessOrEqual(t, p.Diastolic, 80)
	}

	_, ok := PhysiologyFor("Asystole", rng)
	assert.False(t, ok)
}

func TestScenarioAt(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    cue.Condition
		ok      bool
	}{
		{0, cue.Normal, true},
		{4999 * time.Millisecond, cue.Normal, true},
		{5 * time.Second, cue.Tachycardia, true},
		{12 * time.Second, cue.Arrhythmia, true},
		{20 * time.Second, cue.Bradycardia, true},
		{23 * time.Second, cue.Normal, true},
		{33 * time.Second, "", false},
		{-time.Second, "", false},
	}
	for _, tt := range tests {
		got, ok := ScenarioAt(DefaultScenario, tt.elapsed)
		assert.Equal(t, tt.ok, ok, "elapsed %v", tt.elapsed)
		assert.Equal(t, tt.want, got, "elapsed %v", tt.elapsed)
	}
}

func TestSetConditionUnknownKeepsPhysiology(t *testing.T) {
	s := newTestSim(timeutil.NewMockClock(epoch))
	s.SetCondition(cue.Tachycardia)
	before := s.Physiology()

	s.SetCondition("Asystole")
	assert.Equal(t, before, s.Physiology())
	assert.Equal(t, "Asystole", s.State().Condition)
	assert.Equal(t, 130.0, s.State().BPM)
}

func TestSampleAt(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := newTestSim(clock)

	sample := s.SampleAt(0.16)
	assert.InDelta(t, 1.0, sample.Value, 0.001)
	assert.Equal(t, 75.0, sample.BPM)
	assert.Equal(t, "Normal", sample.Condition)
	assert.Equal(t, "120/80", sample.BP)
	assert.InDelta(t, float64(epoch.Unix()), sample.Timestamp, 1e-6)
	assert.Equal(t, math.Round(sample.SpO2*10)/10, sample.SpO2)
	assert.InDelta(t, s.Physiology().SpO2, sample.SpO2, 0.16)
}

func TestSampleAtNoise(t *testing.T) {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(3, 4))
	opts.Clock = timeutil.NewMockClock(epoch)
	s := New(opts)

	var sum float64
	const n = 2000
	for i := 0; i < n; i++ {
		// phase 0.75 sits in the trough, so the value is almost pure noise
		sum += s.SampleAt(0.6).Value - Wave(0.6, 75, 1)
	}
	assert.InDelta(t, 0, sum/n, 0.005)
}

func TestStreamEmitsOnTicks(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := newTestSim(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Sample, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.Stream(ctx, func(x Sample) error {
			got <- x
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Millisecond)
		return len(got) >= 3
	}, time.Second, time.Millisecond)

	first := <-got
	assert.InDelta(t, Wave(0, 75, 1), first.Value, 1e-9)
	second := <-got
	assert.InDelta(t, Wave(0.01, 75, 1), second.Value, 1e-9)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStreamStopsOnCallbackError(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := newTestSim(clock)
	errStop := errors.New("client gone")

	done := make(chan error, 1)
	go func() {
		done <- s.Stream(context.Background(), func(Sample) error { return errStop })
	}()

	var err error
	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Millisecond)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, errStop)
}

func TestScenarioRunsAndFinishes(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := newTestSim(clock)

	s.StartScenario([]Step{
		{cue.Tachycardia, time.Second},
		{cue.Bradycardia, time.Second},
	})
	require.Eventually(t, func() bool {
		return s.State().Condition == string(cue.Tachycardia)
	}, time.Second, time.Millisecond)
	assert.True(t, s.ScenarioActive())

	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return s.State().Condition == string(cue.Bradycardia)
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return !s.ScenarioActive()
	}, time.Second, time.Millisecond)
	// last step stays selected
	assert.Equal(t, string(cue.Bradycardia), s.State().Condition)
}

func TestStopScenarioResetsToNormal(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	s := newTestSim(clock)

	s.StartScenario(nil)
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return s.State().Condition == string(cue.Tachycardia)
	}, time.Second, time.Millisecond)

	s.StopScenario()
	assert.False(t, s.ScenarioActive())
	assert.Equal(t, string(cue.Normal), s.State().Condition)
	assert.Equal(t, 75.0, s.State().BPM)

	// a cancelled script never applies another step
	for i := 0; i < 30; i++ {
		clock.Advance(time.Second)
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, string(cue.Normal), s.State().Condition)
}
