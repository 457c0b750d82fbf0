package sim

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/pulsewave/internal/cue"
)

// Physiology is the set of vitals a condition imposes on the generator.
type Physiology struct {
	BPM         float64
	Variability float64
	SpO2        float64
	Systolic    int
	Diastolic   int
}

// BP formats blood pressure as systolic/diastolic.
func (p Physiology) BP() string {
	return fmt.Sprintf("%d/%d", p.Systolic, p.Diastolic)
}

// PhysiologyFor draws the vitals for cond. It reports false for labels it
// does not know, in which case the caller keeps its current physiology.
func PhysiologyFor(cond cue.Condition, rng *rand.Rand) (Physiology, bool) {
	switch cond {
	case cue.Normal:
		return Physiology{BPM: 75, Variability: 0.05, SpO2: 98 + uniform(rng, -1, 1), Systolic: 120, Diastolic: 80}, true
	case cue.Tachycardia:
		return Physiology{BPM: 130, Variability: 0.02, SpO2: 95 + uniform(rng, -1, 1), Systolic: 140, Diastolic: 90}, true
	case cue.Bradycardia:
		return Physiology{BPM: 45, Variability: 0.1, SpO2: 96 + uniform(rng, -2, 1), Systolic: 100, Diastolic: 60}, true
	case cue.Arrhythmia:
		return Physiology{
			BPM:         80,
			Variability: 0.4,
			SpO2:        93 + uniform(rng, -2, 2),
			Systolic:    110 + rng.IntN(21) - 10,
			Diastolic:   70 + rng.IntN(21) - 10,
		}, true
	}
	return Physiology{}, false
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Step is one stage of a scripted scenario.
type Step struct {
	Condition cue.Condition
	Duration  time.Duration
}

// DefaultScenario walks through every condition and recovers to Normal.
var DefaultScenario = []Step{
	{cue.Normal, 5 * time.Second},
	{cue.Tachycardia, 5 * time.Second},
	{cue.Arrhythmia, 8 * time.Second},
	{cue.Bradycardia, 5 * time.Second},
	{cue.Normal, 10 * time.Second},
}

// ScenarioAt returns the scripted condition elapsed into steps, and false once
// the script has finished.
func ScenarioAt(steps []Step, elapsed time.Duration) (cue.Condition, bool) {
	if elapsed < 0 {
		return "", false
	}
	for _, st := range steps {
		if elapsed < st.Duration {
			return st.Condition, true
		}
		elapsed -= st.Duration
	}
	return "", false
}
