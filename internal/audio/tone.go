// Package audio synthesises the short cue tones played on waveform peaks and
// hands them to an output device.
package audio

import (
	"math"
	"time"

	"github.com/banshee-data/pulsewave/internal/cue"
)

// Pitches for the three rate classes.
const (
	PitchElevated  = 880.0
	PitchNormal    = 440.0
	PitchDepressed = 220.0
)

// envelopeFloor is the level the decay reaches at the end of a tone.
const envelopeFloor = 1e-5

// Tone describes one cue.
type Tone struct {
	Frequency float64
	Duration  time.Duration
	Gain      float64
}

// DefaultTone is 440 Hz for 100ms at gain 0.1.
func DefaultTone() Tone {
	return Tone{Frequency: PitchNormal, Duration: 100 * time.Millisecond, Gain: 0.1}
}

// PitchFor returns the frequency for a rate class.
func PitchFor(r cue.Rate) float64 {
	switch r {
	case cue.RateElevated:
		return PitchElevated
	case cue.RateDepressed:
		return PitchDepressed
	default:
		return PitchNormal
	}
}

// Synthesize renders t as mono float32 samples. The envelope starts at
// t.Gain and decays exponentially to 1e-5 on the last sample.
func Synthesize(t Tone, sampleRate int) []float32 {
	if sampleRate <= 0 || t.Duration <= 0 || t.Gain <= 0 {
		return nil
	}
	n := int(math.Round(t.Duration.Seconds() * float64(sampleRate)))
	if n < 1 {
		return nil
	}
	out := make([]float32, n)
	gain := t.Gain
	if gain < envelopeFloor {
		gain = envelopeFloor
	}
	// Per-sample decay factor so that gain * k^(n-1) == floor.
	k := 1.0
	if n > 1 {
		k = math.Pow(envelopeFloor/gain, 1/float64(n-1))
	}
	env := gain
	step := 2 * math.Pi * t.Frequency / float64(sampleRate)
	for i := range out {
		out[i] = float32(math.Sin(step*float64(i)) * env)
		env *= k
	}
	return out
}
