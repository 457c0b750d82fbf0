package audio

import (
	"sync/atomic"
	"time"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/monitoring"
)

// Cue plays one tone per fired cue. It keeps no per-call state, so
// overlapping plays are independent.
type Cue struct {
	out        Output
	classifier cue.Classifier
	base       Tone
	sampleRate int

	played   atomic.Uint64
	silenced atomic.Uint64
}

// NewCue returns a Cue writing to out. base supplies duration and gain; its
// frequency is replaced per condition.
func NewCue(out Output, classifier cue.Classifier, base Tone, sampleRate int) *Cue {
	if out == nil {
		out = NopOutput{}
	}
	return &Cue{out: out, classifier: classifier, base: base, sampleRate: sampleRate}
}

// ToneFor returns the tone for a condition: elevated conditions are high,
// depressed conditions low, everything else mid pitch.
func (c *Cue) ToneFor(cond cue.Condition) Tone {
	t := c.base
	t.Frequency = PitchFor(c.classifier.Rate(cond))
	return t
}

// Play synthesises and starts the tone for cond. It never returns an error
// or panics: an unavailable device means silence.
func (c *Cue) Play(cond cue.Condition) {
	defer func() {
		if r := recover(); r != nil {
			c.silenced.Add(1)
			monitoring.Logf("[Audio] output panic: %v", r)
		}
	}()

	if c.out.State() == StateSuspended {
		if err := c.out.Resume(); err != nil {
			monitoring.Debugf("[Audio] resume failed: %v", err)
		}
	}
	if st := c.out.State(); st != StateRunning {
		c.silenced.Add(1)
		monitoring.Debugf("[Audio] output %s, cue for %s silenced", st, cond)
		return
	}

	t := c.ToneFor(cond)
	if err := c.out.Start(Synthesize(t, c.sampleRate)); err != nil {
		c.silenced.Add(1)
		monitoring.Debugf("[Audio] start tone: %v", err)
		return
	}
	c.played.Add(1)
	monitoring.Debugf("[Audio] %s cue %.0f Hz for %s", cond, t.Frequency, t.Duration.Round(time.Millisecond))
}

// Stats returns how many cues played and how many were silenced.
func (c *Cue) Stats() (played, silenced uint64) {
	return c.played.Load(), c.silenced.Load()
}

// OutputState reports the state of the underlying device.
func (c *Cue) OutputState() State {
	return c.out.State()
}
