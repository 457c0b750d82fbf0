// Package cue tracks the current condition and the two-threshold latch that
// decides when a waveform peak earns an audio cue.
package cue

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid cue thresholds")

// Thresholds are the latch bands. A sample above High fires when armed; a
// sample below Low re-arms.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultThresholds are 0.5 / 1.5 in sample amplitude units.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.5, High: 1.5}
}

// Validate requires finite values with Low < High.
func (t Thresholds) Validate() error {
	if math.IsNaN(t.Low) || math.IsNaN(t.High) || math.IsInf(t.Low, 0) || math.IsInf(t.High, 0) {
		return fmt.Errorf("%w: thresholds must be finite", ErrInvalidThresholds)
	}
	if t.Low >= t.High {
		return fmt.Errorf("%w: low %g must be below high %g", ErrInvalidThresholds, t.Low, t.High)
	}
	return nil
}

// CueState is a point-in-time view of the machine.
type CueState struct {
	Condition Condition `json:"condition"`
	Armed     bool      `json:"armed"`
}

// Transition is the result of OnCondition. Previous and Current are only
// meaningful when Changed is true.
type Transition struct {
	Changed  bool
	Previous Condition
	Current  Condition
}

// Machine owns the current condition and the armed latch. Ingest updates the
// condition; the render loop feeds samples. All methods are safe for
// concurrent use.
type Machine struct {
	mu         sync.Mutex
	thresholds Thresholds
	condition  Condition
	armed      bool
}

// NewMachine returns a machine in the Normal condition, armed. Callers are
// expected to have validated the thresholds.
func NewMachine(t Thresholds) *Machine {
	return &Machine{thresholds: t, condition: Normal, armed: true}
}

// Thresholds returns the configured latch bands.
func (m *Machine) Thresholds() Thresholds {
	return m.thresholds
}

// OnCondition records c as the current condition. Changed is true only when
// c differs from the previous label.
func (m *Machine) OnCondition(c Condition) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c == m.condition {
		return Transition{}
	}
	tr := Transition{Changed: true, Previous: m.condition, Current: c}
	m.condition = c
	return tr
}

// ObserveSample runs the latch on one sample and reports whether a cue fires.
// Above High while armed fires and disarms; below Low re-arms.
func (m *Machine) ObserveSample(v float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observeLocked(v)
}

// ObserveBatch feeds samples in order under one lock and returns how many
// cues fired. A low crossing earlier in the batch re-arms before a later high
// crossing is checked.
func (m *Machine) ObserveBatch(vs []float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	fired := 0
	for _, v := range vs {
		if m.observeLocked(v) {
			fired++
		}
	}
	return fired
}

func (m *Machine) observeLocked(v float64) bool {
	if v > m.thresholds.High && m.armed {
		m.armed = false
		return true
	}
	if v < m.thresholds.Low {
		m.armed = true
	}
	return false
}

// State returns the current condition and latch.
func (m *Machine) State() CueState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CueState{Condition: m.condition, Armed: m.armed}
}

// Condition returns the current condition.
func (m *Machine) Condition() Condition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.condition
}

// Reset returns to Normal, armed. The returned Transition is Changed when
// the condition was not already Normal.
func (m *Machine) Reset() Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tr Transition
	if m.condition != Normal {
		tr = Transition{Changed: true, Previous: m.condition, Current: Normal}
	}
	m.condition = Normal
	m.armed = true
	return tr
}
