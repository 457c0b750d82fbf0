package cue

import (
	"sync"
	"time"

	"github.com/banshee-data/pulsewave/internal/monitoring"
)

// TransitionEvent is a condition change as delivered to listeners.
type TransitionEvent struct {
	Previous Condition
	Current  Condition
	At       time.Time
}

// CueEvent is one fired cue.
type CueEvent struct {
	Condition Condition
	Value     float64
	At        time.Time
}

// TransitionListener is notified of condition changes. Implementations must
// not block; slow work belongs on the listener's own goroutine.
type TransitionListener interface {
	OnTransition(TransitionEvent)
}

// CueListener is notified of fired cues under the same rules.
type CueListener interface {
	OnCue(CueEvent)
}

// TransitionFunc adapts a function to TransitionListener.
type TransitionFunc func(TransitionEvent)

func (f TransitionFunc) OnTransition(ev TransitionEvent) { f(ev) }

// CueFunc adapts a function to CueListener.
type CueFunc func(CueEvent)

func (f CueFunc) OnCue(ev CueEvent) { f(ev) }

// Hub fans events out to registered listeners. The listener list is copied
// before delivery so no lock is held while listeners run, and a panicking
// listener is logged and skipped.
type Hub struct {
	mu          sync.RWMutex
	transitions []TransitionListener
	cues        []CueListener
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// AddTransitionListener registers l.
func (h *Hub) AddTransitionListener(l TransitionListener) {
	h.mu.Lock()
	h.transitions = append(h.transitions, l)
	h.mu.Unlock()
}

// AddCueListener registers l.
func (h *Hub) AddCueListener(l CueListener) {
	h.mu.Lock()
	h.cues = append(h.cues, l)
	h.mu.Unlock()
}

// NotifyTransition delivers ev to every transition listener in registration order.
func (h *Hub) NotifyTransition(ev TransitionEvent) {
	h.mu.RLock()
	ls := append([]TransitionListener(nil), h.transitions...)
	h.mu.RUnlock()

	for _, l := range ls {
		deliver(func() { l.OnTransition(ev) })
	}
}

// NotifyCue delivers ev to every cue listener in registration order.
func (h *Hub) NotifyCue(ev CueEvent) {
	h.mu.RLock()
	ls := append([]CueListener(nil), h.cues...)
	h.mu.RUnlock()

	for _, l := range ls {
		deliver(func() { l.OnCue(ev) })
	}
}

func deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("[Cue] listener panic: %v", r)
		}
	}()
	fn()
}
