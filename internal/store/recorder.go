package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/monitoring"
)

type job struct {
	transition *cue.TransitionEvent
	cue        *cue.CueEvent
}

// Recorder writes hub events to the store on its own goroutine. The hub
// callbacks only enqueue; a full queue drops the event.
type Recorder struct {
	store     *Store
	sessionID string
	queue     chan job

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder starts a worker that records events for sessionID.
func NewRecorder(s *Store, sessionID string, depth int) *Recorder {
	if depth < 1 {
		depth = 1
	}
	r := &Recorder{store: s, sessionID: sessionID, queue: make(chan job, depth)}
	r.wg.Add(1)
	go r.run()
	return r
}

// SessionID returns the session events are recorded under.
func (r *Recorder) SessionID() string { return r.sessionID }

// OnTransition implements cue.TransitionListener.
func (r *Recorder) OnTransition(ev cue.TransitionEvent) {
	r.enqueue(job{transition: &ev})
}

// OnCue implements cue.CueListener.
func (r *Recorder) OnCue(ev cue.CueEvent) {
	r.enqueue(job{cue: &ev})
}

func (r *Recorder) enqueue(j job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- j:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			monitoring.Logf("[Store] recorder queue full, %d events dropped", n)
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	ctx := context.Background()
	for j := range r.queue {
		var err error
		switch {
		case j.transition != nil:
			err = r.store.RecordTransition(ctx, r.sessionID, *j.transition)
		case j.cue != nil:
			err = r.store.RecordCue(ctx, r.sessionID, *j.cue)
		}
		if err != nil {
			r.failed.Add(1)
			monitoring.Logf("[Store] %v", err)
			continue
		}
		r.written.Add(1)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
}

// RecorderStats counts recorder outcomes.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}
