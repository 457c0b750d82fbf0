package ingest

import (
	"context"
	"sync/atomic"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/timeutil"
	"github.com/banshee-data/pulsewave/internal/waveform"
)

// Metrics are the vitals forwarded to the display collaborator.
type Metrics struct {
	BPM       float64       `json:"bpm"`
	SpO2      *float64      `json:"spo2,omitempty"`
	BP        string        `json:"bp,omitempty"`
	Condition cue.Condition `json:"condition"`
}

// MetricsSink receives metrics for every accepted event. Update must not
// block.
type MetricsSink interface {
	Update(Metrics)
}

// Stats counts ingest outcomes.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
	Panics   uint64 `json:"panics"`
}

// Ingest applies decoded events to the buffer and machine. Handle never
// panics and never returns an error: bad messages are counted and dropped.
type Ingest struct {
	buf     *waveform.Buffer
	machine *cue.Machine
	hub     *cue.Hub
	sink    MetricsSink
	clock   timeutil.Clock

	accepted atomic.Uint64
	dropped  atomic.Uint64
	panics   atomic.Uint64
}

// New returns an Ingest. hub and sink may be nil.
func New(buf *waveform.Buffer, machine *cue.Machine, hub *cue.Hub, sink MetricsSink, clock timeutil.Clock) *Ingest {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Ingest{buf: buf, machine: machine, hub: hub, sink: sink, clock: clock}
}

// Handle decodes and applies one message.
func (in *Ingest) Handle(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			in.panics.Add(1)
			monitoring.Logf("[Ingest] recovered panic handling event: %v", r)
		}
	}()

	ev, err := Decode(payload)
	if err != nil {
		in.dropped.Add(1)
		monitoring.Debugf("[Ingest] dropped: %v", err)
		return
	}
	in.Apply(ev)
}

// Apply pushes the sample, updates the condition, announces a transition and
// forwards metrics, in that order.
func (in *Ingest) Apply(ev TelemetryEvent) {
	in.buf.Push(ev.Value)
	tr := in.machine.OnCondition(ev.Condition)
	in.accepted.Add(1)

	if tr.Changed {
		monitoring.Logf("[Ingest] condition %s -> %s", tr.Previous, tr.Current)
		if in.hub != nil {
			in.hub.NotifyTransition(cue.TransitionEvent{Previous: tr.Previous, Current: tr.Current, At: in.clock.Now()})
		}
	}
	if in.sink != nil {
		in.sink.Update(Metrics{BPM: ev.BPM, SpO2: ev.SpO2, BP: ev.BP, Condition: ev.Condition})
	}
}

// Run drains lines until ctx is done or the channel is closed.
func (in *Ingest) Run(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			in.Handle([]byte(line))
		}
	}
}

// Stats returns the counters.
func (in *Ingest) Stats() Stats {
	return Stats{Accepted: in.accepted.Load(), Dropped: in.dropped.Load(), Panics: in.panics.Load()}
}
