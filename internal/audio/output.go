package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

// ErrOutputUnavailable is returned by outputs that cannot play.
var ErrOutputUnavailable = errors.New("audio output unavailable")

// State is the activation state of an output device.
type State int

const (
	// StateSuspended means the device exists but is not producing sound yet.
	StateSuspended State = iota
	StateRunning
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	default:
		return "unavailable"
	}
}

// Output plays mono float32 buffers. Each Start call is an independent
// source; overlapping calls mix rather than queue.
type Output interface {
	State() State
	Resume() error
	Start(samples []float32) error
}

// OtoOutput plays through the system audio device via oto.
type OtoOutput struct {
	ctx        *oto.Context
	ready      chan struct{}
	sampleRate int
	suspended  atomic.Bool
	playing    sync.WaitGroup
}

// NewOtoOutput opens the audio device. The output reports StateSuspended
// until the device signals it is ready.
func NewOtoOutput(sampleRate int) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(sampleRate, 2, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	return &OtoOutput{ctx: ctx, ready: ready, sampleRate: sampleRate}, nil
}

// SampleRate returns the device rate.
func (o *OtoOutput) SampleRate() int {
	return o.sampleRate
}

// State implements Output.
func (o *OtoOutput) State() State {
	if o.ctx == nil || o.ctx.Err() != nil {
		return StateUnavailable
	}
	select {
	case <-o.ready:
	default:
		return StateSuspended
	}
	if o.suspended.Load() {
		return StateSuspended
	}
	return StateRunning
}

// Resume implements Output. Resuming before the device is ready or while
// already running is a no-op.
func (o *OtoOutput) Resume() error {
	if o.ctx == nil {
		return ErrOutputUnavailable
	}
	select {
	case <-o.ready:
	default:
		return nil
	}
	if !o.suspended.Load() {
		return nil
	}
	if err := o.ctx.Resume(); err != nil {
		return fmt.Errorf("resume audio device: %w", err)
	}
	o.suspended.Store(false)
	return nil
}

// Suspend pauses the device. Used when the monitor is muted at runtime.
func (o *OtoOutput) Suspend() error {
	if o.ctx == nil {
		return ErrOutputUnavailable
	}
	if err := o.ctx.Suspend(); err != nil {
		return fmt.Errorf("suspend audio device: %w", err)
	}
	o.suspended.Store(true)
	return nil
}

// Start implements Output. The player is closed on its own goroutine once
// the buffer drains.
func (o *OtoOutput) Start(samples []float32) error {
	if o.State() != StateRunning {
		return ErrOutputUnavailable
	}
	if len(samples) == 0 {
		return nil
	}
	player := o.ctx.NewPlayer(bytes.NewReader(encodeStereoF32(samples)))
	player.Play()
	o.playing.Add(1)
	go func() {
		defer o.playing.Done()
		for player.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
		player.Close()
	}()
	return nil
}

// Wait blocks until every started tone has finished.
func (o *OtoOutput) Wait() {
	o.playing.Wait()
}

// encodeStereoF32 duplicates each mono sample into both channels as
// little-endian float32.
func encodeStereoF32(samples []float32) []byte {
	buf := make([]byte, len(samples)*8)
	for i, s := range samples {
		v := math.Float32bits(s)
		for ch := 0; ch < 2; ch++ {
			off := i*8 + ch*4
			buf[off] = byte(v)
			buf[off+1] = byte(v >> 8)
			buf[off+2] = byte(v >> 16)
			buf[off+3] = byte(v >> 24)
		}
	}
	return buf
}

// NopOutput is always unavailable. It is the output when audio is disabled.
type NopOutput struct{}

func (NopOutput) State() State { return StateUnavailable }

func (NopOutput) Resume() error { return nil }

func (NopOutput) Start([]float32) error { return ErrOutputUnavailable }

// RecordingOutput records started buffers for tests and headless runs.
type RecordingOutput struct {
	mu      sync.Mutex
	state   State
	starts  [][]float32
	resumes int

	ResumeErr error
	StartErr  error
}

// NewRecordingOutput returns a recorder in the given state.
func NewRecordingOutput(initial State) *RecordingOutput {
	return &RecordingOutput{state: initial}
}

// State implements Output.
func (r *RecordingOutput) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Resume implements Output. A suspended recorder becomes running unless
// ResumeErr is set.
func (r *RecordingOutput) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes++
	if r.ResumeErr != nil {
		return r.ResumeErr
	}
	if r.state == StateSuspended {
		r.state = StateRunning
	}
	return nil
}

// Start implements Output.
func (r *RecordingOutput) Start(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	if r.state != StateRunning {
		return ErrOutputUnavailable
	}
	r.starts = append(r.starts, samples)
	return nil
}

// Starts returns the recorded buffers.
func (r *RecordingOutput) Starts() [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]float32(nil), r.starts...)
}

// Resumes returns how many times Resume was called.
func (r *RecordingOutput) Resumes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumes
}
