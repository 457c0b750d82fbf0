// Package telemetry reads newline-delimited telemetry from a transport (serial
// line, SSE stream, WebSocket, MQTT topic, UDP socket, pcap replay or the
// in-process simulator) and fans each message out to subscribers.
package telemetry

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/pulsewave/internal/monitoring"
)

// ErrClosed is returned by Monitor after Close.
var ErrClosed = errors.New("telemetry source closed")

// maxLineSize bounds a single message.
const maxLineSize = 64 * 1024

// Port is the byte stream a source reads from.
type Port interface {
	io.Reader
	io.Closer
}

// Source is a subscribable stream of normalised telemetry lines.
type Source interface {
	// Subscribe returns a buffered channel of lines. The ID is used to
	// unsubscribe.
	Subscribe() (string, <-chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// Monitor reads the port until it ends, fails or ctx is cancelled.
	Monitor(context.Context) error
	// Close closes every subscriber channel and the port.
	Close() error
	// Stats returns line counters.
	Stats() Stats
	// AttachAdminRoutes mounts debugging endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts lines seen by a Mux.
type Stats struct {
	Lines       uint64 `json:"lines"`
	Skipped     uint64 `json:"skipped"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Mux reads lines from one Port and delivers them to many subscribers. A
// subscriber whose buffer is full misses the line rather than stalling the
// reader.
type Mux[T Port] struct {
	name         string
	port         T
	bufSize      int
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      atomic.Bool

	lines   atomic.Uint64
	skipped atomic.Uint64
	dropped atomic.Uint64
}

// NewMux creates a Mux over port. name labels log lines and admin pages;
// bufSize is the per-subscriber channel depth.
func NewMux[T Port](name string, port T, bufSize int) *Mux[T] {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Mux[T]{
		name:        name,
		port:        port,
		bufSize:     bufSize,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe implements Source. Subscribing after Close returns a closed
// channel.
func (m *Mux[T]) Subscribe() (string, <-chan string) {
	id := randomID()
	ch := make(chan string, m.bufSize)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closing.Load() {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe implements Source.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Normalize strips transport framing from one raw line. It returns false for
// lines that carry no message: blanks, SSE comments and SSE fields other than
// data.
func Normalize(raw string) (string, bool) {
	line := strings.TrimSpace(raw)
	switch {
	case line == "":
		return "", false
	case strings.HasPrefix(line, ":"):
		return "", false
	case strings.HasPrefix(line, "data:"):
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return line, line != ""
	case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
		return "", false
	}
	return line, true
}

// Monitor implements Source.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)
	scan.Buffer(make([]byte, 0, 4096), maxLineSize)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so cancellation is
	// observed even while the port is idle.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	monitoring.Logf("[Telemetry] %s: monitoring", m.name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if m.closing.Load() {
				return ErrClosed
			}
			return fmt.Errorf("%s: read: %w", m.name, err)

		case raw, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if m.closing.Load() {
						return ErrClosed
					}
					return fmt.Errorf("%s: read: %w", m.name, err)
				default:
				}
				monitoring.Logf("[Telemetry] %s: stream ended after %d lines", m.name, m.lines.Load())
				return nil
			}
			if m.closing.Load() {
				return ErrClosed
			}
			line, ok := Normalize(raw)
			if !ok {
				m.skipped.Add(1)
				continue
			}
			m.lines.Add(1)
			m.broadcast(line)
		}
	}
}

func (m *Mux[T]) broadcast(line string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
			// full subscriber: skip so the reader never blocks
			if n := m.dropped.Add(1); n == 1 || n%1000 == 0 {
				monitoring.Logf("[Telemetry] %s: slow subscriber, %d lines dropped", m.name, n)
			}
		}
	}
}

// Close implements Source. It is safe to call more than once.
func (m *Mux[T]) Close() error {
	if m.closing.Swap(true) {
		return nil
	}
	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()
	return m.port.Close()
}

// Stats implements Source.
func (m *Mux[T]) Stats() Stats {
	m.subscriberMu.Lock()
	n := len(m.subscribers)
	m.subscriberMu.Unlock()
	return Stats{
		Lines:       m.lines.Load(),
		Skipped:     m.skipped.Load(),
		Dropped:     m.dropped.Load(),
		Subscribers: n,
	}
}

// Name returns the source label.
func (m *Mux[T]) Name() string { return m.name }

// AttachAdminRoutes implements Source: a live SSE tail of normalised lines
// and a counters page.
func (m *Mux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("telemetry source", func() any { return m.name })
	debug.HandleFunc("telemetry", "telemetry source counters", func(w http.ResponseWriter, r *http.Request) {
		st := m.Stats()
		fmt.Fprintf(w, "source: %s\nlines: %d\nskipped: %d\ndropped: %d\nsubscribers: %d\n",
			m.name, st.Lines, st.Skipped, st.Dropped, st.Subscribers)
	})

	// Server-Sent Events tail of every line the mux delivers.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
