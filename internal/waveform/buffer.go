// Package waveform holds the fixed-capacity sample ring shared by ingest
// (writer) and the render loop (reader).
package waveform

import "sync"

// Buffer is a ring of exactly Capacity() samples, oldest first. Push evicts
// the oldest sample; the length never changes.
type Buffer struct {
	mu      sync.Mutex
	data    []float64
	head    int    // index of the oldest sample
	seq     uint64 // total pushes since construction
	resetAt uint64 // seq at the last Reset
	fill    float64
}

// Snapshot is a copy of the ring taken under the lock.
type Snapshot struct {
	// Values are oldest-first and owned by the caller.
	Values []float64
	// Seq is the number of pushes made before the snapshot was taken.
	Seq uint64
}

// New creates a buffer of the given capacity pre-filled with fill.
// Capacity below 1 is raised to 1.
func New(capacity int, fill float64) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer{data: make([]float64, capacity), fill: fill}
	for i := range b.data {
		b.data[i] = fill
	}
	return b
}

// Capacity returns N.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Push appends v and evicts the oldest sample.
func (b *Buffer) Push(v float64) {
	b.mu.Lock()
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	b.seq++
	b.mu.Unlock()
}

// Snapshot returns the current N values in arrival order.
func (b *Buffer) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Values: b.orderedLocked(), Seq: b.seq}
}

// Read returns a snapshot together with the samples pushed after seq, taken
// under one lock so the two always agree. Pass the snapshot's Seq on the
// next call.
func (b *Buffer) Read(seq uint64) (Snapshot, []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Values: b.orderedLocked(), Seq: b.seq}, b.sinceLocked(seq)
}

// Since returns the samples pushed after seq, oldest first, together with the
// sequence number to pass on the next call. At most N values are returned;
// anything older has already been evicted or cleared by Reset.
func (b *Buffer) Since(seq uint64) ([]float64, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinceLocked(seq), b.seq
}

func (b *Buffer) sinceLocked(seq uint64) []float64 {
	if seq < b.resetAt {
		seq = b.resetAt
	}
	if seq >= b.seq {
		return nil
	}
	n := b.seq - seq
	if n > uint64(len(b.data)) {
		n = uint64(len(b.data))
	}
	out := make([]float64, n)
	start := (b.head - int(n) + len(b.data)) % len(b.data)
	for i := range out {
		out[i] = b.data[(start+i)%len(b.data)]
	}
	return out
}

// Seq returns the number of pushes made so far.
func (b *Buffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Reset refills the ring with the fill value. Seq keeps counting so readers
// tracking it never see it go backwards.
func (b *Buffer) Reset() {
	b.mu.Lock()
	for i := range b.data {
		b.data[i] = b.fill
	}
	b.head = 0
	b.resetAt = b.seq
	b.mu.Unlock()
}

func (b *Buffer) orderedLocked() []float64 {
	out := make([]float64, len(b.data))
	n := copy(out, b.data[b.head:])
	copy(out[n:], b.data[:b.head])
	return out
}
