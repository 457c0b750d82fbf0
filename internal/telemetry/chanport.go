package telemetry

import (
	"io"
	"sync"
	"sync/atomic"
)

// chanPort is a Port fed by message callbacks from transports that push
// rather than stream. Each message becomes one line; messages arriving while
// the queue is full are dropped.
type chanPort struct {
	msgs    chan []byte
	done    chan struct{}
	once    sync.Once
	pending []byte
	dropped atomic.Uint64
	onClose func()
}

func newChanPort(depth int, onClose func()) *chanPort {
	if depth < 1 {
		depth = 1
	}
	return &chanPort{
		msgs:    make(chan []byte, depth),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// push queues one message without blocking. It reports false on drop.
func (p *chanPort) push(msg []byte) bool {
	line := make([]byte, 0, len(msg)+1)
	line = append(line, msg...)
	line = append(line, '\n')
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.msgs <- line:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

func (p *chanPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case msg := <-p.msgs:
			p.pending = msg
		case <-p.done:
			return 0, io.EOF
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *chanPort) Close() error {
	p.once.Do(func() {
		close(p.done)
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

// Dropped returns how many pushed messages were discarded.
func (p *chanPort) Dropped() uint64 { return p.dropped.Load() }
