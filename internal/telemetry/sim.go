package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/banshee-data/pulsewave/internal/sim"
)

// simPort streams JSON samples from an in-process simulator.
type simPort struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *simPort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *simPort) Close() error {
	p.cancel()
	err := p.pr.Close()
	<-p.done
	return err
}

// OpenSimulator feeds samples from s as if they came over the wire, so the
// monitor can run without a backend.
func OpenSimulator(s *sim.Simulator, bufSize int) *Mux[io.ReadCloser] {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	port := &simPort{pr: pr, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(port.done)
		enc := json.NewEncoder(pw)
		err := s.Stream(ctx, func(sample sim.Sample) error {
			return enc.Encode(sample)
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		pw.CloseWithError(err)
	}()
	return NewMux[io.ReadCloser]("sim", port, bufSize)
}
