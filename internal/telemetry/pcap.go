package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/timeutil"
)

// ReplayConfig controls pcap replay.
type ReplayConfig struct {
	// UDPPort keeps only datagrams to or from this port. Zero keeps all.
	UDPPort int
	// SpeedMultiplier scales capture timing (1.0 = real-time, 2.0 = 2x
	// speed). Zero or negative replays as fast as possible.
	SpeedMultiplier float64
	// Clock paces the replay. Defaults to the wall clock.
	Clock timeutil.Clock
}

// replayPort streams UDP payloads from a capture file as lines.
type replayPort struct {
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *replayPort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *replayPort) Close() error {
	p.cancel()
	err := p.pr.Close()
	<-p.done
	return err
}

// OpenPCAP replays UDP telemetry datagrams captured in a pcap file, honouring
// the original inter-packet timing scaled by cfg.SpeedMultiplier.
func OpenPCAP(path string, cfg ReplayConfig, bufSize int) (*Mux[io.ReadCloser], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read pcap header %s: %w", path, err)
	}
	port := replayPCAP(r, f, cfg)
	return NewMux[io.ReadCloser]("pcap:"+path, port, bufSize), nil
}

func replayPCAP(r *pcapgo.Reader, f io.Closer, cfg ReplayConfig) *replayPort {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	port := &replayPort{pr: pr, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(port.done)
		defer f.Close()
		err := replayPackets(ctx, r, pw, cfg)
		pw.CloseWithError(err)
	}()
	return port
}

func replayPackets(ctx context.Context, r *pcapgo.Reader, w io.Writer, cfg ReplayConfig) error {
	var last time.Time
	count := 0
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			monitoring.Logf("[Telemetry] pcap replay complete: %d datagrams", count)
			return nil
		}
		if err != nil {
			return fmt.Errorf("pcap: %w", err)
		}

		if cfg.SpeedMultiplier > 0 && !last.IsZero() {
			delay := time.Duration(float64(ci.Timestamp.Sub(last)) / cfg.SpeedMultiplier)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-cfg.Clock.After(delay):
				}
			}
		}
		last = ci.Timestamp

		payload := udpPayload(data, r.LinkType(), cfg.UDPPort)
		if len(payload) == 0 {
			continue
		}
		count++
		line := append(append([]byte(nil), payload...), '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// udpPayload extracts a UDP payload from a captured frame, or nil when the
// frame is not UDP or does not match port.
func udpPayload(data []byte, link layers.LinkType, port int) []byte {
	packet := gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil
	}
	if port > 0 && int(udp.DstPort) != port && int(udp.SrcPort) != port {
		return nil
	}
	return udp.Payload
}
