package main

import (
	"context"
	"fmt"
	"log"

	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/sim"
	"github.com/banshee-data/pulsewave/internal/telemetry"
)

// sourceFlags carries the flag values needed to open a telemetry source.
type sourceFlags struct {
	Kind       string
	URL        string
	SerialPort string
	BaudRate   int
	MQTTBroker string
	MQTTTopic  string
	PCAPFile   string
	PCAPPort   int
	PCAPSpeed  float64
	UDPListen  string
	SimRate    float64
	BufSize    int
}

// openSource opens the telemetry source selected by f.Kind.
func openSource(ctx context.Context, f sourceFlags) (telemetry.Source, error) {
	switch f.Kind {
	case "sse":
		if f.URL == "" {
			return nil, fmt.Errorf("-url is required for source %q", f.Kind)
		}
		src, err := telemetry.OpenSSE(ctx, httputil.StreamingClient(), f.URL, f.BufSize)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "ws":
		if f.URL == "" {
			return nil, fmt.Errorf("-url is required for source %q", f.Kind)
		}
		src, err := telemetry.DialWebSocket(ctx, f.URL, f.BufSize)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "serial":
		src, err := telemetry.OpenSerial(f.SerialPort, telemetry.PortOptions{BaudRate: f.BaudRate}, f.BufSize)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "mqtt":
		src, err := telemetry.SubscribeMQTT(telemetry.MQTTOptions{Broker: f.MQTTBroker, Topic: f.MQTTTopic}, f.BufSize)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "pcap":
		src, err := telemetry.OpenPCAP(f.PCAPFile, telemetry.ReplayConfig{UDPPort: f.PCAPPort, SpeedMultiplier: f.PCAPSpeed}, f.BufSize)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "udp":
		src, addr, err := telemetry.ListenUDP(f.UDPListen, f.BufSize)
		if err != nil {
			return nil, err
		}
		log.Printf("listening for UDP telemetry on %s", addr)
		return src, nil
	case "sim":
		opts := sim.DefaultOptions()
		if f.SimRate > 0 {
			opts.SampleRate = f.SimRate
		}
		return telemetry.OpenSimulator(sim.New(opts), f.BufSize), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want sse, ws, serial, mqtt, pcap, udp or sim)", f.Kind)
	}
}
