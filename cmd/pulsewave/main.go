// Command pulsewave renders a live pulse waveform from a telemetry stream,
// plays audible cues on threshold crossings and serves the monitor API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pulsewave/internal/api"
	"github.com/banshee-data/pulsewave/internal/audio"
	"github.com/banshee-data/pulsewave/internal/config"
	"github.com/banshee-data/pulsewave/internal/eventstream"
	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/insight"
	"github.com/banshee-data/pulsewave/internal/monitor"
	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/render"
	"github.com/banshee-data/pulsewave/internal/store"
	"github.com/banshee-data/pulsewave/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON or YAML monitor config (defaults apply when empty)")
	sourceKind  = flag.String("source", "sse", "Telemetry source: sse, ws, serial, mqtt, pcap, udp or sim")
	streamURL   = flag.String("url", "http://localhost:8000/stream", "Stream URL for the sse and ws sources")
	serialPort  = flag.String("serial-port", "/dev/ttyUSB0", "Serial device for the serial source")
	baudRate    = flag.Int("baud", 115200, "Serial baud rate")
	mqttBroker  = flag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker for the mqtt source")
	mqttTopic   = flag.String("mqtt-topic", "pulsewave/telemetry", "MQTT topic for the mqtt source")
	pcapFile    = flag.String("pcap", "", "Capture file for the pcap source")
	pcapPort    = flag.Int("pcap-port", 0, "UDP port to keep when replaying a capture (0 keeps all)")
	pcapSpeed   = flag.Float64("pcap-speed", 1.0, "Capture replay speed multiplier (0 replays as fast as possible)")
	udpListen   = flag.String("udp-listen", ":9750", "Listen address for the udp source")
	simRate     = flag.Float64("sim-rate", 0, "Sample rate for the built-in sim source (0 uses the default)")
	listen      = flag.String("listen", ":8080", "HTTP listen address for the monitor API")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address for the event stream (disabled when empty)")
	dbPath      = flag.String("db", "", "SQLite file recording sessions and cues (disabled when empty)")
	enableAudio = flag.Bool("audio", true, "Play audible cues")
	tuiMode     = flag.Bool("tui", false, "Draw the waveform in the terminal")
	debug       = flag.Bool("debug", false, "Enable per-frame debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig(path string) (*config.MonitorConfig, error) {
	if path == "" {
		return config.EmptyMonitorConfig(), nil
	}
	return config.LoadMonitorConfig(path)
}

// openOutput returns the audio output. A missing device degrades to a silent
// output rather than stopping the monitor.
func openOutput(enabled bool, sampleRate int) audio.Output {
	if !enabled {
		return audio.NopOutput{}
	}
	out, err := audio.NewOtoOutput(sampleRate)
	if err != nil {
		log.Printf("audio unavailable, cues will be silent: %v", err)
		return audio.NopOutput{}
	}
	return out
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx, sourceFlags{
		Kind:       *sourceKind,
		URL:        *streamURL,
		SerialPort: *serialPort,
		BaudRate:   *baudRate,
		MQTTBroker: *mqttBroker,
		MQTTTopic:  *mqttTopic,
		PCAPFile:   *pcapFile,
		PCAPPort:   *pcapPort,
		PCAPSpeed:  *pcapSpeed,
		UDPListen:  *udpListen,
		SimRate:    *simRate,
		BufSize:    cfg.GetSubscriberBuffer(),
	})
	if err != nil {
		log.Fatalf("failed to open telemetry source: %v", err)
	}
	log.Printf("telemetry source %q opened", *sourceKind)

	var st *store.Store
	if *dbPath != "" {
		st, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open event store: %v", err)
		}
		defer st.Close()
	}

	var (
		surface   render.Surface
		container render.Container
		frames    api.FrameSource
		viewport  *render.ResizableContainer
	)
	if *tuiMode {
		if !render.IsTerminal(os.Stdout) {
			log.Fatal("-tui requires a terminal on stdout")
		}
		tc := render.NewTerminalContainer(os.Stdout)
		defer tc.Close()
		w, h := tc.Bounds()
		surface = render.NewTerminalSurface(os.Stdout, w, h)
		container = tc
		// Log lines would tear the terminal frame.
		log.SetOutput(io.Discard)
	} else {
		img := render.NewImageSurface(cfg.GetWidth(), cfg.GetHeight(), 1)
		viewport = render.NewResizableContainer(cfg.GetWidth(), cfg.GetHeight())
		surface, container, frames = img, viewport, img
	}

	out := openOutput(*enableAudio, cfg.GetSampleRate())
	session, err := monitor.New(ctx, monitor.Options{
		Config:     cfg,
		Source:     src,
		Surface:    surface,
		Container:  container,
		Output:     out,
		Store:      st,
		SourceName: *sourceKind,
	})
	if err != nil {
		log.Fatalf("failed to create monitor session: %v", err)
	}

	var publisher *eventstream.Publisher
	if *grpcListen != "" {
		pcfg := eventstream.DefaultConfig()
		pcfg.ListenAddr = *grpcListen
		publisher = eventstream.NewPublisher(pcfg)
		if err := publisher.Start(); err != nil {
			log.Fatalf("failed to start event stream: %v", err)
		}
		defer publisher.Stop()
		session.AddListener(publisher)
	}

	analyzer, err := insight.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), cfg.GetInsightModel())
	if err != nil {
		log.Printf("insight disabled: %v", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("monitor session stopped: %v", err)
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		opts := api.Options{Frames: frames, Viewport: viewport}
		if analyzer != nil {
			opts.Analyzer = analyzer
		}
		mux := api.NewServer(session, opts).ServeMux()
		src.AttachAdminRoutes(mux)
		if st != nil {
			if err := st.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach store admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: httputil.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("monitor API listening on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
