// Command pulsesim serves synthetic pulse telemetry over SSE and WebSocket,
// with condition, scenario and AI analysis controls.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/insight"
	"github.com/banshee-data/pulsewave/internal/sim"
	"github.com/banshee-data/pulsewave/internal/version"
)

var (
	listen      = flag.String("listen", ":8000", "HTTP listen address")
	rate        = flag.Float64("rate", sim.DefaultSampleRate, "Samples per second")
	amplitude   = flag.Float64("amplitude", 1.0, "Peak waveform amplitude")
	noise       = flag.Float64("noise", 0.02, "Gaussian noise sigma added to each sample")
	model       = flag.String("model", insight.DefaultModel, "Gemini model used by /api/analyze")
	scenario    = flag.Bool("scenario", false, "Start the default condition scenario at launch")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func simOptions() sim.Options {
	opts := sim.DefaultOptions()
	opts.SampleRate = *rate
	opts.Amplitude = *amplitude
	opts.NoiseSigma = *noise
	return opts
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	analyzer, err := insight.NewGemini(ctx, os.Getenv("GEMINI_API_KEY"), *model)
	if err != nil {
		log.Fatalf("failed to create insight analyzer: %v", err)
	}

	s := sim.New(simOptions())
	if *scenario {
		s.StartScenario(nil)
	}

	server := &http.Server{
		Addr:    *listen,
		Handler: httputil.LoggingMiddleware(sim.NewServer(s, analyzer).ServeMux()),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()
	log.Printf("pulse simulator listening on %s at %.0f samples/s", *listen, s.SampleRate())

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	s.StopScenario()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
}
