// Package api serves the monitor's HTTP surface: live state, the latest frame
// as PNG, an HTML chart of the current window, and viewport, theme and reset
// controls.
package api

import (
	"net/http"

	"github.com/banshee-data/pulsewave/internal/insight"
	"github.com/banshee-data/pulsewave/internal/monitor"
	"github.com/banshee-data/pulsewave/internal/render"
)

// FrameSource supplies the most recently encoded PNG frame.
type FrameSource interface {
	Frame() []byte
}

// Options holds the optional collaborators of a Server.
type Options struct {
	// Frames serves /api/frame.png. Usually the session's ImageSurface.
	Frames FrameSource
	// Viewport receives /api/viewport resizes.
	Viewport *render.ResizableContainer
	// Analyzer answers /api/analyze and /api/report.
	Analyzer insight.Analyzer
}

// Server exposes a monitor session over HTTP.
type Server struct {
	session  *monitor.Session
	frames   FrameSource
	viewport *render.ResizableContainer
	analyzer insight.Analyzer
}

// NewServer creates a Server for session.
func NewServer(session *monitor.Session, opts Options) *Server {
	return &Server{
		session:  session,
		frames:   opts.Frames,
		viewport: opts.Viewport,
		analyzer: opts.Analyzer,
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/frame.png", s.showFrame)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/viewport", s.setViewport)
	mux.HandleFunc("/api/theme", s.handleTheme)
	mux.HandleFunc("/api/reset", s.reset)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/analyze", s.analyze)
	mux.HandleFunc("/api/report", s.report)
	return mux
}
