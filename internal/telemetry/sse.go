package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/pulsewave/internal/httputil"
)

// OpenSSE connects to a Server-Sent Events endpoint. The response body is the
// port; Mux.Normalize strips the data: framing.
func OpenSSE(ctx context.Context, client httputil.HTTPClient, url string, bufSize int) (*Mux[io.ReadCloser], error) {
	if client == nil {
		client = httputil.StreamingClient()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("connect %s: unexpected status %d", url, resp.StatusCode)
	}
	return NewMux[io.ReadCloser]("sse:"+url, resp.Body, bufSize), nil
}
