// Package insight produces short AI-generated readings of the current pulse
// state and longer session reports.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/banshee-data/pulsewave/internal/monitoring"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

const (
	offlineAnalysis = "AI Module Offline: No API Key configured."
	offlineReport   = "AI Module Offline."
)

// Snapshot is the pulse state handed to the analyzer.
type Snapshot struct {
	BPM          float64   `json:"bpm"`
	Condition    string    `json:"condition"`
	Variability  float64   `json:"variability"`
	RecentValues []float64 `json:"recent_values,omitempty"`
}

// Analyzer turns pulse state into text. Failures are reported in the text
// itself so callers can show it verbatim.
type Analyzer interface {
	Analyze(ctx context.Context, s Snapshot) string
	Report(ctx context.Context, summary any) string
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GeminiAnalyzer implements Analyzer on top of a Generator. A nil generator
// means no API key was configured.
type GeminiAnalyzer struct {
	gen   Generator
	model string
}

// NewAnalyzer wraps an existing generator.
func NewAnalyzer(gen Generator, model string) *GeminiAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAnalyzer{gen: gen, model: model}
}

// NewGemini creates a Gemini-backed analyzer. An empty apiKey yields an
// offline analyzer rather than an error.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		monitoring.Logf("[Insight] GEMINI_API_KEY not set; analysis offline")
		return NewAnalyzer(nil, model), nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return NewAnalyzer(&geminiGenerator{client: client}, model), nil
}

// Online reports whether a generator is configured.
func (a *GeminiAnalyzer) Online() bool { return a.gen != nil }

// Model returns the model name.
func (a *GeminiAnalyzer) Model() string { return a.model }

// Analyze implements Analyzer.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, s Snapshot) string {
	if a.gen == nil {
		return offlineAnalysis
	}
	text, err := a.gen.Generate(ctx, a.model, AnalysisPrompt(s))
	if err != nil {
		monitoring.Logf("[Insight] analysis failed: %v", err)
		return fmt.Sprintf("AI Analysis Error: %v", err)
	}
	return strings.TrimSpace(text)
}

// Report implements Analyzer.
func (a *GeminiAnalyzer) Report(ctx context.Context, summary any) string {
	if a.gen == nil {
		return offlineReport
	}
	prompt, err := ReportPrompt(summary)
	if err != nil {
		return fmt.Sprintf("Error generating report: %v", err)
	}
	text, err := a.gen.Generate(ctx, a.model, prompt)
	if err != nil {
		monitoring.Logf("[Insight] report failed: %v", err)
		return fmt.Sprintf("Error generating report: %v", err)
	}
	return strings.TrimSpace(text)
}

// AnalysisPrompt renders the snapshot prompt.
func AnalysisPrompt(s Snapshot) string {
	var b strings.Builder
	b.WriteString("You are the AI engine of an advanced Assisted Pulse Reading Hardware.\n")
	b.WriteString("Analyze the following live sensor data:\n")
	fmt.Fprintf(&b, "- Heart Rate: %g BPM\n", s.BPM)
	fmt.Fprintf(&b, "- Detected Condition Pattern: %s\n", s.Condition)
	fmt.Fprintf(&b, "- Variability Index: %g\n", s.Variability)
	if len(s.RecentValues) > 0 {
		fmt.Fprintf(&b, "- Recent Samples: %d values, last %.3f\n", len(s.RecentValues), s.RecentValues[len(s.RecentValues)-1])
	}
	b.WriteString("\nProvide a concise, medical-techno sounding analysis.\n")
	b.WriteString("1. Assess the urgency.\n")
	b.WriteString("2. Suggest immediate actions or potential causes.\n")
	b.WriteString("3. Keep it under 50 words.\n\n")
	b.WriteString("Output format: Plain text.\n")
	return b.String()
}

// ReportPrompt renders the session report prompt.
func ReportPrompt(summary any) (string, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encode session summary: %w", err)
	}
	var b strings.Builder
	b.WriteString("Generate a detailed clinical report for a Pulse Simulation Session.\n")
	fmt.Fprintf(&b, "Session Summary: %s\n\n", data)
	b.WriteString("Include:\n")
	b.WriteString("- Patient Status Assessment\n")
	b.WriteString("- Anomalies Detected\n")
	b.WriteString("- Recommended Follow-up\n")
	return b.String(), nil
}

type geminiGenerator struct {
	client *genai.Client
}

func (g *geminiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}, Role: "user"},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
