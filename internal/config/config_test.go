package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEmptyMonitorConfig_Defaults(t *testing.T) {
	cfg := EmptyMonitorConfig()

	if cfg.GetCapacity() != 800 {
		t.Errorf("GetCapacity() = %d, want 800", cfg.GetCapacity())
	}
	if cfg.GetLowThreshold() != 0.5 || cfg.GetHighThreshold() != 1.5 {
		t.Errorf("thresholds = (%g, %g), want (0.5, 1.5)", cfg.GetLowThreshold(), cfg.GetHighThreshold())
	}
	if cfg.GetAmplitudeDivisor() != 3 {
		t.Errorf("GetAmplitudeDivisor() = %g, want 3", cfg.GetAmplitudeDivisor())
	}
	if cfg.GetFrameRate() != 60 {
		t.Errorf("GetFrameRate() = %g, want 60", cfg.GetFrameRate())
	}
	if cfg.GetToneDuration() != 100*time.Millisecond {
		t.Errorf("GetToneDuration() = %s, want 100ms", cfg.GetToneDuration())
	}
	if cfg.GetMetricsInterval() != time.Second {
		t.Errorf("GetMetricsInterval() = %s, want 1s", cfg.GetMetricsInterval())
	}
	if diff := cmp.Diff([]string{"Arrhythmia", "Tachycardia"}, cfg.GetAlertConditions()); diff != "" {
		t.Errorf("GetAlertConditions() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultTheme(), cfg.GetTheme()); diff != "" {
		t.Errorf("GetTheme() mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetInsightModel() != "gemini-2.0-flash" {
		t.Errorf("GetInsightModel() = %q", cfg.GetInsightModel())
	}
}

func TestLoadMonitorConfig_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "monitor.json")

	testJSON := `{
  "capacity": 400,
  "low_threshold": 0.4,
  "high_threshold": 1.4,
  "theme": {"danger_color": "#aa0000"},
  "tone_duration": "80ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadMonitorConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetCapacity() != 400 {
		t.Errorf("GetCapacity() = %d, want 400", cfg.GetCapacity())
	}
	if cfg.GetLowThreshold() != 0.4 || cfg.GetHighThreshold() != 1.4 {
		t.Errorf("thresholds = (%g, %g)", cfg.GetLowThreshold(), cfg.GetHighThreshold())
	}
	theme := cfg.GetTheme()
	if theme.DangerColor != "#aa0000" {
		t.Errorf("DangerColor = %q, want #aa0000", theme.DangerColor)
	}
	if theme.PulseColor != DefaultTheme().PulseColor {
		t.Errorf("PulseColor should fall back to default, got %q", theme.PulseColor)
	}
	if cfg.GetToneDuration() != 80*time.Millisecond {
		t.Errorf("GetToneDuration() = %s, want 80ms", cfg.GetToneDuration())
	}
	// Omitted fields keep defaults.
	if cfg.GetWidth() != 800 {
		t.Errorf("GetWidth() = %d, want 800", cfg.GetWidth())
	}
}

func TestLoadMonitorConfig_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "monitor.yaml")

	testYAML := `
low_threshold: 0.3
high_threshold: 1.7
alert_conditions:
  - Arrhythmia
frame_rate: 30
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadMonitorConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetLowThreshold() != 0.3 || cfg.GetHighThreshold() != 1.7 {
		t.Errorf("thresholds = (%g, %g)", cfg.GetLowThreshold(), cfg.GetHighThreshold())
	}
	if diff := cmp.Diff([]string{"Arrhythmia"}, cfg.GetAlertConditions()); diff != "" {
		t.Errorf("GetAlertConditions() mismatch (-want +got):\n%s", diff)
	}
	if cfg.GetFrameRate() != 30 {
		t.Errorf("GetFrameRate() = %g, want 30", cfg.GetFrameRate())
	}
}

func TestLoadMonitorConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"bad extension", write("cfg.toml", "x = 1"), "extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "stat"},
		{"bad json", write("bad.json", "{"), "parse config JSON"},
		{"bad yaml", write("bad.yaml", "low_threshold: [1"), "parse config YAML"},
		{"inverted thresholds", write("inv.json", `{"low_threshold": 1.6, "high_threshold": 1.5}`), "must be below"},
		{"equal thresholds", write("eq.json", `{"low_threshold": 1, "high_threshold": 1}`), "must be below"},
		{"tiny capacity", write("cap.json", `{"capacity": 1}`), "capacity"},
		{"bad colour", write("col.json", `{"theme": {"pulse_color": "green"}}`), "pulse_color"},
		{"bad duration", write("dur.json", `{"tone_duration": "soon"}`), "tone_duration"},
		{"zero divisor", write("div.json", `{"amplitude_divisor": 0}`), "amplitude_divisor"},
		{"bad gain", write("gain.json", `{"tone_gain": 2}`), "tone_gain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMonitorConfig(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMonitorConfig_TooLarge(t *testing.T) {
	tmpDir := t.TempDir()
	p := filepath.Join(tmpDir, "big.json")
	big := make([]byte, maxFileSize+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(p, big, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadMonitorConfig(p); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.Capacity == nil || *cfg.Capacity != 800 {
		t.Errorf("defaults file capacity = %v, want 800", cfg.Capacity)
	}
	if cfg.LowThreshold == nil || *cfg.LowThreshold != 0.5 {
		t.Errorf("defaults file low_threshold = %v, want 0.5", cfg.LowThreshold)
	}
	// The defaults file must agree with the built-in fallbacks.
	empty := EmptyMonitorConfig()
	if cfg.GetHighThreshold() != empty.GetHighThreshold() {
		t.Errorf("high threshold drift: file %g, built-in %g", cfg.GetHighThreshold(), empty.GetHighThreshold())
	}
	if diff := cmp.Diff(empty.GetTheme(), cfg.GetTheme()); diff != "" {
		t.Errorf("theme drift (-built-in +file):\n%s", diff)
	}
	if cfg.GetSubscriberBuffer() != empty.GetSubscriberBuffer() {
		t.Errorf("subscriber_buffer drift")
	}
}
