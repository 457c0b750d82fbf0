// Package config loads the monitor configuration: buffer capacity, cue
// thresholds, render geometry, theme colours and the optional audio, store
// and insight settings.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical monitor defaults file.
const DefaultConfigPath = "config/pulsewave.defaults.json"

// maxFileSize caps config files at 1MB.
const maxFileSize = 1 * 1024 * 1024

var hexColour = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// MonitorConfig is the root configuration. Every field is optional; the Get*
// accessors fall back to built-in defaults so partial files are safe.
type MonitorConfig struct {
	// Sample buffer
	Capacity  *int     `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	FillValue *float64 `json:"fill_value,omitempty" yaml:"fill_value,omitempty"`

	// Cue latch
	LowThreshold        *float64 `json:"low_threshold,omitempty" yaml:"low_threshold,omitempty"`
	HighThreshold       *float64 `json:"high_threshold,omitempty" yaml:"high_threshold,omitempty"`
	AlertConditions     []string `json:"alert_conditions,omitempty" yaml:"alert_conditions,omitempty"`
	ElevatedConditions  []string `json:"elevated_conditions,omitempty" yaml:"elevated_conditions,omitempty"`
	DepressedConditions []string `json:"depressed_conditions,omitempty" yaml:"depressed_conditions,omitempty"`

	// Rendering
	Width            *int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height           *int     `json:"height,omitempty" yaml:"height,omitempty"`
	AmplitudeDivisor *float64 `json:"amplitude_divisor,omitempty" yaml:"amplitude_divisor,omitempty"`
	FrameRate        *float64 `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	GridSpacing      *int     `json:"grid_spacing,omitempty" yaml:"grid_spacing,omitempty"`
	Theme            *Theme   `json:"theme,omitempty" yaml:"theme,omitempty"`

	// Metrics display refresh, duration string like "1s"
	MetricsInterval *string `json:"metrics_interval,omitempty" yaml:"metrics_interval,omitempty"`

	// Audio
	SampleRate   *int     `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	ToneDuration *string  `json:"tone_duration,omitempty" yaml:"tone_duration,omitempty"`
	ToneGain     *float64 `json:"tone_gain,omitempty" yaml:"tone_gain,omitempty"`

	// Plumbing
	SubscriberBuffer *int    `json:"subscriber_buffer,omitempty" yaml:"subscriber_buffer,omitempty"`
	StoreQueue       *int    `json:"store_queue,omitempty" yaml:"store_queue,omitempty"`
	InsightModel     *string `json:"insight_model,omitempty" yaml:"insight_model,omitempty"`
}

// Theme holds the hex colours used by the renderer.
type Theme struct {
	PulseColor  string `json:"pulse_color,omitempty" yaml:"pulse_color,omitempty"`
	DangerColor string `json:"danger_color,omitempty" yaml:"danger_color,omitempty"`
	BorderColor string `json:"border_color,omitempty" yaml:"border_color,omitempty"`
	Background  string `json:"background,omitempty" yaml:"background,omitempty"`
}

// DefaultTheme is the dark clinical palette used when no theme is configured.
func DefaultTheme() Theme {
	return Theme{
		PulseColor:  "#00ff9c",
		DangerColor: "#ff3b3b",
		BorderColor: "#1f3b33",
		Background:  "#050b09",
	}
}

// EmptyMonitorConfig returns a MonitorConfig with all fields unset.
func EmptyMonitorConfig() *MonitorConfig {
	return &MonitorConfig{}
}

// LoadMonitorConfig loads a MonitorConfig from a .json, .yaml or .yml file.
// The file must be under 1MB. Omitted fields keep their defaults.
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMonitorConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent directories
// so it works from package test directories. Panics when the file is missing.
func MustLoadDefaultConfig() *MonitorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadMonitorConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *MonitorConfig) Validate() error {
	if c.Capacity != nil && *c.Capacity < 2 {
		return fmt.Errorf("capacity must be at least 2, got %d", *c.Capacity)
	}
	if c.FillValue != nil && !finite(*c.FillValue) {
		return fmt.Errorf("fill_value must be finite")
	}
	low, high := c.GetLowThreshold(), c.GetHighThreshold()
	if !finite(low) || !finite(high) {
		return fmt.Errorf("thresholds must be finite")
	}
	if low >= high {
		return fmt.Errorf("low_threshold (%g) must be below high_threshold (%g)", low, high)
	}
	if c.Width != nil && *c.Width < 0 {
		return fmt.Errorf("width must be non-negative, got %d", *c.Width)
	}
	if c.Height != nil && *c.Height < 0 {
		return fmt.Errorf("height must be non-negative, got %d", *c.Height)
	}
	if c.AmplitudeDivisor != nil && (*c.AmplitudeDivisor <= 0 || !finite(*c.AmplitudeDivisor)) {
		return fmt.Errorf("amplitude_divisor must be positive, got %g", *c.AmplitudeDivisor)
	}
	if c.FrameRate != nil && (*c.FrameRate <= 0 || *c.FrameRate > 1000) {
		return fmt.Errorf("frame_rate must be in (0, 1000], got %g", *c.FrameRate)
	}
	if c.GridSpacing != nil && *c.GridSpacing <= 0 {
		return fmt.Errorf("grid_spacing must be positive, got %d", *c.GridSpacing)
	}
	if c.Theme != nil {
		if err := c.Theme.Validate(); err != nil {
			return err
		}
	}
	if c.MetricsInterval != nil && *c.MetricsInterval != "" {
		if _, err := time.ParseDuration(*c.MetricsInterval); err != nil {
			return fmt.Errorf("invalid metrics_interval '%s': %w", *c.MetricsInterval, err)
		}
	}
	if c.ToneDuration != nil && *c.ToneDuration != "" {
		d, err := time.ParseDuration(*c.ToneDuration)
		if err != nil {
			return fmt.Errorf("invalid tone_duration '%s': %w", *c.ToneDuration, err)
		}
		if d <= 0 {
			return fmt.Errorf("tone_duration must be positive, got %s", d)
		}
	}
	if c.ToneGain != nil && (*c.ToneGain <= 0 || *c.ToneGain > 1) {
		return fmt.Errorf("tone_gain must be in (0, 1], got %g", *c.ToneGain)
	}
	if c.SampleRate != nil && *c.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000, got %d", *c.SampleRate)
	}
	if c.SubscriberBuffer != nil && *c.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be positive, got %d", *c.SubscriberBuffer)
	}
	if c.StoreQueue != nil && *c.StoreQueue < 1 {
		return fmt.Errorf("store_queue must be positive, got %d", *c.StoreQueue)
	}
	return nil
}

// Validate checks that every set colour is a #rrggbb string.
func (t *Theme) Validate() error {
	for name, v := range map[string]string{
		"pulse_color":  t.PulseColor,
		"danger_color": t.DangerColor,
		"border_color": t.BorderColor,
		"background":   t.Background,
	} {
		if v != "" && !hexColour.MatchString(v) {
			return fmt.Errorf("theme %s must be #rrggbb, got %q", name, v)
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// GetCapacity returns the sample buffer capacity N.
func (c *MonitorConfig) GetCapacity() int {
	if c.Capacity == nil {
		return 800
	}
	return *c.Capacity
}

// GetFillValue returns the buffer baseline fill value.
func (c *MonitorConfig) GetFillValue() float64 {
	if c.FillValue == nil {
		return 0
	}
	return *c.FillValue
}

// GetLowThreshold returns the re-arm threshold.
func (c *MonitorConfig) GetLowThreshold() float64 {
	if c.LowThreshold == nil {
		return 0.5
	}
	return *c.LowThreshold
}

// GetHighThreshold returns the fire threshold.
func (c *MonitorConfig) GetHighThreshold() float64 {
	if c.HighThreshold == nil {
		return 1.5
	}
	return *c.HighThreshold
}

// GetAlertConditions returns the conditions drawn with the danger colour.
func (c *MonitorConfig) GetAlertConditions() []string {
	if len(c.AlertConditions) == 0 {
		return []string{"Arrhythmia", "Tachycardia"}
	}
	return c.AlertConditions
}

// GetElevatedConditions returns the conditions cued with the high pitch.
func (c *MonitorConfig) GetElevatedConditions() []string {
	if len(c.ElevatedConditions) == 0 {
		return []string{"Tachycardia"}
	}
	return c.ElevatedConditions
}

// GetDepressedConditions returns the conditions cued with the low pitch.
func (c *MonitorConfig) GetDepressedConditions() []string {
	if len(c.DepressedConditions) == 0 {
		return []string{"Bradycardia"}
	}
	return c.DepressedConditions
}

// GetWidth returns the initial surface width in pixels.
func (c *MonitorConfig) GetWidth() int {
	if c.Width == nil {
		return 800
	}
	return *c.Width
}

// GetHeight returns the initial surface height in pixels.
func (c *MonitorConfig) GetHeight() int {
	if c.Height == nil {
		return 300
	}
	return *c.Height
}

// GetAmplitudeDivisor returns the divisor d in y = h/2 - v*(h/d).
func (c *MonitorConfig) GetAmplitudeDivisor() float64 {
	if c.AmplitudeDivisor == nil {
		return 3
	}
	return *c.AmplitudeDivisor
}

// GetFrameRate returns the render tick rate in Hz.
func (c *MonitorConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 60
	}
	return *c.FrameRate
}

// GetGridSpacing returns the background grid spacing in pixels.
func (c *MonitorConfig) GetGridSpacing() int {
	if c.GridSpacing == nil {
		return 50
	}
	return *c.GridSpacing
}

// GetTheme returns the configured theme with unset colours filled from
// DefaultTheme.
func (c *MonitorConfig) GetTheme() Theme {
	t := DefaultTheme()
	if c.Theme == nil {
		return t
	}
	if c.Theme.PulseColor != "" {
		t.PulseColor = c.Theme.PulseColor
	}
	if c.Theme.DangerColor != "" {
		t.DangerColor = c.Theme.DangerColor
	}
	if c.Theme.BorderColor != "" {
		t.BorderColor = c.Theme.BorderColor
	}
	if c.Theme.Background != "" {
		t.Background = c.Theme.Background
	}
	return t
}

// GetMetricsInterval parses and returns MetricsInterval.
func (c *MonitorConfig) GetMetricsInterval() time.Duration {
	if c.MetricsInterval == nil || *c.MetricsInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.MetricsInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetSampleRate returns the audio output sample rate.
func (c *MonitorConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return 44100
	}
	return *c.SampleRate
}

// GetToneDuration parses and returns ToneDuration.
func (c *MonitorConfig) GetToneDuration() time.Duration {
	if c.ToneDuration == nil || *c.ToneDuration == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.ToneDuration)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetToneGain returns the peak tone gain.
func (c *MonitorConfig) GetToneGain() float64 {
	if c.ToneGain == nil {
		return 0.1
	}
	return *c.ToneGain
}

// GetSubscriberBuffer returns the per-subscriber channel depth of the line mux.
func (c *MonitorConfig) GetSubscriberBuffer() int {
	if c.SubscriberBuffer == nil {
		return 256
	}
	return *c.SubscriberBuffer
}

// GetStoreQueue returns the event recorder queue depth.
func (c *MonitorConfig) GetStoreQueue() int {
	if c.StoreQueue == nil {
		return 256
	}
	return *c.StoreQueue
}

// GetInsightModel returns the Gemini model used for analysis.
func (c *MonitorConfig) GetInsightModel() string {
	if c.InsightModel == nil || *c.InsightModel == "" {
		return "gemini-2.0-flash"
	}
	return *c.InsightModel
}
