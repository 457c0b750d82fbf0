// Package ingest decodes telemetry messages and applies them to the shared
// sample buffer and cue state machine.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/pulsewave/internal/cue"
)

// ErrMalformed wraps every decode failure.
var ErrMalformed = errors.New("malformed telemetry event")

// TelemetryEvent is one decoded stream message.
type TelemetryEvent struct {
	Value     float64
	BPM       float64
	Condition cue.Condition
	SpO2      *float64
	BP        string
}

// wireEvent mirrors the JSON message. Pointers distinguish absent fields from
// zero values; unknown fields such as timestamp are ignored.
type wireEvent struct {
	Value     *float64 `json:"value"`
	BPM       *float64 `json:"bpm"`
	Condition *string  `json:"condition"`
	SpO2      *float64 `json:"spo2"`
	BP        *string  `json:"bp"`
}

// Decode parses one JSON message. value, bpm and condition are required and
// value must be finite.
func Decode(payload []byte) (TelemetryEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return TelemetryEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case w.Value == nil:
		return TelemetryEvent{}, fmt.Errorf("%w: missing value", ErrMalformed)
	case w.BPM == nil:
		return TelemetryEvent{}, fmt.Errorf("%w: missing bpm", ErrMalformed)
	case w.Condition == nil || *w.Condition == "":
		return TelemetryEvent{}, fmt.Errorf("%w: missing condition", ErrMalformed)
	case math.IsNaN(*w.Value) || math.IsInf(*w.Value, 0):
		return TelemetryEvent{}, fmt.Errorf("%w: value not finite", ErrMalformed)
	}

	ev := TelemetryEvent{
		Value:     *w.Value,
		BPM:       *w.BPM,
		Condition: cue.Condition(*w.Condition),
		SpO2:      w.SpO2,
	}
	if w.BP != nil {
		ev.BP = *w.BP
	}
	return ev, nil
}
