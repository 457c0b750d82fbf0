package render

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/banshee-data/pulsewave/internal/config"
)

// glowAlpha is the opacity of the wide underlay stroke, about 30%.
const glowAlpha uint8 = 77

// Theme is the parsed colour set used by the loop.
type Theme struct {
	Pulse      colorful.Color
	Danger     colorful.Color
	Border     colorful.Color
	Background colorful.Color
}

// ParseTheme parses #rrggbb strings. Empty fields take DefaultTheme colours.
func ParseTheme(t config.Theme) (Theme, error) {
	def := config.DefaultTheme()
	pick := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}

	var out Theme
	var err error
	if out.Pulse, err = colorful.Hex(pick(t.PulseColor, def.PulseColor)); err != nil {
		return Theme{}, fmt.Errorf("pulse color: %w", err)
	}
	if out.Danger, err = colorful.Hex(pick(t.DangerColor, def.DangerColor)); err != nil {
		return Theme{}, fmt.Errorf("danger color: %w", err)
	}
	if out.Border, err = colorful.Hex(pick(t.BorderColor, def.BorderColor)); err != nil {
		return Theme{}, fmt.Errorf("border color: %w", err)
	}
	if out.Background, err = colorful.Hex(pick(t.Background, def.Background)); err != nil {
		return Theme{}, fmt.Errorf("background color: %w", err)
	}
	return out, nil
}

// DefaultTheme returns the parsed default palette.
func DefaultTheme() Theme {
	t, _ := ParseTheme(config.DefaultTheme())
	return t
}

// Config returns the theme as hex strings.
func (t Theme) Config() config.Theme {
	return config.Theme{
		PulseColor:  t.Pulse.Hex(),
		DangerColor: t.Danger.Hex(),
		BorderColor: t.Border.Hex(),
		Background:  t.Background.Hex(),
	}
}

// Stroke returns the waveform colour for the alert state.
func (t Theme) Stroke(alert bool) colorful.Color {
	if alert {
		return t.Danger
	}
	return t.Pulse
}

// Glow returns c at the underlay opacity.
func Glow(c colorful.Color) color.NRGBA {
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: glowAlpha}
}
