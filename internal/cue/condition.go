package cue

// Condition is an opaque physiological state label such as "Normal" or
// "Tachycardia". The set is open ended; only the predicates below interpret it.
type Condition string

// Well-known labels.
const (
	Normal      Condition = "Normal"
	Tachycardia Condition = "Tachycardia"
	Bradycardia Condition = "Bradycardia"
	Arrhythmia  Condition = "Arrhythmia"
)

// Rate classifies a condition for pitch selection.
type Rate int

const (
	RateNormal Rate = iota
	RateElevated
	RateDepressed
)

func (r Rate) String() string {
	switch r {
	case RateElevated:
		return "elevated"
	case RateDepressed:
		return "depressed"
	default:
		return "normal"
	}
}

// IsNormal reports whether c is the Normal label.
func (c Condition) IsNormal() bool { return c == Normal }

// Classifier maps labels to alert styling and cue pitch. The zero value has
// no alert, elevated or depressed conditions; use DefaultClassifier.
type Classifier struct {
	alert     map[Condition]bool
	elevated  map[Condition]bool
	depressed map[Condition]bool
}

// NewClassifier builds a Classifier from label lists.
func NewClassifier(alert, elevated, depressed []string) Classifier {
	return Classifier{
		alert:     toSet(alert),
		elevated:  toSet(elevated),
		depressed: toSet(depressed),
	}
}

// DefaultClassifier treats Arrhythmia and Tachycardia as alerts, Tachycardia
// as elevated and Bradycardia as depressed.
func DefaultClassifier() Classifier {
	return NewClassifier(
		[]string{string(Arrhythmia), string(Tachycardia)},
		[]string{string(Tachycardia)},
		[]string{string(Bradycardia)},
	)
}

// IsAlert reports whether c is drawn with the danger colour.
func (k Classifier) IsAlert(c Condition) bool { return k.alert[c] }

// Rate returns the pitch class of c. A label listed as both elevated and
// depressed is treated as elevated.
func (k Classifier) Rate(c Condition) Rate {
	switch {
	case k.elevated[c]:
		return RateElevated
	case k.depressed[c]:
		return RateDepressed
	default:
		return RateNormal
	}
}

func toSet(labels []string) map[Condition]bool {
	m := make(map[Condition]bool, len(labels))
	for _, l := range labels {
		m[Condition(l)] = true
	}
	return m
}
