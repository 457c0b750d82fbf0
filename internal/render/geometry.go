// Package render draws the waveform once per display tick, runs the cue
// latch over newly arrived samples and presents the frame on a surface.
package render

// Geometry maps buffer indices and sample values to surface pixels. The
// origin is the top-left corner.
type Geometry struct {
	Width            int
	Height           int
	Capacity         int
	AmplitudeDivisor float64
}

// Empty reports whether the surface has no drawable area.
func (g Geometry) Empty() bool {
	return g.Width <= 0 || g.Height <= 0 || g.Capacity <= 0
}

// SliceWidth is the horizontal distance between adjacent samples.
func (g Geometry) SliceWidth() float64 {
	if g.Capacity <= 0 {
		return 0
	}
	return float64(g.Width) / float64(g.Capacity)
}

// X returns the horizontal position of buffer index i.
func (g Geometry) X(i int) float64 {
	if g.Capacity <= 0 {
		return 0
	}
	return float64(i) * float64(g.Width) / float64(g.Capacity)
}

// Y returns the vertical position of value v: the centre line minus v times
// one amplitude unit (height / AmplitudeDivisor).
func (g Geometry) Y(v float64) float64 {
	d := g.AmplitudeDivisor
	if d <= 0 {
		d = 3
	}
	h := float64(g.Height)
	return h/2 - v*(h/d)
}

// Point is a surface position in pixels.
type Point struct {
	X, Y float64
}

// Path maps an oldest-first snapshot to surface points.
func (g Geometry) Path(values []float64) []Point {
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{X: g.X(i), Y: g.Y(v)}
	}
	return pts
}
