package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"sync"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoSurface is returned by Present when the surface has no area.
var ErrNoSurface = errors.New("surface has zero size")

// Surface is a drawing target. Calls come from the render goroutine only;
// implementations guard whatever they share with readers.
type Surface interface {
	Resize(width, height int)
	Clear(bg color.Color)
	Grid(spacing int, c color.Color)
	Stroke(points []Point, c color.Color, width float64)
	Present() error
}

// ImageSurface rasterises frames with vgimg. Every encodeEvery-th presented
// frame is encoded as PNG and kept for readers.
type ImageSurface struct {
	canvas      *vgimg.Canvas
	width       int
	height      int
	encodeEvery int
	presented   uint64

	mu     sync.RWMutex
	latest []byte
	buf    bytes.Buffer
}

// NewImageSurface returns a surface of the given size. encodeEvery below 1
// encodes every frame.
func NewImageSurface(width, height, encodeEvery int) *ImageSurface {
	if encodeEvery < 1 {
		encodeEvery = 1
	}
	s := &ImageSurface{encodeEvery: encodeEvery}
	s.Resize(width, height)
	return s
}

// Resize replaces the canvas. A zero dimension leaves the surface without a
// canvas until the next non-zero resize.
func (s *ImageSurface) Resize(width, height int) {
	s.width, s.height = width, height
	if width <= 0 || height <= 0 {
		s.canvas = nil
		return
	}
	// 72 DPI makes one vg point one pixel.
	s.canvas = vgimg.NewWith(
		vgimg.UseWH(vg.Length(width), vg.Length(height)),
		vgimg.UseDPI(72),
	)
}

// Size returns the current pixel size.
func (s *ImageSurface) Size() (int, int) {
	return s.width, s.height
}

// pt converts top-left pixel coordinates to vg's bottom-left origin.
func (s *ImageSurface) pt(x, y float64) vg.Point {
	return vg.Point{X: vg.Length(x), Y: vg.Length(float64(s.height) - y)}
}

// Clear implements Surface.
func (s *ImageSurface) Clear(bg color.Color) {
	if s.canvas == nil {
		return
	}
	w, h := float64(s.width), float64(s.height)
	var p vg.Path
	p.Move(s.pt(0, 0))
	p.Line(s.pt(w, 0))
	p.Line(s.pt(w, h))
	p.Line(s.pt(0, h))
	p.Close()
	s.canvas.SetColor(bg)
	s.canvas.Fill(p)
}

// Grid implements Surface.
func (s *ImageSurface) Grid(spacing int, c color.Color) {
	if s.canvas == nil || spacing <= 0 {
		return
	}
	w, h := float64(s.width), float64(s.height)
	s.canvas.SetColor(c)
	s.canvas.SetLineWidth(vg.Points(1))
	for x := 0; x <= s.width; x += spacing {
		var p vg.Path
		p.Move(s.pt(float64(x), 0))
		p.Line(s.pt(float64(x), h))
		s.canvas.Stroke(p)
	}
	for y := 0; y <= s.height; y += spacing {
		var p vg.Path
		p.Move(s.pt(0, float64(y)))
		p.Line(s.pt(w, float64(y)))
		s.canvas.Stroke(p)
	}
}

// Stroke implements Surface. The whole polyline is stroked as one path.
func (s *ImageSurface) Stroke(points []Point, c color.Color, width float64) {
	if s.canvas == nil || len(points) < 2 {
		return
	}
	var p vg.Path
	p.Move(s.pt(points[0].X, points[0].Y))
	for _, pt := range points[1:] {
		p.Line(s.pt(pt.X, pt.Y))
	}
	s.canvas.SetColor(c)
	s.canvas.SetLineWidth(vg.Length(width))
	s.canvas.Stroke(p)
}

// Present implements Surface.
func (s *ImageSurface) Present() error {
	if s.canvas == nil {
		return ErrNoSurface
	}
	s.presented++
	if (s.presented-1)%uint64(s.encodeEvery) != 0 {
		return nil
	}
	s.buf.Reset()
	if _, err := (vgimg.PngCanvas{Canvas: s.canvas}).WriteTo(&s.buf); err != nil {
		return err
	}
	frame := append([]byte(nil), s.buf.Bytes()...)
	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()
	return nil
}

// Frame returns the most recently encoded PNG, or nil before the first.
func (s *ImageSurface) Frame() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Image returns the live canvas image. Only safe on the render goroutine.
func (s *ImageSurface) Image() image.Image {
	if s.canvas == nil {
		return nil
	}
	return s.canvas.Image()
}
