package render

import (
	"image/color"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	runeBlank = ' '
	runeGrid  = '·'
	runeGlow  = '░'
	runeTrace = '█'
)

// glowWidth is the stroke width at which a stroke is treated as the glow
// underlay rather than the trace.
const glowWidth = 4

type cell struct {
	r     rune
	color string
}

// TerminalSurface draws frames as a character grid, one cell per "pixel",
// styled with lipgloss and written to an io.Writer.
type TerminalSurface struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	cols     int
	rows     int
	cells    []cell
	bg       string

	// CellScale divides the pixel grid spacing so a 50px grid stays readable
	// in a terminal.
	CellScale int
}

// NewTerminalSurface returns a surface writing frames to w.
func NewTerminalSurface(w io.Writer, cols, rows int) *TerminalSurface {
	s := &TerminalSurface{w: w, renderer: lipgloss.NewRenderer(w), CellScale: 5}
	s.Resize(cols, rows)
	return s
}

// Resize implements Surface.
func (s *TerminalSurface) Resize(cols, rows int) {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	s.cols, s.rows = cols, rows
	s.cells = make([]cell, cols*rows)
}

// Clear implements Surface.
func (s *TerminalSurface) Clear(bg color.Color) {
	s.bg = hexOf(bg)
	for i := range s.cells {
		s.cells[i] = cell{r: runeBlank}
	}
}

// Grid implements Surface.
func (s *TerminalSurface) Grid(spacing int, c color.Color) {
	step := spacing
	if s.CellScale > 1 {
		step = spacing / s.CellScale
	}
	if step <= 0 {
		return
	}
	hex := hexOf(c)
	for y := 0; y < s.rows; y += step {
		for x := 0; x < s.cols; x++ {
			s.set(x, y, cell{r: runeGrid, color: hex}, false)
		}
	}
	for x := 0; x < s.cols; x += step {
		for y := 0; y < s.rows; y++ {
			s.set(x, y, cell{r: runeGrid, color: hex}, false)
		}
	}
}

// Stroke implements Surface. Wide strokes are drawn as glow and never
// overwrite the trace.
func (s *TerminalSurface) Stroke(points []Point, c color.Color, width float64) {
	if len(points) == 0 {
		return
	}
	r, glow := runeTrace, width >= glowWidth
	if glow {
		r = runeGlow
	}
	px := cell{r: r, color: hexOf(c)}
	x0, y0 := s.cellOf(points[0])
	s.set(x0, y0, px, glow)
	for _, p := range points[1:] {
		x1, y1 := s.cellOf(p)
		s.line(x0, y0, x1, y1, px, glow)
		x0, y0 = x1, y1
	}
}

// Present implements Surface. Each frame homes the cursor and redraws.
func (s *TerminalSurface) Present() error {
	if s.cols == 0 || s.rows == 0 {
		return ErrNoSurface
	}
	_, err := io.WriteString(s.w, "\x1b[H"+s.String())
	return err
}

// String renders the grid with lipgloss styles, one line per row.
func (s *TerminalSurface) String() string {
	var b strings.Builder
	for y := 0; y < s.rows; y++ {
		row := s.cells[y*s.cols : (y+1)*s.cols]
		start := 0
		for x := 1; x <= len(row); x++ {
			if x < len(row) && row[x].color == row[start].color {
				continue
			}
			run := make([]rune, 0, x-start)
			for _, c := range row[start:x] {
				run = append(run, c.r)
			}
			b.WriteString(s.style(row[start].color).Render(string(run)))
			start = x
		}
		if y < s.rows-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Rune returns the rune at a cell, for tests and debugging.
func (s *TerminalSurface) Rune(x, y int) rune {
	if x < 0 || y < 0 || x >= s.cols || y >= s.rows {
		return 0
	}
	return s.cells[y*s.cols+x].r
}

func (s *TerminalSurface) style(fg string) lipgloss.Style {
	st := s.renderer.NewStyle()
	if fg != "" {
		st = st.Foreground(lipgloss.Color(fg))
	}
	if s.bg != "" {
		st = st.Background(lipgloss.Color(s.bg))
	}
	return st
}

func (s *TerminalSurface) set(x, y int, c cell, glow bool) {
	if x < 0 || y < 0 || x >= s.cols || y >= s.rows {
		return
	}
	i := y*s.cols + x
	if glow && s.cells[i].r == runeTrace {
		return
	}
	s.cells[i] = c
}

// line is Bresenham between two cells, inclusive.
func (s *TerminalSurface) line(x0, y0, x1, y1 int, c cell, glow bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		s.set(x0, y0, c, glow)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// cellOf rounds p to a cell, clamped to one cell outside the grid so
// off-screen excursions stay cheap to rasterise.
func (s *TerminalSurface) cellOf(p Point) (int, int) {
	return clamp(round(p.X), -1, s.cols), clamp(round(p.Y), -1, s.rows)
}

func hexOf(c color.Color) string {
	if c == nil {
		return ""
	}
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return ""
	}
	return cf.Hex()
}

func round(v float64) int { return int(math.Round(v)) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
