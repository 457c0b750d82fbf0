package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeometry_Mapping(t *testing.T) {
	g := Geometry{Width: 800, Height: 300, Capacity: 800, AmplitudeDivisor: 3}

	assert.Equal(t, 1.0, g.SliceWidth())
	assert.Equal(t, 0.0, g.X(0))
	assert.Equal(t, 799.0, g.X(799))
	assert.Equal(t, 150.0, g.Y(0), "zero sits on the centre line")
	assert.Equal(t, 50.0, g.Y(1), "one unit is height/3 above centre")
	assert.Equal(t, 250.0, g.Y(-1))
}

func TestGeometry_ResizeMovesLastIndex(t *testing.T) {
	const n = 800
	g := Geometry{Width: 800, Height: 300, Capacity: n, AmplitudeDivisor: 3}
	before := g.X(n - 1)

	g.Width = 400
	assert.Equal(t, 400-400.0/n, g.X(n-1))
	assert.Equal(t, float64(g.Width)-g.SliceWidth(), g.X(n-1))
	assert.NotEqual(t, before, g.X(n-1))
}

func TestGeometry_ScaleIsDataIndependent(t *testing.T) {
	g := Geometry{Width: 100, Height: 300, Capacity: 4, AmplitudeDivisor: 3}
	flat := g.Path([]float64{1, 1, 1, 1})
	for _, p := range flat {
		assert.Equal(t, 50.0, p.Y)
	}
	assert.Equal(t, []Point{{0, 150}, {25, 50}, {50, 150}, {75, 250}}, g.Path([]float64{0, 1, 0, -1}))
}

func TestGeometry_Degenerate(t *testing.T) {
	assert.True(t, Geometry{Width: 0, Height: 300, Capacity: 10}.Empty())
	assert.True(t, Geometry{Width: 10, Height: 0, Capacity: 10}.Empty())
	assert.False(t, Geometry{Width: 10, Height: 10, Capacity: 10}.Empty())

	g := Geometry{Width: 10, Height: 30}
	assert.Equal(t, 0.0, g.SliceWidth())
	assert.Equal(t, 0.0, g.X(3))
	assert.Equal(t, 5.0, g.Y(1), "unset divisor falls back to 3")
}
