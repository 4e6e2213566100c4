package sentinel

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// maskFrom reads rows of '#' (set) and '.' (unset).
func maskFrom(rows ...string) raster.Mask {
	m := raster.NewMask(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			m.Set(x, y, c == '#')
		}
	}
	return m
}

func assertSimpleRings(t *testing.T, p orb.Polygon) {
	t.Helper()
	for _, ring := range p {
		require.True(t, ring.Closed())
		seen := make(map[orb.Point]bool, len(ring))
		for _, pt := range ring[:len(ring)-1] {
			assert.False(t, seen[pt], "ring revisits %v", pt)
			seen[pt] = true
		}
	}
}

func TestPolygonizeSquare(t *testing.T) {
	shapes, err := Polygonize(maskFrom(
		"....",
		".##.",
		".##.",
	))
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, 4, shapes[0].Pixels)
	assert.Equal(t, orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{3, 3}}, shapes[0].Polygon.Bound())
}

func TestPolygonizeHole(t *testing.T) {
	shapes, err := Polygonize(maskFrom(
		"###",
		"#.#",
		"###",
	))
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	p := shapes[0].Polygon
	require.Len(t, p, 2)
	assert.Equal(t, 8, shapes[0].Pixels)
	assert.InDelta(t, 1, planar.Area(orb.Polygon{p[1]}), 1e-9)
}

func TestPolygonizeHoleTouchingOutsideAtCorner(t *testing.T) {
	shapes, err := Polygonize(maskFrom(
		"##.",
		"#.#",
		"###",
	))
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, 7, shapes[0].Pixels)
	assertSimpleRings(t, shapes[0].Polygon)
}

func TestPolygonizeDiagonalNeighboursStaySeparate(t *testing.T) {
	shapes, err := Polygonize(maskFrom(
		"#.",
		".#",
	))
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	for _, s := range shapes {
		require.Len(t, s.Polygon, 1)
		assert.Equal(t, 1, s.Pixels)
		assertSimpleRings(t, s.Polygon)
	}
}

func TestPolygonizeEmpty(t *testing.T) {
	shapes, err := Polygonize(raster.NewMask(3, 3))
	require.NoError(t, err)
	assert.Empty(t, shapes)
}
