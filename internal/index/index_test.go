package index

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

func scene(t *testing.T, w, h int, fill func(band, i int) float32) *raster.Scene {
	t.Helper()
	bands := make([][]float32, raster.BandCount)
	for b := range bands {
		bands[b] = make([]float32, w*h)
		for i := range bands[b] {
			bands[b][i] = fill(b, i)
		}
	}
	s, err := raster.NewScene(w, h, bands)
	require.NoError(t, err)
	return s
}

func TestNormalizedDifference(t *testing.T) {
	a := raster.GridFrom(2, 2, []float32{0.3, 0, 0.2, -0.1})
	b := raster.GridFrom(2, 2, []float32{0.1, 0, 0.6, 0.1})

	got, err := NormalizedDifference(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Data[0], 1e-6)
	assert.Equal(t, float32(0), got.Data[1])
	assert.InDelta(t, -0.5, got.Data[2], 1e-6)
	assert.Equal(t, float32(0), got.Data[3], "a+b == 0 must yield 0")
}

func TestNormalizedDifferenceAntisymmetric(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	a, b := raster.NewGrid(8, 8), raster.NewGrid(8, 8)
	for i := range a.Data {
		a.Data[i] = r.Float32()
		b.Data[i] = r.Float32()
	}
	ab, err := NormalizedDifference(a, b)
	require.NoError(t, err)
	ba, err := NormalizedDifference(b, a)
	require.NoError(t, err)
	for i := range ab.Data {
		if a.Data[i]+b.Data[i] != 0 {
			assert.InDelta(t, -ab.Data[i], ba.Data[i], 1e-6)
		}
	}
}

func TestNormalizedDifferenceShapeMismatch(t *testing.T) {
	_, err := NormalizedDifference(raster.NewGrid(2, 3), raster.NewGrid(3, 2))
	var se *raster.ShapeMismatchError
	require.True(t, errors.As(err, &se))
}

func TestNamedIndices(t *testing.T) {
	// green=0.2 red=0.1 nir=0.4 swir1=0.3
	values := []float32{0.2, 0.1, 0.4, 0.3, 4}
	s := scene(t, 1, 1, func(band, _ int) float32 { return values[band] })

	tests := []struct {
		name string
		want float64
	}{
		{"mndwi", (0.2 - 0.3) / (0.2 + 0.3)},
		{"ndbi", (0.3 - 0.4) / (0.3 + 0.4)},
		{"ndvi", (0.4 - 0.1) / (0.4 + 0.1)},
		{"ndisi", (0.3 - 0.1) / (0.3 + 0.1)},
		{"nbi", 0.3 * 0.1 / 0.4},
		{"baei", (0.1 + 0.3) / (0.3 + 0.2 + 1e-6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Lookup(tt.name)
			require.NoError(t, err)
			g, err := f(s)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, g.Data[0], 1e-5)
		})
	}
}

func TestNBIZeroNIR(t *testing.T) {
	s := scene(t, 2, 1, func(band, _ int) float32 {
		if band == raster.NIR {
			return 0
		}
		return 0.5
	})
	g, err := NBI(s)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, g.Data)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("evi")
	assert.Error(t, err)
	assert.Contains(t, Names(), "mndwi")
}
