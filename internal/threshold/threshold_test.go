package threshold

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

func grid(values ...float32) raster.Grid {
	return raster.GridFrom(len(values), 1, values)
}

func TestOtsuBimodal(t *testing.T) {
	var values []float32
	for i := 0; i < 50; i++ {
		values = append(values, -0.6+float32(i%5)*0.01)
		values = append(values, 0.4+float32(i%5)*0.01)
	}
	th, err := Otsu{Bins: DefaultBins}.Threshold(grid(values...))
	require.NoError(t, err)
	assert.Greater(t, th, -0.57)
	assert.Less(t, th, 0.4)
}

func TestOtsuSeparatesClasses(t *testing.T) {
	g := grid(0, 0, 0, 1, 1, 1, 10, 10, 10, 11, 11, 11)
	th, err := Otsu{}.Threshold(g)
	require.NoError(t, err)
	for _, v := range g.Data {
		if v <= 1 {
			assert.LessOrEqual(t, float64(v), th)
		} else {
			assert.Greater(t, float64(v), th)
		}
	}
}

func TestOtsuDegenerateFallsBackToMean(t *testing.T) {
	logger, hook := test.NewNullLogger()
	th, err := Otsu{Logger: logger}.Threshold(grid(0.25, 0.25, 0.25, 0.25))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, th, 1e-9)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	var de *raster.DegenerateInputError
	require.True(t, errors.As(hook.LastEntry().Data[logrus.ErrorKey].(error), &de))
	assert.Equal(t, 0.25, de.Fallback)
}

func TestOtsuDegenerateUsesFallbackPercentile(t *testing.T) {
	logger, _ := test.NewNullLogger()
	th, err := Otsu{FallbackPercentile: 90, Logger: logger}.Threshold(grid(2, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, th)
}

func TestOtsuIgnoresNaN(t *testing.T) {
	nan := float32(math.NaN())
	th, err := Otsu{}.Threshold(grid(nan, 0, 0, 1, 1, nan))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(th))
}

func TestOtsuEmpty(t *testing.T) {
	_, err := Otsu{}.Threshold(grid(float32(math.NaN())))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPercentile(t *testing.T) {
	g := grid(5, 1, 4, 2, 3)
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{25, 2},
		{50, 3},
		{85, 4.4},
		{100, 5},
	}
	for _, tt := range tests {
		got, err := Percentile{P: tt.p}.Threshold(g)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, "p=%v", tt.p)
	}
}

func TestPercentileOutOfRange(t *testing.T) {
	_, err := Percentile{P: 101}.Threshold(grid(1, 2))
	assert.Error(t, err)
}

func TestFixed(t *testing.T) {
	th, err := Fixed{Value: 0.2}.Threshold(grid(1))
	require.NoError(t, err)
	assert.Equal(t, 0.2, th)
	assert.Equal(t, "fixed-0.2", Fixed{Value: 0.2}.Name())
}
