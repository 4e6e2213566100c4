package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

type pixel struct {
	green, red, nir, swir float32
}

var (
	land  = pixel{green: 0.1, red: 0.1, nir: 0.3, swir: 0.3}
	water = pixel{green: 0.3, red: 0.05, nir: 0.05, swir: 0.05}
)

func makeScene(t *testing.T, w, h int, at func(x, y int) pixel) *raster.Scene {
	t.Helper()
	bands := make([][]float32, raster.BandCount)
	for b := range bands {
		bands[b] = make([]float32, w*h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := at(x, y)
			i := y*w + x
			bands[raster.Green][i] = p.green
			bands[raster.Red][i] = p.red
			bands[raster.NIR][i] = p.nir
			bands[raster.SWIR1][i] = p.swir
			bands[raster.SCL][i] = 4
		}
	}
	s, err := raster.NewScene(w, h, bands)
	require.NoError(t, err)
	return s
}

func waterLeftOf(col int) func(x, y int) pixel {
	return func(x, y int) pixel {
		if x < col {
			return water
		}
		return land
	}
}

func smallTuning() properties.Tuning {
	t := properties.DefaultTuning()
	t.MinHoleArea = 2
	t.MinObjectSize = 2
	return t
}

func newPipeline(t *testing.T, v Variant, tuning properties.Tuning, opts ...Option) *Pipeline {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p, err := New(v, tuning, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return p
}

type fakeDecoder map[string]*raster.Scene

func (f fakeDecoder) Decode(data []byte) (*raster.Scene, error) {
	s, ok := f[string(data)]
	if !ok {
		return nil, &raster.FormatError{Reason: "unknown payload"}
	}
	return s, nil
}

func TestWaterChange(t *testing.T) {
	pre := makeScene(t, 10, 10, waterLeftOf(5))
	post := makeScene(t, 10, 10, waterLeftOf(3))
	p := newPipeline(t, Water, smallTuning())

	res, err := p.RunScenes(context.Background(), pre, post, Exclusions{})
	require.NoError(t, err)
	assert.Equal(t, change.Counts{Persistent: 30, Lost: 20, Unchanged: 50}, res.Counts)
	assert.InDelta(t, 0.2, res.Stats["Lost Water"].AreaHa, 1e-9)
	assert.Equal(t, properties.WaterPalette.Lost, res.Stats["Lost Water"].Color)
	assert.NotEmpty(t, res.ChangePNG)
}

func TestRunDeterministic(t *testing.T) {
	dec := fakeDecoder{
		"pre":  makeScene(t, 12, 9, waterLeftOf(6)),
		"post": makeScene(t, 12, 9, waterLeftOf(8)),
	}
	p := newPipeline(t, Water, smallTuning(), WithDecoder(dec))

	in := Input{Pre: []byte("pre"), Post: []byte("post")}
	first, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ChangePNG, second.ChangePNG)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, 12*9, first.Counts.Total())
}

func TestRunDecodeError(t *testing.T) {
	dec := fakeDecoder{"pre": makeScene(t, 2, 2, waterLeftOf(1))}
	p := newPipeline(t, Water, smallTuning(), WithDecoder(dec))

	_, err := p.Run(context.Background(), Input{Pre: []byte("pre"), Post: []byte("garbage")})
	var fe *raster.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "post scene")
}

func TestRunWithoutDecoder(t *testing.T) {
	p := newPipeline(t, Water, smallTuning())
	_, err := p.Run(context.Background(), Input{})
	assert.Error(t, err)
}

func TestRunScenesCancelled(t *testing.T) {
	s := makeScene(t, 4, 4, waterLeftOf(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPipeline(t, Water, smallTuning()).RunScenes(ctx, s, s, Exclusions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShapeMismatch(t *testing.T) {
	pre := makeScene(t, 5, 5, waterLeftOf(5))
	post := makeScene(t, 7, 5, waterLeftOf(0))

	res, err := newPipeline(t, Water, smallTuning()).RunScenes(context.Background(), pre, post, Exclusions{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Map.Width)
	assert.Equal(t, 25, res.Counts.Total())

	strict := smallTuning()
	strict.Strict = true
	_, err = newPipeline(t, Water, strict).RunScenes(context.Background(), pre, post, Exclusions{})
	var se *raster.ShapeMismatchError
	assert.ErrorAs(t, err, &se)
}

func TestExclusionBoxes(t *testing.T) {
	s := makeScene(t, 10, 10, waterLeftOf(6))
	res, err := newPipeline(t, Water, smallTuning()).RunScenes(context.Background(), s, s, Exclusions{
		Post: []raster.Box{{X1: 2, Y1: 2, X2: 4, Y2: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Counts.Lost)
	assert.Equal(t, 56, res.Counts.Persistent)
}

func TestBuiltupNBIGatesPostMask(t *testing.T) {
	background := pixel{green: 0.1, red: 0.05, nir: 0.5, swir: 0.1}
	pre := makeScene(t, 10, 10, func(x, y int) pixel { return background })
	post := makeScene(t, 10, 10, func(x, y int) pixel {
		switch {
		case y == 0:
			return pixel{green: 0.1, red: 0.25, nir: 0.5, swir: 0.4}
		case y == 1:
			return pixel{green: 0.1, red: 0.25, nir: 0.5, swir: 0.44}
		}
		return background
	})

	res, err := newPipeline(t, BuiltupNBI, properties.DefaultTuning()).RunScenes(context.Background(), pre, post, Exclusions{})
	require.NoError(t, err)
	assert.Equal(t, change.Counts{New: 10, Unchanged: 90}, res.Counts)
	assert.InDelta(t, 0.1, res.Stats["New Built-up"].AreaHa, 1e-9)
	assert.Equal(t, properties.BuiltupPalette.New, res.Stats["New Built-up"].Color)
}

func TestLookupVariant(t *testing.T) {
	v, err := LookupVariant("builtup-ndbi")
	require.NoError(t, err)
	assert.Equal(t, "ndbi", v.Index)

	_, err = LookupVariant("forest")
	assert.Error(t, err)
	assert.Len(t, VariantNames(), 4)
}

func TestVariantPaletteOverride(t *testing.T) {
	tuning := properties.DefaultTuning()
	assert.Equal(t, properties.WaterPalette, Water.Palette(tuning))
	tuning.ColorPalette = "builtup"
	assert.Equal(t, properties.BuiltupPalette, Water.Palette(tuning))
}

func TestCleanSizes(t *testing.T) {
	tuning := properties.DefaultTuning()
	hole, obj := Water.CleanSizes(tuning)
	assert.Equal(t, 8000, hole)
	assert.Equal(t, 200, obj)
	hole, obj = BuiltupNDBI.CleanSizes(tuning)
	assert.Equal(t, 300, hole)
	assert.Equal(t, 150, obj)
	hole, obj = BuiltupNBI.CleanSizes(tuning)
	assert.Zero(t, hole+obj)
}

func TestBuiltupBAEIExcludesWater(t *testing.T) {
	// Water has a high BAEI through its low SWIR and green reflectance.
	shallow := pixel{green: 0.05, red: 0.05, nir: 0.02, swir: 0.01}
	bare := pixel{green: 0.2, red: 0.25, nir: 0.3, swir: 0.35}
	s := makeScene(t, 10, 10, func(x, y int) pixel {
		if x < 5 {
			return shallow
		}
		return bare
	})

	res, err := newPipeline(t, BuiltupBAEI, properties.DefaultTuning()).RunScenes(context.Background(), s, s, Exclusions{})
	require.NoError(t, err)
	assert.Zero(t, res.Pre.Mask.Count())
	assert.Equal(t, change.Counts{Unchanged: 100}, res.Counts)
}

func TestBuiltupBAEICleansOnlyExport(t *testing.T) {
	hole, obj := BuiltupBAEI.CleanSizes(properties.DefaultTuning())
	assert.Zero(t, hole+obj)

	post := raster.NewMask(40, 40)
	for y := 5; y < 25; y++ {
		for x := 5; x < 25; x++ {
			post.Set(x, y, true)
		}
	}
	post.Set(10, 10, false)
	for x := 30; x < 35; x++ {
		post.Set(x, 35, true)
	}
	m, counts, err := change.Classify(raster.NewMask(40, 40), post, change.Options{})
	require.NoError(t, err)
	require.Equal(t, 404, counts.New)

	tuning := properties.DefaultTuning()
	cleaned, err := BuiltupBAEI.ExportMask(m, change.New, tuning)
	require.NoError(t, err)
	assert.Equal(t, 400, cleaned.Count())
	assert.True(t, cleaned.At(10, 10))
	assert.False(t, cleaned.At(30, 35))

	raw, err := Water.ExportMask(m, change.New, tuning)
	require.NoError(t, err)
	assert.Equal(t, 404, raw.Count())
}

func TestOverlayCategory(t *testing.T) {
	assert.Equal(t, change.Lost, Water.OverlayCategory())
	for _, v := range []Variant{BuiltupNDBI, BuiltupNBI, BuiltupBAEI} {
		assert.Equal(t, change.Persistent, v.OverlayCategory(), v.Name)
	}
}

func TestExclusionBoxesScaledFromFrame(t *testing.T) {
	s := makeScene(t, 10, 10, waterLeftOf(6))
	res, err := newPipeline(t, Water, smallTuning()).RunScenes(context.Background(), s, s, Exclusions{
		Post:      []raster.Box{{X1: 4, Y1: 4, X2: 8, Y2: 8}},
		PostFrame: image.Pt(20, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Counts.Lost)
	assert.Equal(t, 56, res.Counts.Persistent)
}
