package output

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
)

// parseMask reads rows of '#' (set) and '.' (unset).
func parseMask(rows ...string) raster.Mask {
	m := raster.NewMask(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			m.Set(x, y, c == '#')
		}
	}
	return m
}

func mapFrom(cats ...[]change.Category) *change.Map {
	m := &change.Map{Width: len(cats[0]), Height: len(cats)}
	for _, row := range cats {
		m.Data = append(m.Data, row...)
	}
	return m
}

func TestRenderChangeMap(t *testing.T) {
	m := mapFrom(
		[]change.Category{change.NoChange, change.Persistent},
		[]change.Category{change.New, change.Lost},
	)
	data, err := RenderChangeMap(m, properties.WaterPalette)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, properties.WaterPalette.Background.RGBA(), color.RGBAModel.Convert(img.At(0, 0)))
	assert.Equal(t, properties.WaterPalette.Persistent.RGBA(), color.RGBAModel.Convert(img.At(1, 0)))
	assert.Equal(t, properties.WaterPalette.New.RGBA(), color.RGBAModel.Convert(img.At(0, 1)))
	assert.Equal(t, properties.WaterPalette.Lost.RGBA(), color.RGBAModel.Convert(img.At(1, 1)))
}

// boundsVectorizer returns the bounding box of all set cells as one shape.
func boundsVectorizer(m raster.Mask) ([]Shape, error) {
	minX, minY, maxX, maxY := m.Width, m.Height, -1, -1
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) {
				minX, minY = min(minX, x), min(minY, y)
				maxX, maxY = max(maxX, x+1), max(maxY, y+1)
			}
		}
	}
	if maxX < 0 {
		return nil, nil
	}
	x0, y0, x1, y1 := float64(minX), float64(minY), float64(maxX), float64(maxY)
	ring := orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
	return []Shape{{Polygon: orb.Polygon{ring}, Pixels: m.Count()}}, nil
}

type swapAxes struct{ calls int }

func (s *swapAxes) ToLonLat(xs, ys []float64) error {
	s.calls++
	for i := range xs {
		xs[i], ys[i] = xs[i]/100, ys[i]/100
	}
	return nil
}

func TestChangePolygons(t *testing.T) {
	m := mapFrom(
		[]change.Category{change.Lost, change.Lost, change.NoChange},
		[]change.Category{change.Lost, change.NoChange, change.New},
	)
	ref := &raster.GeoRef{GeoTransform: [6]float64{1000, 10, 0, 2000, 0, -10}}

	fc, err := ChangePolygons(m.Mask(change.Lost), change.Lost, PolygonOptions{Vectorize: boundsVectorizer, GeoRef: ref})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "lost", f.Properties["change"])
	assert.InDelta(t, 400, f.Properties["area_m2"].(float64), 1e-9, "measured on the geometry")
	assert.InDelta(t, 0.04, f.Properties["area_ha"].(float64), 1e-9)
	poly := f.Geometry.(orb.Polygon)
	bound := poly.Bound()
	assert.Equal(t, orb.Point{1000, 1980}, bound.Min)
	assert.Equal(t, orb.Point{1020, 2000}, bound.Max)

	rp := &swapAxes{}
	fc, err = ChangePolygons(m.Mask(change.New), change.New, PolygonOptions{Vectorize: boundsVectorizer, GeoRef: ref, Reproject: rp, PixelAreaM2: 100})
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, 1, rp.calls)
	assert.InDelta(t, 100, fc.Features[0].Properties["area_m2"].(float64), 1e-9)
	assert.Equal(t, orb.Point{10.2, 19.8}, fc.Features[0].Geometry.Bound().Min)
}

func TestChangePolygonsSimplify(t *testing.T) {
	ring := orb.Ring{{0, 0}}
	for i := 1; i <= 20; i++ {
		ring = append(ring, orb.Point{float64(i), float64(i - 1)}, orb.Point{float64(i), float64(i)})
	}
	ring = append(ring, orb.Point{0, 20}, orb.Point{0, 0})
	staircase := func(raster.Mask) ([]Shape, error) {
		return []Shape{{Polygon: orb.Polygon{ring}, Pixels: 210}}, nil
	}
	cells := raster.NewMask(20, 20)

	raw, err := ChangePolygons(cells, change.New, PolygonOptions{Vectorize: staircase})
	require.NoError(t, err)
	simple, err := ChangePolygons(cells, change.New, PolygonOptions{Vectorize: staircase, Tolerance: 1.5})
	require.NoError(t, err)

	rawRing := raw.Features[0].Geometry.(orb.Polygon)[0]
	simpleRing := simple.Features[0].Geometry.(orb.Polygon)[0]
	assert.Less(t, len(simpleRing), len(rawRing))
	assert.GreaterOrEqual(t, len(simpleRing), 4)
	assert.Equal(t, raw.Features[0].Properties["area_m2"], simple.Features[0].Properties["area_m2"])
}

func TestChangePolygonsVectorizerErrors(t *testing.T) {
	cells := parseMask("#")
	_, err := ChangePolygons(cells, change.New, PolygonOptions{})
	assert.ErrorContains(t, err, "no vectorizer")

	broken := func(raster.Mask) ([]Shape, error) { return nil, errors.New("driver missing") }
	_, err = ChangePolygons(cells, change.New, PolygonOptions{Vectorize: broken})
	assert.ErrorContains(t, err, "driver missing")
}

func TestSaveGeoJSON(t *testing.T) {
	m := mapFrom([]change.Category{change.Lost})
	fc, err := ChangePolygons(m.Mask(change.Lost), change.Lost, PolygonOptions{Vectorize: boundsVectorizer})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "lost.geojson")
	require.NoError(t, SaveGeoJSON(fc, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
	assert.Contains(t, string(data), `"change": "lost"`)
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestOverlayCategoryScalesMask(t *testing.T) {
	m := mapFrom(
		[]change.Category{change.Lost, change.NoChange},
		[]change.Category{change.NoChange, change.NoChange},
	)
	base := solid(4, 4, color.RGBA{A: 255})

	out := OverlayCategory(base, m, change.Lost, properties.OverlayColor, DefaultOverlayAlpha)
	require.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())

	tinted := out.RGBAAt(1, 1)
	assert.InDelta(t, 96, int(tinted.R), 1)
	assert.InDelta(t, 19, int(tinted.G), 1)
	assert.InDelta(t, 144, int(tinted.B), 1)
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{A: 255}, base.RGBAAt(1, 1), "base must not change")
}

func TestCreateCollage(t *testing.T) {
	img, err := CreateCollage(
		Panel{Image: solid(100, 80, color.RGBA{R: 255, A: 255}), Caption: "Pre"},
		Panel{Image: solid(50, 100, color.RGBA{G: 255, A: 255}), Caption: "Post"},
	)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, 150, b.Dx())
	// font 20, padding 4
	assert.Equal(t, 100+28, b.Dy())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, color.RGBAModel.Convert(img.At(10, 28+10)))

	_, err = CreateCollage()
	assert.Error(t, err)
}

func TestChangeMapWithLegend(t *testing.T) {
	m := mapFrom([]change.Category{change.Lost, change.New})
	stats := report.AreaStats{"Lost Water": {AreaHa: 0.01, Color: properties.WaterPalette.Lost}}
	img := ChangeMapWithLegend(m, properties.WaterPalette, properties.WaterLabels, stats)
	b := img.Bounds()
	assert.GreaterOrEqual(t, b.Dx(), 2)
	assert.Greater(t, b.Dy(), 1)
	assert.Equal(t, properties.WaterPalette.Lost.RGBA(), color.RGBAModel.Convert(img.At(0, 0)))
}

func TestCreateTimelapseGIF(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	frames := []Frame{
		{Image: solid(40, 30, color.RGBA{B: 255, A: 255}), Date: day(3)},
		{Image: solid(80, 60, color.RGBA{R: 255, A: 255}), Date: day(1), Label: "first"},
	}
	var buf bytes.Buffer
	require.NoError(t, CreateTimelapseGIF(&buf, frames, 50))

	anim, err := gif.DecodeAll(&buf)
	require.NoError(t, err)
	require.Len(t, anim.Image, 2)
	assert.Equal(t, []int{50, 50}, anim.Delay)
	for _, frame := range anim.Image {
		assert.Equal(t, image.Rect(0, 0, 40, 30), frame.Bounds())
	}
	r, _, _, _ := anim.Image[0].At(39, 29).RGBA()
	assert.Greater(t, r, uint32(0x8000), "red frame is dated first")

	assert.Error(t, CreateTimelapseGIF(&buf, nil, 50))
	assert.Error(t, CreateTimelapseGIF(&buf, []Frame{frames[0], frames[0]}, 50))
}

func TestCreateTimelapseAVI(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	frames := []Frame{
		{Image: solid(40, 30, color.RGBA{B: 255, A: 255}), Date: day(3)},
		{Image: solid(80, 60, color.RGBA{R: 255, A: 255}), Date: day(1)},
	}
	path := filepath.Join(t.TempDir(), "timelapse.avi")
	require.NoError(t, CreateTimelapseAVI(path, frames, 2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
	assert.Contains(t, string(data), "MJPG")
	assert.Equal(t, 2, bytes.Count(data, []byte{0xff, 0xd8, 0xff}), "one JPEG per frame")

	assert.Error(t, CreateTimelapseAVI(path, nil, 2))
	assert.Error(t, CreateTimelapseAVI(path, frames, 0))
}

func TestIndexImage(t *testing.T) {
	g := raster.GridFrom(3, 1, []float32{-1, 0, 1})
	img := IndexImage(g)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(2, 0))
}

func TestMaskImage(t *testing.T) {
	img := MaskImage(parseMask("#.", ".#"))
	assert.Equal(t, uint8(255), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), img.GrayAt(1, 1).Y)
}

func TestPlotIndexHistogram(t *testing.T) {
	g := raster.GridFrom(2, 2, []float32{-0.5, -0.4, 0.3, 0.6})
	path := filepath.Join(t.TempDir(), "hist", "pre_mndwi.png")
	require.NoError(t, PlotIndexHistogram(g, 0.1, "MNDWI", path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWriteStatsCSV(t *testing.T) {
	stats := report.AreaStats{
		"Lost Water": {AreaHa: 1.5, Color: properties.Color{R: 255}},
		"New Water":  {AreaHa: 0.25, Color: properties.Color{G: 255}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteStatsCSV(&buf, stats))
	assert.Equal(t, "label,area_ha,color\nLost Water,1.5,#ff0000\nNew Water,0.25,#00ff00\n", buf.String())
}

func TestDecodePreview(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 2, color.RGBA{R: 10, A: 255})))
	img, err := DecodePreview(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())

	_, err = DecodePreview([]byte("junk"))
	assert.Error(t, err)
}

func TestDrawBoxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxes.png")
	base := solid(20, 20, color.RGBA{A: 255})
	require.NoError(t, DrawBoxes(base, []raster.Box{{X1: 5, Y1: 5, X2: 15, Y2: 15}, {X1: 30, Y1: 30, X2: 40, Y2: 40}}, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	r, _, _, _ := img.At(5, 10).RGBA()
	assert.Greater(t, r, uint32(0x8000))
	r, g, b, _ := img.At(10, 10).RGBA()
	assert.Zero(t, r|g|b)
}
