package raster

import "fmt"

// Band positions in a scene raster.
const (
	Green = iota
	Red
	NIR
	SWIR1
	SCL

	BandCount
)

var bandNames = [BandCount]string{"green", "red", "nir", "swir1", "scl"}

func BandName(b int) string {
	if b < 0 || b >= BandCount {
		return fmt.Sprintf("band%d", b)
	}
	return bandNames[b]
}

// GeoRef ties pixel coordinates to a coordinate reference system.
type GeoRef struct {
	GeoTransform [6]float64
	Projection   string
}

// PixelToMap returns the map coordinate of the pixel corner (x, y).
func (g GeoRef) PixelToMap(x, y float64) (float64, float64) {
	t := g.GeoTransform
	return t[0] + x*t[1] + y*t[2], t[3] + x*t[4] + y*t[5]
}

func (g GeoRef) Valid() bool {
	return g.GeoTransform[1] != 0 && g.GeoTransform[5] != 0
}

// Scene holds the five bands of one acquisition.
type Scene struct {
	Width  int
	Height int
	Bands  [BandCount]Grid
	GeoRef *GeoRef
}

// NewScene validates decoded band data and builds a scene.
func NewScene(width, height int, bands [][]float32) (*Scene, error) {
	if len(bands) != BandCount {
		return nil, &FormatError{Reason: fmt.Sprintf("expected %d bands, got %d", BandCount, len(bands))}
	}
	if width <= 0 || height <= 0 {
		return nil, &FormatError{Reason: fmt.Sprintf("invalid size %dx%d", width, height)}
	}
	s := &Scene{Width: width, Height: height}
	for i, b := range bands {
		if len(b) != width*height {
			return nil, &FormatError{Reason: fmt.Sprintf("band %s has %d values, want %d", BandName(i), len(b), width*height)}
		}
		s.Bands[i] = Grid{Width: width, Height: height, Data: b}
	}
	return s, nil
}

func (s *Scene) Band(b int) Grid {
	return s.Bands[b]
}
