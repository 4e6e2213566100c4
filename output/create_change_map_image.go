package output

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
)

// ChangeMapImage paints every cell of m with its category color.
func ChangeMapImage(m *change.Map, p properties.Palette) *image.RGBA {
	lut := [4]color.RGBA{
		change.NoChange:   p.Background.RGBA(),
		change.Persistent: p.Persistent.RGBA(),
		change.New:        p.New.RGBA(),
		change.Lost:       p.Lost.RGBA(),
	}

	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			img.SetRGBA(x, y, lut[m.At(x, y)])
		}
	}
	return img
}

// RenderChangeMap encodes the colored change map as PNG.
func RenderChangeMap(m *change.Map, p properties.Palette) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, ChangeMapImage(m, p)); err != nil {
		return nil, fmt.Errorf("failed to encode change map: %w", err)
	}
	return buf.Bytes(), nil
}

// SavePNG writes img to path, creating parent directories.
func SavePNG(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
