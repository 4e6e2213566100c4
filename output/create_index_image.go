package output

import (
	"image"
	"image/color"
	"math"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		// blue to green
		ratio := norm / 0.5
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		// green to red
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// IndexImage colors a normalized-difference grid from blue (-1) through
// green (0) to red (1). NaN cells are black.
func IndexImage(g raster.Grid) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := float64(g.At(x, y))
			if math.IsNaN(v) {
				img.SetRGBA(x, y, color.RGBA{A: 255})
				continue
			}
			img.SetRGBA(x, y, valueToColor(normalize(v, -1, 1)))
		}
	}
	return img
}

// MaskImage renders set cells white on black.
func MaskImage(m raster.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Data {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}
