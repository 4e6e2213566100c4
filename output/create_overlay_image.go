package output

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

const DefaultOverlayAlpha = 0.6

// OverlayCategory blends the cells of one change category over base. The
// change map is scaled nearest-neighbour to the base image size, so a
// preview at a different resolution lines up with the band grid.
func OverlayCategory(base image.Image, m *change.Map, cat change.Category, c properties.Color, alpha float64) *image.RGBA {
	return OverlayMask(base, m.Mask(cat), c, alpha)
}

func OverlayMask(base image.Image, mask raster.Mask, c properties.Color, alpha float64) *image.RGBA {
	b := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), base, b.Min, draw.Src)

	src := image.NewAlpha(image.Rect(0, 0, mask.Width, mask.Height))
	for i, v := range mask.Data {
		if v {
			src.Pix[i] = 255
		}
	}
	scaled := image.NewAlpha(out.Bounds())
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)

	tint := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			if scaled.AlphaAt(x, y).A == 0 {
				continue
			}
			px := out.RGBAAt(x, y)
			under := colorful.Color{R: float64(px.R) / 255, G: float64(px.G) / 255, B: float64(px.B) / 255}
			r, g, bl := under.BlendRgb(tint, alpha).Clamped().RGB255()
			out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bl, A: 255})
		}
	}
	return out
}
