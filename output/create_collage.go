package output

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
)

var regular, _ = truetype.Parse(goregular.TTF)

func fontFace(size float64) font.Face {
	return truetype.NewFace(regular, &truetype.Options{Size: size})
}

// Panel is one captioned image of a collage.
type Panel struct {
	Image   image.Image
	Caption string
}

// CreateCollage places panels side by side on a white background with the
// caption above each one. The font scales with the tallest panel.
func CreateCollage(panels ...Panel) (image.Image, error) {
	if len(panels) == 0 {
		return nil, fmt.Errorf("no panels provided")
	}

	height, width := 0, 0
	for _, p := range panels {
		b := p.Image.Bounds()
		height = max(height, b.Dy())
		width += b.Dx()
	}
	fontSize := math.Max(20, float64(height)*0.045)
	padding := fontSize * 0.2
	captionHeight := int(math.Ceil(fontSize + 2*padding))

	dc := gg.NewContext(width, height+captionHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(fontFace(fontSize))

	x := 0
	for _, p := range panels {
		b := p.Image.Bounds()
		dc.DrawImage(p.Image, x, captionHeight)
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(p.Caption, float64(x)+float64(b.Dx())/2, padding+fontSize/2, 0.5, 0.5)
		x += b.Dx()
	}
	return dc.Image(), nil
}

// ChangeMapWithLegend renders m with a legend listing each class with its
// area below the map.
func ChangeMapWithLegend(m *change.Map, palette properties.Palette, labels properties.Labels, stats report.AreaStats) image.Image {
	mapImage := ChangeMapImage(m, palette)
	fontSize := math.Max(12, float64(m.Height)*0.03)
	legendSpacing := fontSize * 1.6
	legendHeight := int(math.Ceil(legendSpacing*4 + fontSize))
	width := max(m.Width, int(fontSize*16))

	dc := gg.NewContext(width, m.Height+legendHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(mapImage, 0, 0)
	dc.SetFontFace(fontFace(fontSize))

	entries := []struct {
		label string
		color properties.Color
	}{
		{labels.Persistent, palette.Persistent},
		{labels.New, palette.New},
		{labels.Lost, palette.Lost},
		{labels.NoChange, palette.Background},
	}
	legendX := fontSize / 2
	for i, e := range entries {
		y := float64(m.Height) + fontSize/2 + float64(i)*legendSpacing

		// swatch
		dc.SetRGB255(int(e.color.R), int(e.color.G), int(e.color.B))
		dc.DrawRectangle(legendX, y, fontSize, fontSize)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.SetLineWidth(1)
		dc.DrawRectangle(legendX, y, fontSize, fontSize)
		dc.Stroke()

		text := e.label
		if s, ok := stats[e.label]; ok {
			text = fmt.Sprintf("%s: %.2f ha", e.label, s.AreaHa)
		}
		dc.DrawStringAnchored(text, legendX+fontSize*1.5, y+fontSize/2, 0, 0.5)
	}
	return dc.Image()
}
