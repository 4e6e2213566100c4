package output

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// DrawBoxes draws detection boxes over img in red and writes a PNG.
func DrawBoxes(img image.Image, boxes []raster.Box, path string) error {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, 0, 0)

	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(2)
	for _, box := range boxes {
		box = box.Clamp(b.Dx(), b.Dy())
		if box.Empty() {
			continue
		}
		dc.DrawRectangle(float64(box.X1), float64(box.Y1), float64(box.X2-box.X1), float64(box.Y2-box.Y1))
		dc.Stroke()
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save image: %v", err)
	}
	return nil
}
