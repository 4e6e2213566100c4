package delivery

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
)

// Evaluate scores a predicted mask against a ground truth mask. GeoTIFFs are
// read through rasters; PNG and JPEG masks count any non-black pixel as set.
// When outPath is not empty the evaluation is also written there as JSON.
func Evaluate(predPath, truthPath, outPath string, rasters Rasters) (report.Evaluation, error) {
	pred, err := readMask(predPath, rasters)
	if err != nil {
		return report.Evaluation{}, fmt.Errorf("failed to read predicted mask: %w", err)
	}
	truth, err := readMask(truthPath, rasters)
	if err != nil {
		return report.Evaluation{}, fmt.Errorf("failed to read ground truth mask: %w", err)
	}

	e := report.EvaluateMask(pred, truth)
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
			return e, fmt.Errorf("failed to create output folder: %w", err)
		}
		if err := writeJSON(outPath, e); err != nil {
			return e, err
		}
	}
	return e, nil
}

func readMask(path string, rasters Rasters) (raster.Mask, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		if rasters == nil {
			return raster.Mask{}, fmt.Errorf("no raster access configured for %s", path)
		}
		return rasters.ReadMask(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return raster.Mask{}, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return raster.Mask{}, &raster.FormatError{Reason: err.Error()}
	}
	return imageMask(img), nil
}

func imageMask(img image.Image) raster.Mask {
	b := img.Bounds()
	m := raster.NewMask(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.Set(x, y, r|g|bl != 0)
		}
	}
	return m
}
