package sentinel

import (
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// PixelToLonLat returns the WGS84 lon/lat of the upper-left corner of pixel
// (x, y).
func PixelToLonLat(ref raster.GeoRef, x, y int) (float64, float64, error) {
	mx, my := ref.PixelToMap(float64(x), float64(y))
	if ref.Projection == "" {
		return mx, my, nil
	}
	rp, err := NewWGS84Reprojector(ref.Projection)
	if err != nil {
		return 0, 0, err
	}
	defer rp.Close()

	xs, ys := []float64{mx}, []float64{my}
	if err := rp.ToLonLat(xs, ys); err != nil {
		return 0, 0, err
	}
	return xs[0], ys[0], nil
}
