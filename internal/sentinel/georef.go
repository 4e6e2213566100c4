package sentinel

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// Reprojector converts coordinates from a scene CRS to WGS84 lon/lat.
type Reprojector struct {
	src, dst *godal.SpatialRef
	tr       *godal.Transform
}

func NewWGS84Reprojector(projectionWKT string) (*Reprojector, error) {
	src, err := godal.NewSpatialRefFromWKT(projectionWKT)
	if err != nil {
		return nil, fmt.Errorf("failed to parse projection: %w", err)
	}
	dst, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create WGS84 reference: %w", err)
	}
	tr, err := godal.NewTransform(src, dst)
	if err != nil {
		src.Close()
		dst.Close()
		return nil, fmt.Errorf("failed to create transform: %w", err)
	}
	return &Reprojector{src: src, dst: dst, tr: tr}, nil
}

// Transform reprojects the coordinates in place.
func (r *Reprojector) Transform(xs, ys []float64) error {
	if err := r.tr.TransformEx(xs, ys, nil, nil); err != nil {
		return fmt.Errorf("transform error: %w", err)
	}
	return nil
}

// ToLonLat reprojects map coordinates in place, leaving longitudes in xs
// and latitudes in ys. EPSG:4326 uses lat/lon axis order, so GDAL returns
// them swapped.
func (r *Reprojector) ToLonLat(xs, ys []float64) error {
	if err := r.Transform(xs, ys); err != nil {
		return err
	}
	for i := range xs {
		xs[i], ys[i] = ys[i], xs[i]
	}
	return nil
}

func (r *Reprojector) Close() {
	r.tr.Close()
	r.dst.Close()
	r.src.Close()
}

// PixelSize returns the raster size requested for a lon/lat bounding box at
// the given ground sampling distance, clamped to the 1..2500 range accepted
// by the process API.
func PixelSize(bbox [4]float64, gsdMeters float64) (int, int) {
	return calculatePixels(bbox[2]-bbox[0], gsdMeters), calculatePixels(bbox[3]-bbox[1], gsdMeters)
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	if pixels > 2500 {
		return 2500
	}
	return int(pixels)
}
