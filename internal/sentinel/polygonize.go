package sentinel

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

// pixelTransform keeps polygonized coordinates on pixel corners.
var pixelTransform = [6]float64{0, 1, 0, 0, 0, 1}

// Polygonize traces the 4-connected regions of set cells with
// GDALPolygonize. Coordinates are pixel corners, (0,0) being the top-left
// corner of the raster.
func Polygonize(m raster.Mask) ([]output.Shape, error) {
	if m.Count() == 0 {
		return nil, nil
	}

	rds, err := godal.Create(godal.Memory, "", 1, godal.Byte, m.Width, m.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to create mask raster: %w", err)
	}
	defer rds.Close()
	if err := rds.SetGeoTransform(pixelTransform); err != nil {
		return nil, fmt.Errorf("failed to set mask geotransform: %w", err)
	}

	buf := make([]byte, len(m.Data))
	for i, v := range m.Data {
		if v {
			buf[i] = 1
		}
	}
	band := rds.Bands()[0]
	if err := band.Write(0, 0, buf, m.Width, m.Height); err != nil {
		return nil, fmt.Errorf("failed to write mask band: %w", err)
	}

	vds, err := godal.CreateVector(godal.Memory, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create polygon dataset: %w", err)
	}
	defer vds.Close()
	layer, err := vds.CreateLayer("shapes", nil, godal.GTPolygon, godal.NewFieldDefinition("value", godal.FTInt))
	if err != nil {
		return nil, fmt.Errorf("failed to create polygon layer: %w", err)
	}

	// The band masks itself so unset cells produce no polygon.
	if err := band.Polygonize(layer, godal.Mask(band), godal.PixelValueFieldIndex(0)); err != nil {
		return nil, fmt.Errorf("failed to polygonize mask: %w", err)
	}

	var shapes []output.Shape
	layer.ResetReading()
	for {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}
		raw, err := feat.Geometry().WKB()
		feat.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to export polygon: %w", err)
		}
		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode polygon: %w", err)
		}
		poly, ok := g.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("unexpected %s geometry from polygonize", g.GeoJSONType())
		}
		shapes = append(shapes, output.Shape{
			Polygon: poly,
			Pixels:  int(math.Round(planar.Area(poly))),
		})
	}
	return shapes, nil
}
