package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// LonLatTransformer reprojects map coordinates in place to WGS84, xs holding
// longitudes afterwards.
type LonLatTransformer interface {
	ToLonLat(xs, ys []float64) error
}

// LonLatReprojector is a LonLatTransformer that must be closed.
type LonLatReprojector interface {
	LonLatTransformer
	Close()
}

// Shape is one 4-connected region of a mask as a polygon in pixel corner
// coordinates.
type Shape struct {
	Polygon orb.Polygon
	Pixels  int
}

// Vectorizer traces the set cells of a mask into shapes.
type Vectorizer func(m raster.Mask) ([]Shape, error)

type PolygonOptions struct {
	Vectorize Vectorizer
	// GeoRef maps pixel corners to map coordinates. Nil keeps pixel
	// coordinates.
	GeoRef *raster.GeoRef
	// Reproject, when set, converts map coordinates to lon/lat.
	Reproject LonLatTransformer
	// Tolerance is the Douglas-Peucker tolerance in output units. Zero
	// disables simplification.
	Tolerance float64
	// PixelAreaM2, when positive, gives area_m2 as pixel count times pixel
	// area. Otherwise the area is measured on the geometry.
	PixelAreaM2 float64
}

// ChangePolygons vectorises the cells of one category into 4-connected
// polygons with holes and returns them as a FeatureCollection with
// properties change, area_m2 and area_ha.
func ChangePolygons(cells raster.Mask, cat change.Category, opts PolygonOptions) (*geojson.FeatureCollection, error) {
	if opts.Vectorize == nil {
		return nil, fmt.Errorf("no vectorizer configured")
	}
	shapes, err := opts.Vectorize(cells)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize %s cells: %w", cat, err)
	}
	fc := geojson.NewFeatureCollection()

	for _, s := range shapes {
		poly := s.Polygon
		if opts.GeoRef != nil {
			poly = toMap(poly, *opts.GeoRef)
		}

		var area float64
		switch {
		case opts.PixelAreaM2 > 0:
			area = float64(s.Pixels) * opts.PixelAreaM2
		case opts.Reproject == nil:
			area = planar.Area(poly)
		}

		if opts.Reproject != nil {
			var err error
			if poly, err = reproject(poly, opts.Reproject); err != nil {
				return nil, err
			}
			if opts.PixelAreaM2 <= 0 {
				area = geo.Area(poly)
			}
		}

		if opts.Tolerance > 0 {
			poly = simplifyPolygon(poly, opts.Tolerance)
			if poly == nil {
				continue
			}
		}

		f := geojson.NewFeature(poly)
		f.Properties["change"] = cat.String()
		f.Properties["area_m2"] = area
		f.Properties["area_ha"] = area / 10000
		fc.Append(f)
	}
	return fc, nil
}

func toMap(p orb.Polygon, ref raster.GeoRef) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			x, y := ref.PixelToMap(pt[0], pt[1])
			r[j] = orb.Point{x, y}
		}
		out[i] = r
	}
	return out
}

func reproject(p orb.Polygon, t LonLatTransformer) (orb.Polygon, error) {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		xs := make([]float64, len(ring))
		ys := make([]float64, len(ring))
		for j, pt := range ring {
			xs[j], ys[j] = pt[0], pt[1]
		}
		if err := t.ToLonLat(xs, ys); err != nil {
			return nil, fmt.Errorf("failed to reproject polygon: %w", err)
		}
		r := make(orb.Ring, len(ring))
		for j := range ring {
			r[j] = orb.Point{xs[j], ys[j]}
		}
		out[i] = r
	}
	return out, nil
}

// simplifyPolygon drops rings that collapse below a triangle; nil means the
// exterior collapsed.
func simplifyPolygon(p orb.Polygon, tolerance float64) orb.Polygon {
	s := simplify.DouglasPeucker(tolerance).Simplify(p.Clone())
	sp, ok := s.(orb.Polygon)
	if !ok || len(sp) == 0 || len(sp[0]) < 4 {
		return nil
	}
	out := orb.Polygon{sp[0]}
	for _, hole := range sp[1:] {
		if len(hole) >= 4 {
			out = append(out, hole)
		}
	}
	return out
}

// SaveGeoJSON writes fc to path, creating parent directories.
func SaveGeoJSON(fc *geojson.FeatureCollection, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create GeoJSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fc); err != nil {
		return fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return file.Close()
}
