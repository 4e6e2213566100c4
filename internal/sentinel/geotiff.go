package sentinel

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// WriteMaskGeoTIFF writes m as a single-band uint8 GeoTIFF (255 set, 0
// unset) using ref for georeferencing when it is not nil.
func WriteMaskGeoTIFF(path string, m raster.Mask, ref *raster.GeoRef) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, m.Width, m.Height,
		godal.CreationOption("COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	buf := make([]byte, len(m.Data))
	for i, v := range m.Data {
		if v {
			buf[i] = 255
		}
	}
	if err := ds.Bands()[0].Write(0, 0, buf, m.Width, m.Height); err != nil {
		ds.Close()
		return fmt.Errorf("failed to write mask band: %w", err)
	}

	if ref != nil {
		if err := ds.SetGeoTransform(ref.GeoTransform); err != nil {
			ds.Close()
			return fmt.Errorf("failed to set geotransform: %w", err)
		}
		if ref.Projection != "" {
			if err := ds.SetProjection(ref.Projection); err != nil {
				ds.Close()
				return fmt.Errorf("failed to set projection: %w", err)
			}
		}
	}
	return ds.Close()
}

// ReadMask reads the first band of a raster as a mask; any non-zero cell is
// set.
func ReadMask(path string) (raster.Mask, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return raster.Mask{}, &raster.FormatError{Reason: err.Error()}
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < 1 {
		return raster.Mask{}, &raster.FormatError{Reason: "raster has no bands"}
	}
	data := make([]float32, st.SizeX*st.SizeY)
	if err := ds.Bands()[0].Read(0, 0, data, st.SizeX, st.SizeY); err != nil {
		return raster.Mask{}, fmt.Errorf("failed to read mask band: %w", err)
	}
	m := raster.NewMask(st.SizeX, st.SizeY)
	for i, v := range data {
		m.Data[i] = v != 0
	}
	return m, nil
}
