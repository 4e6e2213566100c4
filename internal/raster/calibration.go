package raster

// Calibration corrects a systematic misregistration of a scene's
// georeference before vector outputs are derived from it. Shift values are
// fractions of the raster extent; Offset values are map units. The zero value
// is the identity.
type Calibration struct {
	ShiftX  float64 `mapstructure:"shift_x" json:"shift_x"`
	ShiftY  float64 `mapstructure:"shift_y" json:"shift_y"`
	OffsetX float64 `mapstructure:"offset_x" json:"offset_x"`
	OffsetY float64 `mapstructure:"offset_y" json:"offset_y"`
}

func (c Calibration) IsIdentity() bool {
	return c == Calibration{}
}

// Apply returns ref with its origin moved by the calibration. width and
// height are the raster size in pixels.
func (c Calibration) Apply(ref GeoRef, width, height int) GeoRef {
	if c.IsIdentity() {
		return ref
	}
	gt := ref.GeoTransform
	extentX := gt[1] * float64(width)
	extentY := gt[5] * float64(height)
	gt[0] += c.ShiftX*extentX + c.OffsetX
	gt[3] += c.ShiftY*extentY + c.OffsetY
	return GeoRef{GeoTransform: gt, Projection: ref.Projection}
}
