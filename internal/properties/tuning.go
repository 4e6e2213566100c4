package properties

import (
	"errors"
	"fmt"
)

// Tuning holds the analysis parameters injected into every pipeline run.
type Tuning struct {
	OtsuBins               int     `mapstructure:"otsu_bins" json:"otsu_bins"`
	OtsuFallbackPercentile float64 `mapstructure:"otsu_fallback_percentile" json:"otsu_fallback_percentile"`
	MinHoleArea            int     `mapstructure:"min_hole_area" json:"min_hole_area"`
	MinObjectSize          int     `mapstructure:"min_object_size" json:"min_object_size"`
	BuiltupMinHoleArea     int     `mapstructure:"builtup_min_hole_area" json:"builtup_min_hole_area"`
	BuiltupMinObjectSize   int     `mapstructure:"builtup_min_object_size" json:"builtup_min_object_size"`
	ExportMinHoleArea      int     `mapstructure:"export_min_hole_area" json:"export_min_hole_area"`
	ExportMinObjectSize    int     `mapstructure:"export_min_object_size" json:"export_min_object_size"`
	BuiltupPercentile      float64 `mapstructure:"builtup_percentile" json:"builtup_percentile"`
	VegNDVIThreshold       float64 `mapstructure:"veg_ndvi_threshold" json:"veg_ndvi_threshold"`
	NBIDeltaThreshold      float64 `mapstructure:"nbi_delta_threshold" json:"nbi_delta_threshold"`
	NBIExclusionThreshold  float64 `mapstructure:"nbi_exclusion_threshold" json:"nbi_exclusion_threshold"`
	GSDMeters              float64 `mapstructure:"gsd_meters" json:"gsd_meters"`
	// PixelAreaOverride replaces GSDMeters² when positive.
	PixelAreaOverride  float64 `mapstructure:"pixel_area_m2" json:"pixel_area_m2"`
	ColorPalette       string  `mapstructure:"color_palette" json:"color_palette"`
	Strict             bool    `mapstructure:"strict" json:"strict"`
	MaskClouds         bool    `mapstructure:"mask_clouds" json:"mask_clouds"`
	DetectorConfidence float64 `mapstructure:"detector_confidence" json:"detector_confidence"`
	DetectorMinArea    int     `mapstructure:"detector_min_area" json:"detector_min_area"`
}

func DefaultTuning() Tuning {
	return Tuning{
		OtsuBins:              256,
		MinHoleArea:           8000,
		MinObjectSize:         200,
		BuiltupMinHoleArea:    300,
		BuiltupMinObjectSize:  150,
		ExportMinHoleArea:     100,
		ExportMinObjectSize:   300,
		BuiltupPercentile:     85,
		VegNDVIThreshold:      0.2,
		NBIDeltaThreshold:     0.15,
		NBIExclusionThreshold: 0.25,
		GSDMeters:             10,
		DetectorConfidence:    0.25,
		DetectorMinArea:       50,
	}
}

// PixelAreaM2 is the ground area covered by one pixel.
func (t Tuning) PixelAreaM2() float64 {
	if t.PixelAreaOverride > 0 {
		return t.PixelAreaOverride
	}
	return t.GSDMeters * t.GSDMeters
}

func (t Tuning) Validate() error {
	var errs []error
	if t.OtsuBins < 2 {
		errs = append(errs, fmt.Errorf("otsu_bins must be at least 2, got %d", t.OtsuBins))
	}
	if t.OtsuFallbackPercentile < 0 || t.OtsuFallbackPercentile > 100 {
		errs = append(errs, fmt.Errorf("otsu_fallback_percentile must be in [0, 100], got %g", t.OtsuFallbackPercentile))
	}
	if t.BuiltupPercentile < 0 || t.BuiltupPercentile > 100 {
		errs = append(errs, fmt.Errorf("builtup_percentile must be in [0, 100], got %g", t.BuiltupPercentile))
	}
	for name, v := range map[string]int{
		"min_hole_area":           t.MinHoleArea,
		"min_object_size":         t.MinObjectSize,
		"builtup_min_hole_area":   t.BuiltupMinHoleArea,
		"builtup_min_object_size": t.BuiltupMinObjectSize,
		"export_min_hole_area":    t.ExportMinHoleArea,
		"export_min_object_size":  t.ExportMinObjectSize,
		"detector_min_area":       t.DetectorMinArea,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", name, v))
		}
	}
	if t.GSDMeters <= 0 {
		errs = append(errs, fmt.Errorf("gsd_meters must be positive, got %g", t.GSDMeters))
	}
	if t.PixelAreaOverride < 0 {
		errs = append(errs, fmt.Errorf("pixel_area_m2 must not be negative, got %g", t.PixelAreaOverride))
	}
	if t.DetectorConfidence < 0 || t.DetectorConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector_confidence must be in [0, 1], got %g", t.DetectorConfidence))
	}
	if t.ColorPalette != "" {
		if _, ok := Palettes[t.ColorPalette]; !ok {
			errs = append(errs, fmt.Errorf("unknown color_palette %q", t.ColorPalette))
		}
	}
	return errors.Join(errs...)
}
