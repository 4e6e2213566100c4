package pipeline

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/mask"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/threshold"
)

type ThresholdKind int

const (
	OtsuThreshold ThresholdKind = iota
	PercentileThreshold
)

// Variant selects the index, threshold policy and exclusions of a run.
type Variant struct {
	Name      string
	Index     string
	Threshold ThresholdKind

	ExcludeWater      bool
	ExcludeVegetation bool
	// ExcludeAboveIndex drops cells whose own index exceeds the tuning's
	// NBI exclusion threshold.
	ExcludeAboveIndex bool
	// GateDelta keeps post cells only where the index rose by more than the
	// tuning's delta threshold.
	GateDelta bool
	Clean     bool
	// CleanExport cleans each exported class mask with the tuning's export
	// sizes instead of cleaning the pre and post masks.
	CleanExport bool
	Builtup     bool

	SimplifyTolerance float64
}

func (v Variant) Policy(t properties.Tuning, logger logrus.FieldLogger) threshold.Policy {
	switch v.Threshold {
	case PercentileThreshold:
		return threshold.Percentile{P: t.BuiltupPercentile}
	default:
		return threshold.Otsu{Bins: t.OtsuBins, FallbackPercentile: t.OtsuFallbackPercentile, Logger: logger}
	}
}

// CleanSizes returns the minimum hole area and object size for the variant.
func (v Variant) CleanSizes(t properties.Tuning) (int, int) {
	if !v.Clean {
		return 0, 0
	}
	if v.Builtup {
		return t.BuiltupMinHoleArea, t.BuiltupMinObjectSize
	}
	return t.MinHoleArea, t.MinObjectSize
}

// ExportMask returns the cells of category cat as written to GeoTIFF and
// vectorised to GeoJSON.
func (v Variant) ExportMask(m *change.Map, cat change.Category, t properties.Tuning) (raster.Mask, error) {
	cells := m.Mask(cat)
	if !v.CleanExport {
		return cells, nil
	}
	cleaned, err := mask.Clean(cells, t.ExportMinHoleArea, t.ExportMinObjectSize)
	if err != nil {
		return raster.Mask{}, fmt.Errorf("failed to clean %s mask: %w", cat, err)
	}
	return cleaned, nil
}

// OverlayCategory is the class highlighted on the post preview.
func (v Variant) OverlayCategory() change.Category {
	if v.Builtup {
		return change.Persistent
	}
	return change.Lost
}

func (v Variant) Palette(t properties.Tuning) properties.Palette {
	if p, ok := properties.Palettes[t.ColorPalette]; ok {
		return p
	}
	if v.Builtup {
		return properties.BuiltupPalette
	}
	return properties.WaterPalette
}

func (v Variant) Labels() properties.Labels {
	if v.Builtup {
		return properties.BuiltupLabels
	}
	return properties.WaterLabels
}

var (
	Water = Variant{
		Name:              "water",
		Index:             "mndwi",
		Threshold:         OtsuThreshold,
		Clean:             true,
		SimplifyTolerance: 0.00003,
	}
	BuiltupNDBI = Variant{
		Name:              "builtup-ndbi",
		Index:             "ndbi",
		Threshold:         PercentileThreshold,
		ExcludeWater:      true,
		ExcludeVegetation: true,
		Clean:             true,
		Builtup:           true,
		SimplifyTolerance: 0.00005,
	}
	BuiltupNBI = Variant{
		Name:              "builtup-nbi",
		Index:             "nbi",
		Threshold:         PercentileThreshold,
		ExcludeWater:      true,
		ExcludeAboveIndex: true,
		GateDelta:         true,
		Builtup:           true,
		SimplifyTolerance: 0.00005,
	}
	BuiltupBAEI = Variant{
		Name:              "builtup-baei",
		Index:             "baei",
		Threshold:         OtsuThreshold,
		ExcludeWater:      true,
		ExcludeVegetation: true,
		CleanExport:       true,
		Builtup:           true,
		SimplifyTolerance: 0.00005,
	}

	variants = map[string]Variant{
		Water.Name:       Water,
		BuiltupNDBI.Name: BuiltupNDBI,
		BuiltupNBI.Name:  BuiltupNBI,
		BuiltupBAEI.Name: BuiltupBAEI,
	}
)

// LookupVariant returns the variant registered under name.
func LookupVariant(name string) (Variant, error) {
	v, ok := variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("unknown variant %q (available: %v)", name, VariantNames())
	}
	return v, nil
}

func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for k := range variants {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
