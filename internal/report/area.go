package report

import (
	"fmt"
	"sort"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
)

const squareMetersPerHectare = 10000.0

// AreaStat is the reported area of one change category.
type AreaStat struct {
	AreaHa float64          `json:"area_ha"`
	Color  properties.Color `json:"color"`
}

// AreaStats maps a category label to its area.
type AreaStats map[string]AreaStat

// Hectares converts a pixel count to hectares.
func Hectares(count int, pixelAreaM2 float64) (float64, error) {
	if count < 0 {
		return 0, fmt.Errorf("pixel count must not be negative, got %d", count)
	}
	if pixelAreaM2 <= 0 {
		return 0, fmt.Errorf("pixel area must be positive, got %g", pixelAreaM2)
	}
	return float64(count) * pixelAreaM2 / squareMetersPerHectare, nil
}

// Areas converts category counts into labelled hectare figures.
func Areas(counts change.Counts, pixelAreaM2 float64, labels properties.Labels, palette properties.Palette) (AreaStats, error) {
	entries := []struct {
		label string
		count int
		color properties.Color
	}{
		{labels.Persistent, counts.Persistent, palette.Persistent},
		{labels.New, counts.New, palette.New},
		{labels.Lost, counts.Lost, palette.Lost},
		{labels.NoChange, counts.Unchanged, palette.Background},
	}

	stats := make(AreaStats, len(entries))
	for _, e := range entries {
		ha, err := Hectares(e.count, pixelAreaM2)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s area: %w", e.label, err)
		}
		stats[e.label] = AreaStat{AreaHa: ha, Color: e.color}
	}
	return stats, nil
}

// Row is one flattened entry of AreaStats, ordered by label.
type Row struct {
	Label  string  `csv:"label"`
	AreaHa float64 `csv:"area_ha"`
	Color  string  `csv:"color"`
}

func (s AreaStats) Rows() []Row {
	rows := make([]Row, 0, len(s))
	for label, st := range s {
		rows = append(rows, Row{Label: label, AreaHa: st.AreaHa, Color: st.Color.Hex()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows
}
