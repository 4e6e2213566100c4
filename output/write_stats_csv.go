package output

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"golang.org/x/image/tiff"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
)

// WriteStatsCSV writes one row per class: label, area_ha, color.
func WriteStatsCSV(w io.Writer, stats report.AreaStats) error {
	rows := stats.Rows()
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write stats csv: %w", err)
	}
	return nil
}

// SaveCSV marshals rows, a pointer to a slice of gocsv-tagged structs, to
// path.
func SaveCSV(rows interface{}, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// DecodePreview decodes an 8-bit true colour preview. TIFF is tried first,
// as returned by the process API, then any registered image format.
func DecodePreview(data []byte) (image.Image, error) {
	if img, err := tiff.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode preview: %w", err)
	}
	return img, nil
}
