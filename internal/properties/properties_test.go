package properties

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), cfg.Tuning)
	assert.Equal(t, 100.0, cfg.Tuning.PixelAreaM2())
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root_path: /srv/analysis
tuning:
  min_hole_area: 64
  min_object_size: 20
  gsd_meters: 20
  color_palette: builtup
`), 0644))
	t.Setenv("TUNING_VEG_NDVI_THRESHOLD", "0.35")
	t.Setenv("COPERNICUS_CLIENT_ID", "abc")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/analysis", cfg.RootPath)
	assert.Equal(t, 64, cfg.Tuning.MinHoleArea)
	assert.Equal(t, 20, cfg.Tuning.MinObjectSize)
	assert.Equal(t, 400.0, cfg.Tuning.PixelAreaM2())
	assert.Equal(t, 0.35, cfg.Tuning.VegNDVIThreshold)
	assert.Equal(t, "builtup", cfg.Tuning.ColorPalette)
	assert.Equal(t, "abc", cfg.Copernicus.ClientID)
	assert.Equal(t, filepath.Join("/srv/analysis", "data", "result"), cfg.DataPath("result"))
}

func TestLoadRejectsInvalidTuning(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tuning": {"gsd_meters": 0}}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gsd_meters")
}

func TestTuningValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Tuning)
		field  string
	}{
		{"bins", func(t *Tuning) { t.OtsuBins = 1 }, "otsu_bins"},
		{"fallback", func(t *Tuning) { t.OtsuFallbackPercentile = 101 }, "otsu_fallback_percentile"},
		{"hole", func(t *Tuning) { t.MinHoleArea = -1 }, "min_hole_area"},
		{"export object", func(t *Tuning) { t.ExportMinObjectSize = -1 }, "export_min_object_size"},
		{"pixel area", func(t *Tuning) { t.PixelAreaOverride = -4 }, "pixel_area_m2"},
		{"palette", func(t *Tuning) { t.ColorPalette = "neon" }, "color_palette"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tuning := DefaultTuning()
			tt.mutate(&tuning)
			err := tuning.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
	assert.NoError(t, DefaultTuning().Validate())
}

func TestPixelAreaOverride(t *testing.T) {
	tuning := DefaultTuning()
	tuning.PixelAreaOverride = 25
	assert.Equal(t, 25.0, tuning.PixelAreaM2())
}

func TestColorJSON(t *testing.T) {
	data, err := json.Marshal(BuiltupPalette.New)
	require.NoError(t, err)
	assert.JSONEq(t, `[255,165,0]`, string(data))

	var c Color
	require.NoError(t, json.Unmarshal(data, &c))
	assert.Equal(t, BuiltupPalette.New, c)
	assert.Equal(t, "#ffa500", c.Hex())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	_, err = NewLogger("loud")
	assert.Error(t, err)
}
