package properties

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

type Copernicus struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	ProcessURL   string `mapstructure:"process_url"`
}

type Config struct {
	RootPath                      string     `mapstructure:"root_path"`
	LogLevel                      string     `mapstructure:"log_level"`
	Workers                       int        `mapstructure:"workers"`
	DatabaseDriver                string     `mapstructure:"database_driver"`
	DatabaseURL                   string     `mapstructure:"database_url"`
	DetectorAddr                  string     `mapstructure:"detector_addr"`
	DiscordErrorNotificationURL   string     `mapstructure:"discord_error_notification_url"`
	DiscordSuccessNotificationURL string     `mapstructure:"discord_success_notification_url"`
	Copernicus                    Copernicus `mapstructure:"copernicus"`
	Tuning                        Tuning     `mapstructure:"tuning"`
	// Calibration is applied to the georeference before vector export.
	Calibration raster.Calibration `mapstructure:"calibration"`
}

// DataPath joins elem under <root>/data.
func (c *Config) DataPath(elem ...string) string {
	return filepath.Join(append([]string{c.RootPath, "data"}, elem...)...)
}

func setDefaults(v *viper.Viper) {
	wd, _ := os.Getwd()
	v.SetDefault("root_path", wd)
	v.SetDefault("log_level", "info")
	v.SetDefault("workers", 4)
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("database_url", "")
	v.SetDefault("detector_addr", "")
	v.SetDefault("discord_error_notification_url", "")
	v.SetDefault("discord_success_notification_url", "")
	v.SetDefault("copernicus.client_id", "")
	v.SetDefault("copernicus.client_secret", "")
	v.SetDefault("copernicus.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("copernicus.process_url", "https://sh.dataspace.copernicus.eu/api/v1/process")

	d := DefaultTuning()
	v.SetDefault("tuning.otsu_bins", d.OtsuBins)
	v.SetDefault("tuning.otsu_fallback_percentile", d.OtsuFallbackPercentile)
	v.SetDefault("tuning.min_hole_area", d.MinHoleArea)
	v.SetDefault("tuning.min_object_size", d.MinObjectSize)
	v.SetDefault("tuning.builtup_min_hole_area", d.BuiltupMinHoleArea)
	v.SetDefault("tuning.builtup_min_object_size", d.BuiltupMinObjectSize)
	v.SetDefault("tuning.export_min_hole_area", d.ExportMinHoleArea)
	v.SetDefault("tuning.export_min_object_size", d.ExportMinObjectSize)
	v.SetDefault("tuning.builtup_percentile", d.BuiltupPercentile)
	v.SetDefault("tuning.veg_ndvi_threshold", d.VegNDVIThreshold)
	v.SetDefault("tuning.nbi_delta_threshold", d.NBIDeltaThreshold)
	v.SetDefault("tuning.nbi_exclusion_threshold", d.NBIExclusionThreshold)
	v.SetDefault("tuning.gsd_meters", d.GSDMeters)
	v.SetDefault("tuning.pixel_area_m2", d.PixelAreaOverride)
	v.SetDefault("tuning.color_palette", d.ColorPalette)
	v.SetDefault("tuning.strict", d.Strict)
	v.SetDefault("tuning.mask_clouds", d.MaskClouds)
	v.SetDefault("tuning.detector_confidence", d.DetectorConfidence)
	v.SetDefault("tuning.detector_min_area", d.DetectorMinArea)

	v.SetDefault("calibration.shift_x", 0.0)
	v.SetDefault("calibration.shift_y", 0.0)
	v.SetDefault("calibration.offset_x", 0.0)
	v.SetDefault("calibration.offset_y", 0.0)
}

// Load reads .env (when present), the optional tuning file at path and
// environment overrides. Nested keys map to env names with '.' replaced by
// '_', so copernicus.client_id is COPERNICUS_CLIENT_ID.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewLogger builds the text logger used across commands.
func NewLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(lvl)
	return logger, nil
}
