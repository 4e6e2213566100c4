package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/cache"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/ml"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/notification"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/pipeline"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/store"
	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

const dateLayout = "2006-01-02"

// Rasters decodes scenes, reads or writes single-band masks and traces
// masks into polygons.
type Rasters interface {
	pipeline.SceneDecoder
	WriteMask(path string, m raster.Mask, ref *raster.GeoRef) error
	ReadMask(path string) (raster.Mask, error)
	Polygonize(m raster.Mask) ([]output.Shape, error)
	LonLat(projectionWKT string) (output.LonLatReprojector, error)
	PixelLonLat(ref raster.GeoRef, x, y int) (float64, float64, error)
}

type Detector interface {
	Detect(ctx context.Context, image []byte, width, height int) ([]ml.Detection, error)
}

type Notifier interface {
	SendError(ctx context.Context, message string) error
	SendSuccess(ctx context.Context, message string, fields ...notification.DiscordField) error
}

type ChangeMapSaver interface {
	SaveChangeMap(ctx context.Context, c *store.ChangeMap) error
}

// Job is one pre/post pair to analyse. It doubles as a batch manifest row.
type Job struct {
	Name        string `csv:"name"`
	Variant     string `csv:"variant"`
	PrePath     string `csv:"pre_path"`
	PostPath    string `csv:"post_path"`
	PreDate     string `csv:"pre_date"`
	PostDate    string `csv:"post_date"`
	PortID      int64  `csv:"port_id"`
	PrePreview  string `csv:"pre_preview"`
	PostPreview string `csv:"post_preview"`
}

func (j Job) validate() error {
	if j.Name == "" {
		return fmt.Errorf("job has no name")
	}
	if j.PrePath == "" || j.PostPath == "" {
		return fmt.Errorf("job %s: pre_path and post_path are required", j.Name)
	}
	if (j.PrePreview == "") != (j.PostPreview == "") {
		return fmt.Errorf("job %s: pre_preview and post_preview must be given together", j.Name)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

type Options struct {
	Tuning      properties.Tuning
	Calibration raster.Calibration
	OutputDir   string
	Rasters     Rasters

	// Optional collaborators.
	Detector Detector
	Store    ChangeMapSaver
	Notifier Notifier
	Cache    cache.Service[Summary]
	Logger   logrus.FieldLogger

	// Histograms writes index histograms with the chosen thresholds.
	Histograms bool
	Workers    int
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// Summary is the outcome of one job.
type Summary struct {
	Name          string           `json:"name" csv:"name"`
	Variant       string           `json:"variant" csv:"variant"`
	Width         int              `json:"width" csv:"width"`
	Height        int              `json:"height" csv:"height"`
	PreThreshold  float64          `json:"pre_threshold" csv:"pre_threshold"`
	PostThreshold float64          `json:"post_threshold" csv:"post_threshold"`
	Persistent    int              `json:"persistent" csv:"persistent"`
	New           int              `json:"new" csv:"new"`
	Lost          int              `json:"lost" csv:"lost"`
	Unchanged     int              `json:"unchanged" csv:"unchanged"`
	Stats         report.AreaStats `json:"area_stats" csv:"-"`
	CenterLon     float64          `json:"center_lon,omitempty" csv:"center_lon"`
	CenterLat     float64          `json:"center_lat,omitempty" csv:"center_lat"`
	Vessels       int              `json:"vessels" csv:"vessels"`
	ChangeMapID   string           `json:"change_map_id,omitempty" csv:"change_map_id"`
	Cached        bool             `json:"-" csv:"cached"`
	Error         string           `json:"error,omitempty" csv:"error"`
}

// RunAnalysis runs one job end to end: it reads both scenes, optionally
// removes detected vessels, runs the variant pipeline and writes the change
// map, statistics, class GeoTIFFs and GeoJSON under OutputDir/<name>.
func RunAnalysis(ctx context.Context, job Job, opts Options) (*Summary, error) {
	summary, err := runAnalysis(ctx, job, opts)
	if err != nil {
		if opts.Notifier != nil {
			msg := fmt.Sprintf("Analysis %s failed: %v", job.Name, err)
			if nerr := opts.Notifier.SendError(ctx, msg); nerr != nil {
				opts.logger().WithError(nerr).Warn("failed to send error notification")
			}
		}
		return nil, err
	}
	return summary, nil
}

func runAnalysis(ctx context.Context, job Job, opts Options) (*Summary, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}
	if opts.Rasters == nil {
		return nil, fmt.Errorf("no raster access configured")
	}
	preDate, err := parseDate(job.PreDate)
	if err != nil {
		return nil, fmt.Errorf("invalid pre_date %q: %w", job.PreDate, err)
	}
	postDate, err := parseDate(job.PostDate)
	if err != nil {
		return nil, fmt.Errorf("invalid post_date %q: %w", job.PostDate, err)
	}

	v, err := pipeline.LookupVariant(job.Variant)
	if err != nil {
		return nil, err
	}
	logger := opts.logger().WithFields(logrus.Fields{"job": job.Name, "variant": v.Name})

	preData, err := os.ReadFile(job.PrePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pre scene: %w", err)
	}
	postData, err := os.ReadFile(job.PostPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read post scene: %w", err)
	}

	var cacheKey string
	if opts.Cache != nil {
		cacheKey, err = jobKey(job, opts, preData, postData)
		if err != nil {
			return nil, err
		}
		if s, ok := opts.Cache.Get(cacheKey); ok {
			logger.Info("using cached result")
			s.Cached = true
			return &s, nil
		}
	}

	p, err := pipeline.New(v, opts.Tuning, pipeline.WithLogger(logger), pipeline.WithDecoder(opts.Rasters))
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(opts.OutputDir, job.Name)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}
	path := func(suffix string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_%s", job.Name, suffix))
	}

	var previews [2]image.Image
	if job.PrePreview != "" {
		for i, file := range []string{job.PrePreview, job.PostPreview} {
			if previews[i], err = readPreview(file); err != nil {
				return nil, err
			}
		}
	}

	var ex pipeline.Exclusions
	vessels := 0
	if opts.Detector != nil && previews[0] != nil {
		if ex.Pre, ex.PreFrame, err = detectBoxes(ctx, opts, previews[0], path("pre_vessels.png")); err != nil {
			return nil, err
		}
		if ex.Post, ex.PostFrame, err = detectBoxes(ctx, opts, previews[1], path("post_vessels.png")); err != nil {
			return nil, err
		}
		vessels = len(ex.Pre) + len(ex.Post)
		logger.WithField("boxes", vessels).Info("vessels excluded")
	}

	res, err := p.Run(ctx, pipeline.Input{Pre: preData, Post: postData, Exclusions: ex})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Name:          job.Name,
		Variant:       v.Name,
		Width:         res.Map.Width,
		Height:        res.Map.Height,
		PreThreshold:  res.Pre.Threshold,
		PostThreshold: res.Post.Threshold,
		Persistent:    res.Counts.Persistent,
		New:           res.Counts.New,
		Lost:          res.Counts.Lost,
		Unchanged:     res.Counts.Unchanged,
		Stats:         res.Stats,
		Vessels:       vessels,
	}

	if err := os.WriteFile(path("change_map.png"), res.ChangePNG, 0644); err != nil {
		return nil, fmt.Errorf("failed to write change map: %w", err)
	}
	if err := writeJSON(path("stats.json"), res.Stats); err != nil {
		return nil, err
	}
	rows := res.Stats.Rows()
	if err := output.SaveCSV(&rows, path("stats.csv")); err != nil {
		return nil, err
	}
	palette := v.Palette(opts.Tuning)
	if err := output.SavePNG(output.ChangeMapWithLegend(res.Map, palette, v.Labels(), res.Stats), path("legend.png")); err != nil {
		return nil, err
	}

	var ref *raster.GeoRef
	if res.GeoRef != nil {
		calibrated := opts.Calibration.Apply(*res.GeoRef, res.Map.Width, res.Map.Height)
		ref = &calibrated
		lon, lat, err := opts.Rasters.PixelLonLat(calibrated, res.Map.Width/2, res.Map.Height/2)
		if err != nil {
			logger.WithError(err).Warn("failed to locate scene center")
		} else {
			summary.CenterLon, summary.CenterLat = lon, lat
		}
	}

	collection := geojson.NewFeatureCollection()
	for _, cat := range []change.Category{change.Lost, change.New} {
		cells, err := v.ExportMask(res.Map, cat, opts.Tuning)
		if err != nil {
			return nil, err
		}
		if err := opts.Rasters.WriteMask(path(cat.String()+".tif"), cells, res.GeoRef); err != nil {
			return nil, err
		}
		fc, err := polygons(opts, cells, cat, ref, v.SimplifyTolerance)
		if err != nil {
			return nil, err
		}
		if err := output.SaveGeoJSON(fc, path(cat.String()+".geojson")); err != nil {
			return nil, err
		}
		collection.Features = append(collection.Features, fc.Features...)
	}

	if opts.Histograms {
		title := fmt.Sprintf("%s %s", job.Name, v.Index)
		if err := output.PlotIndexHistogram(res.Pre.Index, res.Pre.Threshold, title+" pre", path("pre_histogram.png")); err != nil {
			return nil, err
		}
		if err := output.PlotIndexHistogram(res.Post.Index, res.Post.Threshold, title+" post", path("post_histogram.png")); err != nil {
			return nil, err
		}
	}

	if previews[0] != nil {
		changeImg := output.ChangeMapImage(res.Map, palette)
		collage, err := output.CreateCollage(
			output.Panel{Image: previews[0], Caption: captionDate("Before", job.PreDate)},
			output.Panel{Image: previews[1], Caption: captionDate("After", job.PostDate)},
			output.Panel{Image: changeImg, Caption: "Change"},
		)
		if err != nil {
			return nil, err
		}
		if err := output.SavePNG(collage, path("collage.png")); err != nil {
			return nil, err
		}
		overlay := output.OverlayCategory(previews[1], res.Map, v.OverlayCategory(), properties.OverlayColor, output.DefaultOverlayAlpha)
		if err := output.SavePNG(overlay, path("overlay.png")); err != nil {
			return nil, err
		}
	}

	if opts.Store != nil {
		raw, err := json.Marshal(collection)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal geojson: %w", err)
		}
		record := &store.ChangeMap{
			Variant:   v.Name,
			PreDate:   preDate,
			PostDate:  postDate,
			PNG:       res.ChangePNG,
			AreaStats: store.Stats(res.Stats),
			GeoJSON:   string(raw),
		}
		if job.PortID > 0 {
			record.PortID.Int64, record.PortID.Valid = job.PortID, true
		}
		if err := opts.Store.SaveChangeMap(ctx, record); err != nil {
			return nil, err
		}
		summary.ChangeMapID = record.ID.String()
	}

	if opts.Notifier != nil {
		fields := []notification.DiscordField{
			{Name: "Variant", Value: v.Name, Inline: true},
			{Name: "Size", Value: fmt.Sprintf("%dx%d", res.Map.Width, res.Map.Height), Inline: true},
		}
		for _, row := range res.Stats.Rows() {
			fields = append(fields, notification.DiscordField{Name: row.Label, Value: strconv.FormatFloat(row.AreaHa, 'f', 2, 64) + " ha", Inline: true})
		}
		if err := opts.Notifier.SendSuccess(ctx, fmt.Sprintf("Analysis %s finished", job.Name), fields...); err != nil {
			logger.WithError(err).Warn("failed to send success notification")
		}
	}

	if opts.Cache != nil {
		if err := opts.Cache.Set(cacheKey, *summary); err != nil {
			logger.WithError(err).Warn("failed to cache result")
		}
	}
	return summary, nil
}

// jobKey identifies a job by its input contents and every setting that
// changes its outputs.
func jobKey(job Job, opts Options, pre, post []byte) (string, error) {
	params := []interface{}{job.Name, job.Variant, job.PreDate, job.PostDate, job.PortID, opts.OutputDir, opts.Tuning, opts.Calibration, opts.Detector != nil, opts.Histograms}
	params = append(params, cache.Digest(pre), cache.Digest(post))
	for _, file := range []string{job.PrePreview, job.PostPreview} {
		if file == "" {
			params = append(params, "")
			continue
		}
		d, err := cache.FileDigest(file)
		if err != nil {
			return "", err
		}
		params = append(params, d)
	}
	return opts.Cache.Key(params...), nil
}

func polygons(opts Options, cells raster.Mask, cat change.Category, ref *raster.GeoRef, tolerance float64) (*geojson.FeatureCollection, error) {
	po := output.PolygonOptions{Vectorize: opts.Rasters.Polygonize, GeoRef: ref, PixelAreaM2: opts.Tuning.PixelAreaM2()}
	if ref != nil && ref.Projection != "" {
		rp, err := opts.Rasters.LonLat(ref.Projection)
		if err != nil {
			return nil, err
		}
		defer rp.Close()
		po.Reproject = rp
		po.Tolerance = tolerance
	}
	return output.ChangePolygons(cells, cat, po)
}

// detectBoxes returns the detections on preview in preview pixels together
// with the preview size; the pipeline scales them to the decoded scene.
func detectBoxes(ctx context.Context, opts Options, preview image.Image, boxesPath string) ([]raster.Box, image.Point, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, preview); err != nil {
		return nil, image.Point{}, fmt.Errorf("failed to encode preview: %w", err)
	}
	frame := preview.Bounds().Size()
	dets, err := opts.Detector.Detect(ctx, buf.Bytes(), frame.X, frame.Y)
	if err != nil {
		return nil, image.Point{}, err
	}
	boxes := ml.Boxes(dets)
	if len(boxes) > 0 {
		if err := output.DrawBoxes(preview, boxes, boxesPath); err != nil {
			return nil, image.Point{}, err
		}
	}
	return boxes, frame, nil
}

func readPreview(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preview: %w", err)
	}
	return output.DecodePreview(data)
}

func captionDate(label, date string) string {
	if date == "" {
		return label
	}
	return label + " " + date
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
