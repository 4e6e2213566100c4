package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bannercolor "github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/cache"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/delivery"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/ml"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/pipeline"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/sentinel"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/store"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/ui"
	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

type runFlags struct {
	outputDir  string
	workers    int
	persist    bool
	histograms bool
	noCache    bool
	noDetector bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.outputDir, "out", "o", "", "Output folder (default <root>/data/result)")
	cmd.Flags().BoolVar(&f.persist, "persist", false, "Save change maps to the database")
	cmd.Flags().BoolVar(&f.histograms, "histograms", false, "Write index histograms with the chosen thresholds")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Recompute results even when cached")
	cmd.Flags().BoolVar(&f.noDetector, "no-detector", false, "Skip vessel detection even when a detector is configured")
}

func (a *app) openStore() (*store.Store, error) {
	dsn := a.cfg.DatabaseURL
	if dsn == "" && a.cfg.DatabaseDriver == store.DriverSQLite {
		if err := os.MkdirAll(a.cfg.DataPath(), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create data folder: %w", err)
		}
		dsn = a.cfg.DataPath("changemap.db")
	}
	s, err := store.Open(a.cfg.DatabaseDriver, dsn, a.logger)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (a *app) rasters() sentinel.GDAL {
	return sentinel.GDAL{}
}

// deliveryOptions wires the configured collaborators. The returned func
// releases them.
func (a *app) deliveryOptions(f runFlags) (delivery.Options, func(), error) {
	opts := delivery.Options{
		Tuning:      a.cfg.Tuning,
		Calibration: a.cfg.Calibration,
		OutputDir:   f.outputDir,
		Rasters:     a.rasters(),
		Notifier:    a.discord,
		Logger:      a.logger,
		Histograms:  f.histograms,
		Workers:     a.cfg.Workers,
	}
	if opts.OutputDir == "" {
		opts.OutputDir = a.cfg.DataPath("result")
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}
	if !f.noCache {
		opts.Cache = cache.NewFileCache[delivery.Summary](a.cfg.DataPath("cache"))
	}

	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if a.cfg.DetectorAddr != "" && !f.noDetector {
		vc, err := ml.NewVesselClient(a.cfg.DetectorAddr, a.cfg.Tuning.DetectorConfidence, a.cfg.Tuning.DetectorMinArea)
		if err != nil {
			return opts, closeAll, err
		}
		opts.Detector = vc
		closers = append(closers, func() { vc.Close() })
	}
	if f.persist {
		s, err := a.openStore()
		if err != nil {
			closeAll()
			return opts, func() {}, err
		}
		opts.Store = s
		closers = append(closers, func() { s.Close() })
	}
	return opts, closeAll, nil
}

func printSummary(s *delivery.Summary) {
	bannercolor.Green("%s (%s): persistent %d, new %d, lost %d, unchanged %d", s.Name, s.Variant, s.Persistent, s.New, s.Lost, s.Unchanged)
	for _, row := range s.Stats.Rows() {
		fmt.Printf("  %-22s %10.2f ha\n", row.Label, row.AreaHa)
	}
	if s.ChangeMapID != "" {
		fmt.Printf("  stored as %s\n", s.ChangeMapID)
	}
}

var (
	analyzeFlags runFlags
	analyzeJob   delivery.Job
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pre.tif> <post.tif>",
	Short: "Compute the change map between two 5-band scenes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		job := analyzeJob
		job.PrePath, job.PostPath = args[0], args[1]
		if job.Name == "" {
			job.Name = strings.TrimSuffix(filepath.Base(args[1]), filepath.Ext(args[1]))
		}

		opts, closeAll, err := cli.deliveryOptions(analyzeFlags)
		if err != nil {
			return err
		}
		defer closeAll()

		s, err := delivery.RunAnalysis(cmd.Context(), job, opts)
		if err != nil {
			return err
		}
		printSummary(s)
		return nil
	},
}

var (
	batchFlags runFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch <manifest.csv>",
	Short: "Run every job of a manifest on a worker pool",
	Long: `Run the jobs of a CSV manifest with the columns
	name, variant, pre_path, post_path and optionally pre_date, post_date,
	port_id, pre_preview, post_preview. A summary CSV is written next to the
	results.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, closeAll, err := cli.deliveryOptions(batchFlags)
		if err != nil {
			return err
		}
		defer closeAll()

		summaries, err := delivery.RunBatch(cmd.Context(), args[0], opts, nil)
		if err != nil {
			return err
		}
		failed := 0
		for _, s := range summaries {
			if s.Error != "" {
				failed++
				bannercolor.Red("%s: %s", s.Name, s.Error)
			}
		}
		bannercolor.Green("Batch finished: %d succeeded, %d failed. Summary at %s",
			len(summaries)-failed, failed, filepath.Join(opts.OutputDir, delivery.SummaryFileName))
		return nil
	},
}

var evaluateOut string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <pred> <truth>",
	Short: "Score a predicted mask against a ground truth mask",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := delivery.Evaluate(args[0], args[1], evaluateOut, cli.rasters())
		if err != nil {
			return err
		}
		printEvaluation(e)
		return nil
	},
}

func printEvaluation(e report.Evaluation) {
	fmt.Printf("TP %d  FP %d  TN %d  FN %d\n", e.TP, e.FP, e.TN, e.FN)
	fmt.Printf("Accuracy  %6.2f%%\nPrecision %6.2f%%\nRecall    %6.2f%%\nF1        %6.2f%%\nIoU       %6.2f%%\n",
		e.Accuracy, e.Precision, e.Recall, e.F1, e.IoU)
}

var fetchArgs struct {
	name    string
	bbox    string
	portID  int64
	dates   []string
	preview bool
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download 5-band scenes (and RGB previews) from the Copernicus process API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bbox, name, err := fetchTarget(ctx)
		if err != nil {
			return err
		}
		if len(fetchArgs.dates) == 0 {
			return fmt.Errorf("at least one --date is required")
		}

		cfg := cli.cfg
		client, err := sentinel.NewProcessClient(cfg.Copernicus.ClientID, cfg.Copernicus.ClientSecret, cfg.Copernicus.TokenURL, cfg.Copernicus.ProcessURL, cfg.Tuning.GSDMeters, cli.logger)
		if err != nil {
			return err
		}
		folders := ui.DefaultFolders(cfg.DataPath())
		loader := sentinel.Loader{}

		for _, d := range fetchArgs.dates {
			date, err := time.Parse("2006-01-02", d)
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", d, err)
			}
			base := fmt.Sprintf("%s_%s", name, d)

			data, err := client.Fetch(ctx, sentinel.Bands, bbox, date)
			if errors.Is(err, sentinel.ErrImageNotFound) {
				cli.logger.WithField("date", d).Warn("no acquisition for date")
				continue
			}
			if err != nil {
				return err
			}
			scene, err := loader.Decode(data)
			if err != nil {
				return fmt.Errorf("downloaded scene for %s is invalid: %w", d, err)
			}
			if err := os.MkdirAll(folders.Scenes, os.ModePerm); err != nil {
				return fmt.Errorf("failed to create scenes folder: %w", err)
			}
			scenePath := filepath.Join(folders.Scenes, base+".tif")
			if err := os.WriteFile(scenePath, data, 0644); err != nil {
				return fmt.Errorf("failed to write scene: %w", err)
			}
			bannercolor.Green("%s: %dx%d scene saved to %s", d, scene.Width, scene.Height, scenePath)

			if !fetchArgs.preview {
				continue
			}
			raw, err := client.Fetch(ctx, sentinel.TrueColor, bbox, date)
			if err != nil {
				return err
			}
			img, err := output.DecodePreview(raw)
			if err != nil {
				return err
			}
			previewPath := filepath.Join(folders.Previews, base+".png")
			if err := output.SavePNG(img, previewPath); err != nil {
				return err
			}
			bannercolor.Green("%s: preview saved to %s", d, previewPath)
		}
		return nil
	},
}

// fetchTarget resolves the bounding box and file name prefix from --bbox or
// --port-id.
func fetchTarget(ctx context.Context) ([4]float64, string, error) {
	if fetchArgs.portID > 0 {
		s, err := cli.openStore()
		if err != nil {
			return [4]float64{}, "", err
		}
		defer s.Close()
		p, err := s.GetPort(ctx, fetchArgs.portID)
		if err != nil {
			return [4]float64{}, "", err
		}
		name := fetchArgs.name
		if name == "" {
			name = strings.ReplaceAll(strings.ToLower(p.Name), " ", "-")
		}
		return [4]float64(p.BBox), name, nil
	}
	if fetchArgs.bbox == "" {
		return [4]float64{}, "", fmt.Errorf("either --bbox or --port-id is required")
	}
	bbox, err := parseBBox(fetchArgs.bbox)
	if err != nil {
		return bbox, "", err
	}
	if fetchArgs.name == "" {
		return bbox, "", fmt.Errorf("--name is required with --bbox")
	}
	return bbox, fetchArgs.name, nil
}

func parseBBox(s string) ([4]float64, error) {
	var bbox [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bbox, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat")
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bbox, fmt.Errorf("invalid bbox value %q: %w", p, err)
		}
		bbox[i] = v
	}
	if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
		return bbox, fmt.Errorf("bbox minimum must be below its maximum")
	}
	return bbox, nil
}

var timelapseArgs struct {
	out    string
	format string
	delay  int
}

var timelapseCmd = &cobra.Command{
	Use:   "timelapse <preview>...",
	Short: "Assemble dated previews into an animated GIF or MJPEG AVI",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("out") {
			timelapseArgs.out = "timelapse." + timelapseArgs.format
		}
		if err := delivery.BuildTimelapse(args, timelapseArgs.out, timelapseArgs.format, timelapseArgs.delay); err != nil {
			return err
		}
		bannercolor.Green("Timelapse saved to %s", timelapseArgs.out)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|version]",
	Short: "Apply or roll back the database migrations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		dsn := cli.cfg.DatabaseURL
		if dsn == "" && cli.cfg.DatabaseDriver == store.DriverSQLite {
			if err := os.MkdirAll(cli.cfg.DataPath(), os.ModePerm); err != nil {
				return err
			}
			dsn = cli.cfg.DataPath("changemap.db")
		}
		s, err := store.Open(cli.cfg.DatabaseDriver, dsn, cli.logger)
		if err != nil {
			return err
		}
		defer s.Close()

		switch action {
		case "up":
			err = s.MigrateUp()
		case "down":
			err = s.MigrateDown()
		case "version":
		default:
			return fmt.Errorf("unknown migrate action %q", action)
		}
		if err != nil {
			return err
		}
		version, dirty, err := s.MigrateVersion()
		if err != nil {
			return err
		}
		bannercolor.Green("schema version %d (dirty: %t)", version, dirty)
		return nil
	},
}

var portArgs struct {
	region   string
	name     string
	bbox     string
	lat, lon float64
	geojson  string
}

var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Manage the registered ports",
}

var portAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a port with its bounding box",
	RunE: func(cmd *cobra.Command, args []string) error {
		bbox, err := parseBBox(portArgs.bbox)
		if err != nil {
			return err
		}
		p := &store.Port{
			Region:    portArgs.region,
			Name:      portArgs.name,
			BBox:      store.BBox(bbox),
			Latitude:  portArgs.lat,
			Longitude: portArgs.lon,
		}
		if portArgs.geojson != "" {
			raw, err := os.ReadFile(portArgs.geojson)
			if err != nil {
				return fmt.Errorf("failed to read geojson: %w", err)
			}
			p.GeoJSON = string(raw)
		}

		s, err := cli.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.CreatePort(cmd.Context(), p); err != nil {
			return err
		}
		bannercolor.Green("port %s registered with id %d", p.Name, p.ID)
		return nil
	},
}

var portListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the ports of a region",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := cli.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		ports, err := s.ListPortsByRegion(cmd.Context(), portArgs.region)
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Printf("%4d  %-24s %v\n", p.ID, p.Name, [4]float64(p.BBox))
		}
		return nil
	},
}

var changeMapArgs struct {
	portID int64
	out    string
}

var changeMapCmd = &cobra.Command{
	Use:   "changemap",
	Short: "Inspect stored change maps",
}

var changeMapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the change maps of a port, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := cli.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		maps, err := s.ListChangeMaps(cmd.Context(), changeMapArgs.portID)
		if err != nil {
			return err
		}
		for _, cm := range maps {
			fmt.Printf("%s  %-14s %s -> %s\n", cm.ID, cm.Variant, cm.PreDate.Format("2006-01-02"), cm.PostDate.Format("2006-01-02"))
		}
		return nil
	},
}

var changeMapExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a stored change map PNG and its GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid change map id: %w", err)
		}
		s, err := cli.openStore()
		if err != nil {
			return err
		}
		defer s.Close()
		cm, err := s.GetChangeMap(cmd.Context(), id)
		if err != nil {
			return err
		}

		out := changeMapArgs.out
		if out == "" {
			out = cli.cfg.DataPath("result", "export")
		}
		if err := os.MkdirAll(out, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create output folder: %w", err)
		}
		if err := os.WriteFile(filepath.Join(out, id.String()+".png"), cm.PNG, 0644); err != nil {
			return err
		}
		if cm.GeoJSON != "" {
			if err := os.WriteFile(filepath.Join(out, id.String()+".geojson"), []byte(cm.GeoJSON), 0644); err != nil {
				return err
			}
		}
		bannercolor.Green("change map %s exported to %s", id, out)
		return nil
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Start the interactive menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd.Context())
	},
}

func runMenu(ctx context.Context) error {
	printBanner()

	opts, closeAll, err := cli.deliveryOptions(runFlags{})
	if err != nil {
		return err
	}
	defer closeAll()

	actions := ui.Actions{
		Analyze: func(ctx context.Context, job delivery.Job) (*delivery.Summary, error) {
			return delivery.RunAnalysis(ctx, job, opts)
		},
		Batch: func(ctx context.Context, manifest string) ([]delivery.Summary, error) {
			return delivery.RunBatch(ctx, manifest, opts, nil)
		},
		Evaluate: func(pred, truth string) (report.Evaluation, error) {
			return delivery.Evaluate(pred, truth, "", opts.Rasters)
		},
	}

	if s, err := cli.openStore(); err != nil {
		cli.logger.WithError(err).Warn("database unavailable, port listing disabled")
	} else {
		defer s.Close()
		opts.Store = s
		actions.ListPorts = s.ListPortsByRegion
		actions.ListChangeMaps = s.ListChangeMaps
	}

	ui.NewMenu(ui.NewConsole(os.Stdin, os.Stdout), ui.DefaultFolders(cli.cfg.DataPath()), actions).Show(ctx)
	return nil
}

func init() {
	analyzeFlags.register(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeJob.Name, "name", "", "Name of the run (default post scene file name)")
	analyzeCmd.Flags().StringVar(&analyzeJob.Variant, "variant", pipeline.Water.Name, fmt.Sprintf("Analysis variant: %s", strings.Join(pipeline.VariantNames(), ", ")))
	analyzeCmd.Flags().StringVar(&analyzeJob.PreDate, "pre-date", "", "Acquisition date of the pre scene (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeJob.PostDate, "post-date", "", "Acquisition date of the post scene (YYYY-MM-DD)")
	analyzeCmd.Flags().Int64Var(&analyzeJob.PortID, "port-id", 0, "Port the scenes cover")
	analyzeCmd.Flags().StringVar(&analyzeJob.PrePreview, "pre-preview", "", "RGB preview of the pre scene")
	analyzeCmd.Flags().StringVar(&analyzeJob.PostPreview, "post-preview", "", "RGB preview of the post scene")

	batchFlags.register(batchCmd)
	batchCmd.Flags().IntVarP(&batchFlags.workers, "workers", "w", 0, "Number of jobs to run in parallel (default from config)")

	evaluateCmd.Flags().StringVarP(&evaluateOut, "out", "o", "", "Write the evaluation as JSON to this file")

	fetchCmd.Flags().StringVar(&fetchArgs.name, "name", "", "File name prefix of the downloads")
	fetchCmd.Flags().StringVar(&fetchArgs.bbox, "bbox", "", "minLon,minLat,maxLon,maxLat")
	fetchCmd.Flags().Int64Var(&fetchArgs.portID, "port-id", 0, "Fetch the bounding box of a registered port")
	fetchCmd.Flags().StringSliceVar(&fetchArgs.dates, "date", nil, "Acquisition dates (YYYY-MM-DD), repeatable")
	fetchCmd.Flags().BoolVar(&fetchArgs.preview, "preview", false, "Also fetch the true colour preview")

	timelapseCmd.Flags().StringVarP(&timelapseArgs.out, "out", "o", "timelapse.gif", "Output file")
	timelapseCmd.Flags().StringVar(&timelapseArgs.format, "format", delivery.TimelapseGIF, "Output format: gif or avi")
	timelapseCmd.Flags().IntVar(&timelapseArgs.delay, "delay", 100, "Frame delay in hundredths of a second")

	portCmd.PersistentFlags().StringVar(&portArgs.region, "region", "", "Region of the port")
	portAddCmd.Flags().StringVar(&portArgs.name, "name", "", "Port name")
	portAddCmd.Flags().StringVar(&portArgs.bbox, "bbox", "", "minLon,minLat,maxLon,maxLat")
	portAddCmd.Flags().Float64Var(&portArgs.lat, "lat", 0, "Latitude of the port")
	portAddCmd.Flags().Float64Var(&portArgs.lon, "lon", 0, "Longitude of the port")
	portAddCmd.Flags().StringVar(&portArgs.geojson, "geojson", "", "GeoJSON file outlining the port")
	_ = portAddCmd.MarkFlagRequired("name")
	_ = portAddCmd.MarkFlagRequired("bbox")
	portCmd.AddCommand(portAddCmd, portListCmd)

	changeMapListCmd.Flags().Int64Var(&changeMapArgs.portID, "port-id", 0, "Port whose change maps to list")
	_ = changeMapListCmd.MarkFlagRequired("port-id")
	changeMapExportCmd.Flags().StringVarP(&changeMapArgs.out, "out", "o", "", "Output folder")
	changeMapCmd.AddCommand(changeMapListCmd, changeMapExportCmd)

	rootCmd.AddCommand(analyzeCmd, batchCmd, evaluateCmd, fetchCmd, timelapseCmd, migrateCmd, portCmd, changeMapCmd, menuCmd)
}
