package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/gocarina/gocsv"
	"github.com/schollz/progressbar/v3"

	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

const SummaryFileName = "batch_summary.csv"

// ReadManifest parses a batch manifest CSV into jobs.
func ReadManifest(path string) ([]Job, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var jobs []Job
	if err := gocsv.UnmarshalFile(file, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("manifest %s has no jobs", path)
	}

	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if seen[j.Name] {
			return nil, fmt.Errorf("duplicate job name %q in manifest", j.Name)
		}
		seen[j.Name] = true
	}
	return jobs, nil
}

// RunBatch runs every job of the manifest on a worker pool and writes a
// summary CSV to OutputDir. A failed job is recorded in its summary row
// and does not stop the others; only cancellation of ctx does.
func RunBatch(ctx context.Context, manifestPath string, opts Options, progress io.Writer) ([]Summary, error) {
	jobs, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	logger := opts.logger()
	logger.WithField("jobs", len(jobs)).Infof("running batch from %s", manifestPath)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	var bar *progressbar.ProgressBar
	if progress == nil {
		bar = progressbar.Default(int64(len(jobs)), "Analysing")
	} else {
		bar = progressbar.NewOptions(len(jobs), progressbar.OptionSetWriter(progress), progressbar.OptionSetDescription("Analysing"))
	}

	wp := workerpool.New(workers)
	errChan := make(chan error, 1)
	var stopProcessing sync.Once
	summaries := make([]Summary, len(jobs))

	for i, job := range jobs {
		wp.Submit(func() {
			defer bar.Add(1)
			if err := ctx.Err(); err != nil {
				stopProcessing.Do(func() { errChan <- err })
				summaries[i] = Summary{Name: job.Name, Variant: job.Variant, Error: err.Error()}
				return
			}

			s, err := RunAnalysis(ctx, job, opts)
			if err != nil {
				logger.WithError(err).WithField("job", job.Name).Error("job failed")
				summaries[i] = Summary{Name: job.Name, Variant: job.Variant, Error: err.Error()}
				return
			}
			summaries[i] = *s
		})
	}

	go func() {
		wp.StopWait()
		close(errChan)
	}()
	runErr := <-errChan
	// errChan closes only after the pool has drained.
	for range errChan {
	}

	if err := output.SaveCSV(&summaries, filepath.Join(opts.OutputDir, SummaryFileName)); err != nil {
		return summaries, err
	}
	if runErr != nil {
		return summaries, fmt.Errorf("batch interrupted: %w", runErr)
	}
	return summaries, nil
}
