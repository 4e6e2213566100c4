package delivery

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/utils"
	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

const (
	TimelapseGIF = "gif"
	TimelapseAVI = "avi"
)

// BuildTimelapse writes the previews at paths as an animated GIF or an MJPEG
// AVI. Each file name must contain its acquisition date as YYYY-MM-DD.
// delay is the frame time in hundredths of a second.
func BuildTimelapse(paths []string, outPath, format string, delay int) error {
	if format != TimelapseGIF && format != TimelapseAVI {
		return fmt.Errorf("unknown timelapse format %q (available: %s, %s)", format, TimelapseGIF, TimelapseAVI)
	}
	if delay <= 0 {
		return fmt.Errorf("delay must be positive, got %d", delay)
	}

	frames := make([]output.Frame, 0, len(paths))
	for _, p := range paths {
		date, ok := utils.DateFromName(p)
		if !ok {
			return fmt.Errorf("no valid date in file name %s", p)
		}
		img, err := readPreview(p)
		if err != nil {
			return err
		}
		frames = append(frames, output.Frame{Image: img, Date: date})
	}

	if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	if format == TimelapseAVI {
		fps := max(1, int(math.Round(100/float64(delay))))
		return output.CreateTimelapseAVI(outPath, frames, fps)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()
	if err := output.CreateTimelapseGIF(f, frames, delay); err != nil {
		return err
	}
	return f.Close()
}
