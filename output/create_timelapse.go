package output

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"io"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/icza/mjpeg"
	"github.com/nfnt/resize"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/utils"
)

// Frame is one dated image of a timelapse.
type Frame struct {
	Image image.Image
	Date  time.Time
	Label string
}

// labelFrames orders frames by date, resizes each to the first frame's size
// and stamps it with its label, or its date when the label is empty.
func labelFrames(frames []Frame) ([]image.Image, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames provided")
	}

	seen := make(map[time.Time]bool, len(frames))
	for _, f := range frames {
		if seen[f.Date] {
			return nil, fmt.Errorf("frames must have distinct dates")
		}
		seen[f.Date] = true
	}

	first := frames[0].Image.Bounds()
	width, height := first.Dx(), first.Dy()
	fontSize := math.Max(12, float64(height)*0.045)

	ordered := utils.SortByDate(append([]Frame(nil), frames...), func(f Frame) time.Time { return f.Date }, true)
	out := make([]image.Image, 0, len(ordered))
	for _, f := range ordered {
		img := f.Image
		if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
			img = resize.Resize(uint(width), uint(height), img, resize.NearestNeighbor)
		}

		label := f.Label
		if label == "" {
			label = f.Date.Format(utils.DateLayout)
		}
		dc := gg.NewContextForImage(img)
		dc.SetFontFace(fontFace(fontSize))
		dc.SetRGBA(0, 0, 0, 0.6)
		tw, th := dc.MeasureString(label)
		dc.DrawRectangle(0, 0, tw+fontSize, th+fontSize*0.8)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(label, fontSize/2, fontSize*0.4+th/2, 0, 0.5)
		out = append(out, dc.Image())
	}
	return out, nil
}

// CreateTimelapseGIF writes frames in date order as an animated GIF. delay
// is in hundredths of a second.
func CreateTimelapseGIF(w io.Writer, frames []Frame, delay int) error {
	images, err := labelFrames(frames)
	if err != nil {
		return err
	}

	anim := &gif.GIF{}
	for _, img := range images {
		paletted := image.NewPaletted(img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), img, img.Bounds().Min)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}

	if err := gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("failed to encode timelapse: %w", err)
	}
	return nil
}

// CreateTimelapseAVI writes frames in date order as an MJPEG AVI at fps
// frames per second.
func CreateTimelapseAVI(path string, frames []Frame, fps int) error {
	images, err := labelFrames(frames)
	if err != nil {
		return err
	}
	if fps <= 0 {
		return fmt.Errorf("fps must be positive, got %d", fps)
	}

	b := images[0].Bounds()
	writer, err := mjpeg.New(path, int32(b.Dx()), int32(b.Dy()), int32(fps))
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	for _, img := range images {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			writer.Close()
			return fmt.Errorf("failed to encode frame: %w", err)
		}
		if err := writer.AddFrame(buf.Bytes()); err != nil {
			writer.Close()
			return fmt.Errorf("failed to add frame: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish video: %w", err)
	}
	return nil
}
