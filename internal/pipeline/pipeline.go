package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/change"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/index"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/mask"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/properties"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/report"
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/threshold"
	"github.com/AgileCrafts/Satellite-Image-Analysis/output"
)

// SceneDecoder turns raw raster bytes into a scene.
type SceneDecoder interface {
	Decode(data []byte) (*raster.Scene, error)
}

// Exclusions are boxes removed from each mask before cleaning, e.g. vessel
// detections. Boxes are in scene pixels unless the matching frame is set, in
// which case they were drawn on a preview of that size and are scaled to the
// scene.
type Exclusions struct {
	Pre       []raster.Box
	Post      []raster.Box
	PreFrame  image.Point
	PostFrame image.Point
}

type Input struct {
	Pre        []byte
	Post       []byte
	Exclusions Exclusions
}

// Side holds the intermediate products of one acquisition.
type Side struct {
	Index     raster.Grid
	Threshold float64
	Mask      raster.Mask
}

type Result struct {
	Variant   string
	Pre       Side
	Post      Side
	Map       *change.Map
	Counts    change.Counts
	Stats     report.AreaStats
	ChangePNG []byte
	GeoRef    *raster.GeoRef
}

type Pipeline struct {
	variant Variant
	tuning  properties.Tuning
	decoder SceneDecoder
	logger  logrus.FieldLogger
	index   index.Func
}

type Option func(*Pipeline)

func WithDecoder(d SceneDecoder) Option {
	return func(p *Pipeline) { p.decoder = d }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(v Variant, tuning properties.Tuning, opts ...Option) (*Pipeline, error) {
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	f, err := index.Lookup(v.Index)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{variant: v, tuning: tuning, index: f, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithField("variant", v.Name)
	return p, nil
}

func (p *Pipeline) Variant() Variant { return p.variant }

// Run decodes both scenes concurrently and runs the analysis.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if p.decoder == nil {
		return nil, fmt.Errorf("pipeline has no scene decoder")
	}

	var pre, post *raster.Scene
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := p.decoder.Decode(in.Pre)
		if err != nil {
			return fmt.Errorf("failed to decode pre scene: %w", err)
		}
		pre = s
		return nil
	})
	g.Go(func() error {
		s, err := p.decoder.Decode(in.Post)
		if err != nil {
			return fmt.Errorf("failed to decode post scene: %w", err)
		}
		post = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p.RunScenes(ctx, pre, post, in.Exclusions)
}

// RunScenes runs index, threshold, mask, clean, classify, render and report
// over already decoded scenes. Neither scene is modified.
func (p *Pipeline) RunScenes(ctx context.Context, pre, post *raster.Scene, ex Exclusions) (*Result, error) {
	res := &Result{Variant: p.variant.Name, GeoRef: pre.GeoRef}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		side, err := p.side(gctx, "pre", pre, ex.Pre, ex.PreFrame)
		res.Pre = side
		return err
	})
	g.Go(func() error {
		side, err := p.side(gctx, "post", post, ex.Post, ex.PostFrame)
		res.Post = side
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.variant.GateDelta {
		gated, err := p.gate(res.Pre.Index, res.Post.Index, res.Post.Mask)
		if err != nil {
			return nil, err
		}
		res.Post.Mask = gated
	}

	if minHole, minObject := p.variant.CleanSizes(p.tuning); minHole > 0 || minObject > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var cleanPre, cleanPost raster.Mask
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			cleanPre, err = mask.Clean(res.Pre.Mask, minHole, minObject)
			return err
		})
		g.Go(func() (err error) {
			cleanPost, err = mask.Clean(res.Post.Mask, minHole, minObject)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to clean masks: %w", err)
		}
		res.Pre.Mask, res.Post.Mask = cleanPre, cleanPost
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, counts, err := change.Classify(res.Pre.Mask, res.Post.Mask, change.Options{Strict: p.tuning.Strict, Logger: p.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to classify change: %w", err)
	}
	res.Map, res.Counts = m, counts

	palette := p.variant.Palette(p.tuning)
	res.ChangePNG, err = output.RenderChangeMap(m, palette)
	if err != nil {
		return nil, err
	}
	res.Stats, err = report.Areas(counts, p.tuning.PixelAreaM2(), p.variant.Labels(), palette)
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"pre_threshold":  res.Pre.Threshold,
		"post_threshold": res.Post.Threshold,
		"persistent":     counts.Persistent,
		"new":            counts.New,
		"lost":           counts.Lost,
		"unchanged":      counts.Unchanged,
	}).Info("change map computed")
	return res, nil
}

func (p *Pipeline) side(ctx context.Context, name string, s *raster.Scene, boxes []raster.Box, frame image.Point) (Side, error) {
	var side Side
	idx, err := p.index(s)
	if err != nil {
		return side, fmt.Errorf("failed to compute %s %s: %w", name, p.variant.Index, err)
	}
	side.Index = idx

	logger := p.logger.WithField("scene", name)
	side.Threshold, err = p.variant.Policy(p.tuning, logger).Threshold(idx)
	if err != nil {
		return side, fmt.Errorf("failed to threshold %s %s: %w", name, p.variant.Index, err)
	}
	m := mask.Binarize(idx, side.Threshold)

	if err := ctx.Err(); err != nil {
		return side, err
	}

	if p.variant.ExcludeWater {
		water, err := waterMask(s, p.tuning, logger)
		if err != nil {
			return side, fmt.Errorf("failed to build %s water mask: %w", name, err)
		}
		if m, err = mask.Exclude(m, water); err != nil {
			return side, err
		}
	}
	if p.variant.ExcludeVegetation {
		ndvi, err := index.NDVI(s)
		if err != nil {
			return side, err
		}
		if m, err = mask.Exclude(m, mask.Binarize(ndvi, p.tuning.VegNDVIThreshold)); err != nil {
			return side, err
		}
	}
	if p.variant.ExcludeAboveIndex {
		if m, err = mask.Exclude(m, mask.Binarize(idx, p.tuning.NBIExclusionThreshold)); err != nil {
			return side, err
		}
	}
	if p.tuning.MaskClouds {
		m = mask.ExcludeClasses(m, s.Band(raster.SCL), mask.CloudClasses)
	}
	if frame != (image.Point{}) {
		boxes = raster.ScaleBoxes(boxes, frame.X, frame.Y, s.Width, s.Height)
	}
	if len(boxes) > 0 {
		m = mask.ExcludeBoxes(m, boxes)
		logger.WithField("boxes", len(boxes)).Debug("excluded detections")
	}

	side.Mask = m
	return side, nil
}

func (p *Pipeline) gate(pre, post raster.Grid, postMask raster.Mask) (raster.Mask, error) {
	if !pre.SameShape(post) {
		if p.tuning.Strict {
			return raster.Mask{}, &raster.ShapeMismatchError{
				Op: "delta gate", WidthA: pre.Width, HeightA: pre.Height, WidthB: post.Width, HeightB: post.Height,
			}
		}
		w, h := min(pre.Width, post.Width), min(pre.Height, post.Height)
		pre, post = cropGrid(pre, w, h), cropGrid(post, w, h)
		postMask = postMask.Crop(w, h)
	}
	delta, err := mask.DeltaAbove(pre, post, p.tuning.NBIDeltaThreshold)
	if err != nil {
		return raster.Mask{}, err
	}
	return mask.And(postMask, delta)
}

func waterMask(s *raster.Scene, t properties.Tuning, logger logrus.FieldLogger) (raster.Mask, error) {
	mndwi, err := index.MNDWI(s)
	if err != nil {
		return raster.Mask{}, err
	}
	th, err := threshold.Otsu{Bins: t.OtsuBins, FallbackPercentile: t.OtsuFallbackPercentile, Logger: logger}.Threshold(mndwi)
	if err != nil {
		return raster.Mask{}, err
	}
	return mask.Binarize(mndwi, th), nil
}

func cropGrid(g raster.Grid, w, h int) raster.Grid {
	out := raster.NewGrid(w, h)
	for y := 0; y < h; y++ {
		copy(out.Data[y*w:(y+1)*w], g.Data[y*g.Width:y*g.Width+w])
	}
	return out
}
