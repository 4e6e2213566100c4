package threshold

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

const (
	DefaultBins = 256

	degenerateSpread = 1e-12
)

var ErrEmpty = errors.New("threshold: no finite values")

// Policy picks a scalar cut-off for an index image.
type Policy interface {
	Threshold(g raster.Grid) (float64, error)
	Name() string
}

// Otsu maximises the between-class variance of a Bins-bucket histogram.
type Otsu struct {
	Bins int
	// FallbackPercentile is used on near-constant inputs. Zero means the mean.
	FallbackPercentile float64
	Logger             logrus.FieldLogger
}

func (o Otsu) Name() string { return "otsu" }

func (o Otsu) Threshold(g raster.Grid) (float64, error) {
	values := finite(g)
	if len(values) == 0 {
		return 0, ErrEmpty
	}

	lo, hi := floats.Min(values), floats.Max(values)
	if hi-lo < degenerateSpread || stat.Variance(values, nil) < degenerateSpread {
		fallback, err := o.fallback(values)
		if err != nil {
			return 0, err
		}
		o.logger().WithError(&raster.DegenerateInputError{Min: lo, Max: hi, Fallback: fallback}).
			Warn("otsu threshold undefined, using fallback")
		return fallback, nil
	}

	bins := o.Bins
	if bins < 2 {
		bins = DefaultBins
	}
	hist, centers := histogram(values, lo, hi, bins)
	return otsuFromHistogram(hist, centers), nil
}

func (o Otsu) fallback(values []float64) (float64, error) {
	if o.FallbackPercentile > 0 {
		sort.Float64s(values)
		return percentileSorted(values, o.FallbackPercentile), nil
	}
	return stat.Mean(values, nil), nil
}

func (o Otsu) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// histogram buckets values into bins of equal width over [lo, hi]; hi falls
// into the last bin.
func histogram(values []float64, lo, hi float64, bins int) ([]float64, []float64) {
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	centers := make([]float64, bins)
	for i := range centers {
		centers[i] = (edges[i] + edges[i+1]) / 2
	}
	hist := make([]float64, bins)
	width := hi - lo
	for _, v := range values {
		idx := int((v - lo) / width * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		hist[idx]++
	}
	return hist, centers
}

func otsuFromHistogram(hist, centers []float64) float64 {
	n := len(hist)
	weight1 := make([]float64, n)
	mean1 := make([]float64, n)
	var w, m float64
	for i := 0; i < n; i++ {
		w += hist[i]
		m += hist[i] * centers[i]
		weight1[i] = w
		if w > 0 {
			mean1[i] = m / w
		}
	}
	weight2 := make([]float64, n)
	mean2 := make([]float64, n)
	w, m = 0, 0
	for i := n - 1; i >= 0; i-- {
		w += hist[i]
		m += hist[i] * centers[i]
		weight2[i] = w
		if w > 0 {
			mean2[i] = m / w
		}
	}

	best, idx := -1.0, 0
	for i := 0; i < n-1; i++ {
		d := mean1[i] - mean2[i+1]
		v := weight1[i] * weight2[i+1] * d * d
		if v > best {
			best, idx = v, i
		}
	}
	return centers[idx]
}

// Percentile returns the P-th percentile with linear interpolation between
// closest ranks.
type Percentile struct {
	P float64
}

func (p Percentile) Name() string { return fmt.Sprintf("percentile-%g", p.P) }

func (p Percentile) Threshold(g raster.Grid) (float64, error) {
	if p.P < 0 || p.P > 100 || math.IsNaN(p.P) {
		return 0, fmt.Errorf("percentile %g out of range [0, 100]", p.P)
	}
	values := finite(g)
	if len(values) == 0 {
		return 0, ErrEmpty
	}
	sort.Float64s(values)
	return percentileSorted(values, p.P), nil
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Fixed always returns Value.
type Fixed struct {
	Value float64
}

func (f Fixed) Name() string { return fmt.Sprintf("fixed-%g", f.Value) }

func (f Fixed) Threshold(raster.Grid) (float64, error) { return f.Value, nil }

func finite(g raster.Grid) []float64 {
	values := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		values = append(values, f)
	}
	return values
}
