package change

import (
	"github.com/sirupsen/logrus"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// Category is the transition of one cell between the pre and post masks.
type Category uint8

const (
	NoChange Category = iota
	Persistent
	New
	Lost
)

// Categories lists every category in display order.
var Categories = []Category{Persistent, New, Lost, NoChange}

func (c Category) String() string {
	switch c {
	case NoChange:
		return "no_change"
	case Persistent:
		return "persistent"
	case New:
		return "new"
	case Lost:
		return "lost"
	}
	return "unknown"
}

// Map is a categorical raster, row-major.
type Map struct {
	Width  int
	Height int
	Data   []Category
}

func (m *Map) At(x, y int) Category {
	return m.Data[y*m.Width+x]
}

// Mask returns the cells equal to c.
func (m *Map) Mask(c Category) raster.Mask {
	out := raster.NewMask(m.Width, m.Height)
	for i, v := range m.Data {
		out.Data[i] = v == c
	}
	return out
}

// Counts holds the number of cells per category.
type Counts struct {
	Persistent int `json:"persistent"`
	New        int `json:"new"`
	Lost       int `json:"lost"`
	Unchanged  int `json:"unchanged"`
}

func (c Counts) Total() int {
	return c.Persistent + c.New + c.Lost + c.Unchanged
}

func (c Counts) Of(cat Category) int {
	switch cat {
	case Persistent:
		return c.Persistent
	case New:
		return c.New
	case Lost:
		return c.Lost
	}
	return c.Unchanged
}

type Options struct {
	// Strict rejects masks of different shapes instead of cropping them.
	Strict bool
	Logger logrus.FieldLogger
}

// Classify compares pre and post masks cell by cell. Masks of different shape
// are cropped to their common top-left window unless opts.Strict is set.
func Classify(pre, post raster.Mask, opts Options) (*Map, Counts, error) {
	if !pre.SameShape(post) {
		if opts.Strict {
			return nil, Counts{}, &raster.ShapeMismatchError{
				Op: "classify", WidthA: pre.Width, HeightA: pre.Height, WidthB: post.Width, HeightB: post.Height,
			}
		}
		w, h := min(pre.Width, post.Width), min(pre.Height, post.Height)
		logger(opts).WithFields(logrus.Fields{
			"pre":  []int{pre.Height, pre.Width},
			"post": []int{post.Height, post.Width},
			"crop": []int{h, w},
		}).Warn("mask shapes differ, cropping to common window")
		pre, post = pre.Crop(w, h), post.Crop(w, h)
	}

	m := &Map{Width: pre.Width, Height: pre.Height, Data: make([]Category, len(pre.Data))}
	var counts Counts
	for i := range m.Data {
		a, b := pre.Data[i], post.Data[i]
		switch {
		case a && b:
			m.Data[i] = Persistent
			counts.Persistent++
		case !a && b:
			m.Data[i] = New
			counts.New++
		case a && !b:
			m.Data[i] = Lost
			counts.Lost++
		default:
			counts.Unchanged++
		}
	}
	return m, counts, nil
}

func logger(opts Options) logrus.FieldLogger {
	if opts.Logger == nil {
		return logrus.StandardLogger()
	}
	return opts.Logger
}
