package mask

import (
	"encoding/binary"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// Component is one 8-connected region of equal-valued cells.
type Component struct {
	Label         int
	Area          int
	TouchesBorder bool
	Cells         []int
}

// Components labels the 8-connected regions whose cells equal value.
func Components(m raster.Mask, value bool) ([]Component, error) {
	labels, comps, err := label(m, value)
	if err != nil {
		return nil, err
	}
	for i, l := range labels {
		if l > 0 {
			comps[l-1].Cells = append(comps[l-1].Cells, i)
		}
	}
	return comps, nil
}

// label runs an 8-connected component analysis over the cells equal to
// value. labels holds 0 for other cells and the 1-based component label
// otherwise; comps[l-1] describes label l.
func label(m raster.Mask, value bool) ([]int32, []Component, error) {
	if len(m.Data) == 0 {
		return nil, nil, nil
	}
	src := make([]byte, len(m.Data))
	for i, v := range m.Data {
		if v == value {
			src[i] = 255
		}
	}
	img, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build mask matrix: %w", err)
	}
	defer img.Close()

	labelMat := gocv.NewMat()
	defer labelMat.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStatsWithParams(img, &labelMat, &stats, &centroids, 8, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)

	comps := make([]Component, 0, max(n-1, 0))
	for l := 1; l < n; l++ {
		left := int(stats.GetIntAt(l, int(gocv.CC_STAT_LEFT)))
		top := int(stats.GetIntAt(l, int(gocv.CC_STAT_TOP)))
		w := int(stats.GetIntAt(l, int(gocv.CC_STAT_WIDTH)))
		h := int(stats.GetIntAt(l, int(gocv.CC_STAT_HEIGHT)))
		comps = append(comps, Component{
			Label:         l,
			Area:          int(stats.GetIntAt(l, int(gocv.CC_STAT_AREA))),
			TouchesBorder: left == 0 || top == 0 || left+w == m.Width || top+h == m.Height,
		})
	}

	raw := labelMat.ToBytes()
	if len(raw) != 4*len(m.Data) {
		return nil, nil, fmt.Errorf("unexpected label matrix size %d for %dx%d mask", len(raw), m.Width, m.Height)
	}
	labels := make([]int32, len(m.Data))
	for i := range labels {
		labels[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return labels, comps, nil
}

// Clean fills enclosed background regions smaller than minHoleArea, then
// drops foreground regions smaller than minObjectSize. Zero disables a step.
//
// Background touching the raster border continues beyond the scene, so it is
// never filled however small its visible part is.
func Clean(m raster.Mask, minHoleArea, minObjectSize int) (raster.Mask, error) {
	out := m.Clone()
	if out.Count() == 0 {
		return out, nil
	}

	if minHoleArea > 0 {
		labels, comps, err := label(out, false)
		if err != nil {
			return raster.Mask{}, err
		}
		fill := make([]bool, len(comps)+1)
		for _, c := range comps {
			fill[c.Label] = !c.TouchesBorder && c.Area < minHoleArea
		}
		for i, l := range labels {
			if fill[l] {
				out.Data[i] = true
			}
		}
	}

	if minObjectSize > 0 {
		labels, comps, err := label(out, true)
		if err != nil {
			return raster.Mask{}, err
		}
		drop := make([]bool, len(comps)+1)
		for _, c := range comps {
			drop[c.Label] = c.Area < minObjectSize
		}
		for i, l := range labels {
			if drop[l] {
				out.Data[i] = false
			}
		}
	}
	return out, nil
}
