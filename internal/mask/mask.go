package mask

import (
	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// CloudClasses are the scene-classification codes treated as cloud or
// cloud shadow.
var CloudClasses = []float32{3, 8, 9, 10}

// Binarize marks cells whose value is strictly greater than t. The
// comparison runs in float32, the precision of the grid.
func Binarize(g raster.Grid, t float64) raster.Mask {
	m := raster.NewMask(g.Width, g.Height)
	t32 := float32(t)
	for i, v := range g.Data {
		m.Data[i] = v > t32
	}
	return m
}

// DeltaAbove marks cells where post-pre exceeds delta.
func DeltaAbove(pre, post raster.Grid, delta float64) (raster.Mask, error) {
	if !pre.SameShape(post) {
		return raster.Mask{}, &raster.ShapeMismatchError{
			Op: "delta", WidthA: pre.Width, HeightA: pre.Height, WidthB: post.Width, HeightB: post.Height,
		}
	}
	m := raster.NewMask(pre.Width, pre.Height)
	d32 := float32(delta)
	for i := range m.Data {
		m.Data[i] = post.Data[i]-pre.Data[i] > d32
	}
	return m, nil
}

// Exclude returns m with every cell set in other cleared.
func Exclude(m, other raster.Mask) (raster.Mask, error) {
	if !m.SameShape(other) {
		return raster.Mask{}, mismatch("exclude", m, other)
	}
	out := m.Clone()
	for i, v := range other.Data {
		if v {
			out.Data[i] = false
		}
	}
	return out, nil
}

// And returns the cell-wise conjunction of a and b.
func And(a, b raster.Mask) (raster.Mask, error) {
	if !a.SameShape(b) {
		return raster.Mask{}, mismatch("and", a, b)
	}
	out := raster.NewMask(a.Width, a.Height)
	for i := range out.Data {
		out.Data[i] = a.Data[i] && b.Data[i]
	}
	return out, nil
}

// ExcludeBoxes clears every cell covered by one of boxes. Boxes are clamped to
// the mask bounds.
func ExcludeBoxes(m raster.Mask, boxes []raster.Box) raster.Mask {
	out := m.Clone()
	for _, b := range boxes {
		b = b.Clamp(m.Width, m.Height)
		if b.Empty() {
			continue
		}
		for y := b.Y1; y < b.Y2; y++ {
			row := out.Data[y*m.Width : (y+1)*m.Width]
			for x := b.X1; x < b.X2; x++ {
				row[x] = false
			}
		}
	}
	return out
}

// ExcludeClasses clears cells whose scene-classification code is in classes.
func ExcludeClasses(m raster.Mask, scl raster.Grid, classes []float32) raster.Mask {
	out := m.Clone()
	if m.Width != scl.Width || m.Height != scl.Height {
		return out
	}
	for i, c := range scl.Data {
		for _, k := range classes {
			if c == k {
				out.Data[i] = false
				break
			}
		}
	}
	return out
}

// Resize scales m to width x height with nearest-neighbour sampling.
func Resize(m raster.Mask, width, height int) raster.Mask {
	if m.Width == width && m.Height == height {
		return m.Clone()
	}
	out := raster.NewMask(width, height)
	if m.Width == 0 || m.Height == 0 {
		return out
	}
	for y := 0; y < height; y++ {
		sy := y * m.Height / height
		for x := 0; x < width; x++ {
			sx := x * m.Width / width
			out.Data[y*width+x] = m.Data[sy*m.Width+sx]
		}
	}
	return out
}

func mismatch(op string, a, b raster.Mask) error {
	return &raster.ShapeMismatchError{Op: op, WidthA: a.Width, HeightA: a.Height, WidthB: b.Width, HeightB: b.Height}
}
