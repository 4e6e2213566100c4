package raster

// Grid is a single band of float32 values stored row-major.
type Grid struct {
	Width  int
	Height int
	Data   []float32
}

func NewGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Data: make([]float32, width*height)}
}

// GridFrom wraps data without copying. It panics if the length does not match.
func GridFrom(width, height int, data []float32) Grid {
	if len(data) != width*height {
		panic("raster: data length does not match grid shape")
	}
	return Grid{Width: width, Height: height, Data: data}
}

func (g Grid) At(x, y int) float32 {
	return g.Data[y*g.Width+x]
}

func (g Grid) Set(x, y int, v float32) {
	g.Data[y*g.Width+x] = v
}

func (g Grid) SameShape(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

func (g Grid) Len() int {
	return g.Width * g.Height
}

// Float64s returns a copy of the grid values widened to float64.
func (g Grid) Float64s() []float64 {
	out := make([]float64, len(g.Data))
	for i, v := range g.Data {
		out[i] = float64(v)
	}
	return out
}

// Mask is a binary raster stored row-major.
type Mask struct {
	Width  int
	Height int
	Data   []bool
}

func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Data: make([]bool, width*height)}
}

// FilledMask returns a mask with every cell set to v.
func FilledMask(width, height int, v bool) Mask {
	m := NewMask(width, height)
	if v {
		for i := range m.Data {
			m.Data[i] = true
		}
	}
	return m
}

func (m Mask) At(x, y int) bool {
	return m.Data[y*m.Width+x]
}

func (m Mask) Set(x, y int, v bool) {
	m.Data[y*m.Width+x] = v
}

func (m Mask) SameShape(o Mask) bool {
	return m.Width == o.Width && m.Height == o.Height
}

func (m Mask) Clone() Mask {
	data := make([]bool, len(m.Data))
	copy(data, m.Data)
	return Mask{Width: m.Width, Height: m.Height, Data: data}
}

// Count returns the number of true cells.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Crop returns the top-left width x height window of m.
func (m Mask) Crop(width, height int) Mask {
	out := NewMask(width, height)
	for y := 0; y < height; y++ {
		copy(out.Data[y*width:(y+1)*width], m.Data[y*m.Width:y*m.Width+width])
	}
	return out
}

// Box is an axis-aligned pixel rectangle, X2/Y2 exclusive.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Clamp restricts the box to a width x height grid.
func (b Box) Clamp(width, height int) Box {
	return Box{
		X1: clamp(b.X1, 0, width),
		Y1: clamp(b.Y1, 0, height),
		X2: clamp(b.X2, 0, width),
		Y2: clamp(b.Y2, 0, height),
	}
}

func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

func (b Box) Area() int {
	if b.Empty() {
		return 0
	}
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Scale maps a box between two resolutions of the same footprint.
func (b Box) Scale(sx, sy float64) Box {
	return Box{
		X1: int(float64(b.X1) * sx),
		Y1: int(float64(b.Y1) * sy),
		X2: int(float64(b.X2)*sx + 0.5),
		Y2: int(float64(b.Y2)*sy + 0.5),
	}
}

// ScaleBoxes maps boxes drawn on a frameWidth x frameHeight image of the same
// footprint onto a width x height grid, dropping boxes that end up empty.
func ScaleBoxes(boxes []Box, frameWidth, frameHeight, width, height int) []Box {
	if frameWidth <= 0 || frameHeight <= 0 {
		return nil
	}
	sx := float64(width) / float64(frameWidth)
	sy := float64(height) / float64(frameHeight)
	out := make([]Box, 0, len(boxes))
	for _, b := range boxes {
		b = b.Scale(sx, sy).Clamp(width, height)
		if !b.Empty() {
			out = append(out, b)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
