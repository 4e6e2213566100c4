package raster

import "fmt"

// FormatError reports a raster that cannot be decoded into a scene.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid raster format: %s", e.Reason)
}

// ShapeMismatchError reports two grids that were expected to share a shape.
type ShapeMismatchError struct {
	Op              string
	WidthA, HeightA int
	WidthB, HeightB int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: shape mismatch %dx%d vs %dx%d", e.Op, e.HeightA, e.WidthA, e.HeightB, e.WidthB)
}

// DegenerateInputError is raised when a threshold cannot be derived from the
// value distribution. It is normally recovered by the caller.
type DegenerateInputError struct {
	Min, Max float64
	Fallback float64
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: value range [%g, %g], using fallback %g", e.Min, e.Max, e.Fallback)
}
