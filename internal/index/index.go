package index

import (
	"fmt"
	"sort"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// NormalizedDifference computes (a-b)/(a+b) per cell, 0 where a+b is 0.
func NormalizedDifference(a, b raster.Grid) (raster.Grid, error) {
	if !a.SameShape(b) {
		return raster.Grid{}, &raster.ShapeMismatchError{
			Op: "normalized difference", WidthA: a.Width, HeightA: a.Height, WidthB: b.Width, HeightB: b.Height,
		}
	}
	result := raster.NewGrid(a.Width, a.Height)
	for i := range result.Data {
		denominator := a.Data[i] + b.Data[i]
		if denominator != 0 {
			result.Data[i] = (a.Data[i] - b.Data[i]) / denominator
		}
	}
	return result, nil
}

// Func derives one index image from a scene.
type Func func(s *raster.Scene) (raster.Grid, error)

func MNDWI(s *raster.Scene) (raster.Grid, error) {
	return NormalizedDifference(s.Band(raster.Green), s.Band(raster.SWIR1))
}

func NDBI(s *raster.Scene) (raster.Grid, error) {
	return NormalizedDifference(s.Band(raster.SWIR1), s.Band(raster.NIR))
}

func NDVI(s *raster.Scene) (raster.Grid, error) {
	return NormalizedDifference(s.Band(raster.NIR), s.Band(raster.Red))
}

func NDISI(s *raster.Scene) (raster.Grid, error) {
	return NormalizedDifference(s.Band(raster.SWIR1), s.Band(raster.Red))
}

// NBI is SWIR1*Red/NIR, 0 where NIR is 0.
func NBI(s *raster.Scene) (raster.Grid, error) {
	swir, red, nir := s.Band(raster.SWIR1), s.Band(raster.Red), s.Band(raster.NIR)
	result := raster.NewGrid(s.Width, s.Height)
	for i := range result.Data {
		if nir.Data[i] != 0 {
			result.Data[i] = swir.Data[i] * red.Data[i] / nir.Data[i]
		}
	}
	return result, nil
}

// BAEI is (Red+0.3)/(SWIR1+Green+1e-6).
func BAEI(s *raster.Scene) (raster.Grid, error) {
	swir, red, green := s.Band(raster.SWIR1), s.Band(raster.Red), s.Band(raster.Green)
	result := raster.NewGrid(s.Width, s.Height)
	for i := range result.Data {
		result.Data[i] = (red.Data[i] + 0.3) / (swir.Data[i] + green.Data[i] + 1e-6)
	}
	return result, nil
}

var registry = map[string]Func{
	"mndwi": MNDWI,
	"ndbi":  NDBI,
	"ndvi":  NDVI,
	"ndisi": NDISI,
	"nbi":   NBI,
	"baei":  BAEI,
}

// Lookup returns the index function registered under name.
func Lookup(name string) (Func, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", name)
	}
	return f, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
