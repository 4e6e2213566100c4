package properties

import (
	"encoding/json"
	"fmt"
	"image/color"
)

type Color struct {
	R, G, B uint8
}

func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// MarshalJSON encodes the color as [r, g, b].
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint8{c.R, c.G, c.B})
}

func (c *Color) UnmarshalJSON(data []byte) error {
	var rgb [3]uint8
	if err := json.Unmarshal(data, &rgb); err != nil {
		return err
	}
	c.R, c.G, c.B = rgb[0], rgb[1], rgb[2]
	return nil
}

// Palette assigns a color to each change category.
type Palette struct {
	Persistent Color
	New        Color
	Lost       Color
	Background Color
}

// Labels names each change category in reports.
type Labels struct {
	Persistent string
	New        string
	Lost       string
	NoChange   string
}

var (
	WaterPalette = Palette{
		Persistent: Color{0, 0, 255},
		New:        Color{0, 255, 0},
		Lost:       Color{255, 0, 0},
		Background: Color{128, 128, 128},
	}
	BuiltupPalette = Palette{
		Persistent: Color{200, 0, 200},
		New:        Color{255, 165, 0},
		Lost:       Color{0, 255, 255},
		Background: Color{128, 128, 128},
	}

	Palettes = map[string]Palette{
		"water":   WaterPalette,
		"builtup": BuiltupPalette,
	}

	WaterLabels = Labels{
		Persistent: "Persistent Water",
		New:        "New Water",
		Lost:       "Lost Water",
		NoChange:   "Non-Water",
	}
	BuiltupLabels = Labels{
		Persistent: "Persistent Built-up",
		New:        "New Built-up",
		Lost:       "Lost Built-up",
		NoChange:   "Non-Built-up",
	}

	// OverlayColor is blended over RGB previews to highlight one change class.
	OverlayColor = Color{160, 32, 240}
)
