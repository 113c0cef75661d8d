package legend

import (
	"fmt"
	"sort"
	"strings"
)

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

// String formats the colour as Paraver expects it: {r,g,b}.
func (c Color) String() string {
	return fmt.Sprintf("{%d,%d,%d}", c.R, c.G, c.B)
}

// Palette is an ordered list of state colours, reused cyclically.
type Palette struct {
	Name   string
	Colors []Color
}

// At returns the colour for state index i.
func (p Palette) At(i int) Color {
	if len(p.Colors) == 0 {
		return Color{}
	}
	return p.Colors[i%len(p.Colors)]
}

// DefaultPalette is the palette used when none is configured.
const DefaultPalette = "brewer"

var palettes = map[string]Palette{
	"brewer": {Name: "brewer", Colors: []Color{
		{141, 211, 199}, {255, 255, 179}, {190, 186, 218}, {251, 128, 114},
		{128, 177, 211}, {253, 180, 98}, {179, 222, 105}, {252, 205, 229},
		{217, 217, 217}, {188, 128, 189}, {204, 235, 197}, {255, 237, 111},
	}},
	"paraver": {Name: "paraver", Colors: []Color{
		{117, 195, 255}, {0, 0, 255}, {255, 255, 255}, {255, 0, 0},
		{255, 0, 174}, {179, 0, 0}, {0, 255, 0}, {255, 255, 0},
		{235, 0, 0}, {0, 162, 0}, {255, 0, 255}, {100, 100, 177},
		{172, 174, 41}, {255, 144, 26}, {2, 255, 177}, {192, 224, 0},
		{66, 66, 66},
	}},
}

// PaletteByName looks up a built-in palette.
func PaletteByName(name string) (Palette, error) {
	if name == "" {
		name = DefaultPalette
	}
	p, ok := palettes[strings.ToLower(name)]
	if !ok {
		return Palette{}, fmt.Errorf("unknown palette %q (expected: %s)", name, strings.Join(PaletteNames(), "|"))
	}
	return p, nil
}

// PaletteNames lists the built-in palettes in sorted order.
func PaletteNames() []string {
	names := make([]string, 0, len(palettes))
	for n := range palettes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
