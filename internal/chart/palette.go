package chart

import "fmt"

// Color is a named RGB display color.
type Color struct {
	Name    string
	R, G, B uint8
}

// Hex returns the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Palette is an ordered, fixed set of series colors.
type Palette []Color

// DefaultPalette is the seven-color series palette.
var DefaultPalette = Palette{
	{Name: "black", R: 0, G: 0, B: 0},
	{Name: "blue", R: 0, G: 0, B: 255},
	{Name: "cyan", R: 0, G: 255, B: 255},
	{Name: "green", R: 0, G: 255, B: 0},
	{Name: "magenta", R: 255, G: 0, B: 255},
	{Name: "red", R: 255, G: 0, B: 0},
	{Name: "yellow", R: 255, G: 255, B: 0},
}

// At returns the color for index i, wrapping around the palette.
func (p Palette) At(i int) Color {
	n := len(p)
	return p[((i%n)+n)%n]
}
