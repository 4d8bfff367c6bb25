// Package annotation holds the entity graph of an annotation session: object
// categories, bounding shapes, image metadata and per-image annotations.
//
// Nothing in this package performs IO. Codecs, strategies and the model
// exchange these values; ownership of the authoritative maps lives in
// pkg/model.
package annotation

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color is an opaque RGB color used to render a category.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Hex returns the color as a lower-case "#rrggbb" string.
func (c Color) Hex() string {
	return c.colorful().Hex()
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// ParseHexColor parses a "#rrggbb" or "#rgb" string.
func ParseHexColor(s string) (Color, error) {
	cc, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return fromColorful(cc), nil
}

func fromColorful(cc colorful.Color) Color {
	r, g, b := cc.Clamped().RGB255()
	return Color{R: r, G: g, B: b}
}

// ColorGenerator produces the color for a category created on the fly.
type ColorGenerator func() Color

// RandomColor returns a random, saturated color suitable for drawing shapes.
func RandomColor() Color {
	return fromColorful(colorful.HappyColor())
}

// ObjectCategory is a named, colored class of shapes. Shapes hold a pointer
// to their category, so a rename is visible through every shape.
type ObjectCategory struct {
	Name  string
	Color Color
}

// NewObjectCategory creates a category.
func NewObjectCategory(name string, color Color) *ObjectCategory {
	return &ObjectCategory{Name: name, Color: color}
}

// Equal compares categories by name and color.
func (c *ObjectCategory) Equal(other *ObjectCategory) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Name == other.Name && c.Color == other.Color
}

// String implements fmt.Stringer.
func (c *ObjectCategory) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Name
}
