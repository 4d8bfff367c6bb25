package annotation

import (
	"fmt"
	"math"
	"slices"
)

// Epsilon is the tolerance used when comparing coordinates.
const Epsilon = 1e-8

// ShapeKind tags the geometry carried by a Shape.
type ShapeKind int

const (
	// KindBox is an axis-aligned rectangle.
	KindBox ShapeKind = iota
	// KindPolygon is a closed polygon.
	KindPolygon
)

// String implements fmt.Stringer.
func (k ShapeKind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindPolygon:
		return "polygon"
	default:
		return fmt.Sprintf("ShapeKind(%d)", int(k))
	}
}

// BoxCoords is an axis-aligned rectangle. Depending on context the values are
// relative to the image size or absolute pixels; Shape always stores them
// relative.
type BoxCoords struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Point is a polygon vertex.
type Point struct {
	X float64
	Y float64
}

// Shape is a labeled region on an image: either a box or a polygon, with an
// ordered list of tags and nested parts.
type Shape struct {
	Kind     ShapeKind
	Category *ObjectCategory
	Tags     []string
	Parts    []*Shape

	// Box holds relative coordinates when Kind is KindBox.
	Box BoxCoords
	// Points holds relative vertices when Kind is KindPolygon.
	Points []Point
}

// NewBox creates a box shape from relative coordinates.
func NewBox(category *ObjectCategory, xMin, yMin, xMax, yMax float64) *Shape {
	return &Shape{
		Kind:     KindBox,
		Category: category,
		Box:      BoxCoords{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax},
	}
}

// BoxFromAbsolute creates a box shape from pixel coordinates.
func BoxFromAbsolute(category *ObjectCategory, abs BoxCoords, width, height float64) *Shape {
	return NewBox(category, abs.XMin/width, abs.YMin/height, abs.XMax/width, abs.YMax/height)
}

// NewPolygon creates a polygon shape from relative vertices.
func NewPolygon(category *ObjectCategory, points []Point) *Shape {
	return &Shape{
		Kind:     KindPolygon,
		Category: category,
		Points:   points,
	}
}

// PolygonFromAbsolute creates a polygon shape from pixel vertices.
func PolygonFromAbsolute(category *ObjectCategory, abs []Point, width, height float64) *Shape {
	points := make([]Point, len(abs))
	for i, p := range abs {
		points[i] = Point{X: p.X / width, Y: p.Y / height}
	}
	return NewPolygon(category, points)
}

// AbsoluteBox returns the box in pixel coordinates for an image of the given size.
func (s *Shape) AbsoluteBox(width, height float64) BoxCoords {
	return BoxCoords{
		XMin: s.Box.XMin * width,
		YMin: s.Box.YMin * height,
		XMax: s.Box.XMax * width,
		YMax: s.Box.YMax * height,
	}
}

// AbsolutePoints returns the polygon vertices in pixel coordinates.
func (s *Shape) AbsolutePoints(width, height float64) []Point {
	out := make([]Point, len(s.Points))
	for i, p := range s.Points {
		out[i] = Point{X: p.X * width, Y: p.Y * height}
	}
	return out
}

// WithTags sets the tags and returns the shape for chaining.
func (s *Shape) WithTags(tags ...string) *Shape {
	s.Tags = tags
	return s
}

// WithParts sets the nested parts and returns the shape for chaining.
func (s *Shape) WithParts(parts ...*Shape) *Shape {
	s.Parts = parts
	return s
}

// CategoryName returns the name of the shape's category or "" when unset.
func (s *Shape) CategoryName() string {
	if s.Category == nil {
		return ""
	}
	return s.Category.Name
}

// Walk visits the shape and all nested parts depth-first. depth is 0 for the
// receiver.
func (s *Shape) Walk(fn func(shape *Shape, depth int)) {
	s.walk(fn, 0)
}

func (s *Shape) walk(fn func(*Shape, int), depth int) {
	fn(s, depth)
	for _, p := range s.Parts {
		p.walk(fn, depth+1)
	}
}

// Clone returns a deep copy that still references the same category.
func (s *Shape) Clone() *Shape {
	c := &Shape{
		Kind:     s.Kind,
		Category: s.Category,
		Tags:     slices.Clone(s.Tags),
		Box:      s.Box,
		Points:   slices.Clone(s.Points),
	}
	if len(s.Parts) > 0 {
		c.Parts = make([]*Shape, len(s.Parts))
		for i, p := range s.Parts {
			c.Parts[i] = p.Clone()
		}
	}
	return c
}

// Equal reports whether two shapes describe the same region. Coordinates are
// compared within Epsilon; category, tags and parts structurally.
func (s *Shape) Equal(other *Shape) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Kind != other.Kind || !s.Category.Equal(other.Category) {
		return false
	}
	if !slices.Equal(s.Tags, other.Tags) {
		return false
	}
	switch s.Kind {
	case KindBox:
		if !approx(s.Box.XMin, other.Box.XMin) || !approx(s.Box.YMin, other.Box.YMin) ||
			!approx(s.Box.XMax, other.Box.XMax) || !approx(s.Box.YMax, other.Box.YMax) {
			return false
		}
	case KindPolygon:
		if len(s.Points) != len(other.Points) {
			return false
		}
		for i := range s.Points {
			if !approx(s.Points[i].X, other.Points[i].X) || !approx(s.Points[i].Y, other.Points[i].Y) {
				return false
			}
		}
	}
	return EqualShapes(s.Parts, other.Parts)
}

// EqualShapes compares two ordered shape lists with Shape.Equal.
func EqualShapes(a, b []*Shape) bool {
	return slices.EqualFunc(a, b, func(x, y *Shape) bool { return x.Equal(y) })
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}
