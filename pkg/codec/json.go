package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

// JSONExtension is the file extension of JSON annotation files.
const JSONExtension = ".json"

type jsonDocument struct {
	Image   jsonImage    `json:"image"`
	Objects []jsonObject `json:"objects"`
}

type jsonImage struct {
	FileName   string  `json:"fileName"`
	FolderName string  `json:"folderName,omitempty"`
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`
	Depth      int     `json:"depth,omitempty"`
}

type jsonCategory struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type jsonBox struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

type jsonObject struct {
	Category jsonCategory `json:"category"`
	Tags     []string     `json:"tags,omitempty"`
	Box      *jsonBox     `json:"box,omitempty"`
	Polygon  []float64    `json:"polygon,omitempty"`
	Parts    []jsonObject `json:"parts,omitempty"`
}

// EncodeJSON mirrors the entity model: relative coordinates, tags and a
// recursive parts array. Width and height are recorded in the image header.
func EncodeJSON(a *annotation.ImageAnnotation, width, height float64) ([]byte, error) {
	doc := jsonDocument{
		Image: jsonImage{
			FileName:   a.MetaData.FileName,
			FolderName: a.MetaData.FolderName,
			Width:      width,
			Height:     height,
			Depth:      a.MetaData.Depth,
		},
		Objects: make([]jsonObject, 0, len(a.Shapes)),
	}
	for _, s := range a.Shapes {
		doc.Objects = append(doc.Objects, encodeJSONObject(s))
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode json for %s: %w", a.FileName(), err)
	}
	return append(data, '\n'), nil
}

func encodeJSONObject(s *annotation.Shape) jsonObject {
	obj := jsonObject{
		Category: jsonCategory{Name: s.CategoryName()},
		Tags:     s.Tags,
	}
	if s.Category != nil {
		obj.Category.Color = s.Category.Color.Hex()
	}
	switch s.Kind {
	case annotation.KindBox:
		obj.Box = &jsonBox{MinX: s.Box.XMin, MinY: s.Box.YMin, MaxX: s.Box.XMax, MaxY: s.Box.YMax}
	case annotation.KindPolygon:
		obj.Polygon = make([]float64, 0, 2*len(s.Points))
		for _, p := range s.Points {
			obj.Polygon = append(obj.Polygon, p.X, p.Y)
		}
	}
	for _, part := range s.Parts {
		obj.Parts = append(obj.Parts, encodeJSONObject(part))
	}
	return obj
}

// DecodeJSON parses a JSON tree annotation.
func DecodeJSON(data []byte, ctx DecodeContext) (*annotation.ImageAnnotation, error) {
	ctx = ctx.withDefaults()
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Source: ctx.Source, Err: err}
	}

	md := &annotation.ImageMetaData{
		FileName:   strings.TrimSpace(doc.Image.FileName),
		FolderName: doc.Image.FolderName,
		Width:      doc.Image.Width,
		Height:     doc.Image.Height,
		Depth:      doc.Image.Depth,
	}
	if md.FileName == "" {
		md.FileName = ctx.fallbackName()
	}
	if md.FileName == "" {
		return nil, decodeErrorf(ctx.Source, "missing image fileName")
	}
	if !md.HasDetails() && ctx.MetaData.HasDetails() {
		md.CopyDetailsFrom(ctx.MetaData)
	}

	shapes := make([]*annotation.Shape, 0, len(doc.Objects))
	for i := range doc.Objects {
		s, err := decodeJSONObject(&doc.Objects[i], ctx)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, s)
	}
	return annotation.NewImageAnnotation(md, shapes...), nil
}

func decodeJSONObject(obj *jsonObject, ctx DecodeContext) (*annotation.Shape, error) {
	name := strings.TrimSpace(obj.Category.Name)
	if name == "" {
		return nil, decodeErrorf(ctx.Source, "object without category name")
	}
	var category *annotation.ObjectCategory
	if obj.Category.Color != "" {
		color, err := annotation.ParseHexColor(obj.Category.Color)
		if err != nil {
			return nil, &DecodeError{Source: ctx.Source, Err: err}
		}
		category = ctx.Resolver.ResolveWithColor(name, color)
	} else {
		category = ctx.Resolver.Resolve(name)
	}

	var s *annotation.Shape
	switch {
	case obj.Box != nil:
		s = annotation.NewBox(category, obj.Box.MinX, obj.Box.MinY, obj.Box.MaxX, obj.Box.MaxY)
	case len(obj.Polygon) > 0:
		if len(obj.Polygon)%2 != 0 {
			return nil, decodeErrorf(ctx.Source, "polygon of %q has an odd number of coordinates", name)
		}
		points := make([]annotation.Point, 0, len(obj.Polygon)/2)
		for i := 0; i < len(obj.Polygon); i += 2 {
			points = append(points, annotation.Point{X: obj.Polygon[i], Y: obj.Polygon[i+1]})
		}
		s = annotation.NewPolygon(category, points)
	default:
		return nil, decodeErrorf(ctx.Source, "object %q has neither box nor polygon", name)
	}

	if len(obj.Tags) > 0 {
		s.Tags = obj.Tags
	}
	for i := range obj.Parts {
		part, err := decodeJSONObject(&obj.Parts[i], ctx)
		if err != nil {
			return nil, err
		}
		s.Parts = append(s.Parts, part)
	}
	return s, nil
}
