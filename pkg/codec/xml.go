package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

// XMLExtension is the file extension of PASCAL-VOC annotation files.
const XMLExtension = ".xml"

const (
	posePrefix      = "pose:"
	actionPrefix    = "action:"
	tagTruncated    = "truncated"
	tagOccluded     = "occluded"
	tagDifficult    = "difficult"
	poseUnspecified = "Unspecified"
)

var xmlName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

var polygonCoord = regexp.MustCompile(`^([xy])([0-9]+)$`)

type vocAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Folder   string      `xml:"folder"`
	Filename string      `xml:"filename"`
	Size     *vocSize    `xml:"size"`
	Objects  []vocObject `xml:"object"`
}

type vocSize struct {
	Width  string `xml:"width"`
	Height string `xml:"height"`
	Depth  string `xml:"depth"`
}

type vocObject struct {
	Name      string      `xml:"name"`
	Pose      string      `xml:"pose,omitempty"`
	Truncated string      `xml:"truncated,omitempty"`
	Occluded  string      `xml:"occluded,omitempty"`
	Difficult string      `xml:"difficult,omitempty"`
	Actions   *vocFlags   `xml:"actions,omitempty"`
	Tags      *vocTags    `xml:"tags,omitempty"`
	BndBox    *vocBndBox  `xml:"bndbox,omitempty"`
	Polygon   *vocFlags   `xml:"polygon,omitempty"`
	Parts     []vocObject `xml:"part"`
}

// vocFlags holds children whose element names carry the data, such as
// <actions><jumping>1</jumping></actions> or <polygon><x1>..</x1></polygon>.
type vocFlags struct {
	Items []vocItem `xml:",any"`
}

type vocItem struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type vocTags struct {
	Tag []string `xml:"tag"`
}

type vocBndBox struct {
	XMin string `xml:"xmin"`
	YMin string `xml:"ymin"`
	XMax string `xml:"xmax"`
	YMax string `xml:"ymax"`
}

// EncodeXML renders a in PASCAL-VOC layout with pixel coordinates for an
// image of the given size.
func EncodeXML(a *annotation.ImageAnnotation, width, height float64) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image %s has no dimensions", a.FileName())
	}
	doc := vocAnnotation{
		Folder:   a.MetaData.FolderName,
		Filename: a.MetaData.FileName,
		Size: &vocSize{
			Width:  formatPixel(width),
			Height: formatPixel(height),
			Depth:  strconv.Itoa(a.MetaData.Depth),
		},
		Objects: make([]vocObject, 0, len(a.Shapes)),
	}
	for _, s := range a.Shapes {
		doc.Objects = append(doc.Objects, encodeVOCObject(s, width, height))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode xml for %s: %w", a.FileName(), err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func encodeVOCObject(s *annotation.Shape, width, height float64) vocObject {
	obj := vocObject{
		Name:      s.CategoryName(),
		Pose:      poseUnspecified,
		Truncated: "0",
		Occluded:  "0",
		Difficult: "0",
	}
	// Every tag is listed under <tags> in its original spelling and order.
	// The VOC elements are derived from the same tags for other readers.
	if len(s.Tags) > 0 {
		obj.Tags = &vocTags{Tag: slices.Clone(s.Tags)}
	}
	posed := false
	for _, tag := range s.Tags {
		lower := strings.ToLower(tag)
		switch {
		case strings.HasPrefix(lower, posePrefix) && !posed:
			obj.Pose = strings.TrimSpace(tag[len(posePrefix):])
			posed = true
		case lower == tagTruncated:
			obj.Truncated = "1"
		case lower == tagOccluded:
			obj.Occluded = "1"
		case lower == tagDifficult:
			obj.Difficult = "1"
		case strings.HasPrefix(lower, actionPrefix) && xmlName.MatchString(strings.TrimSpace(tag[len(actionPrefix):])):
			if obj.Actions == nil {
				obj.Actions = &vocFlags{}
			}
			obj.Actions.Items = append(obj.Actions.Items, vocItem{
				XMLName: xml.Name{Local: strings.TrimSpace(tag[len(actionPrefix):])},
				Value:   "1",
			})
		}
	}

	switch s.Kind {
	case annotation.KindBox:
		abs := s.AbsoluteBox(width, height)
		obj.BndBox = &vocBndBox{
			XMin: formatPixel(abs.XMin),
			YMin: formatPixel(abs.YMin),
			XMax: formatPixel(abs.XMax),
			YMax: formatPixel(abs.YMax),
		}
	case annotation.KindPolygon:
		obj.Polygon = &vocFlags{}
		for i, p := range s.AbsolutePoints(width, height) {
			n := strconv.Itoa(i + 1)
			obj.Polygon.Items = append(obj.Polygon.Items,
				vocItem{XMLName: xml.Name{Local: "x" + n}, Value: formatPixel(p.X)},
				vocItem{XMLName: xml.Name{Local: "y" + n}, Value: formatPixel(p.Y)},
			)
		}
	}

	for _, part := range s.Parts {
		obj.Parts = append(obj.Parts, encodeVOCObject(part, width, height))
	}
	return obj
}

// DecodeXML parses a PASCAL-VOC annotation. Tags listed under <tags> come
// back first and unchanged; pose, flag and action elements not already
// covered by that list are appended after them.
func DecodeXML(data []byte, ctx DecodeContext) (*annotation.ImageAnnotation, error) {
	ctx = ctx.withDefaults()
	var doc vocAnnotation
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &DecodeError{Source: ctx.Source, Err: err}
	}

	fileName := strings.TrimSpace(doc.Filename)
	if fileName == "" {
		fileName = ctx.fallbackName()
	}
	if fileName == "" {
		return nil, decodeErrorf(ctx.Source, "missing filename element")
	}
	md := &annotation.ImageMetaData{FileName: fileName, FolderName: strings.TrimSpace(doc.Folder)}

	if doc.Size != nil && strings.TrimSpace(doc.Size.Width) != "" {
		var err error
		if md.Width, err = parseNumber(ctx.Source, "width", doc.Size.Width); err != nil {
			return nil, err
		}
		if md.Height, err = parseNumber(ctx.Source, "height", doc.Size.Height); err != nil {
			return nil, err
		}
		if d := strings.TrimSpace(doc.Size.Depth); d != "" {
			depth, err := strconv.Atoi(d)
			if err != nil {
				return nil, decodeErrorf(ctx.Source, "invalid depth value %q", doc.Size.Depth)
			}
			md.Depth = depth
		}
	}
	if !md.HasDetails() {
		if !ctx.MetaData.HasDetails() {
			return nil, &DecodeError{Source: ctx.Source, Err: ErrMissingImageSize}
		}
		md.CopyDetailsFrom(ctx.MetaData)
	}

	shapes := make([]*annotation.Shape, 0, len(doc.Objects))
	for i := range doc.Objects {
		s, err := decodeVOCObject(&doc.Objects[i], md.Width, md.Height, ctx)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, s)
	}
	return annotation.NewImageAnnotation(md, shapes...), nil
}

func decodeVOCObject(obj *vocObject, width, height float64, ctx DecodeContext) (*annotation.Shape, error) {
	name := strings.TrimSpace(obj.Name)
	if name == "" {
		return nil, decodeErrorf(ctx.Source, "object without name")
	}
	category := ctx.Resolver.Resolve(name)

	var s *annotation.Shape
	switch {
	case obj.BndBox != nil:
		var abs annotation.BoxCoords
		var err error
		if abs.XMin, err = parseNumber(ctx.Source, "xmin", obj.BndBox.XMin); err != nil {
			return nil, err
		}
		if abs.YMin, err = parseNumber(ctx.Source, "ymin", obj.BndBox.YMin); err != nil {
			return nil, err
		}
		if abs.XMax, err = parseNumber(ctx.Source, "xmax", obj.BndBox.XMax); err != nil {
			return nil, err
		}
		if abs.YMax, err = parseNumber(ctx.Source, "ymax", obj.BndBox.YMax); err != nil {
			return nil, err
		}
		s = annotation.BoxFromAbsolute(category, abs, width, height)
	case obj.Polygon != nil:
		points, err := decodeVOCPolygon(obj.Polygon, ctx.Source)
		if err != nil {
			return nil, err
		}
		s = annotation.PolygonFromAbsolute(category, points, width, height)
	default:
		return nil, decodeErrorf(ctx.Source, "object %q has neither bndbox nor polygon", name)
	}

	s.Tags = decodeVOCTags(obj)
	for i := range obj.Parts {
		part, err := decodeVOCObject(&obj.Parts[i], width, height, ctx)
		if err != nil {
			return nil, err
		}
		s.Parts = append(s.Parts, part)
	}
	return s, nil
}

func decodeVOCPolygon(poly *vocFlags, source string) ([]annotation.Point, error) {
	xs := map[int]float64{}
	ys := map[int]float64{}
	for _, item := range poly.Items {
		m := polygonCoord.FindStringSubmatch(item.XMLName.Local)
		if m == nil {
			return nil, decodeErrorf(source, "unexpected polygon element <%s>", item.XMLName.Local)
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, decodeErrorf(source, "invalid polygon index in <%s>", item.XMLName.Local)
		}
		v, err := parseNumber(source, item.XMLName.Local, item.Value)
		if err != nil {
			return nil, err
		}
		if m[1] == "x" {
			xs[idx] = v
		} else {
			ys[idx] = v
		}
	}
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil, decodeErrorf(source, "polygon has unmatched coordinates")
	}
	indices := make([]int, 0, len(xs))
	for idx := range xs {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	points := make([]annotation.Point, 0, len(indices))
	for _, idx := range indices {
		y, ok := ys[idx]
		if !ok {
			return nil, decodeErrorf(source, "polygon point %d has no y coordinate", idx)
		}
		points = append(points, annotation.Point{X: xs[idx], Y: y})
	}
	return points, nil
}

func decodeVOCTags(obj *vocObject) []string {
	var tags []string
	if obj.Tags != nil {
		tags = slices.Clone(obj.Tags.Tag)
	}
	has := func(want string) bool {
		return slices.ContainsFunc(tags, func(t string) bool { return strings.EqualFold(t, want) })
	}
	add := func(tag string) {
		if !has(tag) {
			tags = append(tags, tag)
		}
	}

	if pose := strings.TrimSpace(obj.Pose); pose != "" && !strings.EqualFold(pose, poseUnspecified) {
		posed := slices.ContainsFunc(tags, func(t string) bool {
			return strings.HasPrefix(strings.ToLower(t), posePrefix)
		})
		if !posed {
			tags = append(tags, posePrefix+pose)
		}
	}
	if isSet(obj.Truncated) {
		add(tagTruncated)
	}
	if isSet(obj.Occluded) {
		add(tagOccluded)
	}
	if isSet(obj.Difficult) {
		add(tagDifficult)
	}
	if obj.Actions != nil {
		for _, item := range obj.Actions.Items {
			if isSet(item.Value) {
				add(actionPrefix + item.XMLName.Local)
			}
		}
	}
	return tags
}

func isSet(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}
