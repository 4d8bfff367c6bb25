package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

const (
	// YOLOExtension is the file extension of YOLO annotation files.
	YOLOExtension = ".txt"
	// YOLOCategoryFile lists category names, one per line, in index order.
	YOLOCategoryFile = "object.data"
)

const yoloFormat = "yolo"

// EncodeYOLO writes one "index cx cy w h" line per top-level box. Polygons and
// nested parts cannot be represented; each yields one UnsupportedShapeError
// while the remaining boxes are still written.
func EncodeYOLO(a *annotation.ImageAnnotation, categoryIndex map[string]int) ([]byte, []error) {
	var buf bytes.Buffer
	var errs []error

	for _, s := range a.Shapes {
		if s.Kind != annotation.KindBox {
			errs = append(errs, unsupported(yoloFormat, a, s, false))
		} else if idx, ok := categoryIndex[s.CategoryName()]; !ok {
			errs = append(errs, fmt.Errorf("category %q is not in the category list", s.CategoryName()))
		} else {
			w := s.Box.XMax - s.Box.XMin
			h := s.Box.YMax - s.Box.YMin
			fmt.Fprintf(&buf, "%d %s %s %s %s\n", idx,
				formatNormalized(s.Box.XMin+w/2),
				formatNormalized(s.Box.YMin+h/2),
				formatNormalized(w),
				formatNormalized(h))
		}
		for _, part := range s.Parts {
			part.Walk(func(nested *annotation.Shape, _ int) {
				errs = append(errs, unsupported(yoloFormat, a, nested, true))
			})
		}
	}
	return buf.Bytes(), errs
}

// DecodeYOLO parses a YOLO annotation. names maps category index to name.
// ctx.MetaData supplies the image the file belongs to.
func DecodeYOLO(data []byte, names []string, ctx DecodeContext) (*annotation.ImageAnnotation, error) {
	ctx = ctx.withDefaults()
	if ctx.MetaData == nil {
		return nil, decodeErrorf(ctx.Source, "no image associated with annotation file")
	}

	var shapes []*annotation.Shape
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 5 {
			return nil, decodeErrorf(ctx.Source, "line %d: expected 5 fields, got %d", line, len(fields))
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil || idx < 0 || idx >= len(names) {
			return nil, decodeErrorf(ctx.Source, "line %d: invalid category index %q", line, fields[0])
		}
		var v [4]float64
		for i, field := range []string{"center x", "center y", "width", "height"} {
			if v[i], err = parseNumber(ctx.Source, field, fields[i+1]); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if v[i] < 0 || v[i] > 1 {
				return nil, decodeErrorf(ctx.Source, "line %d: %s %q is not normalized", line, field, fields[i+1])
			}
		}
		cx, cy, w, h := v[0], v[1], v[2], v[3]
		shapes = append(shapes, annotation.NewBox(ctx.Resolver.Resolve(names[idx]),
			cx-w/2, cy-h/2, cx+w/2, cy+h/2))
	}
	if err := scanner.Err(); err != nil {
		return nil, &DecodeError{Source: ctx.Source, Err: err}
	}
	return annotation.NewImageAnnotation(ctx.MetaData, shapes...), nil
}

// EncodeYOLOCategories writes the category side file.
func EncodeYOLOCategories(names []string) []byte {
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// DecodeYOLOCategories parses the category side file. Blank lines are ignored.
func DecodeYOLOCategories(data []byte, source string) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if n := strings.TrimSpace(scanner.Text()); n != "" {
			names = append(names, n)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	if len(names) == 0 {
		return nil, decodeErrorf(source, "no categories listed")
	}
	return names, nil
}

func unsupported(format string, a *annotation.ImageAnnotation, s *annotation.Shape, nested bool) error {
	return &UnsupportedShapeError{
		Format:   format,
		FileName: a.FileName(),
		Kind:     s.Kind,
		Category: s.CategoryName(),
		Nested:   nested,
	}
}
