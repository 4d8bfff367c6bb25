package codec

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

// CSVFileName is the single file a CSV export writes.
const CSVFileName = "annotations.csv"

const csvFormat = "csv"

var csvHeader = []string{"name", "id", "label", "xMin", "xMax", "yMin", "yMax"}

// CSVEncoder writes one row per leaf box across a whole export. The id column is
// a zero-based counter spanning every image passed to Encode.
type CSVEncoder struct {
	buf    bytes.Buffer
	nextID int
}

// NewCSVEncoder returns an encoder that has already written the header row.
func NewCSVEncoder() *CSVEncoder {
	e := &CSVEncoder{}
	e.writeRow(csvHeader)
	return e
}

// Encode appends the rows for a. Boxes without parts become rows in
// depth-first order, so a box that has parts is represented by its leaves.
// Each polygon at any depth yields one UnsupportedShapeError. It returns the
// number of rows written.
func (e *CSVEncoder) Encode(a *annotation.ImageAnnotation, width, height float64) (int, []error) {
	if width <= 0 || height <= 0 {
		return 0, []error{fmt.Errorf("image %s has no dimensions", a.FileName())}
	}
	rows := 0
	var errs []error
	for _, s := range a.Shapes {
		s.Walk(func(shape *annotation.Shape, depth int) {
			if shape.Kind != annotation.KindBox {
				errs = append(errs, unsupported(csvFormat, a, shape, depth > 0))
				return
			}
			if len(shape.Parts) > 0 {
				return
			}
			abs := shape.AbsoluteBox(width, height)
			e.writeRow([]string{
				a.FileName(),
				strconv.Itoa(e.nextID),
				shape.CategoryName(),
				formatRounded(abs.XMin),
				formatRounded(abs.XMax),
				formatRounded(abs.YMin),
				formatRounded(abs.YMax),
			})
			e.nextID++
			rows++
		})
	}
	return rows, errs
}

// Bytes returns everything written so far.
func (e *CSVEncoder) Bytes() []byte {
	return e.buf.Bytes()
}

// writeRow quotes every field; encoding/csv only quotes when required.
func (e *CSVEncoder) writeRow(fields []string) {
	for i, f := range fields {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		e.buf.WriteByte('"')
		e.buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
		e.buf.WriteByte('"')
	}
	e.buf.WriteByte('\n')
}

// MetaDataLookup returns the metadata, with dimensions, of the image called
// fileName. It returns ErrSkipImage for images that must be ignored.
type MetaDataLookup func(fileName string) (*annotation.ImageMetaData, error)

// DecodeCSV parses a CSV export. Rows are grouped by image name, keeping the
// order in which images first appear. Rows of skipped images are dropped
// silently; a malformed row or an image whose dimensions cannot be resolved
// yields an error and the rest of the file is still decoded.
func DecodeCSV(data []byte, ctx DecodeContext, lookup MetaDataLookup) ([]*annotation.ImageAnnotation, []error) {
	ctx = ctx.withDefaults()
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(csvHeader)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, []error{&DecodeError{Source: ctx.Source, Err: fmt.Errorf("reading header: %w", err)}}
	}
	if !slices.Equal(header, csvHeader) {
		return nil, []error{decodeErrorf(ctx.Source, "unexpected header %q", strings.Join(header, ","))}
	}

	var (
		order   []*annotation.ImageAnnotation
		byName  = map[string]*annotation.ImageAnnotation{}
		skipped = map[string]bool{}
		errs    []error
	)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				errs = append(errs, decodeErrorf(ctx.Source, "line %d: expected %d fields, got %d", perr.Line, len(csvHeader), len(record)))
				continue
			}
			errs = append(errs, &DecodeError{Source: ctx.Source, Err: err})
			break
		}

		line, _ := r.FieldPos(0)
		name := strings.TrimSpace(record[0])
		if skipped[name] {
			continue
		}
		a, ok := byName[name]
		if !ok {
			md, err := lookup(name)
			if err != nil {
				skipped[name] = true
				if !errors.Is(err, ErrSkipImage) {
					errs = append(errs, err)
				}
				continue
			}
			if !md.HasDetails() {
				skipped[name] = true
				errs = append(errs, decodeErrorf(ctx.Source, "line %d: dimensions of image %s are unknown", line, name))
				continue
			}
			a = annotation.NewImageAnnotation(md)
			byName[name] = a
			order = append(order, a)
		}

		var abs annotation.BoxCoords
		fields := []*float64{&abs.XMin, &abs.XMax, &abs.YMin, &abs.YMax}
		valid := true
		for i, dst := range fields {
			v, err := parseNumber(ctx.Source, csvHeader[3+i], record[3+i])
			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: %w", line, err))
				valid = false
				break
			}
			*dst = v
		}
		label := strings.TrimSpace(record[2])
		if valid && label == "" {
			errs = append(errs, decodeErrorf(ctx.Source, "line %d: empty label", line))
			valid = false
		}
		if !valid {
			continue
		}
		a.Shapes = append(a.Shapes, annotation.BoxFromAbsolute(ctx.Resolver.Resolve(label), abs,
			a.MetaData.Width, a.MetaData.Height))
	}

	return slices.DeleteFunc(order, func(a *annotation.ImageAnnotation) bool { return len(a.Shapes) == 0 }), errs
}
