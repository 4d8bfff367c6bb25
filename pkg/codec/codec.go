// Package codec converts a single image's shapes to and from the supported
// on-disk annotation formats: PASCAL-VOC XML, YOLO text, a JSON tree and CSV.
//
// Encoders are deterministic: shapes and tags are written in insertion
// order and numbers follow fixed formatting rules, so encoding the same
// annotation twice yields identical bytes.
package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
)

// ErrSkipImage is returned by a metadata lookup to signal that rows or files
// for an image must be ignored silently.
var ErrSkipImage = errors.New("image not importable")

// ErrMissingImageSize is wrapped by a DecodeError when a file stores pixel
// coordinates but neither it nor the DecodeContext provides the image size.
var ErrMissingImageSize = errors.New("missing image size")

// DecodeError reports a malformed on-disk record.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrorf(source, format string, args ...any) error {
	return &DecodeError{Source: source, Err: fmt.Errorf(format, args...)}
}

// UnsupportedShapeError reports a shape the target format cannot represent.
type UnsupportedShapeError struct {
	Format   string
	FileName string
	Kind     annotation.ShapeKind
	Category string
	Nested   bool
}

func (e *UnsupportedShapeError) Error() string {
	what := e.Kind.String()
	if e.Nested {
		what = "nested " + what
	}
	return fmt.Sprintf("%s format cannot store %s shape with category %q", e.Format, what, e.Category)
}

// DecodeContext carries what a decoder needs besides the raw bytes.
type DecodeContext struct {
	// Source names the annotation file in errors.
	Source string
	// Resolver maps category names to categories, creating unknown ones.
	Resolver *annotation.CategoryResolver
	// MetaData is the image the file is expected to describe. Decoders fall
	// back to its file name and dimensions when the file omits them.
	MetaData *annotation.ImageMetaData
}

func (c DecodeContext) withDefaults() DecodeContext {
	if c.Resolver == nil {
		c.Resolver = annotation.NewCategoryResolver(nil, nil)
	}
	return c
}

func (c DecodeContext) fallbackName() string {
	if c.MetaData == nil {
		return ""
	}
	return c.MetaData.FileName
}

// formatPixel writes the shortest decimal that parses back to v exactly.
func formatPixel(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatNormalized writes v with four decimals.
func formatNormalized(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// formatRounded writes v rounded to the nearest integer.
func formatRounded(v float64) string {
	return strconv.FormatInt(int64(math.Round(v)), 10)
}

func parseNumber(source, field, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, decodeErrorf(source, "invalid %s value %q", field, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, decodeErrorf(source, "invalid %s value %q", field, raw)
	}
	return v, nil
}
