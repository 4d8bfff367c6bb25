// Package strategy drives a format codec over a set of files. Planning
// validates the batch up front and turns it into independent items; running
// an item never panics or aborts the batch, it reports successes and error
// entries instead.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/ioresult"
)

// FormatType selects an annotation format.
type FormatType string

const (
	FormatXML  FormatType = "xml"
	FormatYOLO FormatType = "yolo"
	FormatJSON FormatType = "json"
	FormatCSV  FormatType = "csv"
)

// Formats lists the supported formats.
var Formats = []FormatType{FormatXML, FormatYOLO, FormatJSON, FormatCSV}

// ParseFormatType parses a format name such as "xml" or "PVOC".
func ParseFormatType(s string) (FormatType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xml", "pvoc", "voc":
		return FormatXML, nil
	case "yolo", "txt":
		return FormatYOLO, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown annotation format %q", s)
	}
}

// FatalSetupError aborts a batch before any item runs.
type FatalSetupError struct {
	Path string
	Err  error
}

func (e *FatalSetupError) Error() string {
	return fmt.Sprintf("cannot start batch on %s: %v", e.Path, e.Err)
}

func (e *FatalSetupError) Unwrap() error {
	return e.Err
}

// TransportError reports a file that could not be read or written.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err aborts a whole batch.
func IsFatal(err error) bool {
	var fatal *FatalSetupError
	return errors.As(err, &fatal)
}

// MetaDataFunc returns metadata with dimensions for an image file name.
type MetaDataFunc func(fileName string) (*annotation.ImageMetaData, error)

// LoadRequest describes an import.
type LoadRequest struct {
	// Root is the directory holding annotation files, or the CSV file.
	Root string
	// Importable lists the image file names annotations may refer to.
	Importable []string
	// Known is a read-only snapshot of existing categories.
	Known map[string]*annotation.ObjectCategory
	// CategoryNames orders categories for YOLO when no side file exists.
	CategoryNames []string
	// MetaData resolves image dimensions for formats that store none.
	MetaData MetaDataFunc
	// NewColor colors categories created while decoding.
	NewColor annotation.ColorGenerator
}

// LoadOutcome is the result of one load item.
type LoadOutcome struct {
	Annotations []*annotation.ImageAnnotation
	Succeeded   int
	Errors      []ioresult.ErrorInfoEntry
}

// LoadItem is one independent unit of an import.
type LoadItem struct {
	Source string
	Run    func() LoadOutcome
}

// LoadPlan lists the items of an import.
type LoadPlan struct {
	Items []LoadItem
}

// SaveRequest describes an export.
type SaveRequest struct {
	// Root is the destination directory.
	Root string
	// Annotations are written in order.
	Annotations []*annotation.ImageAnnotation
	// Categories orders category indices for YOLO.
	Categories []*annotation.ObjectCategory
	// MetaData resolves dimensions for annotations holding placeholder metadata.
	MetaData MetaDataFunc
}

// SaveOutcome is the result of one save item.
type SaveOutcome struct {
	Succeeded int
	Errors    []ioresult.ErrorInfoEntry
}

// SaveItem is one independent unit of an export.
type SaveItem struct {
	Source string
	Run    func() SaveOutcome
}

// SavePlan lists the items of an export.
type SavePlan struct {
	Items []SaveItem
}

// Strategy plans imports and exports for one format.
type Strategy interface {
	Format() FormatType
	PlanLoad(req LoadRequest) (*LoadPlan, error)
	PlanSave(req SaveRequest) (*SavePlan, error)
}

// ForFormat returns the strategy for ft.
func ForFormat(ft FormatType) (Strategy, error) {
	switch ft {
	case FormatXML:
		return perFileStrategy{format: FormatXML, codec: xmlFileCodec{}}, nil
	case FormatJSON:
		return perFileStrategy{format: FormatJSON, codec: jsonFileCodec{}}, nil
	case FormatYOLO:
		return yoloStrategy{}, nil
	case FormatCSV:
		return csvStrategy{}, nil
	default:
		return nil, fmt.Errorf("unsupported annotation format %q", ft)
	}
}

func entry(source string, err error) ioresult.ErrorInfoEntry {
	return ioresult.EntryFromError(source, err)
}
