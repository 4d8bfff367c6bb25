package strategy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/codec"
)

// csvStrategy keeps every image of a batch in one file, so each plan has a
// single item.
type csvStrategy struct{}

func (csvStrategy) Format() FormatType {
	return FormatCSV
}

// csvPath accepts either the CSV file itself or the directory holding it.
func csvPath(root string) string {
	if utils.DirExists(root) {
		return filepath.Join(root, codec.CSVFileName)
	}
	return root
}

func (csvStrategy) PlanLoad(req LoadRequest) (*LoadPlan, error) {
	path := csvPath(req.Root)
	if !utils.FileExists(path) {
		return nil, &FatalSetupError{Path: path, Err: errors.New("file does not exist")}
	}
	importable := lo.Keyify(req.Importable)
	source := filepath.Base(path)

	lookup := func(name string) (*annotation.ImageMetaData, error) {
		if _, ok := importable[name]; !ok {
			return nil, codec.ErrSkipImage
		}
		if req.MetaData == nil {
			return nil, fmt.Errorf("dimensions of image %s are unknown", name)
		}
		md, err := req.MetaData(name)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", name, err)
		}
		return md, nil
	}

	item := LoadItem{
		Source: source,
		Run: func() LoadOutcome {
			data, err := os.ReadFile(path)
			if err != nil {
				return failedLoad(source, &TransportError{Op: "read", Path: path, Err: err})
			}
			annotations, errs := codec.DecodeCSV(data, codec.DecodeContext{
				Source:   source,
				Resolver: annotation.NewCategoryResolver(req.Known, req.NewColor),
			}, lookup)
			return LoadOutcome{
				Annotations: annotations,
				Succeeded:   len(annotations),
				Errors:      entriesFor(source, errs),
			}
		},
	}
	return &LoadPlan{Items: []LoadItem{item}}, nil
}

// PlanSave writes annotations.csv inside root. Every image with at least one
// written row counts as a success.
func (csvStrategy) PlanSave(req SaveRequest) (*SavePlan, error) {
	if err := requireWritableDir(req.Root); err != nil {
		return nil, err
	}
	item := SaveItem{
		Source: codec.CSVFileName,
		Run: func() SaveOutcome {
			var out SaveOutcome
			enc := codec.NewCSVEncoder()
			for _, a := range withShapes(req.Annotations) {
				width, height, err := dimensions(a, req.MetaData)
				if err != nil {
					out.Errors = append(out.Errors, entry(a.FileName(), err))
					continue
				}
				rows, errs := enc.Encode(a, width, height)
				out.Errors = append(out.Errors, entriesFor(a.FileName(), errs)...)
				if rows > 0 {
					out.Succeeded++
				}
			}
			if err := writeFile(filepath.Join(req.Root, codec.CSVFileName), enc.Bytes()); err != nil {
				out.Errors = append(out.Errors, entry(codec.CSVFileName, err))
				out.Succeeded = 0
			}
			return out
		},
	}
	return &SavePlan{Items: []SaveItem{item}}, nil
}
