package strategy

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/menta2k/image-labeler/internal/utils"
	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/codec"
)

type yoloStrategy struct{}

func (yoloStrategy) Format() FormatType {
	return FormatYOLO
}

// PlanLoad reads the category side file while planning. Without one, the
// caller supplied category order is used.
func (s yoloStrategy) PlanLoad(req LoadRequest) (*LoadPlan, error) {
	files, err := listAnnotationFiles(req.Root, codec.YOLOExtension)
	if err != nil {
		return nil, err
	}
	names, err := yoloCategoryNames(req)
	if err != nil {
		return nil, err
	}

	byStem := importableByStem(req.Importable)
	plan := &LoadPlan{}
	for _, path := range files {
		imageName, ok := byStem[utils.FileStem(path)]
		if !ok {
			continue
		}
		plan.Items = append(plan.Items, LoadItem{
			Source: filepath.Base(path),
			Run: func() LoadOutcome {
				return s.load(path, imageName, names, req)
			},
		})
	}
	return plan, nil
}

func yoloCategoryNames(req LoadRequest) ([]string, error) {
	path := filepath.Join(req.Root, codec.YOLOCategoryFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		names, err := codec.DecodeYOLOCategories(data, codec.YOLOCategoryFile)
		if err != nil {
			return nil, &FatalSetupError{Path: path, Err: err}
		}
		return names, nil
	case errors.Is(err, os.ErrNotExist) && len(req.CategoryNames) > 0:
		return req.CategoryNames, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, &FatalSetupError{Path: path, Err: errors.New("category file is missing")}
	default:
		return nil, &FatalSetupError{Path: path, Err: err}
	}
}

func (yoloStrategy) load(path, imageName string, names []string, req LoadRequest) LoadOutcome {
	source := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return failedLoad(source, &TransportError{Op: "read", Path: path, Err: err})
	}
	a, err := codec.DecodeYOLO(data, names, codec.DecodeContext{
		Source:   source,
		Resolver: annotation.NewCategoryResolver(req.Known, req.NewColor),
		MetaData: annotation.NewPlaceholderMetaData(imageName),
	})
	if err != nil {
		return failedLoad(source, err)
	}
	return LoadOutcome{Annotations: []*annotation.ImageAnnotation{a}, Succeeded: 1}
}

// PlanSave writes the category side file as its first item. That item never
// counts as a success.
func (s yoloStrategy) PlanSave(req SaveRequest) (*SavePlan, error) {
	if err := requireWritableDir(req.Root); err != nil {
		return nil, err
	}
	names := lo.Map(req.Categories, func(c *annotation.ObjectCategory, _ int) string { return c.Name })
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	plan := &SavePlan{}
	plan.Items = append(plan.Items, SaveItem{
		Source: codec.YOLOCategoryFile,
		Run: func() SaveOutcome {
			path := filepath.Join(req.Root, codec.YOLOCategoryFile)
			if err := writeFile(path, codec.EncodeYOLOCategories(names)); err != nil {
				return failedSave(codec.YOLOCategoryFile, err)
			}
			return SaveOutcome{}
		},
	})
	for _, a := range withShapes(req.Annotations) {
		plan.Items = append(plan.Items, SaveItem{
			Source: a.FileName(),
			Run: func() SaveOutcome {
				return s.save(a, index, req.Root)
			},
		})
	}
	return plan, nil
}

func (yoloStrategy) save(a *annotation.ImageAnnotation, index map[string]int, root string) SaveOutcome {
	data, errs := codec.EncodeYOLO(a, index)
	out := SaveOutcome{Errors: entriesFor(a.FileName(), errs)}
	if len(data) == 0 {
		return out
	}
	path := filepath.Join(root, utils.ReplaceExtension(a.FileName(), codec.YOLOExtension))
	if err := writeFile(path, data); err != nil {
		out.Errors = append(out.Errors, entry(a.FileName(), err))
		return out
	}
	out.Succeeded = 1
	return out
}
