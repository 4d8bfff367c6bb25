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

// fileCodec adapts a codec that stores one image per file.
type fileCodec interface {
	Extension() string
	Encode(a *annotation.ImageAnnotation, width, height float64) ([]byte, error)
	Decode(data []byte, ctx codec.DecodeContext) (*annotation.ImageAnnotation, error)
}

type xmlFileCodec struct{}

func (xmlFileCodec) Extension() string { return codec.XMLExtension }

func (xmlFileCodec) Encode(a *annotation.ImageAnnotation, width, height float64) ([]byte, error) {
	return codec.EncodeXML(a, width, height)
}

func (xmlFileCodec) Decode(data []byte, ctx codec.DecodeContext) (*annotation.ImageAnnotation, error) {
	return codec.DecodeXML(data, ctx)
}

type jsonFileCodec struct{}

func (jsonFileCodec) Extension() string { return codec.JSONExtension }

func (jsonFileCodec) Encode(a *annotation.ImageAnnotation, width, height float64) ([]byte, error) {
	return codec.EncodeJSON(a, width, height)
}

func (jsonFileCodec) Decode(data []byte, ctx codec.DecodeContext) (*annotation.ImageAnnotation, error) {
	return codec.DecodeJSON(data, ctx)
}

type perFileStrategy struct {
	format FormatType
	codec  fileCodec
}

func (s perFileStrategy) Format() FormatType {
	return s.format
}

func (s perFileStrategy) PlanLoad(req LoadRequest) (*LoadPlan, error) {
	files, err := listAnnotationFiles(req.Root, s.codec.Extension())
	if err != nil {
		return nil, err
	}
	byStem := importableByStem(req.Importable)
	importable := lo.Keyify(req.Importable)

	plan := &LoadPlan{}
	for _, path := range files {
		imageName, ok := byStem[utils.FileStem(path)]
		if !ok {
			continue
		}
		plan.Items = append(plan.Items, LoadItem{
			Source: filepath.Base(path),
			Run: func() LoadOutcome {
				return s.load(path, imageName, importable, req)
			},
		})
	}
	return plan, nil
}

func (s perFileStrategy) load(path, imageName string, importable map[string]struct{}, req LoadRequest) LoadOutcome {
	source := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return failedLoad(source, &TransportError{Op: "read", Path: path, Err: err})
	}

	decode := func(md *annotation.ImageMetaData) (*annotation.ImageAnnotation, error) {
		return s.codec.Decode(data, codec.DecodeContext{
			Source:   source,
			Resolver: annotation.NewCategoryResolver(req.Known, req.NewColor),
			MetaData: md,
		})
	}
	// Image dimensions are only read for files that do not store a size.
	a, err := decode(annotation.NewPlaceholderMetaData(imageName))
	if errors.Is(err, codec.ErrMissingImageSize) && req.MetaData != nil {
		md, mdErr := req.MetaData(imageName)
		if mdErr != nil {
			return failedLoad(source, fmt.Errorf("%w: %w", err, mdErr))
		}
		a, err = decode(md)
	}
	if err != nil {
		return failedLoad(source, err)
	}
	if _, ok := importable[a.FileName()]; !ok {
		return failedLoad(source, fmt.Errorf("image %s does not belong to the loaded images", a.FileName()))
	}
	return LoadOutcome{Annotations: []*annotation.ImageAnnotation{a}, Succeeded: 1}
}

func (s perFileStrategy) PlanSave(req SaveRequest) (*SavePlan, error) {
	if err := requireWritableDir(req.Root); err != nil {
		return nil, err
	}
	plan := &SavePlan{}
	for _, a := range withShapes(req.Annotations) {
		plan.Items = append(plan.Items, SaveItem{
			Source: a.FileName(),
			Run: func() SaveOutcome {
				return s.save(a, req)
			},
		})
	}
	return plan, nil
}

func (s perFileStrategy) save(a *annotation.ImageAnnotation, req SaveRequest) SaveOutcome {
	width, height, err := dimensions(a, req.MetaData)
	if err != nil {
		return failedSave(a.FileName(), err)
	}
	data, err := s.codec.Encode(a, width, height)
	if err != nil {
		return failedSave(a.FileName(), err)
	}
	path := filepath.Join(req.Root, utils.ReplaceExtension(a.FileName(), s.codec.Extension()))
	if err := writeFile(path, data); err != nil {
		return failedSave(a.FileName(), err)
	}
	return SaveOutcome{Succeeded: 1}
}
