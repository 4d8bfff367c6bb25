package service

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/detection"
	"github.com/menta2k/image-labeler/pkg/ioresult"
	"github.com/menta2k/image-labeler/pkg/types"
)

// ImagePreparer encodes an image file for a prediction model.
type ImagePreparer interface {
	PrepareImageForModel(path string, opts types.PrepareOptions) ([]byte, int, int, error)
}

// ModelsResult lists the models offered by the prediction backend.
type ModelsResult struct {
	Models []string
	Result ioresult.Result
}

// PredictionService requests object predictions for images in parallel.
type PredictionService struct {
	runner
	detector *detection.Detector
	images   ImagePreparer
	prepare  types.PrepareOptions
}

// NewPredictionService creates a prediction service.
func NewPredictionService(detector *detection.Detector, images ImagePreparer, prepare types.PrepareOptions, opts Options) *PredictionService {
	return &PredictionService{
		runner:   newRunner(opts),
		detector: detector,
		images:   images,
		prepare:  prepare,
	}
}

// Predict requests predictions for every path. Labels matching a known
// category reuse it; other labels create new categories. Images with no
// predicted object count as successes but carry no annotation.
func (s *PredictionService) Predict(ctx context.Context, paths []string, known map[string]*annotation.ObjectCategory, onProgress ProgressFunc) *Task[ImportResult] {
	labels := lo.Keys(known)
	slices.Sort(labels)
	prompt := detection.KnownLabelsPrompt(labels)

	return startTask(ctx, onProgress, func(ctx context.Context, t *Task[ImportResult]) (ImportResult, error) {
		c := s.begin(ioresult.OpPrediction, len(paths))
		t.setTotal(len(paths))

		out := make([]*annotation.ImageAnnotation, len(paths))
		err := s.forEach(ctx, len(paths), func(ctx context.Context, i int) {
			c.Start()
			defer t.advance()

			name := filepath.Base(paths[i])
			data, width, height, err := s.images.PrepareImageForModel(paths[i], s.prepare)
			if err != nil {
				c.AddError(name, err)
				return
			}
			preds, err := s.detector.Detect(ctx, data, width, height, prompt)
			if err != nil {
				c.AddError(name, err)
				return
			}
			s.logger.Debug("image predicted", zap.String("image", name), zap.Int("objects", len(preds)))

			resolver := annotation.NewCategoryResolver(known, nil)
			out[i] = annotation.NewImageAnnotation(annotation.NewPlaceholderMetaData(name),
				detection.ToShapes(preds, resolver)...)
			c.AddSuccess(1)
		})
		res := s.end(c, err)
		if err != nil {
			return ImportResult{}, ErrCancelled
		}
		return ImportResult{Data: annotation.NewImageAnnotationData(out), Result: res}, nil
	})
}

// FetchModels lists the models of the prediction backend.
func (s *PredictionService) FetchModels(ctx context.Context) *Task[ModelsResult] {
	return startTask(ctx, nil, func(ctx context.Context, t *Task[ModelsResult]) (ModelsResult, error) {
		c := s.begin(ioresult.OpModelFetch, 1)
		t.setTotal(1)
		c.Start()

		models, err := s.detector.ListModels(ctx)
		if err != nil {
			c.AddError(s.detector.Model(), err)
		} else {
			c.AddSuccess(1)
		}
		t.advance()

		if ctx.Err() != nil {
			s.end(c, ctx.Err())
			return ModelsResult{}, ErrCancelled
		}
		return ModelsResult{Models: models, Result: s.end(c, nil)}, nil
	})
}
