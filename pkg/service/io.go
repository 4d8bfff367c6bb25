package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/ioresult"
	"github.com/menta2k/image-labeler/pkg/strategy"
)

// ImportResult carries the consolidated annotations of an import or prediction.
type ImportResult struct {
	Data   *annotation.ImageAnnotationData
	Result ioresult.Result
}

// ImportService loads annotation files in parallel.
type ImportService struct {
	runner
}

// NewImportService creates an import service.
func NewImportService(opts Options) *ImportService {
	return &ImportService{runner: newRunner(opts)}
}

// Import loads the annotations under req.Root. A planning failure, such as
// a missing directory, is returned by Wait; per-file failures are error
// entries of the result.
func (s *ImportService) Import(ctx context.Context, format strategy.FormatType, req strategy.LoadRequest, onProgress ProgressFunc) *Task[ImportResult] {
	return startTask(ctx, onProgress, func(ctx context.Context, t *Task[ImportResult]) (ImportResult, error) {
		c := s.begin(ioresult.OpImport, 0)

		strat, err := strategy.ForFormat(format)
		if err != nil {
			s.end(c, err)
			return ImportResult{}, err
		}
		plan, err := strat.PlanLoad(req)
		if err != nil {
			s.end(c, err)
			return ImportResult{}, err
		}
		s.logger.Debug("import planned", zap.String("format", string(format)),
			zap.String("root", req.Root), zap.Int("items", len(plan.Items)))
		t.setTotal(len(plan.Items))

		outcomes := make([]strategy.LoadOutcome, len(plan.Items))
		err = s.forEach(ctx, len(plan.Items), func(_ context.Context, i int) {
			c.Start()
			defer t.advance()

			o := plan.Items[i].Run()
			outcomes[i] = o
			c.AddSuccess(o.Succeeded)
			c.AddEntries(o.Errors...)
		})
		res := s.end(c, err)
		if err != nil {
			return ImportResult{}, ErrCancelled
		}

		var annotations []*annotation.ImageAnnotation
		for _, o := range outcomes {
			annotations = append(annotations, o.Annotations...)
		}
		return ImportResult{Data: annotation.NewImageAnnotationData(annotations), Result: res}, nil
	})
}

// ExportService writes annotation files in parallel.
type ExportService struct {
	runner
}

// NewExportService creates an export service.
func NewExportService(opts Options) *ExportService {
	return &ExportService{runner: newRunner(opts)}
}

// Export writes req.Annotations to req.Root. A missing or read-only
// destination is returned by Wait before anything is written.
func (s *ExportService) Export(ctx context.Context, format strategy.FormatType, req strategy.SaveRequest, onProgress ProgressFunc) *Task[ioresult.Result] {
	return startTask(ctx, onProgress, func(ctx context.Context, t *Task[ioresult.Result]) (ioresult.Result, error) {
		c := s.begin(ioresult.OpExport, len(req.Annotations))

		strat, err := strategy.ForFormat(format)
		if err != nil {
			s.end(c, err)
			return ioresult.Result{}, err
		}
		plan, err := strat.PlanSave(req)
		if err != nil {
			s.end(c, err)
			return ioresult.Result{}, err
		}
		t.setTotal(len(plan.Items))

		err = s.forEach(ctx, len(plan.Items), func(_ context.Context, i int) {
			c.Start()
			defer t.advance()

			o := plan.Items[i].Run()
			c.AddSuccess(o.Succeeded)
			c.AddEntries(o.Errors...)
		})
		res := s.end(c, err)
		if err != nil {
			return ioresult.Result{}, ErrCancelled
		}
		return res, nil
	})
}
