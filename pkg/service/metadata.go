package service

import (
	"context"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/ioresult"
	"github.com/menta2k/image-labeler/pkg/processing"
)

// MetadataResult holds the metadata of every readable image, in input order.
type MetadataResult struct {
	MetaData []*annotation.ImageMetaData
	Result   ioresult.Result
}

// MetadataService reads image dimensions in parallel.
type MetadataService struct {
	runner
	reader processing.DimensionReader
}

// NewMetadataService creates a service reading dimensions with reader.
func NewMetadataService(reader processing.DimensionReader, opts Options) *MetadataService {
	return &MetadataService{runner: newRunner(opts), reader: reader}
}

// Load reads the metadata of paths. Unreadable images become error entries.
func (s *MetadataService) Load(ctx context.Context, paths []string, onProgress ProgressFunc) *Task[MetadataResult] {
	return startTask(ctx, onProgress, func(ctx context.Context, t *Task[MetadataResult]) (MetadataResult, error) {
		c := s.begin(ioresult.OpMetadataLoad, len(paths))
		t.setTotal(len(paths))

		out := make([]*annotation.ImageMetaData, len(paths))
		err := s.forEach(ctx, len(paths), func(_ context.Context, i int) {
			c.Start()
			defer t.advance()

			md, err := s.reader.ReadDimensions(paths[i])
			if err != nil {
				c.AddError(filepath.Base(paths[i]), err)
				return
			}
			out[i] = md
			c.AddSuccess(1)
		})
		res := s.end(c, err)
		if err != nil {
			return MetadataResult{}, ErrCancelled
		}
		return MetadataResult{MetaData: lo.Compact(out), Result: res}, nil
	})
}
