package service

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/image-labeler/internal/logging"
	"github.com/menta2k/image-labeler/internal/metrics"
	"github.com/menta2k/image-labeler/pkg/ioresult"
)

// Options configures a service.
type Options struct {
	// Workers bounds concurrent items. Zero means runtime.GOMAXPROCS(0).
	Workers int
	Logger  *zap.Logger
	Metrics *metrics.IOMetrics
}

type runner struct {
	workers int
	logger  *zap.Logger
	metrics *metrics.IOMetrics
}

func newRunner(opts Options) runner {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return runner{
		workers: workers,
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}
}

// forEach runs fn for every index on the worker pool. Once ctx is done no
// further index is dispatched. It returns ctx.Err() after all started calls
// have returned.
func (r runner) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (r runner) begin(op ioresult.OperationType, items int) *ioresult.Collector {
	r.metrics.OperationStarted(op.String())
	r.logger.Debug("operation started", zap.Stringer("operation", op), zap.Int("items", items))
	return ioresult.NewCollector(op)
}

// end finalizes the collector and records the operation. err is the
// top-level failure, if any.
func (r runner) end(c *ioresult.Collector, err error) ioresult.Result {
	c.Finish()
	res := c.Result()

	outcome := metrics.OutcomeCompleted
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrCancelled):
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeFailed
	}
	r.metrics.OperationFinished(res.Operation.String(), outcome, res.SuccessCount, len(res.Errors), res.Elapsed)

	fields := []zap.Field{
		zap.Stringer("operation", res.Operation),
		zap.Stringer("id", res.ID),
		zap.String("outcome", outcome),
		zap.Int("succeeded", res.SuccessCount),
		zap.Int("failed", len(res.Errors)),
		zap.Duration("elapsed", res.Elapsed),
	}
	if err != nil {
		r.logger.Warn("operation aborted", append(fields, zap.Error(err))...)
		return res
	}
	r.logger.Info("operation finished", fields...)
	for _, e := range res.Errors {
		r.logger.Debug("item failed", zap.Stringer("operation", res.Operation),
			zap.String("source", e.SourceName), zap.String("error", e.ErrorDescription))
	}
	return res
}
