// Package imagelabeler manages image annotations: bounding boxes and
// polygons drawn on a set of images, grouped by category.
//
// A Labeler owns one labeling session. It keeps the authoritative state in a
// model.Model and moves it in and out of the supported formats (PASCAL-VOC
// XML, YOLO, JSON and CSV) with concurrent import and export services. It can
// also ask a vision model served by ollama or llama.cpp to propose boxes.
//
// Basic usage:
//
//	l, err := imagelabeler.New(imagelabeler.Options{Config: config.Default()})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer l.Close()
//
//	if _, err := l.Open(ctx, []string{"images/a.jpg", "images/b.jpg"}, nil); err != nil {
//		log.Fatal(err)
//	}
//	if _, err := l.Import(ctx, strategy.FormatXML, "annotations/", nil); err != nil {
//		log.Fatal(err)
//	}
//	res, err := l.Export(ctx, strategy.FormatYOLO, "yolo/", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("wrote %d images with %d errors\n", res.SuccessCount, len(res.Errors))
//
// Every batch operation runs its items in parallel, collects per-item errors
// into an ioresult.Result and merges the consolidated data into the model once
// all workers have finished.
package imagelabeler

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/menta2k/image-labeler/internal/config"
	"github.com/menta2k/image-labeler/internal/logging"
	"github.com/menta2k/image-labeler/internal/metrics"
	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/client"
	"github.com/menta2k/image-labeler/pkg/detection"
	"github.com/menta2k/image-labeler/pkg/ioresult"
	"github.com/menta2k/image-labeler/pkg/llamacpp"
	"github.com/menta2k/image-labeler/pkg/model"
	"github.com/menta2k/image-labeler/pkg/ollama"
	"github.com/menta2k/image-labeler/pkg/processing"
	"github.com/menta2k/image-labeler/pkg/service"
	"github.com/menta2k/image-labeler/pkg/strategy"
	"github.com/menta2k/image-labeler/pkg/types"
)

// Version of the image labeler library
const Version = "1.0.0"

// Options configures a Labeler.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// Logger defaults to a logger built from Config.Log.
	Logger *zap.Logger
	// Registry receives IO metrics when Config.Metrics.Enabled is set.
	// It defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
	// Client overrides the prediction backend selected by Config.Prediction.
	Client client.PredictionClient
}

// Labeler provides a high-level interface over a labeling session
type Labeler struct {
	cfg       *config.Config
	logger    *zap.Logger
	processor *processing.Processor
	model     *model.Model

	metadata  *service.MetadataService
	importer  *service.ImportService
	exporter  *service.ExportService
	predictor *service.PredictionService
}

// New creates a Labeler from opts.
func New(opts Options) (*Labeler, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New("labeler", logging.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
		if err != nil {
			return nil, err
		}
	}

	var ioMetrics *metrics.IOMetrics
	if cfg.Metrics.Enabled {
		registry := opts.Registry
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		var err error
		ioMetrics, err = metrics.NewIOMetrics(registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	predictionClient := opts.Client
	if predictionClient == nil {
		var err error
		predictionClient, err = NewPredictionClient(cfg.Prediction)
		if err != nil {
			return nil, err
		}
	}

	processor := processing.NewProcessor(time.Duration(cfg.IO.CacheTTL) * time.Second)
	svcOpts := service.Options{Workers: cfg.IO.Workers, Logger: logger, Metrics: ioMetrics}
	detector := detection.NewDetector(predictionClient, detection.Options{
		Model:    cfg.Prediction.Model,
		MinScore: cfg.Prediction.MinScore,
	})
	prepare := types.PrepareOptions{MaxSize: cfg.Prediction.MaxSize, Quality: cfg.Prediction.Quality, Format: "jpeg"}

	return &Labeler{
		cfg:       cfg,
		logger:    logger,
		processor: processor,
		model:     model.New(processor),
		metadata:  service.NewMetadataService(processor, svcOpts),
		importer:  service.NewImportService(svcOpts),
		exporter:  service.NewExportService(svcOpts),
		predictor: service.NewPredictionService(detector, processor, prepare, svcOpts),
	}, nil
}

// NewPredictionClient creates the client of the configured backend.
func NewPredictionClient(cfg config.PredictionConfig) (client.PredictionClient, error) {
	switch cfg.Backend {
	case config.BackendOllama:
		return ollama.NewClient(cfg.URL)
	case config.BackendLlamaCpp:
		return llamacpp.NewClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown prediction backend %q", cfg.Backend)
	}
}

// Model returns the session state.
func (l *Labeler) Model() *model.Model {
	return l.model
}

// Config returns the configuration in use.
func (l *Labeler) Config() *config.Config {
	return l.cfg
}

// Open replaces the image list and reads the dimensions of every image.
// Unreadable images stay in the list; they are reported as error entries.
func (l *Labeler) Open(ctx context.Context, paths []string, onProgress service.ProgressFunc) (ioresult.Result, error) {
	l.model.SetImages(paths)
	res, err := l.metadata.Load(ctx, l.model.ImageFiles(), onProgress).Wait()
	if err != nil {
		return ioresult.Result{}, err
	}
	for _, md := range res.MetaData {
		l.model.PutMetaData(md)
	}
	return res.Result, nil
}

// Import loads annotations in format from root and merges them.
func (l *Labeler) Import(ctx context.Context, format strategy.FormatType, root string, onProgress service.ProgressFunc) (ioresult.Result, error) {
	req := strategy.LoadRequest{
		Root:          root,
		Importable:    l.model.FileNames(),
		Known:         l.model.CategoryMap(),
		CategoryNames: l.model.CategoryNames(),
		MetaData:      l.metaData,
		NewColor:      annotation.RandomColor,
	}
	res, err := l.importer.Import(ctx, format, req, onProgress).Wait()
	if err != nil {
		return ioresult.Result{}, err
	}
	merged := l.model.MergeImageAnnotationData(res.Data, ioresult.OpImport)
	l.logger.Debug("annotations merged", zap.String("format", string(format)), zap.Int("images", merged))
	return res.Result, nil
}

// Export writes every annotation in format to root. The model is marked
// saved when no item failed.
func (l *Labeler) Export(ctx context.Context, format strategy.FormatType, root string, onProgress service.ProgressFunc) (ioresult.Result, error) {
	req := strategy.SaveRequest{
		Root:        root,
		Annotations: l.model.Annotations(),
		Categories:  l.model.Categories(),
		MetaData:    l.metaData,
	}
	res, err := l.exporter.Export(ctx, format, req, onProgress).Wait()
	if err != nil {
		return ioresult.Result{}, err
	}
	if !res.HasErrors() {
		l.model.MarkSaved()
	}
	return res, nil
}

// Predict asks the prediction backend for boxes on paths, or on every
// image when paths is empty, and merges the proposals.
func (l *Labeler) Predict(ctx context.Context, paths []string, onProgress service.ProgressFunc) (ioresult.Result, error) {
	if len(paths) == 0 {
		paths = l.model.ImageFiles()
	}
	if len(paths) == 0 {
		return ioresult.Result{}, model.ErrNoImages
	}
	res, err := l.predictor.Predict(ctx, paths, l.model.CategoryMap(), onProgress).Wait()
	if err != nil {
		return ioresult.Result{}, err
	}
	l.model.MergeImageAnnotationData(res.Data, ioresult.OpPrediction)
	return res.Result, nil
}

// Models lists the models available on the prediction backend.
func (l *Labeler) Models(ctx context.Context) ([]string, ioresult.Result, error) {
	res, err := l.predictor.FetchModels(ctx).Wait()
	if err != nil {
		return nil, ioresult.Result{}, err
	}
	return res.Models, res.Result, nil
}

// Close flushes buffered log entries.
func (l *Labeler) Close() {
	// syncing a terminal fails on some platforms
	_ = l.logger.Sync()
}

func (l *Labeler) metaData(fileName string) (*annotation.ImageMetaData, error) {
	md, err := l.model.GetOrComputeMetaData(fileName)
	if err != nil {
		return nil, err
	}
	return &md, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
