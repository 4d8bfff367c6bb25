package client

import (
	"context"

	"github.com/menta2k/image-labeler/pkg/types"
)

// PredictionClient talks to a server hosting object detection models.
type PredictionClient interface {
	Predict(ctx context.Context, model, prompt string, image []byte) ([]types.Prediction, error)
	ListModels(ctx context.Context) ([]string, error)
}
