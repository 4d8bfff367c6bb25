package detection

import (
	"context"
	"strings"

	"github.com/menta2k/image-labeler/pkg/annotation"
	"github.com/menta2k/image-labeler/pkg/client"
	"github.com/menta2k/image-labeler/pkg/types"
)

// DefaultPrompt asks the model for every object in the image
const DefaultPrompt = `You are an object detector.

Return JSON only:
{
  "objects": [
    {"label": "string", "score": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- List every distinct object, one entry per instance.
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the object.
- score is your confidence in [0,1].
- Labels: short singular nouns, lowercase.
- If no object is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// KnownLabelsPrompt extends DefaultPrompt with the categories already in use
func KnownLabelsPrompt(labels []string) string {
	if len(labels) == 0 {
		return DefaultPrompt
	}
	return DefaultPrompt + "\n- Prefer these labels when they fit: " + strings.Join(labels, ", ") + "."
}

// Options configures a Detector
type Options struct {
	Model    string
	Prompt   string
	MinScore float64
}

// Detector turns raw model predictions into clean, normalized detections
type Detector struct {
	client client.PredictionClient
	opts   Options
}

// NewDetector creates a new detector with a prediction client
func NewDetector(c client.PredictionClient, opts Options) *Detector {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Detector{client: c, opts: opts}
}

// Model returns the model name predictions are requested from
func (d *Detector) Model() string {
	return d.opts.Model
}

// Detect asks the model for objects in image. width and height are the pixel
// size of the encoded image and are used when the model answers in pixels.
func (d *Detector) Detect(ctx context.Context, image []byte, width, height int, prompt string) ([]types.Prediction, error) {
	if prompt == "" {
		prompt = d.opts.Prompt
	}
	preds, err := d.client.Predict(ctx, d.opts.Model, prompt, image)
	if err != nil {
		return nil, err
	}
	return Clean(preds, width, height, d.opts.MinScore), nil
}

// ListModels lists the models the backend offers
func (d *Detector) ListModels(ctx context.Context) ([]string, error) {
	return d.client.ListModels(ctx)
}

// Clean normalizes boxes and labels and drops predictions below minScore or
// without area.
func Clean(preds []types.Prediction, width, height int, minScore float64) []types.Prediction {
	out := make([]types.Prediction, 0, len(preds))
	for _, p := range preds {
		p.Label = normalizeLabel(p.Label)
		if p.Label == "" || p.Score < minScore {
			continue
		}
		p.Box = normalizeBox(p.Box, width, height)
		if p.Box.W <= 0 || p.Box.H <= 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ToShapes converts predictions to box shapes, resolving labels to categories
func ToShapes(preds []types.Prediction, resolver *annotation.CategoryResolver) []*annotation.Shape {
	shapes := make([]*annotation.Shape, 0, len(preds))
	for _, p := range preds {
		shapes = append(shapes, annotation.NewBox(resolver.Resolve(p.Label),
			p.Box.X, p.Box.Y, p.Box.X+p.Box.W, p.Box.Y+p.Box.H))
	}
	return shapes
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds and the box
// does not extend past the image
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	// Convert from pixel coordinates if needed
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		b = types.Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}

	x0, y0 := clamp(b.X, 0, 1), clamp(b.Y, 0, 1)
	x1, y1 := clamp(b.X+b.W, 0, 1), clamp(b.Y+b.H, 0, 1)
	return types.Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// normalizeLabel trims a label and collapses inner whitespace
func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}
