package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Prediction is one object found in an image by a prediction model
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Box   Box     `json:"box"`
}

// PredictionResponse is the JSON document prediction models are asked to return
type PredictionResponse struct {
	Objects []Prediction `json:"objects"`
}

// PrepareOptions controls how images are encoded before they are sent to a model
type PrepareOptions struct {
	// MaxSize bounds the longest side in pixels; zero keeps the original size
	MaxSize int
	// Quality is the JPEG quality in [1,100]
	Quality int
	// Format is "jpg" or "png"
	Format string
}
