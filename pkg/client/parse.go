package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/image-labeler/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ErrNoJSON is returned when a model answer contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in model response")

// ParsePredictions extracts the predictions from a raw model answer. Models
// tend to wrap JSON in code fences or add comments; both are tolerated.
// A bare array of objects is accepted as well.
func ParsePredictions(raw string) ([]types.Prediction, error) {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return nil, ErrNoJSON
	}

	if strings.HasPrefix(raw, "[") {
		var preds []types.Prediction
		if err := json.Unmarshal([]byte(raw), &preds); err != nil {
			return nil, fmt.Errorf("failed to parse predictions: %w", err)
		}
		return preds, nil
	}

	var resp types.PredictionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse predictions: %w", err)
	}
	return resp.Objects, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost object or array
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return ""
	}
	closing := "}"
	if raw[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(raw, closing)
	if end <= start {
		return ""
	}
	return strings.TrimSpace(raw[start : end+1])
}
