package inference

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
)

// wireResponse is the inference service payload. Every field is optional.
type wireResponse struct {
	Success        *bool              `json:"success"`
	ObjectCounts   map[string]flexInt `json:"object_counts"`
	Keywords       []string           `json:"keywords"`
	TotalObjects   flexInt            `json:"total_objects"`
	Confidence     flexFloat          `json:"confidence"`
	ProcessingTime flexFloat          `json:"processing_time"`
	ModelVersion   string             `json:"model_version"`
	Error          string             `json:"error"`
}

func (w wireResponse) toResult() *domain.AnalysisResult {
	counts := make(map[string]int, len(w.ObjectCounts))
	for label, n := range w.ObjectCounts {
		counts[label] = int(n)
	}
	keywords := w.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return &domain.AnalysisResult{
		Success:        true,
		ObjectCounts:   counts,
		Keywords:       keywords,
		TotalObjects:   int(w.TotalObjects),
		Confidence:     float64(w.Confidence),
		ModelVersion:   w.ModelVersion,
		ProcessingTime: float64(w.ProcessingTime),
	}
}

// flexInt accepts integers written as JSON floats (3.0) and null
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("expected number: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("number out of range")
	}
	*n = flexInt(math.Round(f))
	return nil
}

// flexFloat accepts numbers and null
type flexFloat float64

func (n *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("expected number: %w", err)
	}
	*n = flexFloat(f)
	return nil
}
