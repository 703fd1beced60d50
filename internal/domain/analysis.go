package domain

import "time"

// UploadedAsset is an image staged on disk for the duration of one request
type UploadedAsset struct {
	ID               string
	Path             string
	OriginalFilename string
	Size             int64
	MimeType         string
	UploadedAt       time.Time
}

// AnalysisResult is the normalized inference output
type AnalysisResult struct {
	Success        bool
	ObjectCounts   map[string]int
	Keywords       []string
	TotalObjects   int
	Confidence     float64
	ModelVersion   string
	ProcessingTime float64 // seconds, as reported upstream
	Error          string
}

// AnalysisSummary is the analysis block of a report
type AnalysisSummary struct {
	ObjectCounts map[string]int `json:"object_counts"`
	Keywords     []string       `json:"keywords"`
	TotalObjects int            `json:"total_objects"`
	Confidence   float64        `json:"confidence"`
}

// AnalysisReport is the shaped response for a completed analysis
type AnalysisReport struct {
	Success          bool            `json:"success"`
	ImageID          string          `json:"image_id"`
	Filename         string          `json:"filename"`
	SizeBytes        int64           `json:"size_bytes"`
	UploadedAt       time.Time       `json:"uploaded_at"`
	Analysis         AnalysisSummary `json:"analysis"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	ModelVersion     string          `json:"model_version"`
}

// RetentionPolicy decides what happens to a staged file after a successful analysis
type RetentionPolicy string

const (
	RetainKeep    RetentionPolicy = "keep"
	RetainDelete  RetentionPolicy = "delete"
	RetainArchive RetentionPolicy = "archive"
)

// Valid reports whether p is a known policy
func (p RetentionPolicy) Valid() bool {
	switch p {
	case RetainKeep, RetainDelete, RetainArchive:
		return true
	}
	return false
}
