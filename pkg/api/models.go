package api

import (
	"encoding/json"
	"time"

	"annotate-backend/internal/coco"

	"github.com/google/uuid"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusResponse is the envelope of every non-report response. Errors are
// reported as {"status": "error", "message": ...}.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	StatusResponse
	Uptime string `json:"uptime"`
}

type AutoAnnotateRequest struct {
	Split string `json:"split"`
}

type AutoAnnotateResponse struct {
	StatusResponse
	RunId            *uuid.UUID   `json:"run_id,omitempty"`
	Split            string       `json:"split"`
	AnnotationsFile  string       `json:"annotations_file"`
	ValidationReport *coco.Report `json:"validation_report"`
}

type ListRunsParams struct {
	Split string `schema:"split"`
	Limit int    `schema:"limit"`
}

type AnnotationRun struct {
	Id              uuid.UUID       `json:"id"`
	Split           string          `json:"split"`
	Status          string          `json:"status"`
	AnnotationsFile string          `json:"annotations_file,omitempty"`
	NumImages       int             `json:"num_images"`
	NumAnnotations  int             `json:"num_annotations"`
	QualityScore    int             `json:"quality_score"`
	Error           string          `json:"error,omitempty"`
	Report          json.RawMessage `json:"report,omitempty"`
	CreationTime    time.Time       `json:"creation_time"`
	CompletionTime  *time.Time      `json:"completion_time,omitempty"`
}
