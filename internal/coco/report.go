package coco

import "encoding/json"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Summary struct {
	NumImages                int `json:"num_images"`
	NumAnnotations           int `json:"num_annotations"`
	NumCategories            int `json:"num_categories"`
	ImagesWithAnnotations    int `json:"images_with_annotations"`
	ImagesWithoutAnnotations int `json:"images_without_annotations"`
	EstimatedQualityScore    int `json:"estimated_quality_score"`
}

type LabelCount struct {
	CategoryId string `json:"category_id"`
	Count      int    `json:"count"`
}

// Report is the result of an autocheck. A failed check only carries Status
// and Message.
type Report struct {
	Status            string                `json:"status"`
	Message           string                `json:"message,omitempty"`
	Summary           Summary               `json:"summary"`
	LabelDistribution map[string]LabelCount `json:"label_distribution"`
	Warnings          []string              `json:"warnings"`
	Notes             []string              `json:"notes"`
}

func ErrorReport(message string) *Report {
	return &Report{Status: StatusError, Message: message}
}

func (r *Report) OK() bool {
	return r.Status == StatusSuccess
}

func (r Report) MarshalJSON() ([]byte, error) {
	if r.Status != StatusSuccess {
		return json.Marshal(struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}{Status: r.Status, Message: r.Message})
	}

	type plain Report
	return json.Marshal(plain(r))
}
