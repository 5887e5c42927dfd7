package api

import (
	"encoding/json"

	"annotate-backend/internal/database"
	"annotate-backend/pkg/api"
)

func convertRun(r database.AnnotationRun) api.AnnotationRun {
	run := api.AnnotationRun{
		Id:              r.Id,
		Split:           r.Split,
		Status:          r.Status,
		AnnotationsFile: r.AnnotationsLocation,
		NumImages:       r.NumImages,
		NumAnnotations:  r.NumAnnotations,
		QualityScore:    r.QualityScore,
		Error:           r.Error,
		CreationTime:    r.CreationTime,
	}
	if len(r.Report) > 0 {
		run.Report = json.RawMessage(r.Report)
	}
	if r.CompletionTime.Valid {
		t := r.CompletionTime.Time
		run.CompletionTime = &t
	}
	return run
}

func convertRuns(rs []database.AnnotationRun) []api.AnnotationRun {
	runs := make([]api.AnnotationRun, 0, len(rs))
	for _, r := range rs {
		runs = append(runs, convertRun(r))
	}
	return runs
}
