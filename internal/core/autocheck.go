package core

import (
	"encoding/json"
	"log/slog"

	"annotate-backend/internal/coco"
)

// Autocheck validates a raw COCO document and audits it. Every outcome,
// including malformed input, is reported through the returned Report.
func Autocheck(validator *coco.Validator, raw []byte) *coco.Report {
	parsed, err := coco.Parse(raw)
	if err != nil {
		return coco.ErrorReport(err.Error())
	}

	if err := validator.Validate(parsed); err != nil {
		return coco.ErrorReport(err.Error())
	}

	var doc coco.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Error("schema valid document could not be decoded", "error", err)
		return coco.ErrorReport("Invalid COCO document: " + err.Error())
	}

	return coco.Audit(&doc)
}

func (s *Service) RunAutocheck(raw []byte) *coco.Report {
	return Autocheck(s.validator, raw)
}
