package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunQueued    string = "QUEUED"
	RunRunning   string = "RUNNING"
	RunCompleted string = "COMPLETED"
	RunInvalid   string = "INVALID"
	RunFailed    string = "FAILED"
)

// AnnotationRun records one auto-annotate invocation. A run is INVALID when
// the annotation file was written but did not pass validation afterwards.
type AnnotationRun struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	Split  string    `gorm:"size:64;not null;index:idx_annotation_runs_split_time,priority:1"`
	Status string    `gorm:"size:20;not null"`

	AnnotationsLocation string
	NumImages           int `gorm:"default:0"`
	NumAnnotations      int `gorm:"default:0"`
	QualityScore        int `gorm:"default:0"`
	Error               string
	Report              datatypes.JSON

	CreationTime   time.Time `gorm:"index:idx_annotation_runs_split_time,priority:2"`
	CompletionTime sql.NullTime
}

func IsTerminal(status string) bool {
	return status == RunCompleted || status == RunInvalid || status == RunFailed
}
