package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

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

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&AnnotationRun{})
}

func Rollback(db *gorm.DB) error {
	return db.Migrator().DropTable(&AnnotationRun{})
}
