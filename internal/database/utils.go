package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultRunListLimit = 20

func CreateRun(ctx context.Context, db *gorm.DB, split string) (*AnnotationRun, error) {
	run := &AnnotationRun{
		Id:           uuid.New(),
		Split:        split,
		Status:       RunQueued,
		CreationTime: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		slog.Error("error creating annotation run", "split", split, "error", err)
		return nil, fmt.Errorf("error creating annotation run: %w", err)
	}
	return run, nil
}

func UpdateRunStatus(ctx context.Context, db *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if IsTerminal(status) {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := db.WithContext(ctx).Model(&AnnotationRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating annotation run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

type RunResult struct {
	Status              string
	AnnotationsLocation string
	NumImages           int
	NumAnnotations      int
	QualityScore        int
	Error               string
	Report              []byte
}

// FinishRun moves a run into a terminal state and stores its outcome.
func FinishRun(ctx context.Context, db *gorm.DB, runId uuid.UUID, result RunResult) error {
	if !IsTerminal(result.Status) {
		return fmt.Errorf("invalid terminal run status %q", result.Status)
	}

	updates := map[string]any{
		"status":               result.Status,
		"annotations_location": result.AnnotationsLocation,
		"num_images":           result.NumImages,
		"num_annotations":      result.NumAnnotations,
		"quality_score":        result.QualityScore,
		"error":                result.Error,
		"completion_time":      sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
	if result.Report != nil {
		updates["report"] = datatypes.JSON(result.Report)
	}

	if err := db.WithContext(ctx).Model(&AnnotationRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error finishing annotation run", "run_id", runId, "status", result.Status, "error", err)
		return err
	}
	return nil
}

func GetRun(ctx context.Context, db *gorm.DB, runId uuid.UUID) (*AnnotationRun, error) {
	var run AnnotationRun
	if err := db.WithContext(ctx).First(&run, "id = ?", runId).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first, optionally restricted to one split.
func ListRuns(ctx context.Context, db *gorm.DB, split string, limit int) ([]AnnotationRun, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	query := db.WithContext(ctx).Order("creation_time DESC").Limit(limit)
	if split != "" {
		query = query.Where("split = ?", split)
	}

	var runs []AnnotationRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing annotation runs: %w", err)
	}
	return runs, nil
}
