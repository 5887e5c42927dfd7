package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"annotate-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run bookkeeping never fails the request it belongs to.

func (s *Service) startRun(ctx context.Context, split string) uuid.UUID {
	if s.db == nil {
		return uuid.Nil
	}

	run, err := database.CreateRun(ctx, s.db, split)
	if err != nil {
		return uuid.Nil
	}

	if err := database.UpdateRunStatus(ctx, s.db, run.Id, database.RunRunning); err != nil {
		slog.Warn("unable to mark run as running", "run_id", run.Id, "error", err)
	}
	return run.Id
}

func (s *Service) failRun(ctx context.Context, runId uuid.UUID, cause error) {
	if s.db == nil || runId == uuid.Nil {
		return
	}

	_ = database.FinishRun(context.WithoutCancel(ctx), s.db, runId, database.RunResult{
		Status: database.RunFailed,
		Error:  cause.Error(),
	})
}

func (s *Service) finishRun(ctx context.Context, runId uuid.UUID, result *AutoAnnotateResult) {
	if s.db == nil || runId == uuid.Nil {
		return
	}

	status := database.RunCompleted
	if !result.Report.OK() {
		status = database.RunInvalid
	}

	report, err := json.Marshal(result.Report)
	if err != nil {
		slog.Warn("unable to serialize report for run", "run_id", runId, "error", err)
		report = nil
	}

	summary := result.Report.Summary
	_ = database.FinishRun(context.WithoutCancel(ctx), s.db, runId, database.RunResult{
		Status:              status,
		AnnotationsLocation: result.AnnotationsFile,
		NumImages:           summary.NumImages,
		NumAnnotations:      summary.NumAnnotations,
		QualityScore:        summary.EstimatedQualityScore,
		Error:               result.Report.Message,
		Report:              report,
	})
}

func (s *Service) ListRuns(ctx context.Context, split string, limit int) ([]database.AnnotationRun, error) {
	if s.db == nil {
		return []database.AnnotationRun{}, nil
	}

	if split != "" {
		if _, err := s.ResolveSplit(split); err != nil {
			return nil, err
		}
	}

	runs, err := database.ListRuns(ctx, s.db, split, limit)
	if err != nil {
		slog.Error("error listing runs", "split", split, "error", err)
		return nil, fmt.Errorf("%w: unable to list runs", ErrInternal)
	}
	return runs, nil
}

func (s *Service) GetRun(ctx context.Context, runId uuid.UUID) (*database.AnnotationRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runId)
	}

	run, err := database.GetRun(ctx, s.db, runId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, runId)
		}
		slog.Error("error loading run", "run_id", runId, "error", err)
		return nil, fmt.Errorf("%w: unable to load run", ErrInternal)
	}
	return run, nil
}
