package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"annotate-backend/internal/coco"
	"annotate-backend/internal/core/utils"
	"annotate-backend/internal/detector"
	"annotate-backend/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ImagesDir = "images"

	DefaultBucket = "annotations"
)

type ServiceConfig struct {
	// DatasetRoot holds one folder of images per split below images/.
	DatasetRoot   string
	AllowedSplits []string
	DefaultSplit  string
	Bucket        string
	Confidence    float32
}

// Service composes validation, auditing, detection and assembly. All
// collaborators are injected at construction and shared between requests.
type Service struct {
	validator *coco.Validator
	detector  detector.Detector
	storage   storage.Provider
	db        *gorm.DB
	cfg       ServiceConfig

	splitLocks *utils.KeyedMutex
}

// NewService builds the orchestration layer. db may be nil, in which case
// auto-annotate runs are not recorded.
func NewService(validator *coco.Validator, det detector.Detector, store storage.Provider, db *gorm.DB, cfg ServiceConfig) *Service {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Service{
		validator:  validator,
		detector:   det,
		storage:    store,
		db:         db,
		cfg:        cfg,
		splitLocks: utils.NewKeyedMutex(max(1, len(cfg.AllowedSplits))),
	}
}

func (s *Service) ImagesRoot() string {
	return filepath.Join(s.cfg.DatasetRoot, ImagesDir)
}

func AnnotationsKey(split string) string {
	return fmt.Sprintf("auto_annotations_%s.json", split)
}

// ResolveSplit substitutes the default split for an empty name and rejects
// names outside the allowed set.
func (s *Service) ResolveSplit(split string) (string, error) {
	if split == "" {
		split = s.cfg.DefaultSplit
	}
	if !slices.Contains(s.cfg.AllowedSplits, split) {
		return "", fmt.Errorf("%w: split must be one of %v, got %q", ErrInvalidInput, s.cfg.AllowedSplits, split)
	}
	return split, nil
}

type AutoAnnotateOptions struct {
	Progress func(done, total int)
}

type AutoAnnotateResult struct {
	RunId           uuid.UUID
	Split           string
	AnnotationsFile string
	Report          *coco.Report
}

// RunAutoAnnotate detects objects in every image of a split, persists the
// assembled COCO document and validates it. The file stays in place even if
// the validation afterwards fails; the returned report says so.
func (s *Service) RunAutoAnnotate(ctx context.Context, split string, opts AutoAnnotateOptions) (*AutoAnnotateResult, error) {
	split, err := s.ResolveSplit(split)
	if err != nil {
		return nil, err
	}

	folder := filepath.Join(s.ImagesRoot(), split)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("error accessing images folder", "split", split, "folder", folder, "error", err)
			return nil, fmt.Errorf("%w: unable to access images folder for split %s", ErrInternal, split)
		}
		return nil, fmt.Errorf("%w: images folder for split %s not found", ErrInvalidInput, split)
	}

	unlock, err := s.splitLocks.Lock(split)
	if err != nil {
		slog.Error("error acquiring split lock", "split", split, "error", err)
		return nil, fmt.Errorf("%w: unable to start auto-annotation", ErrInternal)
	}
	defer unlock()

	runId := s.startRun(ctx, split)

	result, err := s.autoAnnotate(ctx, split, folder, opts)
	if err != nil {
		s.failRun(ctx, runId, err)
		return nil, err
	}
	result.RunId = runId

	s.finishRun(ctx, runId, result)

	return result, nil
}

func (s *Service) autoAnnotate(ctx context.Context, split, folder string, opts AutoAnnotateOptions) (*AutoAnnotateResult, error) {
	slog.Info("starting auto-annotation", "split", split, "folder", folder)

	detected, err := s.detector.DetectFolder(ctx, folder, detector.DetectOptions{
		Confidence: s.cfg.Confidence,
		Progress:   opts.Progress,
	})
	if err != nil {
		return nil, detectionError(split, err)
	}
	if detected.Status != detector.StatusSuccess {
		slog.Error("detector reported failure", "split", split, "status", detected.Status)
		return nil, fmt.Errorf("%w: detector reported status %q", ErrDetection, detected.Status)
	}

	doc := coco.Assemble(detected.Detections, detected.Categories, s.ImagesRoot())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		slog.Error("error serializing annotations", "split", split, "error", err)
		return nil, fmt.Errorf("%w: unable to serialize annotations", ErrInternal)
	}

	key := AnnotationsKey(split)
	if err := s.storage.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data)); err != nil {
		slog.Error("error saving annotations", "split", split, "bucket", s.cfg.Bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: unable to save annotations", ErrInternal)
	}

	location := s.storage.Location(s.cfg.Bucket, key)
	slog.Info("saved annotations", "split", split, "location", location, "images", len(doc.Images), "annotations", len(doc.Annotations))

	report := s.RunAutocheck(data)
	if !report.OK() {
		slog.Warn("generated annotations failed validation", "split", split, "message", report.Message)
	}

	return &AutoAnnotateResult{
		Split:           split,
		AnnotationsFile: location,
		Report:          report,
	}, nil
}

func detectionError(split string, err error) error {
	switch {
	case errors.Is(err, detector.ErrFolderNotFound):
		return fmt.Errorf("%w: images folder for split %s not found", ErrInvalidInput, split)
	case errors.Is(err, detector.ErrNoImagesFound):
		return fmt.Errorf("%w: no images found for split %s", ErrInvalidInput, split)
	case errors.Is(err, detector.ErrImageNotFound), errors.Is(err, detector.ErrModelNotFound):
		slog.Error("detector resource missing", "split", split, "error", err)
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("auto-annotation interrupted", "split", split, "error", err)
		return fmt.Errorf("%w: %w", ErrDetection, err)
	default:
		slog.Error("object detection failed", "split", split, "error", err)
		return ErrDetection
	}
}

// GetAnnotations returns the last annotation file written for a split.
func (s *Service) GetAnnotations(ctx context.Context, split string) ([]byte, error) {
	split, err := s.ResolveSplit(split)
	if err != nil {
		return nil, err
	}

	data, err := s.storage.GetObject(ctx, s.cfg.Bucket, AnnotationsKey(split))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: no annotations generated for split %s", ErrNotFound, split)
		}
		slog.Error("error loading annotations", "split", split, "error", err)
		return nil, fmt.Errorf("%w: unable to load annotations", ErrInternal)
	}
	return data, nil
}
