package detector

import (
	"context"
	"errors"

	"annotate-backend/internal/coco"
)

const (
	StatusSuccess = "success"

	DefaultConfidence   = 0.25
	DefaultNmsThreshold = 0.7

	defaultSupercategory = "object"
)

var (
	ErrFolderNotFound = errors.New("images folder not found")
	ErrNoImagesFound  = errors.New("no images found")
	ErrModelNotFound  = errors.New("detection model not found")
	ErrImageNotFound  = errors.New("image not found")
	ErrDetectorFailed = errors.New("detector failed")
)

type DetectOptions struct {
	// Confidence is the minimum score for a box to be reported. Zero uses
	// DefaultConfidence.
	Confidence float32

	// Progress, if set, is called after each image with the number of images
	// processed so far. Calls are never concurrent.
	Progress func(done, total int)
}

func (o DetectOptions) confidence() float32 {
	if o.Confidence <= 0 {
		return DefaultConfidence
	}
	return o.Confidence
}

// FolderResult is the raw output of a detector run over a folder: one entry
// per image in discovery order plus the full category list of the model.
type FolderResult struct {
	Status     string           `json:"status"`
	Detections []coco.Detection `json:"detections"`
	Categories []coco.Category  `json:"categories"`
}

// Detector runs object detection over every image below a folder. Handles
// are created once at startup and shared between requests.
type Detector interface {
	DetectFolder(ctx context.Context, folder string, opts DetectOptions) (*FolderResult, error)

	Close() error
}

// CategoriesFromClasses numbers model classes from 1 in class index order.
func CategoriesFromClasses(classes []string) []coco.Category {
	categories := make([]coco.Category, len(classes))
	for i, name := range classes {
		categories[i] = coco.Category{
			Id:            coco.ID(i + 1),
			Name:          name,
			Supercategory: defaultSupercategory,
		}
	}
	return categories
}
