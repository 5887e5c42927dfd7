package core_test

import (
	"annotate-backend/internal/coco"
	"annotate-backend/internal/core"
	"annotate-backend/internal/database"
	"annotate-backend/internal/detector"
	"annotate-backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDetector struct {
	calls      int
	folder     string
	confidence float32
	result     func(folder string) (*detector.FolderResult, error)
}

func (d *fakeDetector) DetectFolder(ctx context.Context, folder string, opts detector.DetectOptions) (*detector.FolderResult, error) {
	d.calls++
	d.folder = folder
	d.confidence = opts.Confidence
	res, err := d.result(folder)
	if err == nil && opts.Progress != nil {
		opts.Progress(len(res.Detections), len(res.Detections))
	}
	return res, err
}

func (d *fakeDetector) Close() error {
	return nil
}

var personCategories = []coco.Category{{Id: 1, Name: "person", Supercategory: "object"}}

func detections(folder string, objectsPerImage ...int) *detector.FolderResult {
	res := &detector.FolderResult{Status: detector.StatusSuccess, Categories: personCategories}
	for i, n := range objectsPerImage {
		det := coco.Detection{
			ImagePath: filepath.Join(folder, "img"+string(rune('a'+i))+".jpg"),
			Width:     640,
			Height:    480,
			Objects:   []coco.DetectedObject{},
		}
		for j := 0; j < n; j++ {
			det.Objects = append(det.Objects, coco.DetectedObject{
				CategoryId:   1,
				CategoryName: "person",
				BBox:         coco.BBox{float64(j), 10, 20, 30},
				Score:        0.9,
			})
		}
		res.Detections = append(res.Detections, det)
	}
	return res
}

type testEnv struct {
	service    *core.Service
	detector   *fakeDetector
	db         *gorm.DB
	datasetDir string
	storageDir string
}

func setupService(t *testing.T, result func(folder string) (*detector.FolderResult, error)) *testEnv {
	t.Helper()

	datasetDir := t.TempDir()
	for _, split := range []string{"train", "val"} {
		require.NoError(t, os.MkdirAll(filepath.Join(datasetDir, core.ImagesDir, split), 0755))
	}

	storageDir := t.TempDir()
	store, err := storage.NewLocalProvider(storageDir)
	require.NoError(t, err)

	db, err := database.NewDatabase("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)

	validator, err := coco.LoadValidator("")
	require.NoError(t, err)

	det := &fakeDetector{result: result}

	service := core.NewService(validator, det, store, db, core.ServiceConfig{
		DatasetRoot:   datasetDir,
		AllowedSplits: []string{"train", "val", "test"},
		DefaultSplit:  "val",
		Confidence:    0.3,
	})

	return &testEnv{service: service, detector: det, db: db, datasetDir: datasetDir, storageDir: storageDir}
}

const sampleDocument = `{
	"images": [{"id": 1, "file_name": "test.jpg", "width": 640, "height": 480}],
	"annotations": [{"id": 1, "image_id": 1, "category_id": 1, "bbox": [10, 10, 100, 100], "area": 10000, "iscrowd": 0, "segmentation": []}],
	"categories": [{"id": 1, "name": "person", "supercategory": "object"}]
}`

func TestRunAutocheck(t *testing.T) {
	env := setupService(t, nil)

	report := env.service.RunAutocheck([]byte(sampleDocument))
	require.True(t, report.OK())
	assert.Equal(t, 1, report.Summary.NumImages)
	assert.Equal(t, 1, report.Summary.NumAnnotations)
	assert.Equal(t, 1, report.Summary.ImagesWithAnnotations)
	assert.Equal(t, 0, report.Summary.ImagesWithoutAnnotations)
	assert.Equal(t, map[string]coco.LabelCount{"person": {CategoryId: "1", Count: 1}}, report.LabelDistribution)
}

func TestRunAutocheckInvalidJson(t *testing.T) {
	env := setupService(t, nil)

	report := env.service.RunAutocheck([]byte("{ this is not json }"))
	assert.Equal(t, coco.StatusError, report.Status)
	assert.Contains(t, report.Message, "Invalid JSON")
}

func TestRunAutocheckSchemaError(t *testing.T) {
	env := setupService(t, nil)

	report := env.service.RunAutocheck([]byte(`{"images": [{"id": 1, "file_name": "a.jpg", "width": 1}], "annotations": [], "categories": []}`))
	assert.Equal(t, coco.StatusError, report.Status)
	assert.Contains(t, report.Message, "images.0")
}

func TestRunAutocheckIntegralFloats(t *testing.T) {
	env := setupService(t, nil)

	report := env.service.RunAutocheck([]byte(`{
		"images": [{"id": 1, "file_name": "a.jpg", "width": 640.0, "height": 480.0}, {"id": 2.0, "file_name": "b.jpg", "width": 10, "height": 10}],
		"annotations": [{"id": 1, "image_id": 1.0, "category_id": 1, "bbox": [0, 0, 5, 5], "iscrowd": 1.0}],
		"categories": [{"id": 1, "name": "person"}]
	}`))
	require.True(t, report.OK(), report.Message)
	assert.Equal(t, 2, report.Summary.NumImages)
	assert.Equal(t, 1, report.Summary.ImagesWithAnnotations)
	assert.Equal(t, 1, report.Summary.ImagesWithoutAnnotations)
}

func TestRunAutocheckIdsOutsideInt64(t *testing.T) {
	env := setupService(t, nil)

	report := env.service.RunAutocheck([]byte(`{
		"images": [{"id": 1e20, "file_name": "a.jpg", "width": 1, "height": 1}, {"id": 2e20, "file_name": "b.jpg", "width": 1, "height": 1}],
		"annotations": [{"id": 1, "image_id": 1e20, "category_id": 1, "bbox": [0, 0, 1, 1]}],
		"categories": [{"id": 1, "name": "person"}]
	}`))
	assert.Equal(t, coco.StatusError, report.Status)
	assert.Contains(t, report.Message, "out of range")
}

func TestRunAutoAnnotate(t *testing.T) {
	env := setupService(t, func(folder string) (*detector.FolderResult, error) {
		return detections(folder, 2, 0, 1), nil
	})

	var progress []int
	res, err := env.service.RunAutoAnnotate(context.Background(), "train", core.AutoAnnotateOptions{
		Progress: func(done, total int) { progress = append(progress, done) },
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.datasetDir, core.ImagesDir, "train"), env.detector.folder)
	assert.InDelta(t, 0.3, env.detector.confidence, 1e-6)
	assert.Equal(t, []int{3}, progress)

	assert.Equal(t, "train", res.Split)
	assert.Equal(t, filepath.Join(env.storageDir, core.DefaultBucket, "auto_annotations_train.json"), res.AnnotationsFile)
	require.True(t, res.Report.OK())
	assert.Equal(t, 3, res.Report.Summary.NumImages)
	assert.Equal(t, 3, res.Report.Summary.NumAnnotations)
	assert.Equal(t, 1, res.Report.Summary.ImagesWithoutAnnotations)
	assert.Equal(t, 50, res.Report.Summary.EstimatedQualityScore)

	raw, err := os.ReadFile(res.AnnotationsFile)
	require.NoError(t, err)
	var doc coco.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "train/imga.jpg", doc.Images[0].FileName)
	assert.Equal(t, coco.ID(3), doc.Annotations[2].Id)
	assert.Equal(t, coco.ID(3), doc.Annotations[2].ImageId)

	run, err := env.service.GetRun(context.Background(), res.RunId)
	require.NoError(t, err)
	assert.Equal(t, database.RunCompleted, run.Status)
	assert.Equal(t, res.AnnotationsFile, run.AnnotationsLocation)
	assert.Equal(t, 3, run.NumAnnotations)

	stored, err := env.service.GetAnnotations(context.Background(), "train")
	require.NoError(t, err)
	assert.Equal(t, raw, stored)
}

func TestRunAutoAnnotateZeroDetections(t *testing.T) {
	env := setupService(t, func(folder string) (*detector.FolderResult, error) {
		return detections(folder, 0), nil
	})

	res, err := env.service.RunAutoAnnotate(context.Background(), "val", core.AutoAnnotateOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Report.Summary.NumImages)
	assert.Equal(t, 0, res.Report.Summary.NumAnnotations)
	assert.Equal(t, 1, res.Report.Summary.ImagesWithoutAnnotations)
	assert.Equal(t, 0, res.Report.Summary.EstimatedQualityScore)
}

func TestRunAutoAnnotateDefaultSplit(t *testing.T) {
	env := setupService(t, func(folder string) (*detector.FolderResult, error) {
		return detections(folder, 1), nil
	})

	res, err := env.service.RunAutoAnnotate(context.Background(), "", core.AutoAnnotateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "val", res.Split)
}

func TestRunAutoAnnotateInvalidSplit(t *testing.T) {
	env := setupService(t, func(folder string) (*detector.FolderResult, error) {
		return detections(folder, 1), nil
	})

	for _, split := range []string{"validation", "../train", "TRAIN"} {
		_, err := env.service.RunAutoAnnotate(context.Background(), split, core.AutoAnnotateOptions{})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	}
	assert.Equal(t, 0, env.detector.calls)
}

func TestRunAutoAnnotateMissingFolder(t *testing.T) {
	env := setupService(t, func(folder string) (*detector.FolderResult, error) {
		return detections(folder, 1), nil
	})

	_, err := env.service.RunAutoAnnotate(context.Background(), "test", core.AutoAnnotateOptions{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, 0, env.detector.calls)
}

func TestRunAutoAnnotateDetectorErrors(t *testing.T) {
	cases := []struct {
		name     string
		result   *detector.FolderResult
		err      error
		expected error
	}{
		{"no images", nil, detector.ErrNoImagesFound, core.ErrInvalidInput},
		{"folder vanished", nil, detector.ErrFolderNotFound, core.ErrInvalidInput},
		{"image vanished", nil, detector.ErrImageNotFound, core.ErrNotFound},
		{"backend failure", nil, errors.New("cuda out of memory"), core.ErrDetection},
		{"failed status", &detector.FolderResult{Status: "error"}, nil, core.ErrDetection},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := setupService(t, func(string) (*detector.FolderResult, error) {
				return tc.result, tc.err
			})

			_, err := env.service.RunAutoAnnotate(context.Background(), "train", core.AutoAnnotateOptions{})
			assert.ErrorIs(t, err, tc.expected)

			runs, err := env.service.ListRuns(context.Background(), "train", 10)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, database.RunFailed, runs[0].Status)
			assert.NotEmpty(t, runs[0].Error)

			_, err = env.service.GetAnnotations(context.Background(), "train")
			assert.ErrorIs(t, err, core.ErrNotFound, "nothing is persisted when detection fails")
		})
	}
}

func TestRunAutoAnnotateInternalErrorHidesDetail(t *testing.T) {
	env := setupService(t, func(string) (*detector.FolderResult, error) {
		return nil, errors.New("secret internal detail")
	})

	_, err := env.service.RunAutoAnnotate(context.Background(), "train", core.AutoAnnotateOptions{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret internal detail")
}

func TestRunAutoAnnotateInvalidOutputIsKept(t *testing.T) {
	env := setupService(t, func(folder string) (*detector.FolderResult, error) {
		res := detections(folder, 1)
		res.Detections[0].Width = -1
		return res, nil
	})

	res, err := env.service.RunAutoAnnotate(context.Background(), "train", core.AutoAnnotateOptions{})
	require.NoError(t, err)

	assert.Equal(t, coco.StatusError, res.Report.Status)
	assert.Contains(t, res.Report.Message, "schema error at images.0.width")

	_, err = os.Stat(res.AnnotationsFile)
	assert.NoError(t, err)

	run, err := env.service.GetRun(context.Background(), res.RunId)
	require.NoError(t, err)
	assert.Equal(t, database.RunInvalid, run.Status)
}

func TestRunsWithoutDatabase(t *testing.T) {
	validator, err := coco.LoadValidator("")
	require.NoError(t, err)

	store, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	datasetDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(datasetDir, core.ImagesDir, "val"), 0755))

	service := core.NewService(validator, &fakeDetector{result: func(folder string) (*detector.FolderResult, error) {
		return detections(folder, 1), nil
	}}, store, nil, core.ServiceConfig{
		DatasetRoot:   datasetDir,
		AllowedSplits: []string{"val"},
		DefaultSplit:  "val",
	})

	res, err := service.RunAutoAnnotate(context.Background(), "val", core.AutoAnnotateOptions{})
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, res.RunId)

	runs, err := service.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = service.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListRunsInvalidSplit(t *testing.T) {
	env := setupService(t, nil)

	_, err := env.service.ListRuns(context.Background(), "holdout", 10)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
