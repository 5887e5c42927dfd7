package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"annotate-backend/internal/coco"
	"annotate-backend/internal/detector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	result *detector.FolderResult
	folder string
}

func (d *stubDetector) DetectFolder(ctx context.Context, folder string, opts detector.DetectOptions) (*detector.FolderResult, error) {
	d.folder = folder
	return d.result, nil
}

func (d *stubDetector) Close() error { return nil }

func TestAnnotateWritesDocument(t *testing.T) {
	imagesDir := t.TempDir()
	det := &stubDetector{result: &detector.FolderResult{
		Status:     detector.StatusSuccess,
		Categories: detector.CategoriesFromClasses([]string{"person"}),
		Detections: []coco.Detection{{
			ImagePath: filepath.Join(imagesDir, "val", "a.jpg"),
			Width:     640,
			Height:    480,
			Objects:   []coco.DetectedObject{{CategoryId: 1, CategoryName: "person", BBox: coco.BBox{1, 1, 10, 10}, Score: 0.9}},
		}},
	}}

	validator, err := coco.LoadValidator("")
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "out", "annotations.json")
	report, err := annotate(context.Background(), det, validator, annotateOptions{
		imagesDir: imagesDir, outPath: outPath, split: "val", confidence: 0.25,
	})
	require.NoError(t, err)
	require.True(t, report.OK())
	assert.Equal(t, 1, report.Summary.NumAnnotations)
	assert.Equal(t, filepath.Join(imagesDir, "val"), det.folder)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var doc coco.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "val/a.jpg", doc.Images[0].FileName)
}

func TestAnnotateRejectsFailedStatus(t *testing.T) {
	det := &stubDetector{result: &detector.FolderResult{Status: "error"}}

	validator, err := coco.LoadValidator("")
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "annotations.json")
	_, err = annotate(context.Background(), det, validator, annotateOptions{imagesDir: t.TempDir(), outPath: outPath})
	assert.ErrorContains(t, err, `detector reported status "error"`)
	assert.NoFileExists(t, outPath)
}
