package coco_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"annotate-backend/internal/coco"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var detectorCategories = []coco.Category{
	{Id: 1, Name: "person", Supercategory: "object"},
	{Id: 2, Name: "car", Supercategory: "object"},
}

func TestAssembleDenseIds(t *testing.T) {
	root := filepath.Join("dataset", "images")
	detections := []coco.Detection{
		{
			ImagePath: filepath.Join(root, "test", "a.jpg"), Width: 640, Height: 480,
			Objects: []coco.DetectedObject{
				{CategoryId: 1, CategoryName: "person", BBox: coco.BBox{1, 2, 10, 20}, Score: 0.9},
				{CategoryId: 2, CategoryName: "car", BBox: coco.BBox{5, 5, 4, 2.5}, Score: 0.5},
			},
		},
		{ImagePath: filepath.Join(root, "test", "b.jpg"), Width: 320, Height: 240},
		{
			ImagePath: filepath.Join(root, "test", "nested", "c.png"), Width: 100, Height: 100,
			Objects: []coco.DetectedObject{
				{CategoryId: 2, CategoryName: "car", BBox: coco.BBox{0, 0, 3, 3}, Score: 0.3},
			},
		},
	}

	doc := coco.Assemble(detections, detectorCategories, root)

	require.Len(t, doc.Images, 3)
	require.Len(t, doc.Annotations, 3)
	for i, img := range doc.Images {
		assert.Equal(t, coco.ID(i+1), img.Id)
	}
	for i, ann := range doc.Annotations {
		assert.Equal(t, coco.ID(i+1), ann.Id)
		assert.Equal(t, coco.Int(0), ann.IsCrowd)
		assert.Equal(t, []any{}, ann.Segmentation)
	}

	assert.Equal(t, "test/a.jpg", doc.Images[0].FileName)
	assert.Equal(t, "test/nested/c.png", doc.Images[2].FileName)
	assert.Equal(t, coco.Int(320), doc.Images[1].Width)
	assert.Equal(t, coco.Int(240), doc.Images[1].Height)

	assert.Equal(t, coco.ID(1), doc.Annotations[0].ImageId)
	assert.Equal(t, coco.ID(1), doc.Annotations[1].ImageId)
	assert.Equal(t, coco.ID(3), doc.Annotations[2].ImageId)
	assert.Equal(t, 200.0, doc.Annotations[0].Area)
	assert.Equal(t, 10.0, doc.Annotations[1].Area)
	assert.Equal(t, coco.ID(2), doc.Annotations[1].CategoryId)

	assert.Equal(t, detectorCategories, doc.Categories)
}

func TestAssembleEmptyInput(t *testing.T) {
	doc := coco.Assemble(nil, nil, "")

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"images": [], "annotations": [], "categories": []}`, string(data))
}

func TestAssembleDefaultsSupercategory(t *testing.T) {
	doc := coco.Assemble(nil, []coco.Category{{Id: 1, Name: "bus"}}, "")
	assert.Equal(t, "object", doc.Categories[0].Supercategory)
}

func TestAssembledDocumentIsSchemaValid(t *testing.T) {
	validator := defaultValidator(t)

	inputs := [][]coco.Detection{
		nil,
		{{ImagePath: "/data/images/val/x.jpg", Width: 10, Height: 10}},
		{
			{ImagePath: "/data/images/val/x.jpg", Width: 10, Height: 10, Objects: []coco.DetectedObject{{CategoryId: 1, BBox: coco.BBox{0.5, 0.5, 2.25, 3}}}},
			{ImagePath: "/data/images/val/y.jpg", Width: 10, Height: 10, Objects: []coco.DetectedObject{{CategoryId: 7, BBox: coco.BBox{0, 0, 1, 1}}}},
		},
	}

	for _, detections := range inputs {
		assembled := coco.Assemble(detections, detectorCategories, "/data/images")

		raw, err := json.Marshal(assembled)
		require.NoError(t, err)

		parsed, err := coco.Parse(raw)
		require.NoError(t, err)
		require.NoError(t, validator.Validate(parsed))

		var doc coco.Document
		require.NoError(t, json.Unmarshal(raw, &doc))
		report := coco.Audit(&doc)
		assert.Equal(t, len(detections), report.Summary.NumImages)
	}
}

func TestAssembleZeroDetectionsAudit(t *testing.T) {
	doc := coco.Assemble([]coco.Detection{{ImagePath: "/d/images/test/only.jpg", Width: 640, Height: 480}}, detectorCategories, "/d/images")
	require.Len(t, doc.Images, 1)
	require.Empty(t, doc.Annotations)

	report := coco.Audit(doc)
	assert.Equal(t, 1, report.Summary.ImagesWithoutAnnotations)
	assert.Equal(t, 0, report.Summary.EstimatedQualityScore)
}

func TestRelativeFileName(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"/data/images", "/data/images/test/123.jpg", "test/123.jpg"},
		{"/data/images/", "/data/images/a.png", "a.png"},
		{"/data/images", "/elsewhere/a.png", "/elsewhere/a.png"},
		{"", "rel/dir/a.png", "rel/dir/a.png"},
		{"/data", `/data/win\style.jpg`, "win/style.jpg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, coco.RelativeFileName(tt.root, tt.path), "root=%s path=%s", tt.root, tt.path)
	}
}
