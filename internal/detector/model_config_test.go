package detector_test

import (
	"annotate-backend/internal/coco"
	"annotate-backend/internal/detector"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadModelConfigJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, detector.ModelConfigFile), []byte(`{
		"architecture": "yolov8",
		"width": 320,
		"height": 320,
		"classes": ["person", "car"]
	}`), 0644))

	cfg, err := detector.LoadModelConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "yolov8", cfg.Architecture)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, []string{"person", "car"}, cfg.Classes)
	assert.Equal(t, "images", cfg.InputName)
	assert.Equal(t, "output0", cfg.OutputName)
	assert.Equal(t, 40*40+20*20+10*10, cfg.NumAnchors())
}

func TestLoadModelConfigDataYamlList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, detector.DataYamlFile), []byte("path: ../datasets\nnames: [person, bicycle, car]\n"), 0644))

	cfg, err := detector.LoadModelConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"person", "bicycle", "car"}, cfg.Classes)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 640, cfg.Height)
	assert.Equal(t, 8400, cfg.NumAnchors())
}

func TestLoadModelConfigDataYamlMap(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, detector.DataYamlFile), []byte("names:\n  1: dog\n  0: cat\n"), 0644))

	cfg, err := detector.LoadModelConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, cfg.Classes)
}

func TestLoadModelConfigErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := detector.LoadModelConfig(t.TempDir())
		assert.ErrorIs(t, err, detector.ErrModelNotFound)
	})

	t.Run("no classes", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, detector.ModelConfigFile), []byte(`{"classes": []}`), 0644))
		_, err := detector.LoadModelConfig(dir)
		assert.ErrorContains(t, err, "does not list any classes")
	})

	t.Run("gap in class indices", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, detector.DataYamlFile), []byte("names:\n  0: cat\n  2: dog\n"), 0644))
		_, err := detector.LoadModelConfig(dir)
		assert.ErrorContains(t, err, "missing 1")
	})

	t.Run("malformed json", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, detector.ModelConfigFile), []byte(`{`), 0644))
		_, err := detector.LoadModelConfig(dir)
		assert.ErrorContains(t, err, "error parsing model config")
	})
}

func TestCategoriesFromClasses(t *testing.T) {
	assert.Equal(t, []coco.Category{
		{Id: 1, Name: "person", Supercategory: "object"},
		{Id: 2, Name: "car", Supercategory: "object"},
	}, detector.CategoriesFromClasses([]string{"person", "car"}))
}
