package detector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"annotate-backend/internal/coco"
	"annotate-backend/internal/core/utils"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitOnnxRuntime loads the onnxruntime shared library once per process. The
// returned function tears the environment down again.
func InitOnnxRuntime(dylib string) (func(), error) {
	if dylib == "" {
		return nil, fmt.Errorf("path to onnxruntime shared library is not set")
	}

	initOnce.Do(func() {
		ort.SetSharedLibraryPath(dylib)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("error initializing onnxruntime: %w", initErr)
	}

	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Error("error destroying onnx environment", "error", err)
		}
	}, nil
}

type OnnxOptions struct {
	UseGPU       bool
	Workers      int
	NmsThreshold float32
}

type OnnxDetector struct {
	config       *ModelConfig
	session      *ort.DynamicAdvancedSession
	categories   []coco.Category
	workers      int
	nmsThreshold float32
}

// NewOnnxDetector loads the model in modelDir once. InitOnnxRuntime must have
// been called before.
func NewOnnxDetector(modelDir string, opts OnnxOptions) (*OnnxDetector, error) {
	config, err := LoadModelConfig(modelDir)
	if err != nil {
		return nil, err
	}

	modelPath := filepath.Join(modelDir, ModelFile)
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("error accessing model %s: %w", modelPath, err)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer sessionOpts.Destroy()

	if opts.UseGPU {
		if err := appendCUDAProvider(sessionOpts); err != nil {
			slog.Warn("cuda execution provider unavailable, falling back to cpu", "error", err)
		} else {
			slog.Info("using cuda execution provider")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		sessionOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("error loading onnx model %s: %w", modelPath, err)
	}

	nms := opts.NmsThreshold
	if nms <= 0 {
		nms = DefaultNmsThreshold
	}

	slog.Info("loaded detection model", "path", modelPath, "architecture", config.Architecture, "classes", len(config.Classes))

	return &OnnxDetector{
		config:       config,
		session:      session,
		categories:   CategoriesFromClasses(config.Classes),
		workers:      max(1, opts.Workers),
		nmsThreshold: nms,
	}, nil
}

func appendCUDAProvider(sessionOpts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()

	return sessionOpts.AppendExecutionProviderCUDA(cudaOpts)
}

func (d *OnnxDetector) DetectFolder(ctx context.Context, folder string, opts DetectOptions) (*FolderResult, error) {
	paths, err := FindImages(folder)
	if err != nil {
		return nil, err
	}

	threshold := opts.confidence()

	var onDone func(int)
	if opts.Progress != nil {
		onDone = func(done int) { opts.Progress(done, len(paths)) }
	}

	detections, err := utils.RunInPool(ctx, paths, func(_ context.Context, path string) (coco.Detection, error) {
		return d.detectImage(path, threshold)
	}, d.workers, onDone)
	if err != nil {
		return nil, err
	}

	return &FolderResult{
		Status:     StatusSuccess,
		Detections: detections,
		Categories: d.categories,
	}, nil
}

func (d *OnnxDetector) detectImage(path string, threshold float32) (coco.Detection, error) {
	img, err := loadImage(path)
	if err != nil {
		return coco.Detection{}, err
	}

	data, lb := preprocess(img, d.config.Width, d.config.Height)

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(d.config.Height), int64(d.config.Width)), data)
	if err != nil {
		return coco.Detection{}, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	numClasses, anchors := len(d.config.Classes), d.config.NumAnchors()
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+numClasses), int64(anchors)))
	if err != nil {
		return coco.Detection{}, fmt.Errorf("error creating output tensor: %w", err)
	}
	defer output.Destroy()

	if err := d.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return coco.Detection{}, fmt.Errorf("inference failed for %s: %w", path, err)
	}

	boxes := decodeOutput(output.GetData(), numClasses, anchors, threshold, lb)
	boxes = nonMaxSuppression(boxes, d.nmsThreshold)

	return coco.Detection{
		ImagePath: path,
		Width:     lb.width,
		Height:    lb.height,
		Objects:   toObjects(boxes, d.config.Classes),
	}, nil
}

func (d *OnnxDetector) Close() error {
	return d.session.Destroy()
}
