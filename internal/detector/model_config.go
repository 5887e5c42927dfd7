package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"
)

const (
	ModelFile       = "model.onnx"
	ModelConfigFile = "model.json"
	DataYamlFile    = "data.yaml"

	defaultInputSize  = 640
	defaultInputName  = "images"
	defaultOutputName = "output0"
)

// ModelConfig describes an exported YOLO model. It is stored next to the
// weights as model.json. An ultralytics data.yaml may be used instead, in
// which case only the class names are read from it.
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8"
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Classes      []string `json:"classes"`
	InputName    string   `json:"input_name,omitempty"`
	OutputName   string   `json:"output_name,omitempty"`
}

func (c *ModelConfig) applyDefaults() {
	if c.Architecture == "" {
		c.Architecture = "yolov8"
	}
	if c.Width <= 0 {
		c.Width = defaultInputSize
	}
	if c.Height <= 0 {
		c.Height = defaultInputSize
	}
	if c.InputName == "" {
		c.InputName = defaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = defaultOutputName
	}
}

// NumAnchors is the number of candidate boxes a YOLOv8 head produces for the
// configured input size (strides 8, 16 and 32).
func (c *ModelConfig) NumAnchors() int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		total += (c.Width / stride) * (c.Height / stride)
	}
	return total
}

func LoadModelConfig(modelDir string) (*ModelConfig, error) {
	cfg, err := readModelJSON(filepath.Join(modelDir, ModelConfigFile))
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = readDataYaml(filepath.Join(modelDir, DataYamlFile))
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: neither %s nor %s found in %s", ErrModelNotFound, ModelConfigFile, DataYamlFile, modelDir)
		}
		return nil, err
	}

	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("model config in %s does not list any classes", modelDir)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func readModelJSON(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &ModelConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing model config %s: %w", path, err)
	}
	return cfg, nil
}

func readDataYaml(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec struct {
		Names interface{} `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}

	classes, err := classNames(spec.Names)
	if err != nil {
		return nil, fmt.Errorf("invalid names in %s: %w", path, err)
	}
	return &ModelConfig{Classes: classes}, nil
}

// classNames accepts both forms ultralytics writes: a plain list, or a map
// from class index to name.
func classNames(names interface{}) ([]string, error) {
	switch v := names.(type) {
	case []interface{}:
		classes := make([]string, len(v))
		for i, n := range v {
			classes[i] = fmt.Sprint(n)
		}
		return classes, nil

	case map[interface{}]interface{}:
		indices := make([]int, 0, len(v))
		byIndex := make(map[int]string, len(v))
		for k, n := range v {
			idx, ok := k.(int)
			if !ok {
				return nil, fmt.Errorf("class index %v is not an integer", k)
			}
			indices = append(indices, idx)
			byIndex[idx] = fmt.Sprint(n)
		}
		sort.Ints(indices)

		classes := make([]string, len(indices))
		for i, idx := range indices {
			if idx != i {
				return nil, fmt.Errorf("class indices must be contiguous from 0, missing %d", i)
			}
			classes[i] = byIndex[idx]
		}
		return classes, nil

	case nil:
		return nil, fmt.Errorf("names is missing")

	default:
		return nil, fmt.Errorf("unsupported names type %T", names)
	}
}
