package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"

	DetectorOnnx   = "onnx"
	DetectorRemote = "remote"
)

type DetectorConfig struct {
	Backend          string        `env:"DETECTOR_BACKEND" envDefault:"onnx"`
	ModelDir         string        `env:"MODEL_DIR" envDefault:"./models/yolo"`
	OnnxRuntimeDylib string        `env:"ONNX_RUNTIME_DYLIB"`
	UseGPU           bool          `env:"USE_GPU" envDefault:"false"`
	Workers          int           `env:"DETECTOR_WORKERS" envDefault:"4"`
	Confidence       float32       `env:"DETECTION_CONFIDENCE" envDefault:"0.25"`
	NmsThreshold     float32       `env:"NMS_IOU_THRESHOLD" envDefault:"0.7"`
	RemoteURL        string        `env:"REMOTE_DETECTOR_URL"`
	RemoteTimeout    time.Duration `env:"REMOTE_DETECTOR_TIMEOUT" envDefault:"10m"`
}

type StorageConfig struct {
	Backend           string `env:"STORAGE_BACKEND" envDefault:"local"`
	Bucket            string `env:"ANNOTATIONS_BUCKET" envDefault:"annotations"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

type ServerConfig struct {
	Root               string        `env:"ROOT" envDefault:"."`
	Port               int           `env:"PORT" envDefault:"5000"`
	DatasetRoot        string        `env:"DATASET_ROOT" envDefault:"./dataset"`
	AllowedSplits      []string      `env:"ALLOWED_SPLITS" envDefault:"train,val,test" envSeparator:","`
	DefaultSplit       string        `env:"DEFAULT_SPLIT" envDefault:"test"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
	SchemaPath         string        `env:"SCHEMA_PATH"`
	DatabaseURL        string        `env:"DATABASE_URL"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10m"`
	AutoAnnotateLimit  int           `env:"AUTO_ANNOTATE_RATE_LIMIT" envDefault:"10"`
	CorsAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Storage  StorageConfig
	Detector DetectorConfig
}

// DatabasePath is the run store location, defaulting to a sqlite file under
// Root.
func (c *ServerConfig) DatabasePath() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.Root, "db", "annotate.db")
}

func (c *ServerConfig) Validate() error {
	if len(c.AllowedSplits) == 0 {
		return fmt.Errorf("ALLOWED_SPLITS must not be empty")
	}
	if !slices.Contains(c.AllowedSplits, c.DefaultSplit) {
		return fmt.Errorf("DEFAULT_SPLIT %q is not one of ALLOWED_SPLITS %v", c.DefaultSplit, c.AllowedSplits)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	return c.Detector.Validate()
}

func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case StorageLocal, StorageS3:
		return nil
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q, must be %q or %q", c.Backend, StorageLocal, StorageS3)
	}
}

func (c *DetectorConfig) Validate() error {
	switch c.Backend {
	case DetectorOnnx:
		if c.OnnxRuntimeDylib == "" {
			return fmt.Errorf("ONNX_RUNTIME_DYLIB must be set for the onnx detector")
		}
	case DetectorRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("REMOTE_DETECTOR_URL must be set for the remote detector")
		}
	default:
		return fmt.Errorf("invalid DETECTOR_BACKEND %q, must be %q or %q", c.Backend, DetectorOnnx, DetectorRemote)
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		return fmt.Errorf("DETECTION_CONFIDENCE must be in (0, 1]")
	}
	if c.NmsThreshold <= 0 || c.NmsThreshold > 1 {
		return fmt.Errorf("NMS_IOU_THRESHOLD must be in (0, 1]")
	}
	return nil
}

func ParseServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AnnotateConfig is the environment of the offline annotate command; its
// flags select the folder and output.
type AnnotateConfig struct {
	SchemaPath string `env:"SCHEMA_PATH"`
	Detector   DetectorConfig
}

func ParseAnnotateConfig() (*AnnotateConfig, error) {
	var cfg AnnotateConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Detector.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
