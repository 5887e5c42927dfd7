package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"annotate-backend/internal/config"
	"annotate-backend/internal/detector"
	"annotate-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// SetupLogging sends log and slog output to root/backend.log as well as
// stderr. The returned function closes the log file.
func SetupLogging(root string) (func(), error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating directory for log file: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	return func() { f.Close() }, nil
}

func CreateStorage(ctx context.Context, cfg config.StorageConfig, root string) (storage.Provider, error) {
	var provider storage.Provider
	switch cfg.Backend {
	case config.StorageS3:
		s3p, err := storage.NewS3Provider(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		provider = s3p
	default:
		local, err := storage.NewLocalProvider(filepath.Join(root, "storage"))
		if err != nil {
			return nil, err
		}
		provider = local
	}

	if err := provider.CreateBucket(ctx, cfg.Bucket); err != nil {
		return nil, fmt.Errorf("error creating annotations bucket: %w", err)
	}

	return provider, nil
}

// CreateDetector constructs the configured detector once for the lifetime of
// the process. The returned function releases it.
func CreateDetector(cfg config.DetectorConfig) (detector.Detector, func(), error) {
	switch cfg.Backend {
	case config.DetectorRemote:
		slog.Info("using remote detector", "url", cfg.RemoteURL)
		d := detector.NewRemoteDetector(cfg.RemoteURL, cfg.RemoteTimeout)
		return d, func() { d.Close() }, nil

	case config.DetectorOnnx:
		destroyEnv, err := detector.InitOnnxRuntime(cfg.OnnxRuntimeDylib)
		if err != nil {
			return nil, nil, err
		}

		d, err := detector.NewOnnxDetector(cfg.ModelDir, detector.OnnxOptions{
			UseGPU:       cfg.UseGPU,
			Workers:      cfg.Workers,
			NmsThreshold: cfg.NmsThreshold,
		})
		if err != nil {
			destroyEnv()
			return nil, nil, err
		}

		return d, func() {
			if err := d.Close(); err != nil {
				slog.Error("error releasing detection model", "error", err)
			}
			destroyEnv()
		}, nil

	default:
		return nil, nil, fmt.Errorf("invalid detector backend %q", cfg.Backend)
	}
}
