package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"annotate-backend/cmd"
	"annotate-backend/internal/coco"
	"annotate-backend/internal/config"
	"annotate-backend/internal/core"
	"annotate-backend/internal/detector"

	"github.com/schollz/progressbar/v3"
)

type annotateOptions struct {
	imagesDir  string
	outPath    string
	split      string
	confidence float32
}

func main() {
	imagesDir := flag.String("images", "", "dataset images directory, split folders live below it")
	outPath := flag.String("out", "auto_annotations.json", "path of the COCO file to write")
	split := flag.String("split", "", "split folder below -images to annotate, the whole directory if empty")
	confidence := flag.Float64("conf", detector.DefaultConfidence, "minimum detection confidence")

	cmd.LoadEnvFile()

	if *imagesDir == "" {
		log.Fatalf("-images is required")
	}

	cfg, err := config.ParseAnnotateConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	validator, err := coco.LoadValidator(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}

	det, release, err := cmd.CreateDetector(cfg.Detector)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	report, err := annotate(ctx, det, validator, annotateOptions{
		imagesDir:  *imagesDir,
		outPath:    *outPath,
		split:      *split,
		confidence: float32(*confidence),
	})
	stop()
	release()
	if err != nil {
		log.Fatalf("%v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to serialize report: %v", err)
	}
	os.Stdout.Write(append(out, '\n'))

	if !report.OK() {
		os.Exit(1)
	}
}

// annotate runs the detector over the selected folder, writes the assembled
// COCO document and returns its autocheck report.
func annotate(ctx context.Context, det detector.Detector, validator *coco.Validator, opts annotateOptions) (*coco.Report, error) {
	folder := opts.imagesDir
	if opts.split != "" {
		folder = filepath.Join(opts.imagesDir, opts.split)
	}

	var bar *progressbar.ProgressBar
	res, err := det.DetectFolder(ctx, folder, detector.DetectOptions{
		Confidence: opts.confidence,
		Progress: func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("detecting"),
					progressbar.OptionSetWidth(30),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if res.Status != detector.StatusSuccess {
		return nil, fmt.Errorf("detector reported status %q", res.Status)
	}

	doc := coco.Assemble(res.Detections, res.Categories, opts.imagesDir)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize annotations: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.outPath), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(opts.outPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write annotations: %w", err)
	}
	log.Printf("wrote %d images and %d annotations to %s", len(doc.Images), len(doc.Annotations), opts.outPath)

	return core.Autocheck(validator, data), nil
}
