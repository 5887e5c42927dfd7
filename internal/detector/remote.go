package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RemoteDetector delegates detection to an inference service that can read
// the same dataset folders as this process.
type RemoteDetector struct {
	client *resty.Client
}

type remoteDetectRequest struct {
	Folder     string  `json:"folder"`
	Confidence float32 `json:"confidence"`
}

type remoteErrorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func NewRemoteDetector(baseURL string, timeout time.Duration) *RemoteDetector {
	client := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &RemoteDetector{client: client}
}

func (d *RemoteDetector) DetectFolder(ctx context.Context, folder string, opts DetectOptions) (*FolderResult, error) {
	res, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteDetectRequest{Folder: folder, Confidence: opts.confidence()}).
		Post("/detect-folder")
	if err != nil {
		return nil, fmt.Errorf("%w: request to remote detector failed: %w", ErrDetectorFailed, err)
	}

	if !res.IsSuccess() {
		msg := remoteMessage(res.Body())
		switch res.StatusCode() {
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, msg)
		case http.StatusUnprocessableEntity:
			return nil, fmt.Errorf("%w: %s", ErrNoImagesFound, msg)
		default:
			slog.Error("remote detector returned error", "status_code", res.StatusCode(), "body", res.String())
			return nil, fmt.Errorf("%w: remote detector returned status %d: %s", ErrDetectorFailed, res.StatusCode(), msg)
		}
	}

	var result FolderResult
	if err := json.Unmarshal(res.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: error parsing remote detector response: %w", ErrDetectorFailed, err)
	}

	if result.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: remote detector reported status %q", ErrDetectorFailed, result.Status)
	}

	if opts.Progress != nil {
		opts.Progress(len(result.Detections), len(result.Detections))
	}

	return &result, nil
}

func remoteMessage(body []byte) string {
	var e remoteErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Detail != "" {
			return e.Detail
		}
	}
	return string(body)
}

func (d *RemoteDetector) Close() error {
	return nil
}
