package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"annotate-backend/internal/core"
	"annotate-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

const multipartMemory = 32 << 20

type BackendService struct {
	service *core.Service

	maxUploadBytes int64
	// autoAnnotatePerMinute limits auto-annotate requests per client IP. Zero
	// disables the limit.
	autoAnnotatePerMinute int

	started time.Time
}

func NewBackendService(service *core.Service, maxUploadBytes int64, autoAnnotatePerMinute int) *BackendService {
	return &BackendService{
		service:               service,
		maxUploadBytes:        maxUploadBytes,
		autoAnnotatePerMinute: autoAnnotatePerMinute,
		started:               time.Now(),
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.Home))
	r.Get("/health", RestHandler(s.Health))

	r.With(limitBody(s.maxUploadBytes)).Post("/validate", RestHandler(s.Validate))

	r.Route("/auto-annotate", func(r chi.Router) {
		annotate := r.With(limitBody(s.maxUploadBytes))
		if s.autoAnnotatePerMinute > 0 {
			annotate = annotate.With(httprate.LimitByIP(s.autoAnnotatePerMinute, time.Minute))
		}
		annotate.Post("/", RestHandler(s.AutoAnnotate))

		r.Get("/runs", RestHandler(s.ListRuns))
		r.Get("/runs/{run_id}", RestHandler(s.GetRun))
	})

	r.Get("/annotations/{split}", RestHandler(s.GetAnnotations))
}

func (s *BackendService) Home(r *http.Request) (any, error) {
	return api.StatusResponse{Status: api.StatusSuccess, Message: "annotate backend running"}, nil
}

func (s *BackendService) Health(r *http.Request) (any, error) {
	return api.HealthResponse{
		StatusResponse: api.StatusResponse{Status: api.StatusSuccess, Message: "healthy"},
		Uptime:         time.Since(s.started).Round(time.Second).String(),
	}, nil
}

// Validate runs the autocheck on an uploaded COCO file. The report is
// returned with status 200 even if the document itself is invalid.
func (s *BackendService) Validate(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, CodedErrorf(http.StatusBadRequest, "file exceeds the maximum upload size of %d bytes", maxErr.Limit)
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, CodedErrorf(http.StatusBadRequest, "No file uploaded")
		}
		slog.Error("error parsing multipart form", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse uploaded form")
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("error removing multipart temp files", "error", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, CodedErrorf(http.StatusBadRequest, "No file uploaded")
		}
		slog.Error("error reading uploaded file", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read uploaded file")
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "Empty filename")
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "unable to read uploaded file")
	}
	if len(raw) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "Empty file")
	}

	report := s.service.RunAutocheck(raw)
	if report.OK() {
		slog.Info("validation completed", "file", header.Filename, "images", report.Summary.NumImages, "annotations", report.Summary.NumAnnotations)
	} else {
		slog.Warn("validation failed", "file", header.Filename, "message", report.Message)
	}

	return report, nil
}

func (s *BackendService) AutoAnnotate(r *http.Request) (any, error) {
	var req api.AutoAnnotateRequest
	if r.ContentLength != 0 {
		parsed, err := ParseRequest[api.AutoAnnotateRequest](r)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, CodedErrorf(http.StatusBadRequest, "request body too large")
			}
			return nil, err
		}
		req = parsed
	}

	res, err := s.service.RunAutoAnnotate(r.Context(), req.Split, core.AutoAnnotateOptions{})
	if err != nil {
		return nil, serviceError(err)
	}

	resp := api.AutoAnnotateResponse{
		StatusResponse:   api.StatusResponse{Status: api.StatusSuccess, Message: "Auto-annotation completed"},
		Split:            res.Split,
		AnnotationsFile:  res.AnnotationsFile,
		ValidationReport: res.Report,
	}
	if res.RunId != uuid.Nil {
		resp.RunId = &res.RunId
	}
	return resp, nil
}

func (s *BackendService) ListRuns(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListRunsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit must not be negative")
	}

	runs, err := s.service.ListRuns(r.Context(), params.Split, params.Limit)
	if err != nil {
		return nil, serviceError(err)
	}
	return convertRuns(runs), nil
}

func (s *BackendService) GetRun(r *http.Request) (any, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	run, err := s.service.GetRun(r.Context(), runId)
	if err != nil {
		return nil, serviceError(err)
	}
	return convertRun(*run), nil
}

func (s *BackendService) GetAnnotations(r *http.Request) (any, error) {
	split := chi.URLParam(r, "split")

	data, err := s.service.GetAnnotations(r.Context(), split)
	if err != nil {
		return nil, serviceError(err)
	}
	return json.RawMessage(data), nil
}
