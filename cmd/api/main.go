package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"annotate-backend/cmd"
	"annotate-backend/internal/api"
	"annotate-backend/internal/coco"
	"annotate-backend/internal/config"
	"annotate-backend/internal/core"
	"annotate-backend/internal/database"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func createServer(cfg *config.ServerConfig, service *core.Service) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	apiHandler := api.NewBackendService(service, cfg.MaxUploadBytes, cfg.AutoAnnotateLimit)
	apiHandler.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	cfg, err := config.ParseServerConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	closeLog, err := cmd.SetupLogging(cfg.Root)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeLog()

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "dataset_root", cfg.DatasetRoot, "splits", cfg.AllowedSplits, "detector", cfg.Detector.Backend, "storage", cfg.Storage.Backend)

	validator, err := coco.LoadValidator(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}

	store, err := cmd.CreateStorage(context.Background(), cfg.Storage, cfg.Root)
	if err != nil {
		log.Fatalf("failed to create storage: %v", err)
	}

	det, releaseDetector, err := cmd.CreateDetector(cfg.Detector)
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer releaseDetector()

	service := core.NewService(validator, det, store, db, core.ServiceConfig{
		DatasetRoot:   cfg.DatasetRoot,
		AllowedSplits: cfg.AllowedSplits,
		DefaultSplit:  cfg.DefaultSplit,
		Bucket:        cfg.Storage.Bucket,
		Confidence:    cfg.Detector.Confidence,
	})

	server := createServer(cfg, service)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
