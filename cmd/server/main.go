package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"

	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/handlers"
	"github.com/Brownie44l1/waste-api/internal/logging"
	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/preprocess"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCloser, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Debug:  cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	err = run(cfg, stop)
	if err != nil {
		log.WithError(err).Error("Server stopped")
	}
	logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

// run loads the model, serves until stop fires or the listener fails, and
// releases the model on every return path.
func run(cfg *config.Config, stop <-chan os.Signal) error {
	if cfg.Debug {
		log.Warn("Debug mode is enabled")
	}

	log.Infof("Loading model from: %s", cfg.ModelPath)

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, model.Options{
		SharedLibraryPath: cfg.ONNXRuntimeLib,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer modelServer.Close()

	preprocessor, err := preprocess.New(cfg.Preprocessor, modelServer.Metadata.PreprocessOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize preprocessor: %w", err)
	}

	handler := handlers.NewHandler(modelServer, preprocessor, cfg.MaxBodyBytes)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handlers.NewRouter(handler, cfg.CORSOrigin),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	log.Infof("Server starting on %s", cfg.Addr())
	log.Infof("Classes: %v", modelServer.Labels())
	log.Infof("Preprocessor: %s", cfg.Preprocessor)
	log.Info("Endpoints:")
	log.Infof("  GET  %s - Health check", handlers.EndPointHealth)
	log.Infof("  POST %s - Predict from base64 JSON", handlers.EndPointPredict)
	log.Infof("  POST %s - Predict from image upload", handlers.EndPointPredictImage)

	return serve(server, stop)
}

// serve blocks until the listener fails or stop fires. A listener failure
// is returned; a signal triggers a graceful shutdown.
func serve(server *http.Server, stop <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Infof("Received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}
