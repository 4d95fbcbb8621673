// cmd/dialog-manager/serve.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"dialog-manager/internal/common/camunda"
	"dialog-manager/internal/common/config"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/common/observability"
	processturn "dialog-manager/internal/workers/dialogue/process-turn"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dialogue-turn worker with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format).With(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})
	log.Info("Starting dialog manager...", nil)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.App.Name,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
		Logger:         log,
	})
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log, obs)
	if err != nil {
		return fmt.Errorf("build dialogue engine: %w", err)
	}
	defer a.Close()

	var zeebe *camunda.Client
	var turnWorker *camunda.Worker
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, camunda.ConfigFromApp(cfg.Camunda), log)
		if err != nil {
			return err
		}
		defer zeebe.Close()

		wcfg := config.GetWorkerConfig(cfg, processturn.TaskType)
		handler := processturn.NewHandler(processturn.FromWorkerConfig(wcfg), a.engine, log)
		turnWorker = camunda.StartWorker(zeebe.GetClient(), processturn.TaskType, wcfg, handler.Handle, log)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", nil)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		probeCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := a.Ready(probeCtx)
		if err == nil && zeebe != nil {
			err = zeebe.HealthCheck(probeCtx)
		}
		if err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err)
			return
		}
		writeStatus(w, http.StatusOK, "ready", nil)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"port": cfg.App.HTTPPort})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received, stopping worker...", nil)

	turnWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Dialog manager stopped", nil)
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string, err error) {
	body := map[string]interface{}{"status": status}
	if err != nil {
		body["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
