package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"llmproxy/config"
	"llmproxy/logger"
	"llmproxy/pipeline"
	"llmproxy/registry"
	"llmproxy/router"
	"llmproxy/sessionflow"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	fmt.Println(GetBuildInfo())
	fmt.Println()

	cfg, err := config.LoadConfigWithEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logDir := os.Getenv("LLMPROXY_LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}
	obsLogger, err := logger.NewObservabilityLogger(logDir)
	if err != nil {
		log.Fatalf("Failed to initialize observability logger: %v", err)
	}
	defer obsLogger.Close()
	cfg.SetObservabilityLogger(obsLogger)

	var convLog *pipeline.ConversationLogger
	if convLogDir := os.Getenv("LLMPROXY_CONVERSATION_LOG_DIR"); convLogDir != "" {
		convLog, err = pipeline.NewConversationLogger(pipeline.ConversationLoggerConfig{
			LogDir:        convLogDir,
			MaskSensitive: true,
			Truncation:    2000,
		})
		if err != nil {
			obsLogger.Warn(logger.ComponentConfig, logger.CategoryWarning, "", "failed to start conversation logger", map[string]interface{}{"error": err.Error()})
		}
	}

	reg := registry.New()
	reg.SetObservabilityLogger(obsLogger)
	reg.Subscribe(func(e registry.Event) {
		obsLogger.Info(logger.ComponentRegistry, logger.CategoryRequest, "", "registry event", map[string]interface{}{
			"type":     e.Type,
			"moduleId": e.ModuleID,
			"fields":   e.Fields,
		})
	})

	rt := router.New(cfg)
	rt.SetObservabilityLogger(obsLogger)

	flow := sessionflow.New(cfg.Policy.ConcurrencyLimit)

	srv := newServer(cfg, rt, flow, reg, obsLogger, convLog)

	obsLogger.Info(logger.ComponentConfig, logger.CategoryRequest, "", "llmproxy configuration loaded", map[string]interface{}{
		"port":          cfg.Port,
		"providerCount": len(cfg.Providers),
		"concurrency":   cfg.Policy.ConcurrencyLimit,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleRoot)
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/v1/messages", srv.handleMessages)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // long timeout for streaming responses
		IdleTimeout:  60 * time.Second,
	}

	obsLogger.Info(logger.ComponentConfig, logger.CategoryRequest, "", "llmproxy starting", map[string]interface{}{
		"address":  fmt.Sprintf("http://localhost:%s", cfg.Port),
		"endpoint": fmt.Sprintf("http://localhost:%s/v1/messages", cfg.Port),
	})

	if err := httpServer.ListenAndServe(); err != nil {
		obsLogger.Error(logger.ComponentConfig, logger.CategoryError, "", "server failed to start", map[string]interface{}{"error": err.Error()})
		log.Fatalf("Server failed to start: %v", err)
	}
}

// handleRoot provides basic information about the service.
func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
	"service": "llmproxy",
	"version": %q,
	"status": "running",
	"endpoints": [
		"GET /health - health check",
		"GET /metrics - Prometheus metrics",
		"POST /v1/messages - client-dialect chat completions"
	]
}`, Version)
}
