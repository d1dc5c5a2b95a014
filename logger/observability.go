package logger

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ObservabilityLogger provides structured logging using logrus for Loki ingestion
// Following SPARC: Simple, focused logging with industry-standard library
type ObservabilityLogger struct {
	logger *logrus.Logger
	file   *os.File
}

// Component constants for consistent labeling
const (
	ComponentDialect        = "dialect_codec"
	ComponentProtocol       = "protocol_controller"
	ComponentAdapter        = "server_compat_adapter"
	ComponentUpstreamClient = "upstream_client"
	ComponentPipeline       = "pipeline"
	ComponentRouter         = "router"
	ComponentSessionFlow    = "session_flow"
	ComponentRegistry       = "module_registry"
	ComponentCircuitBreaker = "circuit_breaker"
	ComponentConfig         = "configuration"
)

// Category constants for log classification
const (
	CategoryRequest        = "request"
	CategoryTransformation = "transformation"
	CategorySuccess        = "success"
	CategoryWarning        = "warning"
	CategoryError          = "error"
	CategoryHealth         = "health"
	CategoryFailover       = "failover"
	CategoryValidation     = "validation"
	CategoryDebug          = "debug"
	CategoryBlocked        = "blocked"
)


// NewObservabilityLogger creates a new structured logger using logrus for Loki ingestion
func NewObservabilityLogger(logDir string) (*ObservabilityLogger, error) {
	// Ensure log directory exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	// Open log file
	logPath := filepath.Join(logDir, "llmproxy.jsonl")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	// Create logrus logger with JSON formatter
	logger := logrus.New()
	logger.SetOutput(file)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetLevel(logrus.InfoLevel)

	return &ObservabilityLogger{
		logger: logger,
		file:   file,
	}, nil
}

// Close closes the log file
func (o *ObservabilityLogger) Close() error {
	if o.file != nil {
		return o.file.Close()
	}
	return nil
}

// createEntry creates a logrus entry with standard fields, including the
// service field every log carries
func (o *ObservabilityLogger) createEntry(component, category, requestID string, fields map[string]interface{}) *logrus.Entry {
	entry := o.logger.WithFields(logrus.Fields{
		"service":   "llmproxy",
		"component": component,
		"category":  category,
	})
	
	if requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	
	return entry
}

// Debug logs a debug message
func (o *ObservabilityLogger) Debug(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Debug(message)
}

// Info logs an info message
func (o *ObservabilityLogger) Info(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Info(message)
}

// Warn logs a warning message
func (o *ObservabilityLogger) Warn(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Warn(message)
}

// Error logs an error message
func (o *ObservabilityLogger) Error(component, category, requestID, message string, fields map[string]interface{}) {
	o.createEntry(component, category, requestID, fields).Error(message)
}

// Request logs request-related events
func (o *ObservabilityLogger) Request(requestID, message string, fields map[string]interface{}) {
	o.Info(ComponentPipeline, CategoryRequest, requestID, message, fields)
}

// CircuitBreakerEvent logs circuit breaker state changes
func (o *ObservabilityLogger) CircuitBreakerEvent(requestID, endpoint, message string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["endpoint"] = endpoint
	o.Info(ComponentCircuitBreaker, CategoryHealth, requestID, message, fields)
}

// Compensation logs a local compensation recorded to the transformations
// log: key rotation, lenient tool-argument parsing, or response-shape
// defaulting.
func (o *ObservabilityLogger) Compensation(requestID, kind, message string, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["kind"] = kind
	o.Info(ComponentPipeline, CategoryTransformation, requestID, message, fields)
}

// KeyRotation logs an API key rotation triggered by a 401 response.
func (o *ObservabilityLogger) KeyRotation(requestID, providerName string, fromIndex, toIndex int) {
	o.Warn(ComponentUpstreamClient, CategoryFailover, requestID, "rotating API key after 401", map[string]interface{}{
		"provider":   providerName,
		"from_index": fromIndex,
		"to_index":   toIndex,
	})
}

