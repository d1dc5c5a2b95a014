package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"llmproxy/types"
)

// ConversationLogger writes one JSON line per pipeline execution (and one
// per stage failure) to a session log file: the incoming client-dialect
// request, the outgoing response, and the transformations log recorded
// during translation. Generalizes the teacher's logger/conversation.go,
// dropping its tool-correction-specific LogToolCall/LogCorrection entries
// (this module has no correction loop) in favor of the transformations
// log already carried on every Context. Gated off by default — a nil
// *ConversationLogger is the common case and every pipeline call site
// nil-checks before calling it.
type ConversationLogger struct {
	sessionID     string
	file          *os.File
	mu            sync.Mutex
	maskSensitive bool
	logFullTools  bool
	truncation    int
}

// ConversationLoggerConfig controls what a ConversationLogger records and
// how verbosely.
type ConversationLoggerConfig struct {
	LogDir        string
	MaskSensitive bool
	LogFullTools  bool
	Truncation    int
}

// NewConversationLogger opens a session log file under cfg.LogDir and
// returns a logger ready to record executions. Returns an error only for
// filesystem failures; callers that want the hook gated off simply don't
// construct one and pass nil to pipeline.New.
func NewConversationLogger(cfg ConversationLoggerConfig) (*ConversationLogger, error) {
	sessionID := generateSessionID()
	filename := fmt.Sprintf("conversation-%s-%s.log", sessionID, time.Now().Format("20060102-150405"))

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation log directory: %w", err)
	}

	path := filepath.Join(cfg.LogDir, filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation log file %s: %w", path, err)
	}

	cl := &ConversationLogger{
		sessionID:     sessionID,
		file:          file,
		maskSensitive: cfg.MaskSensitive,
		logFullTools:  cfg.LogFullTools,
		truncation:    cfg.Truncation,
	}
	cl.writeEntry("SESSION", map[string]interface{}{
		"event":      "session_start",
		"session_id": sessionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"log_file":   path,
	})
	return cl, nil
}

func generateSessionID() string {
	return fmt.Sprintf("session_%d", time.Now().UnixNano()%100000)
}

// LogSuccess records one completed pipeline execution: the request, the
// response, and whatever compensations the transformations log recorded.
func (cl *ConversationLogger) LogSuccess(requestID, pipelineID string, req types.ClientRequest, resp types.ClientResponse, transformations []TransformationEntry) {
	if cl == nil {
		return
	}
	cl.writeEntry("EXECUTION", map[string]interface{}{
		"event":           "execution_succeeded",
		"session_id":      cl.sessionID,
		"request_id":      requestID,
		"pipeline_id":     pipelineID,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"request":         cl.prepare(req),
		"response":        cl.prepare(resp),
		"transformations": transformations,
	})
}

// LogFailure records a pipeline execution that halted on a module error.
func (cl *ConversationLogger) LogFailure(requestID, pipelineID string, failedModule ModuleID, err error) {
	if cl == nil {
		return
	}
	cl.writeEntry("EXECUTION", map[string]interface{}{
		"event":       "execution_failed",
		"session_id":  cl.sessionID,
		"request_id":  requestID,
		"pipeline_id": pipelineID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"module":      string(failedModule),
		"error":       err.Error(),
	})
}

// prepare renders v through the mask/tool-collapse/truncate passes a
// logged request or response goes through, in that order, matching the
// teacher's pipeline.
func (cl *ConversationLogger) prepare(v interface{}) interface{} {
	data := cl.roundTrip(v)
	if cl.maskSensitive {
		cl.maskSensitiveFields(data)
	}
	if !cl.logFullTools {
		cl.collapseTools(data)
	}
	if cl.truncation > 0 {
		cl.truncateStrings(data)
	}
	return data
}

// roundTrip serializes and re-parses v into a plain interface{} tree so
// the mutation passes below can walk it generically.
func (cl *ConversationLogger) roundTrip(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

func (cl *ConversationLogger) maskSensitiveFields(data interface{}) {
	switch v := data.(type) {
	case map[string]interface{}:
		for key, value := range v {
			if isSensitiveField(key) {
				v[key] = "***"
			} else {
				cl.maskSensitiveFields(value)
			}
		}
	case []interface{}:
		for _, item := range v {
			cl.maskSensitiveFields(item)
		}
	}
}

var sensitiveFieldNames = map[string]bool{
	"api_key": true, "apikey": true, "key": true, "token": true,
	"secret": true, "password": true, "auth": true,
	"authorization": true, "bearer": true, "x-api-key": true,
}

func isSensitiveField(name string) bool {
	return sensitiveFieldNames[name]
}

// collapseTools replaces a "tools" array with just its tool names, so a
// log line doesn't carry every tool's full JSON schema on every request.
func (cl *ConversationLogger) collapseTools(data interface{}) {
	switch v := data.(type) {
	case map[string]interface{}:
		for key, value := range v {
			if key == "tools" {
				if tools, ok := value.([]interface{}); ok {
					names := make([]string, 0, len(tools))
					for _, t := range tools {
						if tm, ok := t.(map[string]interface{}); ok {
							if name, ok := tm["name"].(string); ok {
								names = append(names, name)
							}
						}
					}
					v[key] = names
					continue
				}
			}
			cl.collapseTools(value)
		}
	case []interface{}:
		for _, item := range v {
			cl.collapseTools(item)
		}
	}
}

// truncateStrings truncates every "content"/"text" field to cl.truncation
// bytes, keeping the beginning and end and eliding the middle.
func (cl *ConversationLogger) truncateStrings(data interface{}) {
	switch v := data.(type) {
	case map[string]interface{}:
		for key, value := range v {
			if (key == "content" || key == "text") {
				if s, ok := value.(string); ok {
					v[key] = cl.truncateString(s)
					continue
				}
			}
			cl.truncateStrings(value)
		}
	case []interface{}:
		for _, item := range v {
			cl.truncateStrings(item)
		}
	}
}

func (cl *ConversationLogger) truncateString(s string) string {
	if cl.truncation <= 0 || len(s) <= cl.truncation {
		return s
	}
	if cl.truncation < 5 {
		return s[:cl.truncation]
	}
	half := (cl.truncation - 5) / 2
	if half < 1 {
		half = 1
	}
	return s[:half] + " ... " + s[len(s)-half:]
}

func (cl *ConversationLogger) writeEntry(category string, data map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return
	}

	line := map[string]interface{}{"category": category, "data": data}
	b, err := json.Marshal(line)
	if err != nil {
		return
	}
	cl.file.Write(append(b, '\n'))
	cl.file.Sync()
}

// Close writes a session_end marker and closes the underlying file.
func (cl *ConversationLogger) Close() error {
	if cl == nil || cl.file == nil {
		return nil
	}
	cl.writeEntry("SESSION", map[string]interface{}{
		"event":      "session_end",
		"session_id": cl.sessionID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.file.Close()
}
