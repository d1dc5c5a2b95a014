package pipeline

import (
	"sync"
	"time"
)

// TransformationEntry is one recorded compensation applied during a
// pipeline execution: a tool-schema repair, an empty-placeholder
// synthesis, a key rotation, a lenient tool-argument parse, or any other
// local fix-up a module applied instead of failing the request outright.
type TransformationEntry struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	At      time.Time              `json:"at"`
}

// ModuleError pairs the module that failed with the error it raised.
type ModuleError struct {
	Module ModuleID `json:"module"`
	Err    string   `json:"error"`
	At     time.Time `json:"at"`
}

// Context is the per-execution state threaded through one pipeline run:
// the transformations log every module's compensations are recorded to,
// the routing metadata the server-compat adapter writes for the upstream
// client to read, and the error log a failed stage appends to before the
// error propagates to the caller.
//
// A Context satisfies dialect.TransformationRecorder and
// adapter.MetadataSink by structural typing — it imports neither package,
// keeping those packages independent of the pipeline that wires them
// together.
type Context struct {
	RequestID string

	mu              sync.Mutex
	transformations []TransformationEntry
	metadata        map[string]interface{}
	errors          []ModuleError
}

// NewContext returns an empty Context for one pipeline execution.
func NewContext(requestID string) *Context {
	return &Context{RequestID: requestID, metadata: make(map[string]interface{})}
}

// Record appends one transformation log entry. Safe for concurrent use,
// though in practice a single execution's stages run sequentially.
func (c *Context) Record(kind, message string, fields map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transformations = append(c.transformations, TransformationEntry{
		Kind:    kind,
		Message: message,
		Fields:  fields,
		At:      time.Now(),
	})
}

// Set writes one routing-metadata key, overwriting any existing value.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Get reads one routing-metadata key.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

// AddError appends a module failure to the error log. Execution has
// already stopped by the time this is called (failFast); it exists for
// audit trails and the ConversationLogger hook, not for retry logic.
func (c *Context) AddError(module ModuleID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, ModuleError{Module: module, Err: err.Error(), At: time.Now()})
}

// Transformations returns a copy of the recorded transformation log.
func (c *Context) Transformations() []TransformationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TransformationEntry, len(c.transformations))
	copy(out, c.transformations)
	return out
}

// Errors returns a copy of the recorded module error log.
func (c *Context) Errors() []ModuleError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ModuleError, len(c.errors))
	copy(out, c.errors)
	return out
}
