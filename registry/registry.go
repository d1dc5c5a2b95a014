// Package registry provides the uniform module lifecycle/health/metrics/
// message-passing surface every component in spec §4.1-§4.7 exposes, plus
// the observability event bus spec §4.5 says the registry owns
// (pipelineStarted, pipelineExecutionCompleted, pipelineExecutionFailed,
// moduleStatusChanged, moduleError). The teacher has no module registry —
// it wires one Handler directly in main() — so this is new, backed by the
// same logrus-based ObservabilityLogger and Prometheus-adjacent
// metrics.ModuleSnapshot the rest of this module already carries.
package registry

import (
	"context"
	"sync"
	"time"

	"llmproxy/apierror"
	"llmproxy/metrics"
)

// Status is a module's coarse health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Module is the uniform surface every registered component exposes per
// spec §4.8: identity, lifecycle, health, metrics, and inbound messaging.
type Module interface {
	ID() string
	Name() string
	Type() string
	Version() string

	Start() error
	Stop() error
	Reset() error
	Cleanup() error

	HealthCheck(ctx context.Context) error
	GetMetrics() metrics.ModuleSnapshot

	// Configure applies runtime configuration. Implementations reject a
	// second call once already configured, per spec §4.8's
	// pre-configured-modules-reject-runtime-configure rule.
	Configure(cfg map[string]interface{}) error

	// OnMessage handles an inbound message sent via SendToModule or
	// BroadcastToModules, named by the sender's module id.
	OnMessage(fromID string, payload interface{}) error
}

// BaseModule supplies the identity fields and the configured-once
// discipline every Module implementation embeds rather than re-writes.
type BaseModule struct {
	id      string
	name    string
	typ     string
	version string

	mu         sync.Mutex
	configured bool
}

// NewBaseModule returns an embeddable BaseModule with fixed identity.
func NewBaseModule(id, name, typ, version string) BaseModule {
	return BaseModule{id: id, name: name, typ: typ, version: version}
}

func (b *BaseModule) ID() string      { return b.id }
func (b *BaseModule) Name() string    { return b.name }
func (b *BaseModule) Type() string    { return b.typ }
func (b *BaseModule) Version() string { return b.version }

// Configure marks the module configured, rejecting a second call. A
// module with additional runtime-configurable fields calls this first and
// only applies its own fields if it returns nil.
func (b *BaseModule) Configure(map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.configured {
		return apierror.Newf(apierror.TypeValidation, "module %s is already configured, rejecting runtime reconfiguration", b.id)
	}
	b.configured = true
	return nil
}

// OnMessage is a no-op default; modules that act on peer messages override it.
func (b *BaseModule) OnMessage(string, interface{}) error { return nil }

// Event is one observability event emitted on the registry's bus.
type Event struct {
	Type     string
	ModuleID string
	Fields   map[string]interface{}
	At       time.Time
}

type obsLoggerIface interface {
	Info(component, category, requestID, message string, fields map[string]interface{})
	Warn(component, category, requestID, message string, fields map[string]interface{})
	Error(component, category, requestID, message string, fields map[string]interface{})
}

// Registry owns the set of registered modules, the connection graph
// between them, and the observability event bus.
type Registry struct {
	mu          sync.Mutex
	modules     map[string]Module
	order       []string
	connections map[string]map[string]bool

	subMu       sync.Mutex
	subscribers []func(Event)

	obsLogger obsLoggerIface
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		modules:     make(map[string]Module),
		connections: make(map[string]map[string]bool),
	}
}

// SetObservabilityLogger wires a structured logger for registry-level
// warnings (duplicate registration, rejected reconfiguration).
func (r *Registry) SetObservabilityLogger(obsLogger obsLoggerIface) {
	r.obsLogger = obsLogger
}

func (r *Registry) warn(message string, fields map[string]interface{}) {
	if r.obsLogger != nil {
		r.obsLogger.Warn("module_registry", "warning", "", message, fields)
	}
}

// Register adds a module under its own id, in declaration order. Start
// and Stop walk this order (Stop in reverse), per spec §4.5's lifecycle
// contract generalized to the whole module set.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.ID()]; exists {
		return apierror.Newf(apierror.TypeValidation, "module %s is already registered", m.ID())
	}
	r.modules[m.ID()] = m
	r.order = append(r.order, m.ID())
	r.connections[m.ID()] = make(map[string]bool)
	return nil
}

func (r *Registry) get(id string) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[id]
	if !ok {
		return nil, apierror.Newf(apierror.TypeNotFound, "module %s is not registered", id)
	}
	return m, nil
}

// Start starts every registered module in declaration order, halting on
// the first failure.
func (r *Registry) Start() error {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	for _, id := range order {
		m, err := r.get(id)
		if err != nil {
			return err
		}
		if err := m.Start(); err != nil {
			r.EmitEvent("moduleError", id, map[string]interface{}{"error": err.Error(), "phase": "start"})
			return err
		}
		r.EmitEvent("pipelineStarted", id, nil)
	}
	return nil
}

// Stop stops every registered module in reverse declaration order,
// collecting (not halting on) individual failures so a single stuck
// module can't prevent the rest from shutting down; the first error
// encountered, if any, is returned.
func (r *Registry) Stop() error {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	var first error
	for i := len(order) - 1; i >= 0; i-- {
		m, err := r.get(order[i])
		if err != nil {
			continue
		}
		if err := m.Stop(); err != nil {
			r.EmitEvent("moduleError", order[i], map[string]interface{}{"error": err.Error(), "phase": "stop"})
			if first == nil {
				first = err
			}
			continue
		}
		r.EmitEvent("moduleStatusChanged", order[i], map[string]interface{}{"status": "stopped"})
	}
	return first
}

// GetStatus reports a module's coarse health by running its health check
// under the caller's ctx; it applies no deadline of its own.
func (r *Registry) GetStatus(ctx context.Context, id string) (Status, error) {
	m, err := r.get(id)
	if err != nil {
		return "", err
	}
	if err := m.HealthCheck(ctx); err != nil {
		return StatusUnhealthy, nil
	}
	return StatusHealthy, nil
}

// HealthCheck runs one module's health check directly, surfacing its error.
func (r *Registry) HealthCheck(ctx context.Context, id string) error {
	m, err := r.get(id)
	if err != nil {
		return err
	}
	return m.HealthCheck(ctx)
}

// GetMetrics returns one module's in-process request/latency/error counters.
func (r *Registry) GetMetrics(id string) (metrics.ModuleSnapshot, error) {
	m, err := r.get(id)
	if err != nil {
		return metrics.ModuleSnapshot{}, err
	}
	return m.GetMetrics(), nil
}

// Configure applies runtime configuration to a registered module. A
// module that rejects reconfiguration (already configured) has the
// rejection logged as a warning here; the module's existing configuration
// is retained either way, since Configure never mutates state itself.
func (r *Registry) Configure(id string, cfg map[string]interface{}) error {
	m, err := r.get(id)
	if err != nil {
		return err
	}
	if err := m.Configure(cfg); err != nil {
		r.warn("rejected runtime reconfiguration of pre-configured module", map[string]interface{}{"moduleId": id, "error": err.Error()})
		return err
	}
	return nil
}

// AddConnection records an edge in the connection graph between two
// registered modules. The edge is undirected: either module can then
// message the other via SendToModule.
func (r *Registry) AddConnection(aID, bID string) error {
	if _, err := r.get(aID); err != nil {
		return err
	}
	if _, err := r.get(bID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[aID][bID] = true
	r.connections[bID][aID] = true
	return nil
}

// SendToModule delivers payload from fromID to toID, requiring a
// connection between them.
func (r *Registry) SendToModule(fromID, toID string, payload interface{}) error {
	r.mu.Lock()
	connected := r.connections[fromID][toID]
	r.mu.Unlock()
	if !connected {
		return apierror.Newf(apierror.TypeValidation, "no connection between module %s and %s", fromID, toID)
	}
	target, err := r.get(toID)
	if err != nil {
		return err
	}
	return target.OnMessage(fromID, payload)
}

// BroadcastToModules delivers payload from fromID to every module
// connected to it, returning one error per failed delivery (nil entries
// omitted).
func (r *Registry) BroadcastToModules(fromID string, payload interface{}) []error {
	r.mu.Lock()
	peers := make([]string, 0, len(r.connections[fromID]))
	for peer := range r.connections[fromID] {
		peers = append(peers, peer)
	}
	r.mu.Unlock()

	var errs []error
	for _, peer := range peers {
		if err := r.SendToModule(fromID, peer, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Subscribe registers fn to receive every event emitted on the bus.
func (r *Registry) Subscribe(fn func(Event)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// EmitEvent publishes one event to every subscriber. Satisfies
// pipeline.EventSink structurally, so a *Registry can be passed directly
// into pipeline.New without either package importing the other.
func (r *Registry) EmitEvent(eventType string, moduleID string, fields map[string]interface{}) {
	event := Event{Type: eventType, ModuleID: moduleID, Fields: fields, At: time.Now()}

	r.subMu.Lock()
	subs := make([]func(Event), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}
