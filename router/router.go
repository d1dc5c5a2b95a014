// Package router maps an incoming (model label, routing category) pair to
// a concrete, healthy pipeline (spec §4.6). Generalizes the teacher's
// selectProvider/isBigModelEndpoint two-way branch (proxy/handler.go) —
// which only ever chose between one big-model and one small-model
// endpoint — into an arbitrary label/category table over any number of
// provider-model-key pipelines.
package router

import (
	"strings"

	"llmproxy/adapter"
	"llmproxy/apierror"
	"llmproxy/circuitbreaker"
	"llmproxy/config"
	"llmproxy/types"
)

// Routing categories classified from request features, per spec §4.6.
const (
	CategoryDefault     = "default"
	CategoryReasoning   = "reasoning"
	CategoryLongContext = "longContext"
	CategoryWebSearch   = "webSearch"
	CategoryBackground  = "background"
)

// longContextTokenThreshold is the token-count heuristic boundary for
// classifying a request as long-context. Token count is estimated as
// chars/4, matching the rough estimator the teacher's harmony fix-up code
// uses elsewhere for budget checks.
const longContextTokenThreshold = 60000

type obsLoggerIface interface {
	Warn(component, category, requestID, message string, fields map[string]interface{})
}

// Router owns the router table and the provider set it resolves pipeline
// IDs against, plus the shared health manager it consults when skipping
// unhealthy candidates.
type Router struct {
	table     config.RouterTable
	providers map[string]config.ProviderRecord
	health    *circuitbreaker.HealthManager
	obsLogger obsLoggerIface
}

// New builds a Router from a loaded Config.
func New(cfg *config.Config) *Router {
	providers := make(map[string]config.ProviderRecord, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name] = p
	}
	return &Router{
		table:     cfg.Router,
		providers: providers,
		health:    cfg.HealthManager,
	}
}

// SetObservabilityLogger wires a structured logger for routing warnings
// (misconfigured pipeline ids, skipped candidates).
func (r *Router) SetObservabilityLogger(obsLogger obsLoggerIface) {
	r.obsLogger = obsLogger
}

func (r *Router) warn(message string, fields map[string]interface{}) {
	if r.obsLogger != nil {
		r.obsLogger.Warn("router", "routing", "", message, fields)
	}
}

// Route classifies req's routing category and returns the first healthy
// pipeline eligible to serve (label, category), per spec §4.6. Fails with
// no_healthy_pipeline if the table has no entry for the pair, or every
// candidate pipeline is unhealthy or misconfigured.
func (r *Router) Route(label string, req types.ClientRequest) (adapter.RoutingDecision, error) {
	category := ClassifyCategory(req)

	ids, ok := r.table.Lookup(label, category)
	if !ok || len(ids) == 0 {
		return adapter.RoutingDecision{}, apierror.Newf(apierror.TypeNoHealthyPipe,
			"no pipeline configured for model label %q category %q", label, category)
	}

	// Periodically reorder candidates so a pipeline whose endpoint has been
	// failing is tried after its healthier siblings, without changing the
	// configured table itself.
	ordered := append([]string(nil), ids...)
	r.health.ReorderBySuccess(ordered, r.endpointKeyFor, label)

	for _, id := range ordered {
		decision, ok := r.resolve(id)
		if !ok {
			continue
		}
		return decision, nil
	}

	return adapter.RoutingDecision{}, apierror.Newf(apierror.TypeNoHealthyPipe,
		"no healthy pipeline available for model label %q category %q", label, category)
}

// endpointKeyFor resolves a pipeline id to the endpoint URL its health and
// success rate are tracked under, for HealthManager.ReorderBySuccess. An
// id that fails to parse or names an unknown provider reorders as if
// perfectly healthy with a neutral success rate (resolve rejects it on the
// real pass anyway).
func (r *Router) endpointKeyFor(id string) string {
	parsed, err := config.ParsePipelineID(id)
	if err != nil {
		return id
	}
	provider, ok := r.providers[parsed.Provider]
	if !ok {
		return id
	}
	return provider.BaseURL
}

// resolve parses one pipeline id and builds its RoutingDecision, skipping
// (returning ok=false) a candidate that is misconfigured or unhealthy
// rather than failing the whole Route call — the caller tries the next
// candidate in the eligible set.
func (r *Router) resolve(id string) (adapter.RoutingDecision, bool) {
	parsed, err := config.ParsePipelineID(id)
	if err != nil {
		r.warn("skipping malformed pipeline id", map[string]interface{}{"pipelineId": id, "error": err.Error()})
		return adapter.RoutingDecision{}, false
	}

	provider, ok := r.providers[parsed.Provider]
	if !ok {
		r.warn("skipping pipeline id with unknown provider", map[string]interface{}{"pipelineId": id, "provider": parsed.Provider})
		return adapter.RoutingDecision{}, false
	}

	if !r.health.IsHealthy(provider.BaseURL) {
		return adapter.RoutingDecision{}, false
	}

	if parsed.KeyIndex < 0 || parsed.KeyIndex >= len(provider.APIKeys) {
		r.warn("skipping pipeline id with out-of-range key index", map[string]interface{}{"pipelineId": id, "keyIndex": parsed.KeyIndex, "keyCount": len(provider.APIKeys)})
		return adapter.RoutingDecision{}, false
	}

	return adapter.RoutingDecision{
		PipelineID: id,
		Provider:   provider,
		Model:      provider.ResolveModel(parsed.Model),
		KeyIndex:   parsed.KeyIndex,
		APIKey:     provider.APIKeys[parsed.KeyIndex],
	}, true
}

// ClassifyCategory derives a routing category from request features per
// spec §4.6: an explicit web-search tool wins first, then a token-count
// heuristic for long context, then a model-label hint for reasoning or
// background work, else default.
func ClassifyCategory(req types.ClientRequest) string {
	for _, tool := range req.Tools {
		if strings.Contains(strings.ToLower(tool.Name), "web_search") || strings.Contains(strings.ToLower(tool.Name), "websearch") {
			return CategoryWebSearch
		}
	}

	if estimateTokens(req) > longContextTokenThreshold {
		return CategoryLongContext
	}

	model := strings.ToLower(req.Model)
	switch {
	case strings.Contains(model, "reasoning") || strings.Contains(model, "think"):
		return CategoryReasoning
	case strings.Contains(model, "background"):
		return CategoryBackground
	default:
		return CategoryDefault
	}
}

// estimateTokens approximates the request's token count as chars/4 over
// its system prompt and message content, cheap enough to run on every
// request without a real tokenizer.
func estimateTokens(req types.ClientRequest) int {
	chars := 0
	for _, s := range req.System {
		chars += len(s.Text)
	}
	for _, m := range req.Messages {
		chars += contentChars(m.Content)
	}
	return chars / 4
}

func contentChars(content interface{}) int {
	switch c := content.(type) {
	case string:
		return len(c)
	case []interface{}:
		total := 0
		for _, block := range c {
			m, ok := block.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok {
				total += len(text)
			}
		}
		return total
	case []types.Content:
		total := 0
		for _, block := range c {
			total += len(block.Text)
		}
		return total
	default:
		return 0
	}
}
