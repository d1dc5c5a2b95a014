package config

import "time"

// KeyStrategy selects how a provider with multiple API keys picks one for
// an outbound request.
type KeyStrategy string

const (
	KeyStrategyRoundRobin KeyStrategy = "round_robin"
	KeyStrategyRandom     KeyStrategy = "random"
)

// AuthMethod identifies how a provider expects credentials attached to a
// request.
type AuthMethod string

const (
	// AuthBearer sets "Authorization: Bearer <key>".
	AuthBearer AuthMethod = "bearer"
	// AuthHeader sets an arbitrary header name to the raw key value, e.g.
	// Gemini's x-goog-api-key.
	AuthHeader AuthMethod = "header"
)

// ServerCompat names a server-compat adapter policy (§4.3). Providers that
// don't set one get the generic OpenAI-compatible policy.
type ServerCompat string

const (
	CompatGeneric  ServerCompat = ""
	CompatDeepSeek ServerCompat = "deepseek"
	CompatLMStudio ServerCompat = "lmstudio"
	CompatOllama   ServerCompat = "ollama"
	CompatVLLM     ServerCompat = "vllm"
	CompatIFlow    ServerCompat = "iflow"
	CompatGemini   ServerCompat = "gemini"
)

// ProviderRecord describes one upstream provider: where it lives, how to
// authenticate to it, which models it serves, and which server-compat
// quirks its adapter must apply.
type ProviderRecord struct {
	Name    string
	BaseURL string

	APIKeys     []string
	KeyStrategy KeyStrategy

	AuthMethod AuthMethod
	AuthHeader string // header name when AuthMethod == AuthHeader

	SupportedModels []string
	MaxTokensByModel map[string]int
	ModelNameMap     map[string]string

	Compat ServerCompat

	// SkipAuthentication bypasses the upstream client's credential probe
	// for providers with no lightweight model-list endpoint to probe.
	SkipAuthentication bool
	Timeout            time.Duration
	MaxRetries         int

	// TemperatureMin/TemperatureMax bound the sampling temperature an
	// adapter clamps into, e.g. iFlow's configured [min, max] range. Zero
	// for both means "use the adapter's own default range".
	TemperatureMin float64
	TemperatureMax float64

	// TopKMin/TopKMax bound a derived top_k value (iFlow: clamp(temperature
	// * topK.max, topK.min, topK.max) when the caller left top_k unset).
	// Zero for both means "use the adapter's own default range".
	TopKMin int
	TopKMax int

	// ContextWindow is the provider's configured context size in tokens,
	// used to derive a per-model max_tokens cap (LM Studio: min(context/4,
	// 4096)) when MaxTokensByModel has no entry for the model. Zero means
	// "no context window configured".
	ContextWindow int

	// EnableThinking requests a Gemini-native provider enable its
	// thinking/reasoning trace via generationConfig.thinkingConfig.
	EnableThinking bool
}

// TemperatureRange returns this provider's configured [min, max] sampling
// range, falling back to (defaultMin, defaultMax) when unconfigured.
func (p ProviderRecord) TemperatureRange(defaultMin, defaultMax float64) (float64, float64) {
	if p.TemperatureMin == 0 && p.TemperatureMax == 0 {
		return defaultMin, defaultMax
	}
	return p.TemperatureMin, p.TemperatureMax
}

// TopKRange returns this provider's configured [min, max] top_k range,
// falling back to (defaultMin, defaultMax) when unconfigured.
func (p ProviderRecord) TopKRange(defaultMin, defaultMax int) (int, int) {
	if p.TopKMin == 0 && p.TopKMax == 0 {
		return defaultMin, defaultMax
	}
	return p.TopKMin, p.TopKMax
}

// MaxTokensCap returns the per-model max_tokens ceiling to apply when
// MaxTokensByModel has no entry for model: min(ContextWindow/4, fallback)
// when a context window is configured, else fallback.
func (p ProviderRecord) MaxTokensCap(model string, fallback int) int {
	if cap := p.MaxTokensFor(model); cap > 0 {
		return cap
	}
	if p.ContextWindow <= 0 {
		return fallback
	}
	derived := p.ContextWindow / 4
	if derived > fallback {
		return fallback
	}
	return derived
}

// ResolveModel maps a client-requested virtual model label (e.g.
// "default", "reasoning", "longContext", "webSearch", "background") or a
// concrete model name to the model name this provider actually serves.
// LM Studio-style virtual labels resolve to the first configured supported
// model unless ModelNameMap gives an explicit mapping.
func (p ProviderRecord) ResolveModel(requested string) string {
	if mapped, ok := p.ModelNameMap[requested]; ok {
		return mapped
	}
	for _, m := range p.SupportedModels {
		if m == requested {
			return requested
		}
	}
	if len(p.SupportedModels) > 0 {
		return p.SupportedModels[0]
	}
	return requested
}

// MaxTokensFor returns the configured max-tokens ceiling for a model, or 0
// if none is configured (meaning no clamp applies).
func (p ProviderRecord) MaxTokensFor(model string) int {
	if p.MaxTokensByModel == nil {
		return 0
	}
	return p.MaxTokensByModel[model]
}
