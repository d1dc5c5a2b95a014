package config

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"llmproxy/circuitbreaker"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration consumed by the pipeline runner,
// router, and session-flow controller: a set of provider records, a router
// table, and protocol policy knobs, plus the ambient logging/override
// settings carried over from the proxy this module generalizes.
//
// Sources, in order of precedence: environment variables (API keys only),
// providers.yaml (provider records, router table, policy), optional
// tools_override.yaml and system_overrides.yaml, then built-in defaults.
type Config struct {
	Port string

	Providers []ProviderRecord
	Router    RouterTable
	Policy    ProtocolPolicy

	ToolDescriptions       map[string]string
	SystemMessageOverrides SystemMessageOverrides

	HealthManager *circuitbreaker.HealthManager

	keyIndex map[string]*int
	mutex    sync.Mutex

	obsLogger obsLoggerIface
}

type obsLoggerIface interface {
	Info(component, category, requestID, message string, fields map[string]interface{})
	Warn(component, category, requestID, message string, fields map[string]interface{})
	Error(component, category, requestID, message string, fields map[string]interface{})
}

// SetObservabilityLogger wires a structured logger into the config, and
// into its HealthManager for circuit breaker event logging.
func (c *Config) SetObservabilityLogger(obsLogger obsLoggerIface) {
	c.obsLogger = obsLogger
	if c.HealthManager != nil {
		c.HealthManager.SetObservabilityLogger(obsLogger)
	}
}

func (c *Config) logInfo(component, category, requestID, message string, fields map[string]interface{}) {
	if c.obsLogger != nil {
		c.obsLogger.Info(component, category, requestID, message, fields)
	}
}

func (c *Config) logWarn(component, category, requestID, message string, fields map[string]interface{}) {
	if c.obsLogger != nil {
		c.obsLogger.Warn(component, category, requestID, message, fields)
	}
}

// GetDefaultConfig returns a Config populated with conservative defaults
// and no configured providers, suitable for unit tests.
func GetDefaultConfig() *Config {
	return &Config{
		Port:                   "3456",
		Providers:              nil,
		Router:                 RouterTable{},
		Policy:                 DefaultProtocolPolicy(),
		ToolDescriptions:       make(map[string]string),
		SystemMessageOverrides: SystemMessageOverrides{},
		HealthManager:          circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig()),
		keyIndex:               make(map[string]*int),
	}
}

// providersYAML is the on-disk shape of providers.yaml.
type providersYAML struct {
	Port      string `yaml:"port"`
	Providers []struct {
		Name             string            `yaml:"name"`
		BaseURL          string            `yaml:"baseUrl"`
		APIKeyEnv        string            `yaml:"apiKeyEnv"`
		KeyStrategy      string            `yaml:"keyStrategy"`
		AuthMethod       string            `yaml:"authMethod"`
		AuthHeader       string            `yaml:"authHeader"`
		SupportedModels  []string          `yaml:"supportedModels"`
		MaxTokensByModel map[string]int    `yaml:"maxTokensByModel"`
		ModelNameMap     map[string]string `yaml:"modelNameMap"`
		Compat             string `yaml:"compat"`
		SkipAuthentication bool   `yaml:"skipAuthentication"`
		TimeoutSeconds     int    `yaml:"timeoutSeconds"`
		MaxRetries         int    `yaml:"maxRetries"`

		TemperatureMin float64 `yaml:"temperatureMin"`
		TemperatureMax float64 `yaml:"temperatureMax"`
		TopKMin        int     `yaml:"topKMin"`
		TopKMax        int     `yaml:"topKMax"`
		ContextWindow  int     `yaml:"contextWindow"`
		EnableThinking bool    `yaml:"enableThinking"`
	} `yaml:"providers"`
	Routes []struct {
		Label     string   `yaml:"label"`
		Category  string   `yaml:"category"`
		Pipelines []string `yaml:"pipelines"`
	} `yaml:"routes"`
	Policy struct {
		StreamConversionEnabled *bool `yaml:"streamConversionEnabled"`
		ValidationEnabled       *bool `yaml:"validationEnabled"`
		MaxRequestSize          int   `yaml:"maxRequestSize"`
		ConcurrencyLimit        int   `yaml:"concurrencyLimit"`
		RequestTimeoutSeconds   int   `yaml:"requestTimeoutSeconds"`
		MaxRetries              int   `yaml:"maxRetries"`
		RetryDelayMillis        int   `yaml:"retryDelayMillis"`
	} `yaml:"policy"`
}

// LoadConfigWithEnv loads providers.yaml (provider records, router table,
// policy knobs) plus environment variables for the API key(s) referenced by
// each provider's apiKeyEnv, matching the .env-for-secrets,
// YAML-for-structure split already used for tool and system overrides.
//
// A provider's APIKeyEnv may name a single variable or a comma-separated
// list of variables when multiple keys are configured for rotation.
func LoadConfigWithEnv() (*Config, error) {
	data, err := os.ReadFile("providers.yaml")
	if err != nil {
		return nil, fmt.Errorf("providers.yaml is required for configuration: %w", err)
	}

	var doc providersYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse providers.yaml: %w", err)
	}

	cfg := GetDefaultConfig()
	if doc.Port != "" {
		cfg.Port = doc.Port
	}

	for _, p := range doc.Providers {
		keys, err := resolveAPIKeys(p.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Name, err)
		}

		timeout := 3 * time.Minute
		if p.TimeoutSeconds > 0 {
			timeout = time.Duration(p.TimeoutSeconds) * time.Second
		}
		maxRetries := p.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 2
		}

		record := ProviderRecord{
			Name:               p.Name,
			BaseURL:            p.BaseURL,
			APIKeys:            keys,
			KeyStrategy:        KeyStrategy(orDefault(p.KeyStrategy, string(KeyStrategyRoundRobin))),
			AuthMethod:         AuthMethod(orDefault(p.AuthMethod, string(AuthBearer))),
			AuthHeader:         p.AuthHeader,
			SupportedModels:    p.SupportedModels,
			MaxTokensByModel:   p.MaxTokensByModel,
			ModelNameMap:       p.ModelNameMap,
			Compat:             ServerCompat(p.Compat),
			SkipAuthentication: p.SkipAuthentication,
			Timeout:            timeout,
			MaxRetries:         maxRetries,
			TemperatureMin:     p.TemperatureMin,
			TemperatureMax:     p.TemperatureMax,
			TopKMin:            p.TopKMin,
			TopKMax:            p.TopKMax,
			ContextWindow:      p.ContextWindow,
			EnableThinking:     p.EnableThinking,
		}
		cfg.Providers = append(cfg.Providers, record)

		idx := 0
		cfg.keyIndex[record.Name] = &idx

		cfg.logInfo("configuration", "request", "", "configured provider", map[string]interface{}{
			"name":     record.Name,
			"models":   record.SupportedModels,
			"keyCount": len(record.APIKeys),
		})
	}

	cfg.Router = RouterTable{}
	for _, r := range doc.Routes {
		cfg.Router[RouteKey{Label: r.Label, Category: r.Category}] = r.Pipelines
	}

	cfg.Policy = DefaultProtocolPolicy()
	if doc.Policy.StreamConversionEnabled != nil {
		cfg.Policy.StreamConversionEnabled = *doc.Policy.StreamConversionEnabled
	}
	if doc.Policy.ValidationEnabled != nil {
		cfg.Policy.ValidationEnabled = *doc.Policy.ValidationEnabled
	}
	if doc.Policy.MaxRequestSize > 0 {
		cfg.Policy.MaxRequestSize = doc.Policy.MaxRequestSize
	}
	if doc.Policy.ConcurrencyLimit > 0 {
		cfg.Policy.ConcurrencyLimit = doc.Policy.ConcurrencyLimit
	}
	if doc.Policy.RequestTimeoutSeconds > 0 {
		cfg.Policy.RequestTimeout = time.Duration(doc.Policy.RequestTimeoutSeconds) * time.Second
	}
	if doc.Policy.MaxRetries > 0 {
		cfg.Policy.MaxRetries = doc.Policy.MaxRetries
	}
	if doc.Policy.RetryDelayMillis > 0 {
		cfg.Policy.RetryDelay = time.Duration(doc.Policy.RetryDelayMillis) * time.Millisecond
	}

	toolDescriptions, err := LoadToolDescriptions()
	if err != nil {
		cfg.logWarn("configuration", "warning", "", "failed to load tools_override.yaml", map[string]interface{}{"error": err.Error()})
	} else {
		cfg.ToolDescriptions = toolDescriptions
	}

	systemOverrides, err := LoadSystemMessageOverrides()
	if err != nil {
		cfg.logWarn("configuration", "warning", "", "failed to load system_overrides.yaml", map[string]interface{}{"error": err.Error()})
	} else {
		cfg.SystemMessageOverrides = systemOverrides
	}

	var allEndpoints []string
	for _, p := range cfg.Providers {
		allEndpoints = append(allEndpoints, p.BaseURL)
	}
	cfg.HealthManager.InitializeEndpoints(allEndpoints)

	return cfg, nil
}

func resolveAPIKeys(envSpec string) ([]string, error) {
	if envSpec == "" {
		return nil, nil
	}
	names := strings.Split(envSpec, ",")
	keys := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		v := os.Getenv(name)
		if v == "" {
			return nil, fmt.Errorf("environment variable %s is not set", name)
		}
		keys = append(keys, v)
	}
	return keys, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// NextKey returns the next API key for the named provider by its
// configured rotation strategy. Returns "" if keys is empty.
func (c *Config) NextKey(providerName string, keys []string, strategy KeyStrategy) string {
	if len(keys) == 0 {
		return ""
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	idx, ok := c.keyIndex[providerName]
	if !ok {
		n := 0
		idx = &n
		c.keyIndex[providerName] = idx
	}

	var key string
	switch strategy {
	case KeyStrategyRandom:
		key = keys[rand.Intn(len(keys))]
		*idx++
	default:
		key = keys[*idx%len(keys)]
		*idx++
	}
	return key
}

// GetToolDescription returns an override description for toolName if
// configured, else originalDescription.
func (c *Config) GetToolDescription(toolName, originalDescription string) string {
	return GetToolDescription(c.ToolDescriptions, toolName, originalDescription)
}

// ApplySystemMessageOverrides runs the configured system-message
// transformations (pattern removal, replacements, prepend/append) over
// message.
func (c *Config) ApplySystemMessageOverrides(message string) string {
	return ApplySystemMessageOverrides(message, c.SystemMessageOverrides)
}

// IsEndpointHealthy reports whether the circuit breaker considers the
// endpoint eligible for requests.
func (c *Config) IsEndpointHealthy(endpoint string) bool {
	return c.HealthManager.IsHealthy(endpoint)
}

// RecordEndpointFailure registers a failed call against the endpoint's
// circuit breaker state.
func (c *Config) RecordEndpointFailure(endpoint string) {
	c.HealthManager.RecordFailure(endpoint)
}

// RecordEndpointSuccess registers a successful call against the endpoint's
// circuit breaker state.
func (c *Config) RecordEndpointSuccess(endpoint string) {
	c.HealthManager.RecordSuccess(endpoint)
}
