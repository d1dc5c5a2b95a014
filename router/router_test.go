package router

import (
	"strings"
	"testing"

	"llmproxy/apierror"
	"llmproxy/circuitbreaker"
	"llmproxy/config"
	"llmproxy/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Providers = []config.ProviderRecord{
		{Name: "acme", BaseURL: "https://acme.example/v1/chat/completions", APIKeys: []string{"k0", "k1"}, SupportedModels: []string{"gpt-test"}},
		{Name: "gemini-cli", BaseURL: "https://gemini.example/v1beta", APIKeys: []string{"gk0"}, SupportedModels: []string{"gemini-pro"}},
	}
	cfg.Router = config.RouterTable{
		{Label: "default"}:                      {"acme-gpt-test-key0"},
		{Label: "default", Category: "webSearch"}: {"gemini-cli-gemini-pro-key0"},
		{Label: "nohealth"}:                      {"acme-gpt-test-key1", "acme-gpt-test-key0"},
	}
	cfg.HealthManager = circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())
	return cfg
}

func TestClassifyCategory_WebSearchTool(t *testing.T) {
	req := types.ClientRequest{Tools: []types.Tool{{Name: "web_search"}}}
	assert.Equal(t, CategoryWebSearch, ClassifyCategory(req))
}

func TestClassifyCategory_LongContext(t *testing.T) {
	req := types.ClientRequest{Messages: []types.ClientMessage{{Role: "user", Content: strings.Repeat("x", longContextTokenThreshold*4+40)}}}
	assert.Equal(t, CategoryLongContext, ClassifyCategory(req))
}

func TestClassifyCategory_ModelHints(t *testing.T) {
	assert.Equal(t, CategoryReasoning, ClassifyCategory(types.ClientRequest{Model: "deep-reasoning-v2"}))
	assert.Equal(t, CategoryBackground, ClassifyCategory(types.ClientRequest{Model: "background-worker"}))
	assert.Equal(t, CategoryDefault, ClassifyCategory(types.ClientRequest{Model: "gpt-test"}))
}

func TestRouter_RouteReturnsFirstHealthyCandidate(t *testing.T) {
	r := New(testConfig())

	decision, err := r.Route("default", types.ClientRequest{Model: "gpt-test"})
	require.NoError(t, err)
	assert.Equal(t, "acme-gpt-test-key0", decision.PipelineID)
	assert.Equal(t, "acme", decision.Provider.Name)
	assert.Equal(t, "gpt-test", decision.Model)
	assert.Equal(t, "k0", decision.APIKey)
}

func TestRouter_RouteClassifiesWebSearchCategory(t *testing.T) {
	r := New(testConfig())

	req := types.ClientRequest{Model: "gpt-test", Tools: []types.Tool{{Name: "web_search"}}}
	decision, err := r.Route("default", req)
	require.NoError(t, err)
	assert.Equal(t, "gemini-cli-gemini-pro-key0", decision.PipelineID)
	assert.Equal(t, "gemini-cli", decision.Provider.Name)
}

func TestRouter_RouteSkipsUnhealthyCandidate(t *testing.T) {
	cfg := testConfig()
	cfg.HealthManager.RecordFailure("https://acme.example/v1/chat/completions")
	cfg.HealthManager.RecordFailure("https://acme.example/v1/chat/completions")
	r := New(cfg)

	_, err := r.Route("nohealth", types.ClientRequest{Model: "gpt-test"})
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.TypeNoHealthyPipe, apiErr.ErrType)
}

func TestRouter_RouteFailsWhenLabelUnconfigured(t *testing.T) {
	r := New(testConfig())

	_, err := r.Route("missing", types.ClientRequest{Model: "gpt-test"})
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.TypeNoHealthyPipe, apiErr.ErrType)
}
