package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"llmproxy/adapter"
	"llmproxy/circuitbreaker"
	"llmproxy/config"
	"llmproxy/pipeline"
	"llmproxy/types"
	"llmproxy/upstreamclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineModule_ExecuteRecordsMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		resp := types.OpenAIResponse{Choices: []types.OpenAIChoice{{Message: types.OpenAIMessage{Role: "assistant", Content: "hi"}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	decision := adapter.RoutingDecision{
		PipelineID: "acme-gpt-key0",
		Provider:   config.ProviderRecord{Name: "acme", BaseURL: srv.URL, APIKeys: []string{"k1"}},
		Model:      "gpt-test",
	}
	health := circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())
	p := pipeline.New("acme-gpt-key0", decision, upstreamclient.New(health), func() string { return "k1" }, config.DefaultProtocolPolicy(), nil, nil)

	m := NewPipelineModule("acme-gpt-key0", p)
	require.NoError(t, m.Start())

	snapshot := m.GetMetrics()
	assert.Equal(t, int64(0), snapshot.RequestsProcessed)

	b, err := json.Marshal(types.ClientRequest{Model: "gpt-test", Messages: []types.ClientMessage{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	var raw types.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))

	_, _, result, err := m.Execute(context.Background(), raw, len(b))
	require.NoError(t, err)
	require.True(t, result.Success)

	snapshot = m.GetMetrics()
	assert.Equal(t, int64(1), snapshot.RequestsProcessed)
	assert.Equal(t, 0.0, snapshot.ErrorRate)
}
