package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"llmproxy/adapter"
	"llmproxy/apierror"
	"llmproxy/circuitbreaker"
	"llmproxy/config"
	"llmproxy/types"
	"llmproxy/upstreamclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDecision(baseURL string) adapter.RoutingDecision {
	return adapter.RoutingDecision{
		PipelineID: "acme-gpt-key0",
		Provider: config.ProviderRecord{
			Name:    "acme",
			BaseURL: baseURL,
			APIKeys: []string{"k1"},
		},
		Model: "gpt-test",
	}
}

func constKey(k string) func() string {
	return func() string { return k }
}

func clientRequestRaw(t *testing.T, req types.ClientRequest) types.RawMessage {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	var raw types.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	return raw
}

func TestPipeline_SealedMutationsFail(t *testing.T) {
	p := New("acme-gpt-key0", testDecision(""), upstreamclient.New(circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())), constKey("k1"), config.DefaultProtocolPolicy(), nil, nil)

	for _, err := range []error{
		p.AddModule(ModuleAdapter),
		p.RemoveModule(ModuleAdapter),
		p.SetModuleOrder(ModuleOrder),
	} {
		apiErr, ok := apierror.As(err)
		require.True(t, ok)
		assert.Equal(t, apierror.TypePipelineSealed, apiErr.ErrType)
	}
}

func TestPipeline_ExecuteRejectsWhenNotRunning(t *testing.T) {
	p := New("acme-gpt-key0", testDecision(""), upstreamclient.New(circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())), constKey("k1"), config.DefaultProtocolPolicy(), nil, nil)

	raw := clientRequestRaw(t, types.ClientRequest{Model: "gpt-test", Messages: []types.ClientMessage{{Role: "user", Content: "hi"}}})
	_, _, _, err := p.Execute(context.Background(), raw, 100)

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.TypeModuleNotRunning, apiErr.ErrType)
}

func TestPipeline_ExecuteHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		resp := types.OpenAIResponse{
			ID:     "chatcmpl-1",
			Object: "chat.completion",
			Model:  "gpt-test",
			Choices: []types.OpenAIChoice{{
				Index:   0,
				Message: types.OpenAIMessage{Role: "assistant", Content: "hello there"},
			}},
			Usage: types.OpenAIUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	health := circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())
	p := New("acme-gpt-key0", testDecision(srv.URL), upstreamclient.New(health), constKey("k1"), config.DefaultProtocolPolicy(), nil, nil)
	require.NoError(t, p.Start())

	raw := clientRequestRaw(t, types.ClientRequest{
		Model:    "gpt-test",
		Messages: []types.ClientMessage{{Role: "user", Content: "hi"}},
	})

	clientResp, streamChunks, result, err := p.Execute(context.Background(), raw, len(mustJSON(t, raw)))
	require.NoError(t, err)
	assert.Nil(t, streamChunks)
	require.True(t, result.Success)
	require.Len(t, clientResp.Content, 1)
	assert.Equal(t, "hello there", clientResp.Content[0].Text)
	assert.Equal(t, "end_turn", clientResp.StopReason)

	for _, id := range ModuleOrder {
		mr, ok := result.Modules[id]
		require.True(t, ok, "missing module result for %s", id)
		assert.Nil(t, mr.Err)
	}
}

func TestPipeline_ExecuteAppliesSystemMessagePolicy(t *testing.T) {
	var capturedSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.OpenAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, m := range req.Messages {
			if m.Role == "system" {
				capturedSystem = m.Content
			}
		}
		w.WriteHeader(http.StatusOK)
		resp := types.OpenAIResponse{
			ID:      "chatcmpl-1",
			Object:  "chat.completion",
			Model:   "gpt-test",
			Choices: []types.OpenAIChoice{{Index: 0, Message: types.OpenAIMessage{Role: "assistant", Content: "ok"}}},
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	health := circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())
	p := New("acme-gpt-key0", testDecision(srv.URL), upstreamclient.New(health), constKey("k1"), config.DefaultProtocolPolicy(), nil, nil).
		WithSystemMessagePolicy(func(s string) string { return "[house style] " + s })
	require.NoError(t, p.Start())

	raw := clientRequestRaw(t, types.ClientRequest{
		Model:    "gpt-test",
		System:   []types.SystemContent{{Type: "text", Text: "be terse"}},
		Messages: []types.ClientMessage{{Role: "user", Content: "hi"}},
	})

	_, _, result, err := p.Execute(context.Background(), raw, len(mustJSON(t, raw)))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "[house style] be terse", capturedSystem)
}

func TestPipeline_ExecuteExpandsStreamWhenClientAsksForOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		resp := types.OpenAIResponse{
			Choices: []types.OpenAIChoice{{Message: types.OpenAIMessage{Role: "assistant", Content: "hi"}}},
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer srv.Close()

	health := circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())
	p := New("acme-gpt-key0", testDecision(srv.URL), upstreamclient.New(health), constKey("k1"), config.DefaultProtocolPolicy(), nil, nil)
	require.NoError(t, p.Start())

	raw := clientRequestRaw(t, types.ClientRequest{
		Model:    "gpt-test",
		Messages: []types.ClientMessage{{Role: "user", Content: "hi"}},
		Stream:   true,
	})

	_, streamChunks, result, err := p.Execute(context.Background(), raw, 100)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, streamChunks)
	assert.Equal(t, "assistant", streamChunks[0].Choices[0].Delta.Role)
	last := streamChunks[len(streamChunks)-1]
	require.NotNil(t, last.Choices[0].FinishReason)
}

func TestPipeline_ExecuteFailsFastOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	health := circuitbreaker.NewHealthManager(circuitbreaker.DefaultConfig())
	p := New("acme-gpt-key0", testDecision(srv.URL), upstreamclient.New(health), constKey("k1"), config.DefaultProtocolPolicy(), nil, nil)
	require.NoError(t, p.Start())

	raw := clientRequestRaw(t, types.ClientRequest{
		Model:    "gpt-test",
		Messages: []types.ClientMessage{{Role: "user", Content: "hi"}},
	})

	_, _, result, err := p.Execute(context.Background(), raw, 100)
	require.Error(t, err)
	require.False(t, result.Success)

	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.TypeAPI, apiErr.ErrType)

	upstreamResult := result.Modules[ModuleUpstream]
	require.Error(t, upstreamResult.Err)

	require.Len(t, result.Context.Errors(), 1)
	assert.Equal(t, ModuleUpstream, result.Context.Errors()[0].Module)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
