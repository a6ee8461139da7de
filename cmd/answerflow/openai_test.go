package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/llm"
	"github.com/BaSui01/answerflow/types"
)

func testClient(t *testing.T, handler http.HandlerFunc) *openAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := newOpenAIClient("gpt-4o", zap.NewNop())
	client.baseURL = srv.URL
	client.apiKey = "test-key"
	return client
}

func TestChat_RoundTrip(t *testing.T) {
	var gotAuth string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	})

	out, err := client.Generate(context.Background(), llm.GenerateRequest{
		Question:    "q",
		RoundNumber: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestChat_RateLimitIsRetryable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.chat(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimit, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestChat_ServerErrorIsRetryable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.chat(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestChat_ClientErrorIsTerminal(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.chat(context.Background(), "s", "u")
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err), "4xx 不重试")
}

func TestScore_ParsesAndClamps(t *testing.T) {
	responses := []string{"4.5", "7", "-1", "not a number"}
	idx := 0
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"` + responses[idx] + `"}}]}`))
		idx++
	})

	score, err := client.Score(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, score, 1e-9)

	score, err = client.Score(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, score, 1e-9, "量表上限 5")

	score, err = client.Score(context.Background(), "q", "a")
	require.NoError(t, err)
	assert.Zero(t, score, "量表下限 0")

	_, err = client.Score(context.Background(), "q", "a")
	require.Error(t, err)
}

func TestEmbed(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	})

	vec, err := client.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}
