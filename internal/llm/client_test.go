package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-chat/backend/pkg/circuitbreaker"
	"github.com/library-chat/backend/pkg/retry"
)

func newStubClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          "gpt-4o",
		embeddingModel: "text-embedding-3-large",
		cb: circuitbreaker.NewCircuitBreaker("test", circuitbreaker.Config{
			FailureThreshold: 100,
		}),
		retryConfig: retry.Config{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
		},
	}
}

func embeddingResponse(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestGenerateEmbedding(t *testing.T) {
	client := newStubClient(t, embeddingResponse(
		`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-large"}`,
	))

	got, err := client.GenerateEmbedding(context.Background(), "What is meditation?")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got)
}

func TestGenerateEmbeddingEmptyDataIsError(t *testing.T) {
	client := newStubClient(t, embeddingResponse(
		`{"object":"list","data":[],"model":"text-embedding-3-large"}`,
	))

	got, err := client.GenerateEmbedding(context.Background(), "What is meditation?")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
	assert.Nil(t, got)
}

func TestGenerateEmbeddingProviderFailure(t *testing.T) {
	client := newStubClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.GenerateEmbedding(context.Background(), "What is meditation?")

	assert.Error(t, err)
}
