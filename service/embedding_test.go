package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/types"
	"go.uber.org/zap/zaptest"
)

func embeddingServer(t *testing.T, dims int, failFirst int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream busy","type":"server_error"}}`))
			return
		}
		vector := make([]float32, dims)
		vector[0] = 1
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-ada-002",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testAIConfig(endpoint string, dims int) config.AIConfig {
	return config.AIConfig{
		Endpoint:       endpoint,
		APIKey:         "test",
		EmbeddingModel: "text-embedding-ada-002",
		Dimension:      dims,
		Timeout:        5 * time.Second,
		Attempts:       2,
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv, _ := embeddingServer(t, 4, 0)
	e := NewOpenAIEmbedder(testAIConfig(srv.URL, 4), zaptest.NewLogger(t))
	e.backoff = time.Millisecond

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, 4, e.Dimensions())
}

func TestOpenAIEmbedder_RetriesOnce(t *testing.T) {
	srv, calls := embeddingServer(t, 4, 1)
	e := NewOpenAIEmbedder(testAIConfig(srv.URL, 4), zaptest.NewLogger(t))
	e.backoff = time.Millisecond

	_, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestOpenAIEmbedder_GivesUpAfterAttempts(t *testing.T) {
	srv, calls := embeddingServer(t, 4, 10)
	e := NewOpenAIEmbedder(testAIConfig(srv.URL, 4), zaptest.NewLogger(t))
	e.backoff = time.Millisecond

	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, types.ErrEmbeddingFailed)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv, _ := embeddingServer(t, 3, 0)
	e := NewOpenAIEmbedder(testAIConfig(srv.URL, 4), zaptest.NewLogger(t))

	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, types.ErrEmbeddingFailed)
}
