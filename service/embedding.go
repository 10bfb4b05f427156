package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/tieubaoca/edu-assistant/config"
	"github.com/tieubaoca/edu-assistant/types"
	"github.com/tieubaoca/edu-assistant/utils"
	"go.uber.org/zap"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	timeout   time.Duration
	attempts  int
	backoff   time.Duration
	logger    *zap.Logger
}

func NewOpenAIEmbedder(cfg config.AIConfig, logger *zap.Logger) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.EmbeddingModel,
		dimension: cfg.Dimension,
		timeout:   cfg.Timeout,
		attempts:  cfg.Attempts,
		backoff:   500 * time.Millisecond,
		logger:    logger,
	}
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimension
}

// Embed calls the embeddings endpoint, retrying transient failures. Any
// failure is reported as types.ErrEmbeddingFailed.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := utils.Retry(ctx, e.attempts, e.timeout, e.backoff, func(ctx context.Context) error {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return errors.New("empty embedding response")
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		e.logger.Warn("embedding request failed", zap.String("model", e.model), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", types.ErrEmbeddingFailed, err)
	}
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", types.ErrEmbeddingFailed, len(vector), e.dimension)
	}
	return vector, nil
}

// isAuthError reports whether err was caused by a rejected API key.
func isAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized
	}
	return false
}
