package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"grant-platform-backend/internal/config"
)

// EmbeddingClient converts chunk text into fixed-dimension vectors via an
// external embedding model. Calls go through a circuit breaker and a rate
// limiter; transient provider failures surface as plain errors so the
// processing queue can apply its own retry budget.
type EmbeddingClient struct {
	provider   string
	model      string
	dimensions int
	genai      *genai.Client
	openai     *openai.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	cache      *EmbeddingCache
}

// NewEmbeddingClient builds a client for the configured provider. cache may
// be nil to disable memoization.
func NewEmbeddingClient(ctx context.Context, cfg *config.Config, cache *EmbeddingCache) (*EmbeddingClient, error) {
	c := &EmbeddingClient{
		provider:   cfg.EmbeddingsProvider,
		dimensions: cfg.VectorDimensions,
		cache:      cache,
	}

	switch cfg.EmbeddingsProvider {
	case "google", "":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		c.provider = "google"
		c.genai = client
		c.model = cfg.GoogleEmbeddingsModel
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("missing OPENAI_API_KEY for embeddings")
		}
		c.openai = openai.NewClient(cfg.OpenAIAPIKey)
		c.model = cfg.OpenAIEmbeddingsModel
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// Stay under provider request-per-minute limits with some buffer.
	c.limiter = rate.NewLimiter(rate.Limit(100.0/60.0), 10)

	return c, nil
}

// Embed returns the embedding vector for one chunk of non-empty text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}

	if vec := c.cache.Get(ctx, c.model, text); vec != nil {
		return vec, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		switch c.provider {
		case "google":
			return c.embedGoogle(ctx, text)
		case "openai":
			return c.embedOpenAI(ctx, text)
		default:
			return nil, fmt.Errorf("unknown embeddings provider: %s", c.provider)
		}
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, fmt.Errorf("embedding provider unavailable: %w", err)
		}
		return nil, err
	}

	vec := result.([]float32)
	if len(vec) == 0 {
		return nil, errors.New("embedding provider returned an empty vector")
	}
	if err := c.checkDimensions(vec); err != nil {
		return nil, err
	}

	c.cache.Set(ctx, c.model, text, vec)
	return vec, nil
}

// checkDimensions rejects vectors whose width differs from the configured
// dimensionality. Mixed-width rows in a vector collection cannot be
// compared, so a provider or model mismatch must fail loudly here.
func (c *EmbeddingClient) checkDimensions(vec []float32) error {
	if c.dimensions > 0 && len(vec) != c.dimensions {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), c.dimensions)
	}
	return nil
}

func (c *EmbeddingClient) embedGoogle(ctx context.Context, text string) ([]float32, error) {
	model := c.genai.EmbeddingModel(c.model)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil {
		return nil, errors.New("no embedding returned")
	}
	return resp.Embedding.Values, nil
}

func (c *EmbeddingClient) embedOpenAI(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.openai.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

// Close releases the underlying provider client.
func (c *EmbeddingClient) Close() error {
	if c.genai != nil {
		return c.genai.Close()
	}
	return nil
}
