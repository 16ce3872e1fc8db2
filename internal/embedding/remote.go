package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/resilience"
)

// RemoteConfig configures a client for an OpenAI-compatible embeddings
// endpoint.
type RemoteConfig struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Remote calls POST {BaseURL}/embeddings. Calls go through a circuit
// breaker and are never retried.
type Remote struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
}

// NewRemote creates a Remote embedder. The API key is optional: local
// sentence-transformers and Ollama servers accept unauthenticated calls.
func NewRemote(cfg RemoteConfig, breaker *resilience.CircuitBreaker) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote embedder base URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("remote embedder dimension must be positive, got %d", cfg.Dimension)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 10 * time.Second
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("embedder", resilience.CircuitBreakerConfig{})
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &Remote{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    key,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: t},
		breaker:   breaker,
		logger:    slog.Default().With("component", "remote-embedder"),
	}, nil
}

func (r *Remote) Name() string   { return "remote" }
func (r *Remote) Dimension() int { return r.dimension }

// Breaker exposes the circuit breaker for health reporting.
func (r *Remote) Breaker() *resilience.CircuitBreaker { return r.breaker }

type embedRequest struct {
	Input  string `json:"input"`
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// embedResponse accepts the OpenAI {"data":[{"embedding":[...]}]} shape and
// the Ollama {"embedding":[...]} shape.
type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Embedding []float64 `json:"embedding"`
}

// Embed returns ErrUnavailable when the service cannot be reached or the
// breaker is open, and ErrEncoding when the service rejects the input or
// answers with a vector of the wrong size.
func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", apperrors.ErrEncoding)
	}
	var vec []float32
	var inputErr error
	err := r.breaker.Execute(func() error {
		v, callErr := r.call(ctx, text)
		if errors.Is(callErr, apperrors.ErrEncoding) {
			// The service answered; the input was the problem.
			inputErr = callErr
			return nil
		}
		vec = v
		return callErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	if inputErr != nil {
		return nil, inputErr
	}
	return vec, nil
}

func (r *Remote) call(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Input: text, Model: r.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings request: %w", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: embeddings service returned %s: %s", apperrors.ErrUnavailable, resp.Status, bytes.TrimSpace(msg))
	}
	if resp.StatusCode >= 300 {
		r.logger.Warn("embeddings request rejected", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: embeddings service returned %s", apperrors.ErrEncoding, resp.Status)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding embed response: %w", apperrors.ErrUnavailable, err)
	}
	raw := out.Embedding
	if len(out.Data) > 0 {
		raw = out.Data[0].Embedding
	}
	if len(raw) != r.dimension {
		return nil, fmt.Errorf("%w: embedding has %d dimensions, want %d", apperrors.ErrEncoding, len(raw), r.dimension)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return Normalize(vec), nil
}
