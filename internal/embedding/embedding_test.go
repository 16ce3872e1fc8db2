package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"laker", "win"}, Terms("Did the Lakers win?"))
	assert.Equal(t, []string{"happen", "bitcoin"}, Terms("What is happening with Bitcoin?"))
	assert.Empty(t, Terms("?! a I"))
}

func TestHashingDeterministicAndNormalised(t *testing.T) {
	h, err := NewHashing(384)
	require.NoError(t, err)
	assert.Equal(t, 384, h.Dimension())

	a, err := h.Embed(context.Background(), "Bitcoin dropped 5% following the regulatory news.")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "Bitcoin dropped 5% following the regulatory news.")
	require.NoError(t, err)

	assert.Len(t, a, 384)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashingRejectsEmptyInput(t *testing.T) {
	h, _ := NewHashing(16)
	_, err := h.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, apperrors.ErrEncoding)
	_, err = h.Embed(context.Background(), "the and of")
	assert.ErrorIs(t, err, apperrors.ErrEncoding)

	_, err = NewHashing(0)
	assert.Error(t, err)
}

func TestHashingSimilarTextsAreCloser(t *testing.T) {
	h, _ := NewHashing(384)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "Lakers game")
	near, _ := h.Embed(ctx, "The Lakers won the game")
	far, _ := h.Embed(ctx, "Interest rates unchanged")

	dot := func(x, y []float32) float64 {
		var s float64
		for i := range x {
			s += float64(x[i]) * float64(y[i])
		}
		return s
	}
	assert.Greater(t, dot(q, near), dot(q, far))
}

func embeddingsServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteOpenAIShape(t *testing.T) {
	t.Setenv("TEST_EMBED_KEY", "secret")
	srv := embeddingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Did the Lakers win?", req.Input)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{3, 4, 0}}},
		})
	})

	r, err := NewRemote(RemoteConfig{BaseURL: srv.URL + "/v1/", APIKeyEnv: "TEST_EMBED_KEY", Dimension: 3}, nil)
	require.NoError(t, err)
	vec, err := r.Embed(context.Background(), "Did the Lakers win?")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8, 0}, vec, 1e-6)
}

func TestRemoteOllamaShape(t *testing.T) {
	srv := embeddingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[0,2]}`))
	})
	r, err := NewRemote(RemoteConfig{BaseURL: srv.URL, Dimension: 2}, nil)
	require.NoError(t, err)
	vec, err := r.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestRemoteDimensionMismatchIsEncodingError(t *testing.T) {
	srv := embeddingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[1,2,3]}`))
	})
	r, _ := NewRemote(RemoteConfig{BaseURL: srv.URL, Dimension: 384}, nil)
	_, err := r.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, apperrors.ErrEncoding)
	assert.Equal(t, resilience.StateClosed, r.Breaker().GetState(), "bad input does not trip the breaker")
}

func TestRemoteOutageTripsBreaker(t *testing.T) {
	calls := 0
	srv := embeddingsServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})
	cb := resilience.NewCircuitBreaker("embedder", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	r, _ := NewRemote(RemoteConfig{BaseURL: srv.URL, Dimension: 2}, cb)

	for i := 0; i < 2; i++ {
		_, err := r.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	}
	_, err := r.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, calls, "open breaker fails fast without calling the service")
}

func TestNewRemoteValidates(t *testing.T) {
	_, err := NewRemote(RemoteConfig{Dimension: 3}, nil)
	assert.Error(t, err)
	_, err = NewRemote(RemoteConfig{BaseURL: "http://x"}, nil)
	assert.Error(t, err)
}
