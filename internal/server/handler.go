// Package server exposes the digest workflow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chameleon-ai/chameleon/internal/analytics"
	"github.com/chameleon-ai/chameleon/internal/cache"
	"github.com/chameleon-ai/chameleon/internal/corpus"
	"github.com/chameleon-ai/chameleon/internal/digest"
	"github.com/chameleon-ai/chameleon/internal/topic"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/logger"
)

// Digester answers a single query. *digest.Service satisfies it.
type Digester interface {
	Digest(ctx context.Context, query string) (digest.Answer, error)
}

type Config struct {
	MaxQueryBytes int
}

type Handler struct {
	digester  Digester
	registry  *topic.Registry
	store     *corpus.Store
	cache     *cache.ResponseCache
	analytics *analytics.Handler
	maxQuery  int
	logger    *slog.Logger
}

// New builds the handler. cache and stats may be nil when those features
// are disabled.
func New(cfg Config, d Digester, reg *topic.Registry, store *corpus.Store, rc *cache.ResponseCache, stats *analytics.Handler) *Handler {
	if cfg.MaxQueryBytes <= 0 {
		cfg.MaxQueryBytes = 4096
	}
	return &Handler{
		digester:  d,
		registry:  reg,
		store:     store,
		cache:     rc,
		analytics: stats,
		maxQuery:  cfg.MaxQueryBytes,
		logger:    slog.Default().With("component", "http-handler"),
	}
}

type chatRequest struct {
	Query string `json:"query"`
}

type chatResponse struct {
	Response string `json:"response"`
	Topic    string `json:"topic"`
}

// Chat runs the workflow for {"query": "..."} and returns the digest with
// the detected topic.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// Room for the JSON envelope and escaping around the query itself.
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxQuery*2+1024))
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusBadRequest, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Query) > h.maxQuery {
		h.writeError(w, http.StatusBadRequest, "query exceeds maximum length")
		return
	}

	ans, err := h.digester.Digest(r.Context(), req.Query)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("chat request failed", "error", err, "status", status)
		}
		h.writeError(w, status, apperrors.PublicMessage(err))
		return
	}

	h.writeJSON(w, http.StatusOK, chatResponse{Response: ans.Response, Topic: ans.Topic})
}

type topicInfo struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

// Topics lists the registry with the number of documents per topic.
func (h *Handler) Topics(w http.ResponseWriter, r *http.Request) {
	counts := h.store.CountByTopic(h.registry.Len())
	topics := make([]topicInfo, 0, h.registry.Len())
	for i, name := range h.registry.Names() {
		topics = append(topics, topicInfo{Index: i, Name: name, Documents: counts[i]})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"topics":    topics,
		"documents": h.store.Len(),
	})
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.analytics.Stats(w, r)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	st := h.cache.Stats(r.Context())
	total := st.Hits + st.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(st.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"backend":  st.Backend,
		"hits":     st.Hits,
		"misses":   st.Misses,
		"entries":  st.Entries,
		"total":    total,
		"hit_rate": hitRate,
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "invalidated",
		"keys_deleted": deleted,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
