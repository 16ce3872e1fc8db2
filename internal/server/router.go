package server

import (
	"net/http"
	"time"

	"github.com/chameleon-ai/chameleon/pkg/health"
	"github.com/chameleon-ai/chameleon/pkg/metrics"
	"github.com/chameleon-ai/chameleon/pkg/middleware"
	"github.com/chameleon-ai/chameleon/pkg/ratelimit"
)

// RouterConfig carries the optional middleware. Nil Metrics and Limiter
// switch those layers off.
type RouterConfig struct {
	CORS    middleware.CORSConfig
	Timeout time.Duration
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
}

var knownRoutes = []string{
	"/chat",
	"/api/v1/topics",
	"/api/v1/analytics",
	"/api/v1/cache/stats",
	"/api/v1/cache/invalidate",
	"/health/live",
	"/health/ready",
}

// NewRouter builds the HTTP handler.
//
// Route table:
//
//	POST   /chat                      digest one query
//	GET    /api/v1/topics             topic registry with document counts
//	GET    /api/v1/analytics          aggregated digest statistics
//	GET    /api/v1/cache/stats        response cache statistics
//	POST   /api/v1/cache/invalidate   drop cached responses
//	GET    /health/live               liveness
//	GET    /health/ready              readiness
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → RateLimit → Timeout → handler
func NewRouter(h *Handler, checker *health.Checker, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /chat", h.Chat)
	mux.HandleFunc("GET /api/v1/topics", h.Topics)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Timeout)(chain)
	if cfg.Limiter != nil {
		chain = middleware.RateLimit(cfg.Limiter)(chain)
	}
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics, knownRoutes...)(chain)
	}
	chain = middleware.CORS(cfg.CORS)(chain)
	chain = middleware.RequestID(chain)
	return chain
}
