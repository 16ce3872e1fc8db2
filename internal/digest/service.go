// Package digest is the boundary-facing entry point to the workflow. It
// layers the response cache and analytics tracking over workflow.Run and is
// shared by the HTTP handler, the RPC endpoint and the in-process chat
// client.
package digest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chameleon-ai/chameleon/internal/analytics"
	"github.com/chameleon-ai/chameleon/internal/cache"
	"github.com/chameleon-ai/chameleon/internal/workflow"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/logger"
)

// Runner executes the workflow. *workflow.Workflow satisfies it.
type Runner interface {
	Run(ctx context.Context, query string) (workflow.Result, error)
}

// Tracker receives one event per request. *analytics.Collector satisfies it.
type Tracker interface {
	Track(ev analytics.DigestEvent)
}

// DefaultMaxQueryBytes bounds a query when WithMaxQueryBytes is not given.
const DefaultMaxQueryBytes = 4096

// Answer is a workflow result plus how it was produced.
type Answer struct {
	workflow.Result
	Cached  bool
	Latency time.Duration
}

type Service struct {
	runner   Runner
	cache    *cache.ResponseCache
	tracker  Tracker
	source   string
	maxQuery int
	logger   *slog.Logger
}

type Option func(*Service)

// WithCache memoises results. A nil cache is ignored.
func WithCache(c *cache.ResponseCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTracker records a DigestEvent per call. A nil tracker is ignored.
func WithTracker(t Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithSource labels tracked events, e.g. "http" or "rpc".
func WithSource(source string) Option {
	return func(s *Service) { s.source = source }
}

// WithMaxQueryBytes rejects longer queries with ErrInvalidInput. Zero or
// less keeps DefaultMaxQueryBytes.
func WithMaxQueryBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxQuery = n
		}
	}
}

func NewService(runner Runner, opts ...Option) *Service {
	s := &Service{
		runner:   runner,
		source:   "local",
		maxQuery: DefaultMaxQueryBytes,
		logger:   slog.Default().With("component", "digest-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Digest answers one query. Validation and workflow errors pass through
// unchanged so callers can map them with pkg/errors.
func (s *Service) Digest(ctx context.Context, query string) (Answer, error) {
	// Oversized queries never reach the cache or the event stream.
	if len(query) > s.maxQuery {
		return Answer{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query exceeds maximum length of %d bytes", s.maxQuery)
	}
	start := time.Now()
	log := logger.FromContext(ctx)

	var (
		res    workflow.Result
		cached bool
		err    error
	)
	if s.cache != nil {
		res, cached, err = s.cache.GetOrCompute(ctx, query, func(ctx context.Context) (workflow.Result, error) {
			return s.runner.Run(ctx, query)
		})
	} else {
		res, err = s.runner.Run(ctx, query)
	}
	elapsed := time.Since(start)
	s.track(ctx, query, res, cached, elapsed, err)

	if err != nil {
		log.Warn("digest failed", "query", query, "error", err, "latency_us", elapsed.Microseconds())
		return Answer{}, err
	}
	log.Info("digest completed",
		"topic", res.Topic,
		"cache_hit", cached,
		"latency_us", elapsed.Microseconds(),
	)
	return Answer{Result: res, Cached: cached, Latency: elapsed}, nil
}

// For returns a copy of s whose events carry a different source label.
func (s *Service) For(source string) *Service {
	c := *s
	c.source = source
	return &c
}

func (s *Service) track(ctx context.Context, query string, res workflow.Result, cached bool, elapsed time.Duration, err error) {
	if s.tracker == nil {
		return
	}
	ev := analytics.DigestEvent{
		Type:      analytics.EventDigest,
		Query:     query,
		Topic:     res.Topic,
		CacheHit:  cached,
		LatencyUs: elapsed.Microseconds(),
		Source:    s.source,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
	if err != nil {
		ev.Type = analytics.EventDigestError
		ev.Topic = ""
		ev.Error = err.Error()
		var se *workflow.StageError
		if errors.As(err, &se) {
			ev.Stage = se.Stage
		}
	}
	s.tracker.Track(ev)
}
