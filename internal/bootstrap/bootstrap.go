// Package bootstrap builds the immutable runtime the digest workflow needs:
// topic registry, document store, embedder and classifier, checked against
// each other before anything serves traffic.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chameleon-ai/chameleon/internal/classifier"
	"github.com/chameleon-ai/chameleon/internal/corpus"
	"github.com/chameleon-ai/chameleon/internal/embedding"
	"github.com/chameleon-ai/chameleon/internal/topic"
	"github.com/chameleon-ai/chameleon/internal/workflow"
	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/metrics"
	"github.com/chameleon-ai/chameleon/pkg/postgres"
	"github.com/chameleon-ai/chameleon/pkg/resilience"
)

// Runtime is read-only once Setup returns and can be shared by every
// request.
type Runtime struct {
	Registry   *topic.Registry
	Store      *corpus.Store
	Embedder   embedding.Embedder
	Classifier classifier.Classifier
	Workflow   *workflow.Workflow
	Breaker    *resilience.CircuitBreaker
	Postgres   *postgres.Client
}

// Close releases connections opened during Setup.
func (r *Runtime) Close() error {
	if r.Postgres != nil {
		return r.Postgres.Close()
	}
	return nil
}

// Setup loads every artifact named by cfg within cfg.Startup.Timeout. m may
// be nil.
func Setup(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*Runtime, error) {
	logger := slog.Default().With("component", "bootstrap")
	var rt *Runtime
	err := resilience.WithTimeout(ctx, cfg.Startup.Timeout, "startup", func(ctx context.Context) error {
		built, err := setup(ctx, cfg, m, logger)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			if built != nil {
				built.Close()
			}
			return err
		}
		rt = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func setup(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Runtime, error) {
	reg, err := topic.NewRegistry(cfg.Topics)
	if err != nil {
		return nil, fmt.Errorf("building topic registry: %w", err)
	}
	rt := &Runtime{Registry: reg}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store, pg, err := loadStore(gctx, cfg)
		if err != nil {
			return err
		}
		rt.Store, rt.Postgres = store, pg
		return nil
	})
	g.Go(func() error {
		emb, breaker, err := newEmbedder(cfg, m)
		if err != nil {
			return err
		}
		rt.Embedder, rt.Breaker = emb, breaker
		return nil
	})
	var mlp *classifier.MLP
	if cfg.Model.Classifier.Type == config.ClassifierMLP {
		g.Go(func() error {
			var err error
			mlp, err = classifier.LoadMLP(cfg.Model.Classifier.WeightsPath)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return rt, err
	}

	if err := rt.Store.Validate(reg.Len()); err != nil {
		return rt, fmt.Errorf("validating corpus: %w", err)
	}

	switch cfg.Model.Classifier.Type {
	case config.ClassifierMLP:
		rt.Classifier = mlp
	case config.ClassifierCentroid:
		c, err := classifier.NewCentroid(ctx, rt.Embedder, rt.Store, reg.Len(), cfg.Model.Classifier.Temperature)
		if err != nil {
			return rt, fmt.Errorf("building centroid classifier: %w", err)
		}
		rt.Classifier = c
	default:
		return rt, fmt.Errorf("unknown classifier type %q", cfg.Model.Classifier.Type)
	}

	if err := CheckCompatible(cfg.Model.Dimension, rt.Embedder, rt.Classifier, reg); err != nil {
		return rt, err
	}

	opts := []workflow.Option{}
	if m != nil {
		opts = append(opts, workflow.WithObserver(m))
		for i, n := range rt.Store.CountByTopic(reg.Len()) {
			name, _ := reg.Name(i)
			m.CorpusDocuments.WithLabelValues(name).Set(float64(n))
		}
	}
	rt.Workflow = workflow.New(
		workflow.NewClassifyStage(rt.Embedder, rt.Classifier, reg),
		workflow.NewRetrieveStage(reg, rt.Store),
		opts...,
	)

	logger.Info("runtime ready",
		"topics", reg.Names(),
		"documents", rt.Store.Len(),
		"embedder", rt.Embedder.Name(),
		"classifier", cfg.Model.Classifier.Type,
		"dimension", rt.Embedder.Dimension(),
	)
	return rt, nil
}

// CheckCompatible fails when the embedder, classifier and registry disagree
// on shapes.
func CheckCompatible(dim int, emb embedding.Embedder, clf classifier.Classifier, reg *topic.Registry) error {
	if emb.Dimension() != dim {
		return fmt.Errorf("embedder %s produces %d dimensions, configured %d", emb.Name(), emb.Dimension(), dim)
	}
	if clf.InputDim() != emb.Dimension() {
		return fmt.Errorf("classifier expects %d inputs, embedder produces %d", clf.InputDim(), emb.Dimension())
	}
	if clf.NumClasses() != reg.Len() {
		return fmt.Errorf("classifier has %d classes, registry has %d topics", clf.NumClasses(), reg.Len())
	}
	return nil
}

func loadStore(ctx context.Context, cfg *config.Config) (*corpus.Store, *postgres.Client, error) {
	switch cfg.Corpus.Source {
	case config.CorpusFile:
		store, err := corpus.LoadFile(cfg.Corpus.Path)
		return store, nil, err
	case config.CorpusPostgres:
		pg, err := postgres.Connect(ctx, cfg.Postgres, 5)
		if err != nil {
			return nil, nil, err
		}
		store, err := corpus.LoadPostgres(ctx, pg, cfg.Corpus.Table)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		return store, pg, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus source %q", cfg.Corpus.Source)
	}
}

func newEmbedder(cfg *config.Config, m *metrics.Metrics) (embedding.Embedder, *resilience.CircuitBreaker, error) {
	switch cfg.Model.Embedder.Type {
	case config.EmbedderHashing:
		emb, err := embedding.NewHashing(cfg.Model.Dimension)
		return emb, nil, err
	case config.EmbedderRemote:
		rc := cfg.Model.Embedder.Remote
		cbCfg := resilience.CircuitBreakerConfig{
			FailureThreshold: rc.FailureThreshold,
			ResetTimeout:     rc.ResetTimeout,
		}
		if m != nil {
			cbCfg.OnStateChange = func(name string, _, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		}
		breaker := resilience.NewCircuitBreaker("embedder", cbCfg)
		emb, err := embedding.NewRemote(embedding.RemoteConfig{
			BaseURL:   rc.BaseURL,
			APIKeyEnv: rc.APIKeyEnv,
			Model:     rc.Model,
			Dimension: cfg.Model.Dimension,
			Timeout:   rc.Timeout,
		}, breaker)
		return emb, breaker, err
	default:
		return nil, nil, fmt.Errorf("unknown embedder type %q", cfg.Model.Embedder.Type)
	}
}
