package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/logger"
	"github.com/chameleon-ai/chameleon/pkg/tracing"
)

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, st State) (Update, error)
}

// Observer receives timings for each stage and each full run.
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveRun(topic string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error) {}
func (noopObserver) ObserveRun(string, time.Duration, error)   {}

// Option configures a Workflow.
type Option func(*Workflow)

// WithObserver installs a timing observer.
func WithObserver(o Observer) Option {
	return func(w *Workflow) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// Workflow runs classify then retrieve. It holds no per-run state and is
// safe for concurrent use when its stages are.
type Workflow struct {
	classify Stage
	retrieve Stage
	observer Observer
	logger   *slog.Logger
}

func New(classify, retrieve Stage, opts ...Option) *Workflow {
	w := &Workflow{
		classify: classify,
		retrieve: retrieve,
		observer: noopObserver{},
		logger:   slog.Default().With("component", "workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drives one query from start to done. Any stage failure aborts the run
// and is returned as a *StageError; nothing is retried.
func (w *Workflow) Run(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		err := apperrors.New(apperrors.ErrInvalidInput, 0, "query must not be empty")
		w.observer.ObserveRun("", time.Since(start), err)
		return Result{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "digest", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(w.logger)
	}()

	st := State{Query: query, Phase: PhaseStart}

	u, err := w.step(ctx, w.classify, st)
	if err != nil {
		w.finish(span, st, start, err)
		return Result{}, err
	}
	if u.DetectedTopic == "" {
		err := &StageError{Stage: w.classify.Name(), Err: fmt.Errorf("%w: no topic produced", apperrors.ErrClassification)}
		w.finish(span, st, start, err)
		return Result{}, err
	}
	st.DetectedTopic = u.DetectedTopic
	st.Phase = PhaseClassified

	u, err = w.step(ctx, w.retrieve, st)
	if err != nil {
		w.finish(span, st, start, err)
		return Result{}, err
	}
	st.Response = u.Response
	st.Phase = PhaseDone

	w.finish(span, st, start, nil)
	return Result{Topic: st.DetectedTopic, Response: st.Response}, nil
}

func (w *Workflow) step(ctx context.Context, s Stage, st State) (Update, error) {
	ctx, span := tracing.StartChildSpan(ctx, s.Name())
	defer span.End()

	began := time.Now()
	u, err := s.Run(ctx, st)
	w.observer.ObserveStage(s.Name(), time.Since(began), err)
	if err != nil {
		span.SetAttr("error", err.Error())
		var se *StageError
		if errors.As(err, &se) {
			return Update{}, err
		}
		return Update{}, &StageError{Stage: s.Name(), Err: err}
	}
	return u, nil
}

func (w *Workflow) finish(span *tracing.Span, st State, start time.Time, err error) {
	elapsed := time.Since(start)
	span.SetAttr("phase", st.Phase.String())
	span.SetAttr("topic", st.DetectedTopic)
	w.observer.ObserveRun(st.DetectedTopic, elapsed, err)
	if err != nil {
		w.logger.Warn("workflow aborted",
			"phase", st.Phase.String(),
			"error", err,
			"request_id", span.TraceID,
		)
	}
}
