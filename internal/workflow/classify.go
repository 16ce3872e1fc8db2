package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chameleon-ai/chameleon/internal/classifier"
	"github.com/chameleon-ai/chameleon/internal/embedding"
	"github.com/chameleon-ai/chameleon/internal/topic"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/logger"
)

// ClassifyStage embeds the query, scores it, and names the winning topic.
type ClassifyStage struct {
	embedder   embedding.Embedder
	classifier classifier.Classifier
	registry   *topic.Registry
	logger     *slog.Logger
}

func NewClassifyStage(emb embedding.Embedder, clf classifier.Classifier, reg *topic.Registry) *ClassifyStage {
	return &ClassifyStage{
		embedder:   emb,
		classifier: clf,
		registry:   reg,
		logger:     slog.Default().With("component", "classify-stage"),
	}
}

func (s *ClassifyStage) Name() string { return StageClassify }

func (s *ClassifyStage) Run(ctx context.Context, st State) (Update, error) {
	vec, err := s.embedder.Embed(ctx, st.Query)
	if err != nil {
		return Update{}, encodingError(err)
	}
	if len(vec) != s.classifier.InputDim() {
		return Update{}, fmt.Errorf("%w: embedder returned %d values, classifier expects %d",
			apperrors.ErrEncoding, len(vec), s.classifier.InputDim())
	}

	probs, err := s.classifier.Predict(ctx, [][]float32{vec})
	if err != nil {
		return Update{}, fmt.Errorf("%w: %w", apperrors.ErrClassification, err)
	}
	k := s.registry.Len()
	if err := classifier.ValidateProbabilities(probs, k); err != nil {
		return Update{}, fmt.Errorf("%w: %w", apperrors.ErrClassification, err)
	}

	index := classifier.Argmax(probs[0])
	name, err := s.registry.Name(index)
	if err != nil {
		return Update{}, fmt.Errorf("%w: %w", apperrors.ErrClassification, err)
	}

	s.logger.Debug("topic detected",
		"topic", name,
		"probability", probs[0][index],
		"request_id", logger.RequestID(ctx),
	)
	return Update{DetectedTopic: name}, nil
}

func encodingError(err error) error {
	if errors.Is(err, apperrors.ErrEncoding) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrEncoding, err)
}
