package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chameleon-ai/chameleon/internal/corpus"
	"github.com/chameleon-ai/chameleon/internal/topic"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/chameleon-ai/chameleon/pkg/logger"
)

// DigestSize is the number of documents listed in a response.
const DigestSize = 2

// RetrieveStage formats the first documents stored under the detected topic.
type RetrieveStage struct {
	registry *topic.Registry
	store    *corpus.Store
	logger   *slog.Logger
}

func NewRetrieveStage(reg *topic.Registry, store *corpus.Store) *RetrieveStage {
	return &RetrieveStage{
		registry: reg,
		store:    store,
		logger:   slog.Default().With("component", "retrieve-stage"),
	}
}

func (s *RetrieveStage) Name() string { return StageRetrieve }

func (s *RetrieveStage) Run(ctx context.Context, st State) (Update, error) {
	index, err := s.registry.Index(st.DetectedTopic)
	if err != nil {
		s.logger.Error("detected topic missing from registry",
			"topic", st.DetectedTopic,
			"registered", s.registry.Names(),
			"request_id", logger.RequestID(ctx),
		)
		return Update{}, fmt.Errorf("%w: %w", apperrors.ErrRegistryInconsistency, err)
	}
	docs := s.store.ByTopic(index, DigestSize)
	return Update{Response: Format(st.DetectedTopic, docs)}, nil
}

// Format renders the digest: a header naming the topic, then one bulleted
// line per document. No documents leaves just the header.
func Format(topicName string, docs []corpus.Document) string {
	var b strings.Builder
	b.WriteString("Here is the latest ")
	b.WriteString(topicName)
	b.WriteString(" news:")
	for _, d := range docs {
		b.WriteString("\n- ")
		b.WriteString(d.Text)
	}
	return b.String()
}
