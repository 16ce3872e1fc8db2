package workflow

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chameleon-ai/chameleon/internal/classifier"
	"github.com/chameleon-ai/chameleon/internal/corpus"
	"github.com/chameleon-ai/chameleon/internal/embedding"
	"github.com/chameleon-ai/chameleon/internal/topic"
	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns a fixed vector, or err.
type stubEmbedder struct {
	dim int
	err error
}

func (e stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.dim), nil
}
func (e stubEmbedder) Dimension() int { return e.dim }
func (e stubEmbedder) Name() string   { return "stub" }

// stubClassifier gives every query the same distribution.
type stubClassifier struct {
	dim   int
	probs [][]float64
	err   error
}

func (c stubClassifier) Predict(context.Context, [][]float32) ([][]float64, error) {
	return c.probs, c.err
}
func (c stubClassifier) InputDim() int   { return c.dim }
func (c stubClassifier) NumClasses() int { return 3 }

func digestCorpus() *corpus.Store {
	return corpus.NewStore([]corpus.Document{
		{Text: "Artificial Intelligence is transforming healthcare rapidly.", TopicIndex: 2},
		{Text: "The new iPhone features a titanium frame and better battery.", TopicIndex: 2},
		{Text: "Nvidia stocks rose after the GPU announcement.", TopicIndex: 2},
		{Text: "Python is the most popular language for Data Science.", TopicIndex: 2},
		{Text: "Quantum computing will break current encryption methods.", TopicIndex: 2},
		{Text: "The Lakers won the game with a last-minute buzzer beater.", TopicIndex: 0},
		{Text: "Lionel Messi scored a hat-trick in the final match.", TopicIndex: 0},
		{Text: "The Olympic games will be held in Paris next year.", TopicIndex: 0},
		{Text: "Tennis star announces retirement after 20 years.", TopicIndex: 0},
		{Text: "Formula 1 introduces new regulations for car aerodynamics.", TopicIndex: 0},
		{Text: "The Federal Reserve decided to keep interest rates unchanged.", TopicIndex: 1},
		{Text: "Inflation creates pressure on global supply chains.", TopicIndex: 1},
		{Text: "Bitcoin dropped 5% following the regulatory news.", TopicIndex: 1},
		{Text: "Wall Street analysts predict a recession next quarter.", TopicIndex: 1},
		{Text: "The housing market is slowing down due to high mortgages.", TopicIndex: 1},
	})
}

func stubWorkflow(probs []float64, store *corpus.Store, opts ...Option) *Workflow {
	reg := topic.Default()
	clf := stubClassifier{dim: 4, probs: [][]float64{probs}}
	return New(
		NewClassifyStage(stubEmbedder{dim: 4}, clf, reg),
		NewRetrieveStage(reg, store),
		opts...,
	)
}

func TestRunFormatsFirstTwoDocuments(t *testing.T) {
	wf := stubWorkflow([]float64{0.1, 0.8, 0.1}, digestCorpus())
	res, err := wf.Run(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "Finance", res.Topic)
	assert.Equal(t, "Here is the latest Finance news:\n"+
		"- The Federal Reserve decided to keep interest rates unchanged.\n"+
		"- Inflation creates pressure on global supply chains.", res.Response)
}

func TestTieGoesToLowerIndex(t *testing.T) {
	wf := stubWorkflow([]float64{0.2, 0.4, 0.4}, digestCorpus())
	res, err := wf.Run(context.Background(), "tie")
	require.NoError(t, err)
	assert.Equal(t, "Finance", res.Topic)

	wf = stubWorkflow([]float64{0.5, 0.5, 0}, digestCorpus())
	res, err = wf.Run(context.Background(), "tie")
	require.NoError(t, err)
	assert.Equal(t, "Sports", res.Topic)
}

func TestZeroDocumentsYieldsHeaderOnly(t *testing.T) {
	store := corpus.NewStore([]corpus.Document{{Text: "Only sports here.", TopicIndex: 0}})
	wf := stubWorkflow([]float64{0, 0, 1}, store)
	res, err := wf.Run(context.Background(), "gpu")
	require.NoError(t, err)
	assert.Equal(t, "Here is the latest Tech/Science news:", res.Response)
}

func TestOneDocumentYieldsOneBullet(t *testing.T) {
	store := corpus.NewStore([]corpus.Document{
		{Text: "Only sports here.", TopicIndex: 0},
		{Text: "Rates held.", TopicIndex: 1},
	})
	wf := stubWorkflow([]float64{1, 0, 0}, store)
	res, err := wf.Run(context.Background(), "game")
	require.NoError(t, err)
	assert.Equal(t, "Here is the latest Sports news:\n- Only sports here.", res.Response)
	assert.Equal(t, 1, strings.Count(res.Response, "\n- "))
}

func TestSameTopicSameResponse(t *testing.T) {
	wf := stubWorkflow([]float64{0.9, 0.05, 0.05}, digestCorpus())
	a, err := wf.Run(context.Background(), "Did the Lakers win?")
	require.NoError(t, err)
	b, err := wf.Run(context.Background(), "Who scored in the final?")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodingFailureAbortsRun(t *testing.T) {
	reg := topic.Default()
	retrieveCalled := false
	wf := New(
		NewClassifyStage(stubEmbedder{dim: 4, err: errors.New("tokenizer exploded")}, stubClassifier{dim: 4}, reg),
		stageFunc{name: StageRetrieve, fn: func(context.Context, State) (Update, error) {
			retrieveCalled = true
			return Update{}, nil
		}},
	)
	_, err := wf.Run(context.Background(), "???")
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageClassify, se.Stage)
	assert.ErrorIs(t, err, apperrors.ErrEncoding)
	assert.False(t, retrieveCalled, "retrieve never runs after a failed classify")
}

func TestWrongVectorLengthIsEncodingError(t *testing.T) {
	reg := topic.Default()
	wf := New(
		NewClassifyStage(stubEmbedder{dim: 3}, stubClassifier{dim: 4, probs: [][]float64{{1, 0, 0}}}, reg),
		NewRetrieveStage(reg, digestCorpus()),
	)
	_, err := wf.Run(context.Background(), "q")
	assert.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestClassificationFailures(t *testing.T) {
	tests := []struct {
		name string
		clf  stubClassifier
	}{
		{"predict error", stubClassifier{dim: 4, err: errors.New("weights missing")}},
		{"wrong length", stubClassifier{dim: 4, probs: [][]float64{{0.5, 0.5}}}},
		{"two rows", stubClassifier{dim: 4, probs: [][]float64{{1, 0, 0}, {1, 0, 0}}}},
		{"nan", stubClassifier{dim: 4, probs: [][]float64{{math.NaN(), 0, 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := topic.Default()
			wf := New(NewClassifyStage(stubEmbedder{dim: 4}, tt.clf, reg), NewRetrieveStage(reg, digestCorpus()))
			_, err := wf.Run(context.Background(), "q")
			assert.ErrorIs(t, err, apperrors.ErrClassification)
		})
	}
}

func TestRegistryInconsistency(t *testing.T) {
	reg := topic.Default()
	wf := New(
		stageFunc{name: StageClassify, fn: func(context.Context, State) (Update, error) {
			return Update{DetectedTopic: "Weather"}, nil
		}},
		NewRetrieveStage(reg, digestCorpus()),
	)
	_, err := wf.Run(context.Background(), "q")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRetrieve, se.Stage)
	assert.ErrorIs(t, err, apperrors.ErrRegistryInconsistency)
	assert.ErrorIs(t, err, topic.ErrUnknownTopic)
}

func TestEmptyQueryRejected(t *testing.T) {
	wf := stubWorkflow([]float64{1, 0, 0}, digestCorpus())
	_, err := wf.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStagesSeeAccumulatedState(t *testing.T) {
	var seen []State
	wf := New(
		stageFunc{name: StageClassify, fn: func(_ context.Context, st State) (Update, error) {
			seen = append(seen, st)
			return Update{DetectedTopic: "Sports", Response: "ignored"}, nil
		}},
		stageFunc{name: StageRetrieve, fn: func(_ context.Context, st State) (Update, error) {
			seen = append(seen, st)
			return Update{DetectedTopic: "ignored", Response: "done"}, nil
		}},
	)
	res, err := wf.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, Result{Topic: "Sports", Response: "done"}, res)
	require.Len(t, seen, 2)
	assert.Equal(t, State{Query: "q", Phase: PhaseStart}, seen[0])
	assert.Equal(t, State{Query: "q", DetectedTopic: "Sports", Phase: PhaseClassified}, seen[1])
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []string
	runs   []string
	errs   int
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveRun(name string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, name)
	if err != nil {
		o.errs++
	}
}

func TestObserverSeesStagesInOrder(t *testing.T) {
	obs := &recordingObserver{}
	wf := stubWorkflow([]float64{0, 0, 1}, digestCorpus(), WithObserver(obs))
	_, err := wf.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{StageClassify, StageRetrieve}, obs.stages)
	assert.Equal(t, []string{"Tech/Science"}, obs.runs)
	assert.Zero(t, obs.errs)
}

func TestEndToEndWithHashingCentroid(t *testing.T) {
	ctx := context.Background()
	store := digestCorpus()
	reg := topic.Default()
	emb, err := embedding.NewHashing(384)
	require.NoError(t, err)
	clf, err := classifier.NewCentroid(ctx, emb, store, reg.Len(), 10)
	require.NoError(t, err)
	wf := New(NewClassifyStage(emb, clf, reg), NewRetrieveStage(reg, store))

	res, err := wf.Run(ctx, "Did the Lakers win?")
	require.NoError(t, err)
	assert.Equal(t, "Sports", res.Topic)
	assert.Equal(t, "Here is the latest Sports news:\n"+
		"- The Lakers won the game with a last-minute buzzer beater.\n"+
		"- Lionel Messi scored a hat-trick in the final match.", res.Response)

	res, err = wf.Run(ctx, "What is happening with Bitcoin?")
	require.NoError(t, err)
	assert.Equal(t, "Finance", res.Topic)
	assert.True(t, strings.HasPrefix(res.Response, "Here is the latest Finance news:\n- The Federal Reserve"))

	again, err := wf.Run(ctx, "What is happening with Bitcoin?")
	require.NoError(t, err)
	assert.Equal(t, res, again, "runs are deterministic")
}

func TestConcurrentRuns(t *testing.T) {
	wf := stubWorkflow([]float64{0.1, 0.1, 0.8}, digestCorpus())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := wf.Run(context.Background(), "q")
			assert.NoError(t, err)
			assert.Equal(t, "Tech/Science", res.Topic)
		}()
	}
	wg.Wait()
}

type stageFunc struct {
	name string
	fn   func(context.Context, State) (Update, error)
}

func (s stageFunc) Name() string { return s.name }
func (s stageFunc) Run(ctx context.Context, st State) (Update, error) {
	return s.fn(ctx, st)
}
