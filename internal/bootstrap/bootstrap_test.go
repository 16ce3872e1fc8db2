package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chameleon-ai/chameleon/internal/classifier"
	"github.com/chameleon-ai/chameleon/internal/embedding"
	"github.com/chameleon-ai/chameleon/internal/topic"
	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/health"
	"github.com/chameleon-ai/chameleon/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Corpus.Path = filepath.Join("..", "..", "data", "corpus.yaml")
	return cfg
}

func TestSetupWithBundledCorpus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rt, err := Setup(context.Background(), testConfig(t), m)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 15, rt.Store.Len())
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CorpusDocuments.WithLabelValues("Finance")))

	res, err := rt.Workflow.Run(context.Background(), "Did the Lakers win?")
	require.NoError(t, err)
	assert.Equal(t, "Sports", res.Topic)
	assert.Equal(t, "Here is the latest Sports news:\n"+
		"- The Lakers won the game with a last-minute buzzer beater.\n"+
		"- Lionel Messi scored a hat-trick in the final match.", res.Response)

	res, err = rt.Workflow.Run(context.Background(), "What is happening with Bitcoin?")
	require.NoError(t, err)
	assert.Equal(t, "Finance", res.Topic)
	assert.Equal(t, "Here is the latest Finance news:\n"+
		"- The Federal Reserve decided to keep interest rates unchanged.\n"+
		"- Inflation creates pressure on global supply chains.", res.Response)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TopicsDetectedTotal.WithLabelValues("Finance")))
}

func TestSetupMLPDimensionMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	weights := filepath.Join(dir, "classifier.json")
	require.NoError(t, os.WriteFile(weights, []byte(`{"layers":[
		{"weights":[[1,0,0],[0,1,0]],"bias":[0,0,0],"activation":"softmax"}
	]}`), 0o644))

	cfg := testConfig(t)
	cfg.Model.Classifier.Type = config.ClassifierMLP
	cfg.Model.Classifier.WeightsPath = weights

	_, err := Setup(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier expects 2 inputs, embedder produces 384")
}

func TestSetupRejectsCorpusOutsideRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Topics = []string{"Sports", "Finance"}
	_, err := Setup(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating corpus")
}

func TestSetupMissingCorpus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Corpus.Path = filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Setup(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestCheckCompatible(t *testing.T) {
	emb, _ := embedding.NewHashing(4)
	reg := topic.Default()
	good, _ := classifier.NewCentroidFromVectors([][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}, 1)
	assert.NoError(t, CheckCompatible(4, emb, good, reg))
	assert.Error(t, CheckCompatible(8, emb, good, reg))

	twoClass, _ := classifier.NewCentroidFromVectors([][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}}, 1)
	assert.ErrorContains(t, CheckCompatible(4, emb, twoClass, reg), "2 classes")
}

func TestRegisterChecks(t *testing.T) {
	rt, err := Setup(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer rt.Close()

	checker := health.NewChecker()
	rt.RegisterChecks(checker)
	assert.Equal(t, []string{"corpus", "embedder"}, checker.Names())

	report := checker.Run(context.Background())
	assert.Equal(t, health.StatusUp, report.Status)
	assert.Equal(t, "15 documents, 3 topics", report.Components["corpus"].Message)
}
