package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("Sports", 3*time.Millisecond, nil)
	m.ObserveRun("Sports", 2*time.Millisecond, nil)
	m.ObserveRun("", time.Millisecond, errors.New("embed failed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkflowRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowRunsTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TopicsDetectedTotal.WithLabelValues("Sports")))
}

func TestObserveCache(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestObserveStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveStage("classify", time.Millisecond, nil)
	m.ObserveStage("retrieve", time.Millisecond, errors.New("x"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.WorkflowStageDuration))
}

func TestServerExposesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRun("Finance", time.Millisecond, nil)

	srv := NewServer(0, reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `digest_topics_detected_total{topic="Finance"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"service":"chameleon","endpoints":["/metrics"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
