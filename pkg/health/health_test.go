package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth       { return ComponentHealth{Status: StatusUp} }
func degraded(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} }
func down(context.Context) ComponentHealth     { return ComponentHealth{Status: StatusDown, Message: "empty"} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("corpus", up)
	c.Register("redis", degraded)
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("classifier", down)
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Len(t, report.Components, 3)
	assert.Equal(t, []string{"classifier", "corpus", "redis"}, c.Names())
}

func TestPing(t *testing.T) {
	ok := Ping(func(context.Context) error { return nil }, StatusDown)
	assert.Equal(t, StatusUp, ok(context.Background()).Status)

	bad := Ping(func(context.Context) error { return errors.New("refused") }, StatusDegraded)
	got := bad(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "refused", got.Message)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", degraded)

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("corpus", down)
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "empty", report.Components["corpus"].Message)
}
