package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsQueries(t *testing.T) {
	c := NewCollector("ragserve", nil)

	c.IncQueries("ok")
	c.IncQueries("ok")
	c.IncQueries("empty")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queriesTotal.WithLabelValues("empty")))
}

func TestCollectorFallbackBranches(t *testing.T) {
	c := NewCollector("ragserve", nil)

	c.IncFallback("filtered")
	c.IncFallback("client_side")
	c.IncFallback("client_side")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.fallbackTotal.WithLabelValues("client_side")))
}

func TestCollectorIngestionAndStreams(t *testing.T) {
	c := NewCollector("ragserve", nil)

	c.RecordIngestion(7)
	c.RecordIngestion(3)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.filesIngested))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.chunksIndexed))

	c.StreamOpened()
	c.StreamOpened()
	c.StreamClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeWSStreams))
}

func TestCollectorHandlerServesMetrics(t *testing.T) {
	c := NewCollector("ragserve", nil)
	c.ObserveStage("retrieve", 120*time.Millisecond)
	c.ObserveDifficulty(5)
	c.ObserveCandidates(9)
	c.RecordHTTPRequest(http.MethodGet, "/health", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ragserve_pipeline_stage_duration_seconds")
	assert.Contains(t, body, "ragserve_query_difficulty")
	assert.Contains(t, body, "ragserve_http_requests_total")
}

func TestSeparateCollectorsDoNotConflict(t *testing.T) {
	// 独立 Registry 保证同进程内可重复创建。
	a := NewCollector("ragserve", nil)
	b := NewCollector("ragserve", nil)
	a.IncQueries("ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.queriesTotal.WithLabelValues("ok")))
}
