// Package metrics 提供 Prometheus 指标收集。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/rag"
)

// Collector 指标收集器，覆盖 HTTP 面与检索管线两类指标。
type Collector struct {
	registry *prometheus.Registry

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 管线指标
	stageDuration      *prometheus.HistogramVec
	queriesTotal       *prometheus.CounterVec
	difficultyObserved prometheus.Histogram
	fallbackTotal      *prometheus.CounterVec
	candidatesObserved prometheus.Histogram

	// 入库指标
	filesIngested   prometheus.Counter
	chunksIndexed   prometheus.Counter
	activeWSStreams prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建收集器并注册全部指标。
// 使用独立 Registry，避免测试中重复注册冲突。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of each retrieval pipeline stage",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	c.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Processed queries by outcome",
		},
		[]string{"outcome"},
	)

	c.difficultyObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_difficulty",
			Help:      "Distribution of estimated query difficulty",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		},
	)

	c.fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_fallback_total",
			Help:      "Retrieval strategy branch hits",
		},
		[]string{"branch"},
	)

	c.candidatesObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_candidates",
			Help:      "Candidates surviving filtering per query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	c.filesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_ingested_total",
		Help:      "Total number of ingested files",
	})

	c.chunksIndexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_indexed_total",
		Help:      "Total number of indexed chunks",
	})

	c.activeWSStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_websocket_streams",
		Help:      "Currently open answer streams",
	})

	registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.stageDuration,
		c.queriesTotal,
		c.difficultyObserved,
		c.fallbackTotal,
		c.candidatesObserved,
		c.filesIngested,
		c.chunksIndexed,
		c.activeWSStreams,
	)

	return c
}

// Handler 返回 /metrics 的 HTTP handler。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest 记录一次 HTTP 请求。
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordIngestion 记录一次文件入库。
func (c *Collector) RecordIngestion(chunks int) {
	c.filesIngested.Inc()
	c.chunksIndexed.Add(float64(chunks))
}

// StreamOpened 流式会话打开。
func (c *Collector) StreamOpened() { c.activeWSStreams.Inc() }

// StreamClosed 流式会话关闭。
func (c *Collector) StreamClosed() { c.activeWSStreams.Dec() }

// ==== rag.PipelineMetrics ====

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) IncQueries(outcome string) {
	c.queriesTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveDifficulty(score int) {
	c.difficultyObserved.Observe(float64(score))
}

func (c *Collector) IncFallback(branch string) {
	c.fallbackTotal.WithLabelValues(branch).Inc()
}

func (c *Collector) ObserveCandidates(count int) {
	c.candidatesObserved.Observe(float64(count))
}

var _ rag.PipelineMetrics = (*Collector)(nil)
