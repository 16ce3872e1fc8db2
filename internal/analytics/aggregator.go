package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chameleon-ai/chameleon/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	maxTrackedQueries = 10000
	maxQueryKeyBytes  = 256
)

type AggregatedStats struct {
	TotalRuns     int64            `json:"total_runs"`
	ErrorCount    int64            `json:"error_count"`
	CacheHits     int64            `json:"cache_hits"`
	CacheMisses   int64            `json:"cache_misses"`
	TopicCounts   map[string]int64 `json:"topic_counts"`
	ErrorsByStage map[string]int64 `json:"errors_by_stage"`
	AvgLatencyUs  float64          `json:"avg_latency_us"`
	P50LatencyUs  int64            `json:"p50_latency_us"`
	P95LatencyUs  int64            `json:"p95_latency_us"`
	P99LatencyUs  int64            `json:"p99_latency_us"`
	TopQueries    []QueryCount     `json:"top_queries"`
	RunsPerMinute float64          `json:"runs_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of digest events. Latency percentiles
// cover the most recent samples only.
type Aggregator struct {
	mu            sync.RWMutex
	totalRuns     int64
	errors        int64
	cacheHits     int64
	cacheMisses   int64
	topicCounts   map[string]int64
	errorsByStage map[string]int64
	latencies     []int64
	next          int
	queryCounts   map[string]int64
	startTime     time.Time
	logger        *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		topicCounts:   make(map[string]int64),
		errorsByStage: make(map[string]int64),
		latencies:     make([]int64, 0, 1024),
		queryCounts:   make(map[string]int64),
		startTime:     time.Now(),
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DigestEvent](value)
		if err != nil {
			agg.logger.Error("failed to decode digest event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(ev DigestEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRuns++
	a.countQuery(ev.Query)
	if ev.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if ev.Type == EventDigestError {
		a.errors++
		stage := ev.Stage
		if stage == "" {
			stage = "boundary"
		}
		a.errorsByStage[stage]++
	} else {
		a.topicCounts[ev.Topic]++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ev.LatencyUs)
	} else {
		a.latencies[a.next] = ev.LatencyUs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalRuns:     a.totalRuns,
		ErrorCount:    a.errors,
		CacheHits:     a.cacheHits,
		CacheMisses:   a.cacheMisses,
		TopicCounts:   copyCounts(a.topicCounts),
		ErrorsByStage: copyCounts(a.errorsByStage),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyUs = float64(sum) / float64(len(sorted))
		stats.P50LatencyUs = percentile(sorted, 50)
		stats.P95LatencyUs = percentile(sorted, 95)
		stats.P99LatencyUs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.RunsPerMinute = float64(stats.TotalRuns) / elapsed
	}
	return stats
}

// countQuery tracks at most maxTrackedQueries distinct queries, each cut to
// maxQueryKeyBytes. Queries first seen after the table is full are not counted.
func (a *Aggregator) countQuery(query string) {
	if len(query) > maxQueryKeyBytes {
		query = strings.ToValidUTF8(query[:maxQueryKeyBytes], "")
	}
	if _, ok := a.queryCounts[query]; !ok && len(a.queryCounts) >= maxTrackedQueries {
		return
	}
	a.queryCounts[query]++
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts list stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
