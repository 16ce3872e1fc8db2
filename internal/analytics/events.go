// Package analytics records one event per digest request, ships events in
// batches through a Publisher (Kafka or in-process), and aggregates them
// into the statistics served by the analytics endpoint.
package analytics

import "time"

type EventType string

const (
	EventDigest      EventType = "digest"
	EventDigestError EventType = "digest_error"
)

// DigestEvent describes one workflow invocation as seen by the boundary.
type DigestEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Topic     string    `json:"topic,omitempty"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyUs int64     `json:"latency_us"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
